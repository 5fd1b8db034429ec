package core

import (
	"errors"
	"strings"
	"testing"
)

func TestNewChunk(t *testing.T) {
	valid := "Trust builds slowly and breaks quickly, so guard it."

	tests := []struct {
		name      string
		candidate ChunkCandidate
		wantErr   error
	}{
		{
			name:      "valid chunk",
			candidate: ChunkCandidate{Text: valid, ContentType: "advice"},
		},
		{
			name:      "content type is case insensitive",
			candidate: ChunkCandidate{Text: valid, ContentType: " Warning "},
		},
		{
			name:      "exactly minimum length",
			candidate: ChunkCandidate{Text: strings.Repeat("a", MinChunkLength), ContentType: "story"},
		},
		{
			name:      "exactly maximum length",
			candidate: ChunkCandidate{Text: strings.Repeat("a", MaxChunkLength), ContentType: "story"},
		},
		{
			name:      "too short",
			candidate: ChunkCandidate{Text: "too short", ContentType: "advice"},
			wantErr:   ErrChunkTooShort,
		},
		{
			name:      "too long",
			candidate: ChunkCandidate{Text: strings.Repeat("a", MaxChunkLength+1), ContentType: "advice"},
			wantErr:   ErrChunkTooLong,
		},
		{
			name:      "whitespace does not count toward length",
			candidate: ChunkCandidate{Text: "  short   text  \n\n  here ", ContentType: "advice"},
			wantErr:   ErrChunkTooShort,
		},
		{
			name:      "unknown content type",
			candidate: ChunkCandidate{Text: valid, ContentType: "rant"},
			wantErr:   ErrInvalidContentType,
		},
		{
			name:      "missing content type",
			candidate: ChunkCandidate{Text: valid},
			wantErr:   ErrInvalidContentType,
		},
		{
			name:      "unknown confidence",
			candidate: ChunkCandidate{Text: valid, ContentType: "advice", Confidence: "shouting"},
			wantErr:   ErrInvalidConfidence,
		},
		{
			name:      "unknown voice origin",
			candidate: ChunkCandidate{Text: valid, ContentType: "advice", VoiceOrigin: "borrowed"},
			wantErr:   ErrInvalidVoiceOrigin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunk(tt.candidate)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("NewChunk() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidChunk) {
				t.Errorf("NewChunk() error = %v, want ErrInvalidChunk", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewChunk() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewChunk_Cleans(t *testing.T) {
	c, err := NewChunk(ChunkCandidate{
		Text:        "  Patience   is\na skill you\tpractice daily. ",
		ContentType: "REFRAME",
		Tone:        " warm ",
	})
	if err != nil {
		t.Fatalf("NewChunk() error = %v", err)
	}
	if c.Text != "Patience is a skill you practice daily." {
		t.Errorf("Text = %q", c.Text)
	}
	if c.ContentType != ContentReframe || c.Tone != "warm" {
		t.Errorf("unexpected chunk: %+v", c)
	}
	if c.Confidence != ConfidenceDirect || c.VoiceOrigin != VoiceNative {
		t.Errorf("defaults not applied: %+v", c)
	}
}

func TestNormalizeNamespace(t *testing.T) {
	got, err := NormalizeNamespace("  Life ")
	if err != nil || got != "life" {
		t.Errorf("NormalizeNamespace() = %q, %v", got, err)
	}
	if _, err := NormalizeNamespace("   "); !errors.Is(err, ErrEmptyNamespace) {
		t.Errorf("NormalizeNamespace(blank) error = %v", err)
	}
}

func TestTransitions(t *testing.T) {
	b := &Batch{ID: "b1", Status: BatchPending}
	if err := TransitionBatch(b, BatchCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pending -> completed should be rejected, got %v", err)
	}
	for _, to := range []BatchStatus{BatchExtracting, BatchProcessing, BatchCompleted, BatchProcessing} {
		if err := TransitionBatch(b, to); err != nil {
			t.Fatalf("TransitionBatch(%s) error = %v", to, err)
		}
	}

	e := &Episode{ID: "e1", Status: EpisodeSkipped}
	if err := TransitionEpisode(e, EpisodeProcessing); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("skipped -> processing should be rejected, got %v", err)
	}
	if err := TransitionEpisode(e, EpisodePending); err != nil {
		t.Errorf("skipped -> pending error = %v", err)
	}
	e.Status = EpisodeFailed
	if err := TransitionEpisode(e, EpisodePending); err != nil {
		t.Errorf("failed -> pending error = %v", err)
	}
}
