package core

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a compact content-derived identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID as fixed-width hex, suitable for vector IDs.
func (id ID) String() string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return hex.EncodeToString(buf[:])
}

// ChunkID derives the stable identifier of the chunk at index within an
// episode whose transcript has the given content hash. Re-distilling the
// same transcript yields the same IDs, which keeps vector upserts idempotent.
func ChunkID(contentHash string, index int, text string) string {
	return IDFromContent(fmt.Sprintf("%s:%d:%s", contentHash, index, text)).String()
}

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchPending     BatchStatus = "pending"
	BatchExtracting  BatchStatus = "extracting"
	BatchClassifying BatchStatus = "classifying"
	BatchProcessing  BatchStatus = "processing"
	BatchCompleted   BatchStatus = "completed"
	BatchFailed      BatchStatus = "failed"
	BatchCancelled   BatchStatus = "cancelled"
)

// EpisodeStatus is the lifecycle state of an episode.
type EpisodeStatus string

const (
	EpisodePending    EpisodeStatus = "pending"
	EpisodeProcessing EpisodeStatus = "processing"
	EpisodeCompleted  EpisodeStatus = "completed"
	EpisodeFailed     EpisodeStatus = "failed"
	EpisodeSkipped    EpisodeStatus = "skipped"
)

// Mode selects how transcripts are distilled and which metadata variant is
// attached to their vectors.
type Mode string

const (
	// ModePlain produces neutral knowledge chunks.
	ModePlain Mode = "plain"
	// ModeMentorVoice rewrites chunks in the mentor's first-person voice.
	ModeMentorVoice Mode = "mentor_voice"
)

// ParseMode validates a mode string. Empty selects ModePlain.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePlain:
		return ModePlain, nil
	case ModeMentorVoice:
		return ModeMentorVoice, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// ContentType classifies what a chunk teaches.
type ContentType string

const (
	ContentExplanation ContentType = "explanation"
	ContentAdvice      ContentType = "advice"
	ContentStory       ContentType = "story"
	ContentWarning     ContentType = "warning"
	ContentReframe     ContentType = "reframe"
)

// ConfidenceLevel is how assertively a chunk is phrased.
type ConfidenceLevel string

const (
	ConfidenceSoft          ConfidenceLevel = "soft"
	ConfidenceDirect        ConfidenceLevel = "direct"
	ConfidenceAuthoritative ConfidenceLevel = "authoritative"
)

// VoiceOrigin records whether the idea is the speaker's own or attributed to
// someone else.
type VoiceOrigin string

const (
	VoiceNative     VoiceOrigin = "native"
	VoiceAttributed VoiceOrigin = "attributed"
)

// Batch is one uploaded archive of transcripts.
type Batch struct {
	ID                 string
	Namespace          string // default target namespace
	ArchiveName        string
	ArchivePath        string
	Status             BatchStatus
	AutoDetect         bool
	Mode               Mode
	TotalEpisodes      int
	ProcessedEpisodes  int
	SuccessfulEpisodes int
	FailedEpisodes     int
	SkippedEpisodes    int
	TotalChunks        int
	CancelRequested    bool
	Error              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        time.Time
}

// IsTerminal reports whether the batch reached a final status.
func (b *Batch) IsTerminal() bool {
	return b.Status == BatchCompleted || b.Status == BatchFailed || b.Status == BatchCancelled
}

// NamespaceScore is one ranked namespace prediction.
type NamespaceScore struct {
	Name       string
	Confidence float64
}

// Episode is a single transcript file within a batch.
type Episode struct {
	ID          string
	BatchID     string
	Filename    string
	ContentHash string
	Status      EpisodeStatus
	Transcript  string

	Chunks          []Chunk
	SegmentsTotal   int
	SegmentsDone    int
	DistillComplete bool
	ChunkCount      int
	DiscardedCount  int

	// NamespaceProgress maps a namespace to the count of chunks confirmed
	// uploaded there. It never exceeds len(Chunks).
	NamespaceProgress   map[string]int
	TargetNamespaces    []string
	PredictedNamespaces []NamespaceScore
	PrimaryNamespace    string
	Confidence          float64
	Rationale           string
	ManualOverride      bool

	DuplicateOf string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Progress returns the uploaded count for a namespace.
func (e *Episode) Progress(namespace string) int {
	return e.NamespaceProgress[namespace]
}

// IsUploaded reports whether every target namespace holds every chunk.
func (e *Episode) IsUploaded() bool {
	if !e.DistillComplete {
		return false
	}
	for _, ns := range e.TargetNamespaces {
		if e.Progress(ns) < len(e.Chunks) {
			return false
		}
	}
	return true
}

// Chunk is one validated knowledge unit distilled from a transcript.
type Chunk struct {
	ID          string
	Index       int
	Text        string
	ContentType ContentType
	Tone        string
	Topic       string
	Confidence  ConfidenceLevel
	VoiceOrigin VoiceOrigin
	Attribution string
}
