package distill

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/mentorit/ai/mock"
	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chunkResponse = "Here you go:\n```json\n[\n" +
	`{"text": "Write down the decision before the meeting, not after it.", "content_type": "advice", "topic": "decisions", "confidence": "direct"},` + "\n" +
	`{"text": "too short", "content_type": "advice"},` + "\n" +
	`{"text": "A mentor once told me that silence is a tool, not a failure.", "content_type": "story", "voice_origin": "attributed", "attribution": "a mentor"},` + "\n" +
	`{"text": "This chunk has a content type nobody recognizes at all.", "content_type": "rant"}` +
	"\n]\n```"

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		Delay:       func(int) time.Duration { return time.Millisecond },
	}
}

// scriptedGenerator answers anonymization prompts by echoing and extraction
// prompts with response.
func scriptedGenerator(response string) *mock.MockCompleter {
	return mock.NewMockCompleter().WithCompleteFunc(func(_ context.Context, system, user string) (string, error) {
		if system == anonymizePrompt || system == strictAnonymizePrompt {
			return user, nil
		}
		return response, nil
	})
}

func answering(answer string) *mock.MockCompleter {
	return mock.NewMockCompleter().WithCompleteFunc(func(context.Context, string, string) (string, error) {
		return answer, nil
	})
}

func TestNewEngine_RequiresModels(t *testing.T) {
	_, err := NewEngine(nil, mock.NewMockCompleter())
	assert.ErrorIs(t, err, ErrGeneratorRequired)

	_, err = NewEngine(mock.NewMockCompleter(), nil)
	assert.ErrorIs(t, err, ErrClassifierRequired)

	_, err = NewEngine(mock.NewMockCompleter(), mock.NewMockCompleter(), WithMaxTokens(0))
	assert.Error(t, err)
}

func TestDistillSegment_ValidatesCandidates(t *testing.T) {
	gen := scriptedGenerator(chunkResponse)
	cls := answering("no")
	engine, err := NewEngine(gen, cls, WithRetryPolicy(fastPolicy(2)))
	require.NoError(t, err)

	result, err := engine.DistillSegment(context.Background(), "Host: welcome back.", core.ModePlain)
	require.NoError(t, err)

	require.Len(t, result.Chunks, 2)
	assert.Equal(t, 2, result.Discarded)
	assert.False(t, result.Restricted)

	assert.Equal(t, core.ContentAdvice, result.Chunks[0].ContentType)
	assert.Equal(t, core.ConfidenceDirect, result.Chunks[0].Confidence)
	assert.Equal(t, core.VoiceNative, result.Chunks[0].VoiceOrigin)
	assert.Equal(t, core.VoiceAttributed, result.Chunks[1].VoiceOrigin)
	assert.Equal(t, "a mentor", result.Chunks[1].Attribution)

	// anonymize + extract on the generator, verify on the classifier
	assert.Equal(t, 2, gen.CallCount())
	assert.Equal(t, 1, cls.CallCount())
}

func TestDistillSegment_StrictPassOnLeak(t *testing.T) {
	gen := scriptedGenerator(chunkResponse)
	cls := answering("Yes.")
	engine, err := NewEngine(gen, cls, WithRetryPolicy(fastPolicy(1)))
	require.NoError(t, err)

	result, err := engine.DistillSegment(context.Background(), "Host: welcome back, Jane Doe.", core.ModePlain)
	require.NoError(t, err)
	assert.True(t, result.Restricted)

	calls := gen.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, anonymizePrompt, calls[0].System)
	assert.Equal(t, strictAnonymizePrompt, calls[1].System)
	assert.Equal(t, plainChunkPrompt, calls[2].System)
	// verification runs once, the strict pass is not re-verified
	assert.Equal(t, 1, cls.CallCount())
}

func TestDistillSegment_ModeSelectsPrompt(t *testing.T) {
	gen := scriptedGenerator("[]")
	engine, err := NewEngine(gen, answering("no"), WithRetryPolicy(fastPolicy(1)))
	require.NoError(t, err)

	_, err = engine.DistillSegment(context.Background(), "text", core.ModeMentorVoice)
	require.NoError(t, err)

	calls := gen.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, mentorChunkPrompt, calls[1].System)
}

func TestDistillSegment_MalformedOutputYieldsNoChunks(t *testing.T) {
	engine, err := NewEngine(scriptedGenerator("I could not find anything useful."), answering("no"),
		WithRetryPolicy(fastPolicy(1)))
	require.NoError(t, err)

	result, err := engine.DistillSegment(context.Background(), "text", core.ModePlain)
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
	assert.Zero(t, result.Discarded)
}

func TestDistillSegment_RetriesTransientFailures(t *testing.T) {
	failures := 0
	gen := mock.NewMockCompleter().WithCompleteFunc(func(_ context.Context, system, user string) (string, error) {
		if system == anonymizePrompt && failures < 2 {
			failures++
			return "", errors.New("connection reset")
		}
		if system == anonymizePrompt {
			return user, nil
		}
		return "[]", nil
	})
	engine, err := NewEngine(gen, answering("no"), WithRetryPolicy(fastPolicy(3)))
	require.NoError(t, err)

	_, err = engine.DistillSegment(context.Background(), "text", core.ModePlain)
	require.NoError(t, err)
	assert.Equal(t, 2, failures)
}

func TestDistillSegment_ExhaustedRetriesFail(t *testing.T) {
	gen := mock.NewMockCompleter().WithCompleteFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("service unavailable")
	})
	engine, err := NewEngine(gen, answering("no"), WithRetryPolicy(fastPolicy(3)))
	require.NoError(t, err)

	_, err = engine.DistillSegment(context.Background(), "text", core.ModePlain)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anonymize")
	assert.Equal(t, 3, gen.CallCount())
}

func TestDistillSegment_EmptyResponseIsRetried(t *testing.T) {
	gen := scriptedGenerator("   ")
	engine, err := NewEngine(gen, answering("no"), WithRetryPolicy(fastPolicy(2)))
	require.NoError(t, err)

	_, err = engine.DistillSegment(context.Background(), "text", core.ModePlain)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestSegments_UsesCeiling(t *testing.T) {
	engine, err := NewEngine(mock.NewMockCompleter(), mock.NewMockCompleter(), WithMaxTokens(10))
	require.NoError(t, err)

	text := strings.Repeat("Short line here.\n", 20)
	segments := engine.Segments(text)
	assert.Greater(t, len(segments), 1)
	for _, s := range segments {
		assert.LessOrEqual(t, EstimateTokens(s), 10)
	}
}

func TestSegments_TokenCounter(t *testing.T) {
	_, err := NewEngine(mock.NewMockCompleter(), mock.NewMockCompleter(), WithTokenCounter(nil))
	assert.Error(t, err)

	words := func(s string) int { return len(strings.Fields(s)) }
	engine, err := NewEngine(mock.NewMockCompleter(), mock.NewMockCompleter(),
		WithMaxTokens(7), WithTokenCounter(words))
	require.NoError(t, err)

	segments := engine.Segments(strings.Repeat("one two three\n", 4))
	assert.Len(t, segments, 2)
	for _, s := range segments {
		assert.LessOrEqual(t, words(s), 7)
	}
}

func TestNumber(t *testing.T) {
	chunks := []core.Chunk{{Text: "first chunk text here"}, {Text: "second chunk text here"}}
	Number(chunks, "hash", 5)

	assert.Equal(t, 5, chunks[0].Index)
	assert.Equal(t, 6, chunks[1].Index)
	assert.Equal(t, core.ChunkID("hash", 5, chunks[0].Text), chunks[0].ID)
	assert.NotEqual(t, chunks[0].ID, chunks[1].ID)

	again := []core.Chunk{{Text: "first chunk text here"}}
	Number(again, "hash", 5)
	assert.Equal(t, chunks[0].ID, again[0].ID)
}
