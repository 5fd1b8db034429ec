package distill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/mentorit/ai"
	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/retry"
)

// DefaultMaxTokens is the per-call token ceiling for transcript segments.
const DefaultMaxTokens = 8000

// Engine turns raw transcript text into validated chunks: anonymize,
// verify, and extract.
type Engine struct {
	generator  ai.Completer
	classifier ai.Completer
	policy     retry.Policy
	maxTokens  int
	count      TokenCounter
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithRetryPolicy sets the policy applied to every model call.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Engine) error {
		if p.MaxAttempts <= 0 {
			return retry.ErrInvalidMaxAttempts
		}
		e.policy = p
		return nil
	}
}

// WithMaxTokens sets the segment token ceiling.
func WithMaxTokens(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", n)
		}
		e.maxTokens = n
		return nil
	}
}

// WithTokenCounter sets how segment sizes are measured. The default is
// EstimateTokens.
func WithTokenCounter(count TokenCounter) Option {
	return func(e *Engine) error {
		if count == nil {
			return fmt.Errorf("token counter required")
		}
		e.count = count
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// NewEngine creates a distillation engine.
func NewEngine(generator, classifier ai.Completer, opts ...Option) (*Engine, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if classifier == nil {
		return nil, ErrClassifierRequired
	}
	e := &Engine{
		generator:  generator,
		classifier: classifier,
		policy:     retry.DefaultPolicy(),
		maxTokens:  DefaultMaxTokens,
		count:      EstimateTokens,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "distill")
	return e, nil
}

// Segments splits a transcript into the units DistillSegment works on. The
// result is deterministic for a given text and ceiling.
func (e *Engine) Segments(text string) []string {
	return SplitWith(text, e.maxTokens, e.count)
}

// SegmentResult is the outcome of distilling one segment.
type SegmentResult struct {
	// Chunks are validated but not yet numbered.
	Chunks []core.Chunk
	// Discarded counts candidates that failed validation.
	Discarded int
	// Restricted is true when verification found a leak and the stricter
	// anonymization pass ran.
	Restricted bool
}

// DistillSegment anonymizes one segment, verifies the result, re-anonymizes
// once more strictly on a detected leak, then extracts chunks. A model call
// that still fails after the retry policy is exhausted returns an error.
// Malformed extraction output is not an error: it yields zero chunks.
func (e *Engine) DistillSegment(ctx context.Context, segment string, mode core.Mode) (*SegmentResult, error) {
	result := &SegmentResult{}

	anonymized, err := e.complete(ctx, e.generator, anonymizePrompt, segment)
	if err != nil {
		return nil, fmt.Errorf("anonymize: %w", err)
	}

	leaked, err := e.verify(ctx, anonymized)
	if err != nil {
		return nil, fmt.Errorf("verify anonymization: %w", err)
	}
	if leaked {
		e.logger.Warn("anonymization verification flagged a leak, applying strict pass")
		anonymized, err = e.complete(ctx, e.generator, strictAnonymizePrompt, anonymized)
		if err != nil {
			return nil, fmt.Errorf("strict anonymize: %w", err)
		}
		result.Restricted = true
	}

	raw, err := e.complete(ctx, e.generator, chunkPrompt(mode), anonymized)
	if err != nil {
		return nil, fmt.Errorf("extract chunks: %w", err)
	}

	result.Chunks, result.Discarded = ParseChunks(raw, e.logger)
	e.logger.Debug("segment distilled",
		"chunks", len(result.Chunks),
		"discarded", result.Discarded,
		"restricted", result.Restricted)
	return result, nil
}

func (e *Engine) verify(ctx context.Context, text string) (bool, error) {
	answer, err := e.complete(ctx, e.classifier, verifyPrompt, text)
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return strings.HasPrefix(answer, "yes"), nil
}

func (e *Engine) complete(ctx context.Context, model ai.Completer, system, user string) (string, error) {
	return retry.Value(ctx, e.policy, func(ctx context.Context) (string, error) {
		out, err := model.Complete(ctx, system, user)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(out) == "" {
			return "", ErrEmptyResponse
		}
		return out, nil
	})
}

// ParseChunks extracts chunk candidates from a model response and validates
// each one. It returns the valid chunks and the number of discarded
// candidates. A response without a JSON array yields no chunks.
func ParseChunks(response string, logger *slog.Logger) ([]core.Chunk, int) {
	if logger == nil {
		logger = slog.Default()
	}
	block, ok := ai.ExtractArray(response)
	if !ok {
		logger.Warn("no JSON array in extraction response", "length", len(response))
		return nil, 0
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(block), &elements); err != nil {
		logger.Warn("malformed extraction response", "err", err)
		return nil, 0
	}

	chunks := make([]core.Chunk, 0, len(elements))
	discarded := 0
	for i, el := range elements {
		var candidate core.ChunkCandidate
		if err := json.Unmarshal(el, &candidate); err != nil {
			discarded++
			logger.Debug("discarding undecodable chunk", "index", i, "err", err)
			continue
		}
		chunk, err := core.NewChunk(candidate)
		if err != nil {
			discarded++
			logger.Debug("discarding invalid chunk", "index", i, "err", err)
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, discarded
}

// Number assigns sequential indices starting at start, and stable IDs
// derived from the episode content hash, to chunks in place.
func Number(chunks []core.Chunk, contentHash string, start int) {
	for i := range chunks {
		chunks[i].Index = start + i
		chunks[i].ID = core.ChunkID(contentHash, chunks[i].Index, chunks[i].Text)
	}
}
