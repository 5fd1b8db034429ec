// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/mentorit/ai"
	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/retry"
	"github.com/poiesic/mentorit/storage"
)

const (
	// DefaultGroupSize is the number of chunks per upsert call.
	DefaultGroupSize = 50
	// DefaultMicroBatch is the number of texts per embedding call.
	DefaultMicroBatch = 15
	// DefaultPause is the courtesy delay between embedding calls.
	DefaultPause = 200 * time.Millisecond
)

var (
	// ErrStopped is returned when the stop hook ended an upload between groups.
	ErrStopped = errors.New("upload stopped")

	// ErrEmbeddingCount is returned when the embedder returns a different
	// number of vectors than texts.
	ErrEmbeddingCount = errors.New("embedding count mismatch")
)

// StopFunc is consulted between upsert groups. Returning true ends the
// upload after the group in flight has been persisted.
type StopFunc func(ctx context.Context) bool

// Request describes the chunks of one episode destined for one namespace.
type Request struct {
	BatchID   string
	EpisodeID string
	Filename  string
	Mode      core.Mode
	Namespace string
	Chunks    []core.Chunk
	// StartFrom is the persisted progress for Namespace. Chunks before it
	// are already in the store.
	StartFrom int
}

// Result reports what an upload call did.
type Result struct {
	TotalChunks int
	// ChunksEmbedded counts chunks embedded during this call.
	ChunksEmbedded int
	// ChunksUploaded is the namespace progress after this call.
	ChunksUploaded int
	IsComplete     bool
}

// Uploader embeds chunks and upserts them into a vector store, persisting
// per-namespace progress after every confirmed upsert.
type Uploader struct {
	embedder   ai.Embedder
	store      storage.VectorStore
	progress   storage.ProgressStore
	policy     retry.Policy
	groupSize  int
	microBatch int
	pause      time.Duration
	logger     *slog.Logger
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithRetryPolicy sets the policy applied to embed and upsert calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(u *Uploader) { u.policy = p }
}

// WithGroupSize sets the number of chunks per upsert.
func WithGroupSize(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.groupSize = n
		}
	}
}

// WithMicroBatch sets the number of texts per embedding call.
func WithMicroBatch(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.microBatch = n
		}
	}
}

// WithPause sets the delay between embedding calls.
func WithPause(d time.Duration) Option {
	return func(u *Uploader) { u.pause = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) { u.logger = logger }
}

// NewUploader creates an uploader.
func NewUploader(embedder ai.Embedder, store storage.VectorStore, progress storage.ProgressStore, opts ...Option) (*Uploader, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store required")
	}
	if progress == nil {
		return nil, fmt.Errorf("progress store required")
	}
	u := &Uploader{
		embedder:   embedder,
		store:      store,
		progress:   progress,
		policy:     retry.DefaultPolicy(),
		groupSize:  DefaultGroupSize,
		microBatch: DefaultMicroBatch,
		pause:      DefaultPause,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = u.logger.With("component", "uploader")
	return u, nil
}

// EmbedAndUpload uploads req.Chunks[req.StartFrom:] to req.Namespace in
// groups. Progress is persisted after each group, so a failed or stopped
// call can be resumed from the stored count without re-embedding finished
// groups. Vector IDs are chunk IDs, so replaying a group overwrites it.
//
// The returned Result is valid even when err is non-nil.
func (u *Uploader) EmbedAndUpload(ctx context.Context, req Request, stop StopFunc) (*Result, error) {
	total := len(req.Chunks)
	result := &Result{TotalChunks: total, ChunksUploaded: req.StartFrom}
	if req.StartFrom < 0 || req.StartFrom > total {
		return result, fmt.Errorf("%w: start %d of %d chunks", storage.ErrProgressOutOfRange, req.StartFrom, total)
	}
	logger := u.logger.With("episode", req.EpisodeID, "namespace", req.Namespace)

	for start := req.StartFrom; start < total; start += u.groupSize {
		if start > req.StartFrom && stop != nil && stop(ctx) {
			logger.Info("upload stopped between groups", "uploaded", result.ChunksUploaded, "total", total)
			return result, ErrStopped
		}
		end := min(start+u.groupSize, total)
		group := req.Chunks[start:end]

		vectors, err := u.embedGroup(ctx, group)
		if err != nil {
			return result, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		result.ChunksEmbedded += len(group)

		records := make([]storage.Vector, len(group))
		for i, chunk := range group {
			meta := core.MetadataFor(req.Mode, core.Provenance{
				BatchID:    req.BatchID,
				EpisodeID:  req.EpisodeID,
				Filename:   req.Filename,
				Namespace:  req.Namespace,
				ChunkIndex: chunk.Index,
			}, chunk)
			records[i] = storage.Vector{ID: chunk.ID, Values: vectors[i], Metadata: meta.Fields()}
		}

		err = u.policy.Do(ctx, func(ctx context.Context) error {
			return u.store.Upsert(ctx, req.Namespace, records)
		})
		if err != nil {
			return result, fmt.Errorf("upsert chunks %d-%d: %w", start, end, err)
		}

		if err := u.progress.SetNamespaceProgress(ctx, req.EpisodeID, req.Namespace, end); err != nil {
			return result, fmt.Errorf("persist progress: %w", err)
		}
		result.ChunksUploaded = end
		logger.Debug("group uploaded", "uploaded", end, "total", total)
	}

	result.IsComplete = result.ChunksUploaded == total
	return result, nil
}

// embedGroup embeds a group in micro-batches, pausing between calls.
func (u *Uploader) embedGroup(ctx context.Context, group []core.Chunk) ([][]float32, error) {
	out := make([][]float32, 0, len(group))
	dim := u.embedder.Dimension()

	for start := 0; start < len(group); start += u.microBatch {
		if start > 0 && u.pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(u.pause):
			}
		}
		end := min(start+u.microBatch, len(group))
		texts := make([]string, end-start)
		for i, chunk := range group[start:end] {
			texts[i] = chunk.Text
		}

		embeddings, err := retry.Value(ctx, u.policy, func(ctx context.Context) ([][]float32, error) {
			return u.embedder.EmbedTexts(ctx, texts)
		})
		if err != nil {
			return nil, err
		}
		if len(embeddings) != len(texts) {
			return nil, fmt.Errorf("%w: expected %d, received %d", ErrEmbeddingCount, len(texts), len(embeddings))
		}
		for _, v := range embeddings {
			if dim > 0 && len(v) != dim {
				return nil, fmt.Errorf("%w: expected %d, got %d", ai.ErrDimensionMismatch, dim, len(v))
			}
			out = append(out, NormalizeVector(v))
		}
	}
	return out, nil
}
