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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/mentorit/classify"
	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/distill"
	"github.com/poiesic/mentorit/storage"
	"github.com/poiesic/mentorit/upload"
)

var errUnfinished = errors.New("episode has namespaces left to upload")

// Processor drives one episode at a time through dedup, distillation,
// classification and upload. Every stage persists its output before the
// next one starts, so Process can be re-entered after any failure.
type Processor struct {
	episodes           storage.EpisodeRepository
	distiller          *distill.Engine
	classifier         *classify.Classifier
	uploader           *upload.Uploader
	secondaryThreshold float64
	logger             *slog.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithSecondaryThreshold sets the confidence a non-primary namespace needs
// to become an upload target.
func WithSecondaryThreshold(threshold float64) ProcessorOption {
	return func(p *Processor) { p.secondaryThreshold = threshold }
}

// WithProcessorLogger sets the logger.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = logger }
}

// NewProcessor creates an episode processor.
func NewProcessor(
	episodes storage.EpisodeRepository,
	distiller *distill.Engine,
	classifier *classify.Classifier,
	uploader *upload.Uploader,
	opts ...ProcessorOption,
) (*Processor, error) {
	if episodes == nil {
		return nil, ErrEpisodeRepositoryRequired
	}
	if distiller == nil || classifier == nil || uploader == nil {
		return nil, fmt.Errorf("distiller, classifier and uploader are required")
	}
	p := &Processor{
		episodes:           episodes,
		distiller:          distiller,
		classifier:         classifier,
		uploader:           uploader,
		secondaryThreshold: classify.DefaultSecondaryThreshold,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "processor")
	return p, nil
}

// Process runs an episode to a final status. Completed and skipped episodes
// are returned unchanged. A stage failure marks the episode failed and is
// reported through the episode's status and Error, not the returned error;
// the returned error is reserved for persistence failures and cancellation.
func (p *Processor) Process(ctx context.Context, batch *core.Batch, episodeID string, stop upload.StopFunc) (*core.Episode, error) {
	ep, err := p.episodes.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if ep.Status == core.EpisodeCompleted || ep.Status == core.EpisodeSkipped {
		return ep, nil
	}
	logger := p.logger.With("batch", batch.ID, "episode", ep.ID, "file", ep.Filename)

	ep, err = p.episodes.UpdateEpisode(ctx, ep.ID, func(e *core.Episode) error {
		if err := core.TransitionEpisode(e, core.EpisodeProcessing); err != nil {
			return err
		}
		e.Error = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	duplicate, err := p.checkDuplicate(ctx, ep)
	if err != nil {
		return nil, err
	}
	if duplicate != nil {
		logger.Info("duplicate transcript skipped", "duplicateOf", duplicate.ID)
		return p.episodes.UpdateEpisode(ctx, ep.ID, func(e *core.Episode) error {
			e.DuplicateOf = duplicate.ID
			return core.TransitionEpisode(e, core.EpisodeSkipped)
		})
	}

	if !ep.DistillComplete {
		ep, err = p.distill(ctx, batch, ep, stop, logger)
		if err != nil {
			return p.fail(ctx, episodeID, err, logger)
		}
	}

	if len(ep.TargetNamespaces) == 0 {
		ep, err = p.assignTargets(ctx, batch, ep)
		if err != nil {
			return p.fail(ctx, episodeID, fmt.Errorf("classification: %w", err), logger)
		}
	}

	if len(ep.Chunks) == 0 {
		logger.Warn("episode produced no chunks", "discarded", ep.DiscardedCount)
	}

	for _, ns := range ep.TargetNamespaces {
		start := ep.Progress(ns)
		if start >= len(ep.Chunks) {
			continue
		}
		result, err := p.uploader.EmbedAndUpload(ctx, upload.Request{
			BatchID:   batch.ID,
			EpisodeID: ep.ID,
			Filename:  ep.Filename,
			Mode:      batch.Mode,
			Namespace: ns,
			Chunks:    ep.Chunks,
			StartFrom: start,
		}, stop)
		if errors.Is(err, upload.ErrStopped) {
			return p.fail(ctx, ep.ID, ErrCancelled, logger)
		}
		if err != nil {
			return p.fail(ctx, ep.ID, fmt.Errorf("upload to %s: %w", ns, err), logger)
		}
		logger.Info("namespace uploaded", "namespace", ns, "embedded", result.ChunksEmbedded, "total", result.TotalChunks)
	}

	ep, err = p.episodes.UpdateEpisode(ctx, ep.ID, func(e *core.Episode) error {
		if !e.IsUploaded() {
			return errUnfinished
		}
		return core.TransitionEpisode(e, core.EpisodeCompleted)
	})
	if errors.Is(err, errUnfinished) {
		// targets changed by an override while uploading
		return p.fail(ctx, episodeID, err, logger)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("episode completed", "chunks", ep.ChunkCount, "namespaces", ep.TargetNamespaces)
	return ep, nil
}

// checkDuplicate claims the episode's content hash, or returns the live
// episode that already owns it. A failed owner gives up its claim.
func (p *Processor) checkDuplicate(ctx context.Context, ep *core.Episode) (*core.Episode, error) {
	if ep.ContentHash == "" {
		hash := core.ContentHash(ep.Transcript)
		updated, err := p.episodes.UpdateEpisode(ctx, ep.ID, func(e *core.Episode) error {
			e.ContentHash = hash
			return nil
		})
		if err != nil {
			return nil, err
		}
		*ep = *updated
	}
	return p.episodes.ClaimHash(ctx, ep.ContentHash, ep.ID)
}

// distill runs the remaining segments, persisting chunks after each one.
func (p *Processor) distill(ctx context.Context, batch *core.Batch, ep *core.Episode, stop upload.StopFunc, logger *slog.Logger) (*core.Episode, error) {
	segments := p.distiller.Segments(ep.Transcript)
	logger.Info("distilling episode", "segments", len(segments), "resumeAt", ep.SegmentsDone)

	first := ep.SegmentsDone
	for i := first; i < len(segments); i++ {
		if stop != nil && i > first && stop(ctx) {
			return ep, ErrCancelled
		}
		result, err := p.distiller.DistillSegment(ctx, segments[i], batch.Mode)
		if err != nil {
			return ep, fmt.Errorf("distillation of segment %d/%d: %w", i+1, len(segments), err)
		}

		updated, err := p.episodes.UpdateEpisode(ctx, ep.ID, func(e *core.Episode) error {
			distill.Number(result.Chunks, e.ContentHash, len(e.Chunks))
			e.Chunks = append(e.Chunks, result.Chunks...)
			e.ChunkCount = len(e.Chunks)
			e.DiscardedCount += result.Discarded
			e.SegmentsTotal = len(segments)
			e.SegmentsDone = i + 1
			return nil
		})
		if err != nil {
			return ep, err
		}
		ep = updated
	}

	return p.episodes.UpdateEpisode(ctx, ep.ID, func(e *core.Episode) error {
		e.SegmentsTotal = len(segments)
		e.DistillComplete = true
		return nil
	})
}

// assignTargets picks upload namespaces: the batch namespace, or the
// classifier's prediction for auto-detect batches.
func (p *Processor) assignTargets(ctx context.Context, batch *core.Batch, ep *core.Episode) (*core.Episode, error) {
	if !batch.AutoDetect {
		return p.episodes.UpdateEpisode(ctx, ep.ID, func(e *core.Episode) error {
			e.TargetNamespaces = []string{batch.Namespace}
			e.PrimaryNamespace = batch.Namespace
			return nil
		})
	}
	return p.Classify(ctx, batch, ep.ID)
}

// Classify predicts namespaces for an episode and stores the prediction.
// The upload targets are only replaced when no manual override exists.
func (p *Processor) Classify(ctx context.Context, batch *core.Batch, episodeID string) (*core.Episode, error) {
	ep, err := p.episodes.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	pred, err := p.classifier.Classify(ctx, ep.Transcript, batch.Namespace)
	if err != nil {
		return ep, err
	}
	targets := pred.Targets(p.secondaryThreshold)
	if len(targets) == 0 {
		return ep, ErrNamespaceRequired
	}
	p.logger.Debug("episode classified",
		"episode", ep.ID,
		"primary", pred.Primary,
		"confidence", pred.Confidence,
		"band", pred.Band())

	return p.episodes.UpdateEpisode(ctx, ep.ID, func(e *core.Episode) error {
		e.PredictedNamespaces = pred.Namespaces
		e.Confidence = pred.Confidence
		e.Rationale = pred.Rationale
		if !e.ManualOverride {
			e.PrimaryNamespace = pred.Primary
			e.TargetNamespaces = targets
		}
		return nil
	})
}

// fail records a stage failure on the episode. Progress and chunks are kept.
// When ctx itself is done the episode is left in processing for recovery.
func (p *Processor) fail(ctx context.Context, episodeID string, cause error, logger *slog.Logger) (*core.Episode, error) {
	if ctx.Err() != nil {
		logger.Info("episode interrupted", "err", cause)
		return nil, ctx.Err()
	}
	logger.Warn("episode failed", "err", cause)
	ep, err := p.episodes.UpdateEpisode(ctx, episodeID, func(e *core.Episode) error {
		if err := core.TransitionEpisode(e, core.EpisodeFailed); err != nil {
			return err
		}
		e.Error = cause.Error()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if errors.Is(cause, ErrCancelled) {
		return ep, ErrCancelled
	}
	return ep, nil
}
