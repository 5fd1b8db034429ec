package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/storage"
)

// DefaultStaleAfter is how long a non-final batch may go without activity
// before recovery resubmits it.
const DefaultStaleAfter = 2 * time.Minute

// SubmitFunc queues a batch to run.
type SubmitFunc func(batchID string) error

// RecoveryReport lists what a recovery pass resubmitted.
type RecoveryReport struct {
	Batches       []string
	EpisodesReset int
}

// Supervisor finds batches left unfinished by a previous process and
// resubmits them. Resubmitted batches resume from their persisted chunks
// and namespace progress.
type Supervisor struct {
	batches     storage.BatchRepository
	episodes    storage.EpisodeRepository
	coordinator *Coordinator
	submit      SubmitFunc
	staleAfter  time.Duration
	logger      *slog.Logger
}

// NewSupervisor creates a recovery supervisor. staleAfter <= 0 treats every
// unfinished batch that is not running locally as abandoned.
func NewSupervisor(coordinator *Coordinator, submit SubmitFunc, staleAfter time.Duration, logger *slog.Logger) (*Supervisor, error) {
	if coordinator == nil {
		return nil, ErrProcessorRequired
	}
	if submit == nil {
		return nil, errors.New("submit function required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		batches:     coordinator.batches,
		episodes:    coordinator.episodes,
		coordinator: coordinator,
		submit:      submit,
		staleAfter:  staleAfter,
		logger:      logger.With("component", "recovery"),
	}, nil
}

// Recover resubmits every abandoned batch. A batch is abandoned when it is
// not final, not running in this process, and neither it nor any of its
// episodes changed within the staleness window. Episodes stuck in
// processing are reset to pending first.
func (s *Supervisor) Recover(ctx context.Context) (*RecoveryReport, error) {
	report := &RecoveryReport{}
	batches, err := s.batches.ListBatchesByStatus(ctx,
		core.BatchPending, core.BatchExtracting, core.BatchClassifying, core.BatchProcessing)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-s.staleAfter)
	for _, b := range batches {
		if s.coordinator.IsRunning(b.ID) {
			continue
		}
		episodes, err := s.episodes.ListEpisodes(ctx, b.ID)
		if err != nil {
			return report, err
		}
		if lastActivity(b, episodes).After(cutoff) {
			continue
		}
		if b.Status == core.BatchClassifying && !b.CancelRequested && !anyNeedsClassification(episodes) {
			// waiting for confirmation
			continue
		}

		for _, ep := range episodes {
			if ep.Status != core.EpisodeProcessing {
				continue
			}
			_, err := s.episodes.UpdateEpisode(ctx, ep.ID, func(e *core.Episode) error {
				return core.TransitionEpisode(e, core.EpisodePending)
			})
			if err != nil {
				return report, err
			}
			report.EpisodesReset++
		}

		if err := s.submit(b.ID); err != nil {
			return report, err
		}
		report.Batches = append(report.Batches, b.ID)
		s.logger.Info("resubmitted abandoned batch", "batch", b.ID, "status", b.Status)
	}
	return report, nil
}

// Start runs Recover immediately and then every interval until ctx is done.
func (s *Supervisor) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if _, err := s.Recover(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("recovery pass failed", "err", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func lastActivity(b *core.Batch, episodes []*core.Episode) time.Time {
	last := b.UpdatedAt
	for _, ep := range episodes {
		if ep.UpdatedAt.After(last) {
			last = ep.UpdatedAt
		}
	}
	return last
}

func anyNeedsClassification(episodes []*core.Episode) bool {
	for _, ep := range episodes {
		if needsClassification(ep) {
			return true
		}
	}
	return false
}
