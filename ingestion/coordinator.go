package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/storage"
	"github.com/poiesic/mentorit/upload"
)

// CreateBatchRequest describes a new upload.
type CreateBatchRequest struct {
	// ArchivePath is a zip archive or a directory of transcripts.
	ArchivePath string
	// ArchiveName defaults to the base name of ArchivePath.
	ArchiveName string
	// Namespace is required unless AutoDetect is set, in which case it is
	// the fallback for transcripts the classifier cannot place.
	Namespace  string
	AutoDetect bool
	Mode       core.Mode
}

// Coordinator owns the batch state machine. It extracts archives into
// episodes, drives episodes through the Processor one at a time, and keeps
// batch aggregates in step with episode statuses.
type Coordinator struct {
	batches   storage.BatchRepository
	episodes  storage.EpisodeRepository
	store     storage.VectorStore
	processor *Processor
	running   *runningSet
	logger    *slog.Logger
}

// NewCoordinator creates a batch coordinator.
func NewCoordinator(
	batches storage.BatchRepository,
	episodes storage.EpisodeRepository,
	store storage.VectorStore,
	processor *Processor,
	logger *slog.Logger,
) (*Coordinator, error) {
	if batches == nil {
		return nil, ErrBatchRepositoryRequired
	}
	if episodes == nil {
		return nil, ErrEpisodeRepositoryRequired
	}
	if store == nil {
		return nil, ErrVectorStoreRequired
	}
	if processor == nil {
		return nil, ErrProcessorRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		batches:   batches,
		episodes:  episodes,
		store:     store,
		processor: processor,
		running:   newRunningSet(),
		logger:    logger.With("component", "coordinator"),
	}, nil
}

// CreateBatch validates req and stores a pending batch. Nothing is read
// from the archive until the batch is run.
func (c *Coordinator) CreateBatch(ctx context.Context, req CreateBatchRequest) (*core.Batch, error) {
	if req.ArchivePath == "" {
		return nil, ErrArchiveRequired
	}
	if _, err := os.Stat(req.ArchivePath); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	namespace := ""
	if req.Namespace != "" {
		ns, err := core.NormalizeNamespace(req.Namespace)
		if err != nil {
			return nil, err
		}
		namespace = ns
	}
	if namespace == "" && !req.AutoDetect {
		return nil, ErrNamespaceRequired
	}

	mode := req.Mode
	if mode == "" {
		mode = core.ModePlain
	}
	if _, err := core.ParseMode(string(mode)); err != nil {
		return nil, err
	}

	name := req.ArchiveName
	if name == "" {
		name = filepath.Base(req.ArchivePath)
	}

	batch := &core.Batch{
		ID:          uuid.NewString(),
		Namespace:   namespace,
		ArchiveName: name,
		ArchivePath: req.ArchivePath,
		Status:      core.BatchPending,
		AutoDetect:  req.AutoDetect,
		Mode:        mode,
	}
	if err := c.batches.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}
	c.logger.Info("batch created", "batch", batch.ID, "archive", name, "namespace", namespace, "autoDetect", req.AutoDetect)
	return batch, nil
}

// Run drives a batch forward from its persisted status until it finishes,
// waits for confirmation, or fails. Returns ErrBatchRunning if the batch is
// already being run by this process.
func (c *Coordinator) Run(ctx context.Context, batchID string) error {
	if !c.running.acquire(batchID) {
		return ErrBatchRunning
	}
	defer c.running.release(batchID)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := c.batches.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if b.CancelRequested && !b.IsTerminal() {
			return c.finishCancelled(ctx, b.ID)
		}

		switch b.Status {
		case core.BatchPending:
			if _, err := c.transition(ctx, b.ID, core.BatchExtracting); err != nil {
				return err
			}
		case core.BatchExtracting:
			if err := c.extract(ctx, b); err != nil {
				return c.failBatch(ctx, b.ID, err)
			}
		case core.BatchClassifying:
			return c.classify(ctx, b)
		case core.BatchProcessing:
			return c.process(ctx, b)
		default:
			return nil
		}
	}
}

// IsRunning reports whether this process is currently running the batch.
func (c *Coordinator) IsRunning(batchID string) bool {
	return c.running.contains(batchID)
}

// extract reads the archive into episodes and moves the batch on.
// Episode IDs derive from the batch ID and filename, so a re-run after a
// crash mid-extraction recreates nothing.
func (c *Coordinator) extract(ctx context.Context, b *core.Batch) error {
	transcripts, err := ReadArchive(b.ArchivePath)
	if err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}
	if len(transcripts) == 0 {
		return ErrEmptyArchive
	}

	space, err := uuid.Parse(b.ID)
	if err != nil {
		space = uuid.NewSHA1(uuid.NameSpaceURL, []byte(b.ID))
	}
	episodes := make([]*core.Episode, len(transcripts))
	for i, t := range transcripts {
		episodes[i] = &core.Episode{
			ID:          uuid.NewSHA1(space, []byte(t.Filename)).String(),
			BatchID:     b.ID,
			Filename:    t.Filename,
			ContentHash: core.ContentHash(t.Text),
			Status:      core.EpisodePending,
			Transcript:  t.Text,
			// preserves archive order in the creation-time index
			CreatedAt: b.CreatedAt.Add(time.Duration(i) * time.Microsecond),
		}
	}
	if err := c.episodes.CreateEpisodes(ctx, episodes...); err != nil {
		return err
	}

	next := core.BatchProcessing
	if b.AutoDetect {
		next = core.BatchClassifying
	}
	_, err = c.batches.UpdateBatch(ctx, b.ID, func(batch *core.Batch) error {
		batch.TotalEpisodes = len(episodes)
		return core.TransitionBatch(batch, next)
	})
	if err != nil {
		return err
	}
	c.logger.Info("archive extracted", "batch", b.ID, "episodes", len(episodes), "next", next)
	return nil
}

// classify predicts namespaces for every unclassified pending episode. The
// batch then waits in classifying until Confirm.
func (c *Coordinator) classify(ctx context.Context, b *core.Batch) error {
	episodes, err := c.episodes.ListEpisodes(ctx, b.ID)
	if err != nil {
		return err
	}
	for _, ep := range episodes {
		if !needsClassification(ep) {
			continue
		}
		if c.cancelRequested(ctx, b.ID) {
			return c.finishCancelled(ctx, b.ID)
		}
		if _, err := c.processor.Classify(ctx, b, ep.ID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// retried when the episode is processed
			c.logger.Warn("classification failed", "batch", b.ID, "episode", ep.ID, "err", err)
		}
	}
	if _, err := c.batches.UpdateBatch(ctx, b.ID, func(*core.Batch) error { return nil }); err != nil {
		return err
	}
	c.logger.Info("batch classified, awaiting confirmation", "batch", b.ID)
	return nil
}

func needsClassification(ep *core.Episode) bool {
	return ep.Status == core.EpisodePending && !ep.ManualOverride && len(ep.PredictedNamespaces) == 0
}

// process runs every pending episode in creation order.
func (c *Coordinator) process(ctx context.Context, b *core.Batch) error {
	if err := c.store.Ping(ctx); err != nil {
		return c.failBatch(ctx, b.ID, fmt.Errorf("%w: %w", ErrVectorStoreUnavailable, err))
	}

	episodes, err := c.episodes.ListEpisodes(ctx, b.ID)
	if err != nil {
		return c.failBatch(ctx, b.ID, err)
	}
	stop := c.stopFunc(b.ID)

	for _, ep := range episodes {
		if ep.Status != core.EpisodePending && ep.Status != core.EpisodeProcessing {
			continue
		}
		if c.cancelRequested(ctx, b.ID) {
			return c.finishCancelled(ctx, b.ID)
		}

		_, err := c.processor.Process(ctx, b, ep.ID, stop)
		if _, aggErr := c.refresh(ctx, b.ID); aggErr != nil {
			c.logger.Error("error updating batch aggregates", "batch", b.ID, "err", aggErr)
		}
		switch {
		case errors.Is(err, ErrCancelled):
			return c.finishCancelled(ctx, b.ID)
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			return c.failBatch(ctx, b.ID, err)
		}
	}

	if c.cancelRequested(ctx, b.ID) {
		return c.finishCancelled(ctx, b.ID)
	}

	batch, err := c.batches.UpdateBatch(ctx, b.ID, func(batch *core.Batch) error {
		if err := core.TransitionBatch(batch, core.BatchCompleted); err != nil {
			return err
		}
		batch.CompletedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return err
	}
	batch, err = c.refresh(ctx, b.ID)
	if err != nil {
		return err
	}
	c.logger.Info("batch completed",
		"batch", b.ID,
		"successful", batch.SuccessfulEpisodes,
		"failed", batch.FailedEpisodes,
		"skipped", batch.SkippedEpisodes,
		"chunks", batch.TotalChunks)
	return nil
}

// Confirm releases a classified batch into processing.
func (c *Coordinator) Confirm(ctx context.Context, batchID string) (*core.Batch, error) {
	return c.batches.UpdateBatch(ctx, batchID, func(b *core.Batch) error {
		if b.Status != core.BatchClassifying {
			return fmt.Errorf("%w: batch %s is %s", ErrNotAwaitingConfirmation, b.ID, b.Status)
		}
		return core.TransitionBatch(b, core.BatchProcessing)
	})
}

// Cancel requests cancellation. A running batch honors it before the next
// episode or upload group; an idle batch is finalized immediately.
func (c *Coordinator) Cancel(ctx context.Context, batchID string) (*core.Batch, error) {
	b, err := c.batches.UpdateBatch(ctx, batchID, func(b *core.Batch) error {
		if b.IsTerminal() {
			return fmt.Errorf("%w: batch %s is %s", ErrBatchFinished, b.ID, b.Status)
		}
		b.CancelRequested = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("batch cancellation requested", "batch", batchID)
	if c.running.contains(batchID) {
		return b, nil
	}
	if err := c.finishCancelled(ctx, batchID); err != nil {
		return nil, err
	}
	return c.batches.GetBatch(ctx, batchID)
}

// Retry resets failed episodes to pending and reopens a finished batch.
// Episodes a cancellation skipped are requeued too; duplicates are not.
// The caller resubmits the batch to run it.
func (c *Coordinator) Retry(ctx context.Context, batchID string) (*core.Batch, error) {
	if c.running.contains(batchID) {
		return nil, ErrBatchRunning
	}
	b, err := c.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !b.IsTerminal() {
		return nil, fmt.Errorf("%w: batch %s is %s", core.ErrInvalidTransition, b.ID, b.Status)
	}

	episodes, err := c.episodes.ListEpisodes(ctx, batchID)
	if err != nil {
		return nil, err
	}
	reset := 0
	for _, ep := range episodes {
		if !retryable(ep) {
			continue
		}
		_, err := c.episodes.UpdateEpisode(ctx, ep.ID, func(e *core.Episode) error {
			e.Error = ""
			return core.TransitionEpisode(e, core.EpisodePending)
		})
		if err != nil {
			return nil, err
		}
		reset++
	}

	next := core.BatchProcessing
	if len(episodes) == 0 {
		next = core.BatchPending
	}
	_, err = c.batches.UpdateBatch(ctx, batchID, func(b *core.Batch) error {
		if err := core.TransitionBatch(b, next); err != nil {
			return err
		}
		b.CancelRequested = false
		b.Error = ""
		b.CompletedAt = time.Time{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("batch reopened for retry", "batch", batchID, "episodes", reset)
	return c.refresh(ctx, batchID)
}

func retryable(ep *core.Episode) bool {
	switch ep.Status {
	case core.EpisodeFailed, core.EpisodeProcessing:
		return true
	case core.EpisodeSkipped:
		return ep.DuplicateOf == ""
	}
	return false
}

// Delete removes a batch and its episodes. Vectors already uploaded stay in
// the store.
func (c *Coordinator) Delete(ctx context.Context, batchID string) error {
	if c.running.contains(batchID) {
		return ErrBatchRunning
	}
	if _, err := c.batches.GetBatch(ctx, batchID); err != nil {
		return err
	}
	if err := c.episodes.DeleteEpisodes(ctx, batchID); err != nil {
		return err
	}
	if err := c.batches.DeleteBatch(ctx, batchID); err != nil {
		return err
	}
	c.logger.Info("batch deleted", "batch", batchID)
	return nil
}

// OverrideNamespaces replaces an episode's upload targets. The first
// namespace becomes the primary. A completed episode that gains a namespace
// is marked failed so a retry uploads it there; vectors already written to
// namespaces that are no longer targeted are left in place.
func (c *Coordinator) OverrideNamespaces(ctx context.Context, episodeID string, namespaces []string) (*core.Episode, error) {
	var targets []string
	for _, ns := range namespaces {
		n, err := core.NormalizeNamespace(ns)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(targets, n) {
			targets = append(targets, n)
		}
	}
	if len(targets) == 0 {
		return nil, core.ErrEmptyNamespace
	}

	var dropped []string
	ep, err := c.episodes.UpdateEpisode(ctx, episodeID, func(e *core.Episode) error {
		if e.Status == core.EpisodeSkipped {
			return fmt.Errorf("%w: episode %s was skipped", core.ErrInvalidTransition, e.ID)
		}
		dropped = dropped[:0]
		for _, ns := range e.TargetNamespaces {
			if !slices.Contains(targets, ns) && e.Progress(ns) > 0 {
				dropped = append(dropped, ns)
			}
		}
		e.TargetNamespaces = targets
		e.PrimaryNamespace = targets[0]
		e.ManualOverride = true
		if e.Status == core.EpisodeCompleted && !e.IsUploaded() {
			e.Error = "namespace override awaiting upload"
			return core.TransitionEpisode(e, core.EpisodeFailed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		c.logger.Warn("override leaves vectors in previous namespaces", "episode", episodeID, "namespaces", dropped)
	}
	if _, err := c.refresh(ctx, ep.BatchID); err != nil {
		return nil, err
	}
	return ep, nil
}

// GetBatch returns a batch by ID.
func (c *Coordinator) GetBatch(ctx context.Context, batchID string) (*core.Batch, error) {
	return c.batches.GetBatch(ctx, batchID)
}

// ListBatches returns every batch ordered by creation time.
func (c *Coordinator) ListBatches(ctx context.Context) ([]*core.Batch, error) {
	return c.batches.ListBatches(ctx)
}

// ListEpisodes returns a batch's episodes in archive order.
func (c *Coordinator) ListEpisodes(ctx context.Context, batchID string) ([]*core.Episode, error) {
	return c.episodes.ListEpisodes(ctx, batchID)
}

// GetEpisode returns an episode by ID.
func (c *Coordinator) GetEpisode(ctx context.Context, episodeID string) (*core.Episode, error) {
	return c.episodes.GetEpisode(ctx, episodeID)
}

func (c *Coordinator) transition(ctx context.Context, batchID string, to core.BatchStatus) (*core.Batch, error) {
	return c.batches.UpdateBatch(ctx, batchID, func(b *core.Batch) error {
		return core.TransitionBatch(b, to)
	})
}

func (c *Coordinator) cancelRequested(ctx context.Context, batchID string) bool {
	b, err := c.batches.GetBatch(ctx, batchID)
	if err != nil {
		return false
	}
	return b.CancelRequested
}

func (c *Coordinator) stopFunc(batchID string) upload.StopFunc {
	return func(ctx context.Context) bool {
		return c.cancelRequested(ctx, batchID)
	}
}

// finishCancelled skips pending episodes, fails interrupted ones and
// finalizes the batch as cancelled.
func (c *Coordinator) finishCancelled(ctx context.Context, batchID string) error {
	episodes, err := c.episodes.ListEpisodes(ctx, batchID)
	if err != nil {
		return err
	}
	for _, ep := range episodes {
		var to core.EpisodeStatus
		switch ep.Status {
		case core.EpisodePending:
			to = core.EpisodeSkipped
		case core.EpisodeProcessing:
			to = core.EpisodeFailed
		default:
			continue
		}
		_, err := c.episodes.UpdateEpisode(ctx, ep.ID, func(e *core.Episode) error {
			if to == core.EpisodeFailed {
				e.Error = ErrCancelled.Error()
			}
			return core.TransitionEpisode(e, to)
		})
		if err != nil {
			return err
		}
	}

	_, err = c.batches.UpdateBatch(ctx, batchID, func(b *core.Batch) error {
		if err := core.TransitionBatch(b, core.BatchCancelled); err != nil {
			return err
		}
		b.CompletedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := c.refresh(ctx, batchID); err != nil {
		return err
	}
	c.logger.Info("batch cancelled", "batch", batchID)
	return nil
}

// failBatch marks a batch failed after a coordinator-level error and
// returns cause.
func (c *Coordinator) failBatch(ctx context.Context, batchID string, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.logger.Error("batch failed", "batch", batchID, "err", cause)
	_, err := c.batches.UpdateBatch(ctx, batchID, func(b *core.Batch) error {
		if err := core.TransitionBatch(b, core.BatchFailed); err != nil {
			return err
		}
		b.Error = cause.Error()
		b.CompletedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return errors.Join(cause, err)
	}
	if _, err := c.refresh(ctx, batchID); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// refresh recomputes a batch's aggregates from its episodes.
func (c *Coordinator) refresh(ctx context.Context, batchID string) (*core.Batch, error) {
	episodes, err := c.episodes.ListEpisodes(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return c.batches.UpdateBatch(ctx, batchID, func(b *core.Batch) error {
		applyAggregates(b, episodes)
		return nil
	})
}

// applyAggregates sets the batch counters from episode statuses.
func applyAggregates(b *core.Batch, episodes []*core.Episode) {
	if len(episodes) > 0 {
		b.TotalEpisodes = len(episodes)
	}
	b.SuccessfulEpisodes, b.FailedEpisodes, b.SkippedEpisodes, b.TotalChunks = 0, 0, 0, 0
	for _, ep := range episodes {
		switch ep.Status {
		case core.EpisodeCompleted:
			b.SuccessfulEpisodes++
			b.TotalChunks += ep.ChunkCount
		case core.EpisodeFailed:
			b.FailedEpisodes++
		case core.EpisodeSkipped:
			b.SkippedEpisodes++
		}
	}
	b.ProcessedEpisodes = b.SuccessfulEpisodes + b.FailedEpisodes + b.SkippedEpisodes
}

// runningSet tracks the batches this process is running. It is a local
// projection; persisted statuses remain authoritative.
type runningSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newRunningSet() *runningSet {
	return &runningSet{ids: make(map[string]struct{})}
}

func (s *runningSet) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *runningSet) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

func (s *runningSet) contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}
