package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Pipeline runs batches concurrently on a worker pool. Episodes within a
// batch stay sequential; only whole batches run in parallel.
type Pipeline struct {
	coordinator *Coordinator
	pool        *ants.Pool
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	queued      map[string]struct{}
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets how many batches may run at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline that runs batches through coordinator.
func NewPipeline(coordinator *Coordinator, opts ...Option) (*Pipeline, error) {
	if coordinator == nil {
		return nil, errors.New("coordinator required")
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		coordinator: coordinator,
		pool:        pool,
		ctx:         ctx,
		cancel:      cancel,
		queued:      make(map[string]struct{}),
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "pipeline")
	return p, nil
}

// Submit queues a batch to run. Submitting a batch that is already queued
// or running is a no-op. Errors from the run are logged; the outcome is
// recorded on the batch itself.
func (p *Pipeline) Submit(batchID string) error {
	p.mu.Lock()
	if _, ok := p.queued[batchID]; ok || p.coordinator.IsRunning(batchID) {
		p.mu.Unlock()
		p.logger.Debug("batch already queued", "batch", batchID)
		return nil
	}
	p.queued[batchID] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		defer p.dequeue(batchID)

		p.logger.Info("running batch", "batch", batchID)
		err := p.coordinator.Run(p.ctx, batchID)
		switch {
		case err == nil, errors.Is(err, ErrBatchRunning):
		case errors.Is(err, context.Canceled):
			p.logger.Info("batch interrupted by shutdown", "batch", batchID)
		default:
			p.logger.Error("error running batch", "batch", batchID, "err", err)
		}
	})
	if err != nil {
		p.wg.Done()
		p.dequeue(batchID)
		return err
	}
	return nil
}

// Pending reports whether a batch is queued or running.
func (p *Pipeline) Pending(batchID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.queued[batchID]
	return ok
}

// Wait blocks until every submitted batch has stopped running.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Release interrupts running batches, waits for them to stop and releases
// the worker pool. Interrupted batches keep their persisted progress and are
// picked up by recovery. The pipeline should not be used after Release.
func (p *Pipeline) Release() {
	p.cancel()
	p.wg.Wait()
	if p.pool != nil {
		p.pool.Release()
	}
}

func (p *Pipeline) dequeue(batchID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.queued, batchID)
}
