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

package mentorit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/mentorit/ai"
	"github.com/poiesic/mentorit/ai/mock"
	"github.com/poiesic/mentorit/ai/openai"
	"github.com/poiesic/mentorit/classify"
	"github.com/poiesic/mentorit/config"
	"github.com/poiesic/mentorit/consolidate"
	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/distill"
	"github.com/poiesic/mentorit/ingestion"
	"github.com/poiesic/mentorit/retry"
	"github.com/poiesic/mentorit/search"
	"github.com/poiesic/mentorit/storage"
	"github.com/poiesic/mentorit/storage/badger"
	"github.com/poiesic/mentorit/storage/pinecone"
	"github.com/poiesic/mentorit/upload"
)

// Engine wires storage, models and the ingestion services together.
type Engine struct {
	cfg         *config.Config
	backend     *badger.Backend
	batches     *badger.BatchRepository
	episodes    *badger.EpisodeRepository
	store       storage.VectorStore
	provider    ai.AIProvider
	coordinator *ingestion.Coordinator
	pipeline    *ingestion.Pipeline
	supervisor  *ingestion.Supervisor
	retriever   *search.Retriever
	logger      *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	provider ai.AIProvider
	store    storage.VectorStore
	inMemory bool
	logger   *slog.Logger
}

// WithProvider uses provider instead of building one from the config.
func WithProvider(provider ai.AIProvider) EngineOption {
	return func(o *engineOptions) { o.provider = provider }
}

// WithVectorStore uses store instead of the configured backend.
func WithVectorStore(store storage.VectorStore) EngineOption {
	return func(o *engineOptions) { o.store = store }
}

// WithInMemory keeps the database in memory. Nothing survives Close.
func WithInMemory() EngineOption {
	return func(o *engineOptions) { o.inMemory = true }
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) { o.logger = logger }
}

// Open builds an Engine from cfg.
func Open(ctx context.Context, cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	path := cfg.DBPath
	if options.inMemory {
		path = ""
	}
	backend, err := badger.OpenBackend(path, options.inMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		backend:  backend,
		batches:  badger.NewBatchRepository(backend),
		episodes: badger.NewEpisodeRepository(backend),
		provider: options.provider,
		store:    options.store,
		logger:   options.logger,
	}
	if err := e.wire(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) wire(ctx context.Context) error {
	var err error
	if e.provider == nil {
		e.provider, err = newProvider(e.cfg)
		if err != nil {
			return fmt.Errorf("failed to create AI provider: %w", err)
		}
	}
	if e.store == nil {
		e.store, err = newVectorStore(ctx, e.cfg, e.backend)
		if err != nil {
			return fmt.Errorf("failed to create vector store: %w", err)
		}
	}

	ing := e.cfg.Ingestion
	distillOpts := []distill.Option{
		distill.WithMaxTokens(ing.MaxTokens),
		distill.WithLogger(e.logger),
	}
	if e.cfg.AI.Provider == config.ProviderOpenAI {
		distillOpts = append(distillOpts, distill.WithTokenCounter(distill.ModelCounter(e.cfg.AI.GeneratorModel)))
	}
	distiller, err := distill.NewEngine(e.provider.Generator(), e.provider.Classifier(), distillOpts...)
	if err != nil {
		return err
	}
	classifier, err := classify.NewClassifier(e.provider.Classifier(),
		classify.WithKnownNamespaces(ing.KnownNamespaces),
		classify.WithLogger(e.logger),
	)
	if err != nil {
		return err
	}
	uploader, err := upload.NewUploader(e.provider.Embedder(), e.store, e.episodes,
		upload.WithGroupSize(ing.GroupSize),
		upload.WithMicroBatch(ing.MicroBatch),
		upload.WithLogger(e.logger),
	)
	if err != nil {
		return err
	}
	processor, err := ingestion.NewProcessor(e.episodes, distiller, classifier, uploader,
		ingestion.WithSecondaryThreshold(ing.SecondaryThreshold),
		ingestion.WithProcessorLogger(e.logger),
	)
	if err != nil {
		return err
	}
	e.coordinator, err = ingestion.NewCoordinator(e.batches, e.episodes, e.store, processor, e.logger)
	if err != nil {
		return err
	}
	e.pipeline, err = ingestion.NewPipeline(e.coordinator,
		ingestion.WithPoolSize(ing.PoolSize),
		ingestion.WithLogger(e.logger),
	)
	if err != nil {
		return err
	}
	e.supervisor, err = ingestion.NewSupervisor(e.coordinator, e.pipeline.Submit, ing.StaleAfter, e.logger)
	if err != nil {
		return err
	}
	e.retriever, err = search.NewRetriever(e.store, e.provider.Embedder(), search.WithLogger(e.logger))
	return err
}

func newProvider(cfg *config.Config) (ai.AIProvider, error) {
	if cfg.AI.Provider == config.ProviderMock {
		embedder := mock.NewMockEmbedder()
		embedder.Dim = cfg.AI.Dimension
		return mock.NewMockProvider(mock.WithEmbedder(embedder)), nil
	}
	aiCfg := cfg.AIConfig()
	if err := aiCfg.Validate(); err != nil {
		return nil, err
	}
	return openai.NewProvider(aiCfg)
}

func newVectorStore(ctx context.Context, cfg *config.Config, backend *badger.Backend) (storage.VectorStore, error) {
	if cfg.VectorBackend == config.BackendPinecone {
		return pinecone.New(ctx, cfg.PineconeConfig())
	}
	return badger.NewVectorRepository(backend), nil
}

// Close stops queued work and releases every resource.
func (e *Engine) Close() error {
	if e.pipeline != nil {
		e.pipeline.Release()
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
		}
	}
	if err := e.backend.Close(); err != nil {
		e.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// CreateBatch stores a pending batch without running it. A later Recover or
// serve loop picks it up.
func (e *Engine) CreateBatch(ctx context.Context, req ingestion.CreateBatchRequest) (*core.Batch, error) {
	return e.coordinator.CreateBatch(ctx, req)
}

// Ingest creates a batch for an archive or directory and queues it.
func (e *Engine) Ingest(ctx context.Context, req ingestion.CreateBatchRequest) (*core.Batch, error) {
	b, err := e.coordinator.CreateBatch(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := e.pipeline.Submit(b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

// Confirm releases an auto-detect batch waiting on namespace review.
func (e *Engine) Confirm(ctx context.Context, batchID string) (*core.Batch, error) {
	b, err := e.coordinator.Confirm(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return b, e.pipeline.Submit(b.ID)
}

// Cancel requests cancellation of a batch.
func (e *Engine) Cancel(ctx context.Context, batchID string) (*core.Batch, error) {
	return e.coordinator.Cancel(ctx, batchID)
}

// Retry requeues a batch's failed and interrupted episodes.
func (e *Engine) Retry(ctx context.Context, batchID string) (*core.Batch, error) {
	b, err := e.coordinator.Retry(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return b, e.pipeline.Submit(b.ID)
}

// Delete removes a batch and its episodes. Uploaded vectors are kept.
func (e *Engine) Delete(ctx context.Context, batchID string) error {
	return e.coordinator.Delete(ctx, batchID)
}

// OverrideNamespaces replaces an episode's target namespaces.
func (e *Engine) OverrideNamespaces(ctx context.Context, episodeID string, namespaces []string) (*core.Episode, error) {
	return e.coordinator.OverrideNamespaces(ctx, episodeID, namespaces)
}

// Batch returns a batch by ID.
func (e *Engine) Batch(ctx context.Context, batchID string) (*core.Batch, error) {
	return e.coordinator.GetBatch(ctx, batchID)
}

// Batches returns every batch, oldest first.
func (e *Engine) Batches(ctx context.Context) ([]*core.Batch, error) {
	return e.coordinator.ListBatches(ctx)
}

// Episodes returns a batch's episodes in archive order.
func (e *Engine) Episodes(ctx context.Context, batchID string) ([]*core.Episode, error) {
	return e.coordinator.ListEpisodes(ctx, batchID)
}

// Episode returns an episode by ID.
func (e *Engine) Episode(ctx context.Context, episodeID string) (*core.Episode, error) {
	return e.coordinator.GetEpisode(ctx, episodeID)
}

// Wait blocks until every queued batch has finished running.
func (e *Engine) Wait() {
	e.pipeline.Wait()
}

// Recover runs a single recovery pass.
func (e *Engine) Recover(ctx context.Context) (*ingestion.RecoveryReport, error) {
	return e.supervisor.Recover(ctx)
}

// StartRecovery runs recovery now and then every interval until ctx is done.
func (e *Engine) StartRecovery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = e.cfg.Ingestion.RecoveryInterval
	}
	e.supervisor.Start(ctx, interval)
}

// Consolidate merges mixed-case namespaces into their lower-case
// counterparts. Progress is written to progress when it is not nil.
func (e *Engine) Consolidate(ctx context.Context, dryRun bool, progress io.Writer) (*consolidate.Summary, error) {
	svc := consolidate.NewService(e.store, retry.DefaultPolicy(), consolidate.DefaultConfig(), progress, e.logger)
	return svc.Consolidate(ctx, dryRun)
}

// Search returns the topK chunks across namespaces closest to text.
func (e *Engine) Search(ctx context.Context, namespaces []string, text string, topK int) ([]search.Result, error) {
	return e.retriever.QueryWithMonitor(ctx, namespaces, text, topK, nil)
}

// Namespaces lists the vector store's namespaces with their vector counts.
func (e *Engine) Namespaces(ctx context.Context) (map[string]int, error) {
	return e.store.ListNamespaces(ctx)
}
