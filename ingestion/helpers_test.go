package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/mentorit/ai/mock"
	"github.com/poiesic/mentorit/classify"
	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/distill"
	"github.com/poiesic/mentorit/retry"
	"github.com/poiesic/mentorit/storage"
	"github.com/poiesic/mentorit/storage/badger"
	"github.com/poiesic/mentorit/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = retry.Policy{MaxAttempts: 2, Delay: func(int) time.Duration { return time.Millisecond }}

// switchableStore fails upserts once failAfter successful calls have been
// made, while failing is set.
type switchableStore struct {
	storage.VectorStore
	failing   atomic.Bool
	failAfter int32
	upserts   atomic.Int32
	pingErr   error
}

func (s *switchableStore) Upsert(ctx context.Context, namespace string, vectors []storage.Vector) error {
	n := s.upserts.Add(1)
	if s.failing.Load() && n > s.failAfter {
		return retry.Permanent(errors.New("simulated upsert failure"))
	}
	return s.VectorStore.Upsert(ctx, namespace, vectors)
}

func (s *switchableStore) Ping(ctx context.Context) error {
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.VectorStore.Ping(ctx)
}

// linesToChunks answers an extraction prompt with one chunk per line of at
// least 20 characters.
func linesToChunks(text string) string {
	type candidate struct {
		Text        string `json:"text"`
		ContentType string `json:"content_type"`
	}
	var out []candidate
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len([]rune(line)) >= core.MinChunkLength {
			out = append(out, candidate{Text: line, ContentType: "advice"})
		}
	}
	data, _ := json.Marshal(out)
	return string(data)
}

type harness struct {
	t           *testing.T
	batches     *badger.BatchRepository
	episodes    *badger.EpisodeRepository
	vectors     *badger.VectorRepository
	store       *switchableStore
	embedder    *mock.MockEmbedder
	generator   *mock.MockCompleter
	classifier  *mock.MockCompleter
	processor   *Processor
	coordinator *Coordinator

	// generatorErr, when set, fails extraction calls whose input contains it.
	generatorErr atomic.Value
	// namespaces is the classifier's answer for namespace prompts.
	namespaces atomic.Value
}

type harnessOptions struct {
	maxTokens int
	groupSize int
	// wrapEpisodes, when set, wraps the repository the pipeline sees.
	wrapEpisodes func(storage.EpisodeRepository) storage.EpisodeRepository
}

// claimGate holds hash claims until parties callers are waiting on one.
type claimGate struct {
	storage.EpisodeRepository
	mu      sync.Mutex
	waiting int
	parties int
	all     chan struct{}
}

func newClaimGate(repo storage.EpisodeRepository, parties int) *claimGate {
	return &claimGate{EpisodeRepository: repo, parties: parties, all: make(chan struct{})}
}

func (g *claimGate) ClaimHash(ctx context.Context, contentHash, episodeID string) (*core.Episode, error) {
	g.mu.Lock()
	g.waiting++
	if g.waiting == g.parties {
		close(g.all)
	}
	g.mu.Unlock()

	select {
	case <-g.all:
	case <-time.After(5 * time.Second):
	}
	return g.EpisodeRepository.ClaimHash(ctx, contentHash, episodeID)
}

func newHarness(t *testing.T, opts ...func(*harnessOptions)) *harness {
	t.Helper()
	o := harnessOptions{maxTokens: distill.DefaultMaxTokens, groupSize: 10}
	for _, fn := range opts {
		fn(&o)
	}

	batches, episodes, vectors, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	h := &harness{
		t:        t,
		batches:  batches,
		episodes: episodes,
		vectors:  vectors,
		store:    &switchableStore{VectorStore: vectors},
		embedder: mock.NewMockEmbedder(),
	}
	h.generatorErr.Store("")
	h.namespaces.Store(`{"namespaces": [{"name": "leadership", "confidence": 0.9}], "rationale": "about teams"}`)

	h.generator = mock.NewMockCompleter().WithCompleteFunc(func(_ context.Context, system, user string) (string, error) {
		if strings.Contains(system, "Return only the rewritten") {
			return user, nil
		}
		if marker := h.generatorErr.Load().(string); marker != "" && strings.Contains(user, marker) {
			return "", errors.New("generation failed")
		}
		return linesToChunks(user), nil
	})
	h.classifier = mock.NewMockCompleter().WithCompleteFunc(func(_ context.Context, system, _ string) (string, error) {
		if strings.Contains(system, "leaks") {
			return "no", nil
		}
		return h.namespaces.Load().(string), nil
	})

	engine, err := distill.NewEngine(h.generator, h.classifier,
		distill.WithRetryPolicy(fastRetry), distill.WithMaxTokens(o.maxTokens))
	require.NoError(t, err)
	cls, err := classify.NewClassifier(h.classifier, classify.WithRetryPolicy(fastRetry))
	require.NoError(t, err)
	var repo storage.EpisodeRepository = episodes
	if o.wrapEpisodes != nil {
		repo = o.wrapEpisodes(episodes)
	}
	up, err := upload.NewUploader(h.embedder, h.store, repo,
		upload.WithRetryPolicy(fastRetry), upload.WithGroupSize(o.groupSize), upload.WithPause(0))
	require.NoError(t, err)

	h.processor, err = NewProcessor(repo, engine, cls, up)
	require.NoError(t, err)
	h.coordinator, err = NewCoordinator(batches, repo, h.store, h.processor, nil)
	require.NoError(t, err)
	return h
}

// writeArchive writes files into a fresh directory and returns its path.
func writeArchive(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

// transcript builds a transcript with n distinct chunk-sized lines.
func transcript(label string, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%s: insight number %d about doing the work well.\n", label, i)
	}
	return sb.String()
}

func (h *harness) create(dir, namespace string, autoDetect bool) *core.Batch {
	h.t.Helper()
	b, err := h.coordinator.CreateBatch(context.Background(), CreateBatchRequest{
		ArchivePath: dir,
		Namespace:   namespace,
		AutoDetect:  autoDetect,
	})
	require.NoError(h.t, err)
	return b
}

func (h *harness) batch(id string) *core.Batch {
	h.t.Helper()
	b, err := h.batches.GetBatch(context.Background(), id)
	require.NoError(h.t, err)
	assertAggregates(h.t, b)
	return b
}

func (h *harness) episodeList(batchID string) []*core.Episode {
	h.t.Helper()
	eps, err := h.episodes.ListEpisodes(context.Background(), batchID)
	require.NoError(h.t, err)
	return eps
}

func (h *harness) vectorCount(namespace string) int {
	h.t.Helper()
	counts, err := h.vectors.ListNamespaces(context.Background())
	require.NoError(h.t, err)
	return counts[namespace]
}

func assertAggregates(t *testing.T, b *core.Batch) {
	t.Helper()
	assert.Equal(t, b.SuccessfulEpisodes+b.FailedEpisodes+b.SkippedEpisodes, b.ProcessedEpisodes, "processed = successful + failed + skipped")
	assert.LessOrEqual(t, b.ProcessedEpisodes, b.TotalEpisodes, "processed <= total")
}
