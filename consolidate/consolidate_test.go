package consolidate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/mentorit/retry"
	"github.com/poiesic/mentorit/storage"
	"github.com/poiesic/mentorit/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = retry.Policy{MaxAttempts: 2, Delay: func(int) time.Duration { return time.Millisecond }}

func seed(t *testing.T, store storage.VectorStore, namespace string, n int) {
	t.Helper()
	vectors := make([]storage.Vector, n)
	for i := range vectors {
		vectors[i] = storage.Vector{
			ID:       fmt.Sprintf("%s-%04d", namespace, i),
			Values:   []float32{1, float32(i), 0},
			Metadata: map[string]string{"namespace": namespace, "text": "chunk"},
		}
	}
	require.NoError(t, store.Upsert(context.Background(), namespace, vectors))
}

func newStore(t *testing.T) *badger.VectorRepository {
	t.Helper()
	_, _, vectors, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	seed(t, vectors, "Leadership", 250)
	seed(t, vectors, "leadership", 10)
	seed(t, vectors, "Parenting", 3)
	seed(t, vectors, "parenting", 1)
	seed(t, vectors, "HEALTH", 5)
	return vectors
}

func counts(t *testing.T, store storage.VectorStore) map[string]int {
	t.Helper()
	c, err := store.ListNamespaces(context.Background())
	require.NoError(t, err)
	return c
}

func TestFindPairs(t *testing.T) {
	pairs := FindPairs(map[string]int{
		"Leadership": 4,
		"LEADERSHIP": 2,
		"leadership": 1,
		"HEALTH":     5,
		"parenting":  3,
	})
	assert.Equal(t, []Pair{
		{Source: "LEADERSHIP", Target: "leadership", Vectors: 2},
		{Source: "Leadership", Target: "leadership", Vectors: 4},
	}, pairs)
	assert.Empty(t, FindPairs(map[string]int{"health": 1}))
}

func TestConsolidate_DryRunParity(t *testing.T) {
	store := newStore(t)
	svc := NewService(store, testPolicy, &Config{PageSize: 100, Concurrency: 2, ReportInterval: 50}, nil, nil)
	ctx := context.Background()

	dry, err := svc.Consolidate(ctx, true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	require.Len(t, dry.Pairs, 2)
	assert.Equal(t, 253, dry.Moved)
	assert.Empty(t, dry.Errors())
	for _, p := range dry.Pairs {
		assert.False(t, p.Deleted)
	}

	before := counts(t, store)
	assert.Equal(t, 250, before["Leadership"], "dry run writes nothing")
	assert.Equal(t, 10, before["leadership"])

	applied, err := svc.Consolidate(ctx, false)
	require.NoError(t, err)
	require.Len(t, applied.Pairs, 2)
	for i := range applied.Pairs {
		assert.Equal(t, dry.Pairs[i].Source, applied.Pairs[i].Source)
		assert.Equal(t, dry.Pairs[i].Count, applied.Pairs[i].Count, "dry run predicts %s", dry.Pairs[i].Source)
		assert.True(t, applied.Pairs[i].Deleted)
	}
	assert.Equal(t, dry.Moved, applied.Moved)

	after := counts(t, store)
	assert.Equal(t, 260, after["leadership"])
	assert.Equal(t, 4, after["parenting"])
	assert.Equal(t, 5, after["HEALTH"], "unpaired namespaces are untouched")
	assert.NotContains(t, after, "Leadership")
	assert.NotContains(t, after, "Parenting")

	moved, err := store.Fetch(ctx, "leadership", []string{"Leadership-0007"})
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, "leadership", moved[0].Metadata["namespace"])

	again, err := svc.Consolidate(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, again.Pairs)
}

// failingFetchStore fails fetches for one namespace, or drops a vector.
type failingFetchStore struct {
	storage.VectorStore
	namespace string
	drop      bool
}

func (f *failingFetchStore) Fetch(ctx context.Context, namespace string, ids []string) ([]storage.Vector, error) {
	if namespace != f.namespace {
		return f.VectorStore.Fetch(ctx, namespace, ids)
	}
	if f.drop {
		vectors, err := f.VectorStore.Fetch(ctx, namespace, ids)
		if err != nil || len(vectors) == 0 {
			return vectors, err
		}
		return vectors[1:], nil
	}
	return nil, retry.Permanent(errors.New("fetch refused"))
}

func TestConsolidate_PairFailureIsIsolated(t *testing.T) {
	base := newStore(t)
	store := &failingFetchStore{VectorStore: base, namespace: "Parenting"}
	svc := NewService(store, testPolicy, nil, nil, nil)

	summary, err := svc.Consolidate(context.Background(), false)
	require.NoError(t, err)

	errs := summary.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "Parenting -> parenting")
	assert.Equal(t, 250, summary.Moved)

	after := counts(t, base)
	assert.Equal(t, 3, after["Parenting"], "failed source is kept")
	assert.NotContains(t, after, "Leadership")
}

func TestConsolidate_IncompleteFetchKeepsSource(t *testing.T) {
	base := newStore(t)
	store := &failingFetchStore{VectorStore: base, namespace: "Parenting", drop: true}
	svc := NewService(store, testPolicy, nil, nil, nil)

	summary, err := svc.Consolidate(context.Background(), false)
	require.NoError(t, err)

	var parenting PairResult
	for _, p := range summary.Pairs {
		if p.Source == "Parenting" {
			parenting = p
		}
	}
	assert.ErrorIs(t, parenting.Err, ErrIncompleteFetch)
	assert.False(t, parenting.Deleted)
	assert.Equal(t, 3, counts(t, base)["Parenting"])
}

func TestConsolidate_ReportsProgress(t *testing.T) {
	store := newStore(t)
	var buf bytes.Buffer
	svc := NewService(store, testPolicy, &Config{PageSize: 50, Concurrency: 1, ReportInterval: 100}, &buf, nil)

	_, err := svc.Consolidate(context.Background(), true)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Counting 2 namespace pairs (253 vectors)")
	assert.Contains(t, buf.String(), "253/253")
}

func TestConsolidate_NothingToDo(t *testing.T) {
	_, _, vectors, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()
	seed(t, vectors, "leadership", 2)

	var buf bytes.Buffer
	summary, err := NewService(vectors, testPolicy, nil, &buf, nil).Consolidate(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, summary.Pairs)
	assert.Contains(t, buf.String(), "No case-variant namespaces")
}
