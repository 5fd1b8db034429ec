package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/mentorit/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupVectorRepo(t *testing.T) *VectorRepository {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return NewVectorRepository(backend)
}

func makeVectors(n int, prefix string) []storage.Vector {
	out := make([]storage.Vector, n)
	for i := range out {
		out[i] = storage.Vector{
			ID:       fmt.Sprintf("%s-%03d", prefix, i),
			Values:   []float32{float32(i + 1), 1},
			Metadata: map[string]string{"text": fmt.Sprintf("chunk %d", i)},
		}
	}
	return out
}

func TestVectorRepository_UpsertIsIdempotent(t *testing.T) {
	repo := setupVectorRepo(t)
	ctx := context.Background()

	vectors := makeVectors(5, "v")
	require.NoError(t, repo.Upsert(ctx, "life", vectors))
	require.NoError(t, repo.Upsert(ctx, "life", vectors))

	counts, err := repo.ListNamespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"life": 5}, counts)

	vectors[0].Metadata = map[string]string{"text": "rewritten"}
	require.NoError(t, repo.Upsert(ctx, "life", vectors[:1]))
	got, err := repo.Fetch(ctx, "life", []string{"v-000"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rewritten", got[0].Metadata["text"])
}

func TestVectorRepository_NamespacesAreIsolated(t *testing.T) {
	repo := setupVectorRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "Life", makeVectors(3, "a")))
	require.NoError(t, repo.Upsert(ctx, "life", makeVectors(2, "b")))
	require.NoError(t, repo.Upsert(ctx, "lifestyle", makeVectors(1, "c")))

	counts, err := repo.ListNamespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Life": 3, "life": 2, "lifestyle": 1}, counts)

	require.NoError(t, repo.DeleteAll(ctx, "life"))
	counts, err = repo.ListNamespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Life": 3, "lifestyle": 1}, counts)
}

func TestVectorRepository_ListPaginated(t *testing.T) {
	repo := setupVectorRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, "life", makeVectors(7, "v")))

	var all []string
	token := ""
	pages := 0
	for {
		page, err := repo.ListPaginated(ctx, "life", 3, token)
		require.NoError(t, err)
		all = append(all, page.IDs...)
		pages++
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}
	assert.Equal(t, 3, pages)
	assert.Len(t, all, 7)
	assert.Equal(t, "v-000", all[0])
	assert.Equal(t, "v-006", all[6])

	// Exact multiple of the limit ends without an empty trailing page
	page, err := repo.ListPaginated(ctx, "life", 7, "")
	require.NoError(t, err)
	assert.Len(t, page.IDs, 7)
	assert.Empty(t, page.NextToken)

	_, err = repo.ListPaginated(ctx, "life", 0, "")
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestVectorRepository_FetchSkipsMissing(t *testing.T) {
	repo := setupVectorRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, "life", makeVectors(2, "v")))

	got, err := repo.Fetch(ctx, "life", []string{"v-000", "nope", "v-001"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{1, 1}, got[0].Values)
}

func TestVectorRepository_Query(t *testing.T) {
	repo := setupVectorRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "life", []storage.Vector{
		{ID: "east", Values: []float32{1, 0}},
		{ID: "north", Values: []float32{0, 1}},
		{ID: "northeast", Values: []float32{1, 1}},
	}))
	require.NoError(t, repo.Upsert(ctx, "work", []storage.Vector{{ID: "elsewhere", Values: []float32{1, 0}}}))

	matches, err := repo.Query(ctx, "life", []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "east", matches[0].ID)
	assert.Equal(t, "northeast", matches[1].ID)

	require.NoError(t, repo.Ping(ctx))
}
