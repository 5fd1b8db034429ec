package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBatchRepo(t *testing.T) *BatchRepository {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return NewBatchRepository(backend)
}

func TestBatchRepository_CreateGet(t *testing.T) {
	repo := setupBatchRepo(t)
	ctx := context.Background()

	batch := &core.Batch{ID: "b1", Namespace: "life", Status: core.BatchPending, Mode: core.ModePlain}
	require.NoError(t, repo.CreateBatch(ctx, batch))
	assert.False(t, batch.CreatedAt.IsZero())

	got, err := repo.GetBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, batch, got)

	err = repo.CreateBatch(ctx, &core.Batch{ID: "b1"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = repo.GetBatch(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBatchRepository_Update(t *testing.T) {
	repo := setupBatchRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateBatch(ctx, &core.Batch{ID: "b1", Status: core.BatchPending}))

	updated, err := repo.UpdateBatch(ctx, "b1", func(b *core.Batch) error {
		return core.TransitionBatch(b, core.BatchExtracting)
	})
	require.NoError(t, err)
	assert.Equal(t, core.BatchExtracting, updated.Status)

	// A failing update writes nothing
	boom := errors.New("boom")
	_, err = repo.UpdateBatch(ctx, "b1", func(b *core.Batch) error {
		b.Namespace = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)
	got, err := repo.GetBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, got.Namespace)

	_, err = repo.UpdateBatch(ctx, "missing", func(*core.Batch) error { return nil })
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBatchRepository_ListOrderAndStatus(t *testing.T) {
	repo := setupBatchRepo(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, repo.CreateBatch(ctx, &core.Batch{ID: "c", Status: core.BatchProcessing, CreatedAt: base.Add(2 * time.Second)}))
	require.NoError(t, repo.CreateBatch(ctx, &core.Batch{ID: "a", Status: core.BatchCompleted, CreatedAt: base}))
	require.NoError(t, repo.CreateBatch(ctx, &core.Batch{ID: "b", Status: core.BatchExtracting, CreatedAt: base.Add(time.Second)}))

	all, err := repo.ListBatches(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	active, err := repo.ListBatchesByStatus(ctx, core.BatchExtracting, core.BatchProcessing)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "b", active[0].ID)
	assert.Equal(t, "c", active[1].ID)
}

func TestBatchRepository_Delete(t *testing.T) {
	repo := setupBatchRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateBatch(ctx, &core.Batch{ID: "b1"}))

	require.NoError(t, repo.DeleteBatch(ctx, "b1"))
	_, err := repo.GetBatch(ctx, "b1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := repo.ListBatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.ErrorIs(t, repo.DeleteBatch(ctx, "b1"), storage.ErrNotFound)
}
