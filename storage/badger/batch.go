package badger

import (
	"context"
	"errors"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/storage"
)

// BatchRepository implements storage.BatchRepository for BadgerDB.
type BatchRepository struct {
	backend *Backend
}

var _ storage.BatchRepository = (*BatchRepository)(nil)

// NewBatchRepository creates a new BatchRepository.
func NewBatchRepository(backend *Backend) *BatchRepository {
	return &BatchRepository{backend: backend}
}

// Close is a no-op; the backend owns the database handle.
func (r *BatchRepository) Close() error {
	return nil
}

// CreateBatch stores a new batch.
func (r *BatchRepository) CreateBatch(ctx context.Context, batch *core.Batch) error {
	return r.backend.update(func(tx *badger.Txn) error {
		key := makeBatchKey(batch.ID)
		existing, err := getValue(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}

		if batch.CreatedAt.IsZero() {
			batch.CreatedAt = now()
		}
		batch.UpdatedAt = batch.CreatedAt

		if err := tx.Set(key, storage.MarshalBatch(batch)); err != nil {
			return err
		}
		return tx.Set(makeBatchOrderKey(batch.CreatedAt, batch.ID), []byte(batch.ID))
	})
}

// GetBatch retrieves a batch by ID.
func (r *BatchRepository) GetBatch(ctx context.Context, id string) (*core.Batch, error) {
	var batch *core.Batch
	err := r.backend.view(func(tx *badger.Txn) error {
		var err error
		batch, err = readBatch(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// UpdateBatch applies fn to the stored batch atomically.
func (r *BatchRepository) UpdateBatch(ctx context.Context, id string, fn func(*core.Batch) error) (*core.Batch, error) {
	var batch *core.Batch
	err := r.backend.update(func(tx *badger.Txn) error {
		var err error
		batch, err = readBatch(tx, id)
		if err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
		batch.UpdatedAt = now()
		return tx.Set(makeBatchKey(id), storage.MarshalBatch(batch))
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// ListBatches returns every batch ordered by creation time.
func (r *BatchRepository) ListBatches(ctx context.Context) ([]*core.Batch, error) {
	return r.ListBatchesByStatus(ctx)
}

// ListBatchesByStatus returns batches in any of the given statuses. With no
// statuses every batch is returned.
func (r *BatchRepository) ListBatchesByStatus(ctx context.Context, statuses ...core.BatchStatus) ([]*core.Batch, error) {
	var batches []*core.Batch
	err := r.backend.view(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(batchOrderPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			batch, err := readBatch(tx, string(id))
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return err
			}
			if len(statuses) == 0 || slices.Contains(statuses, batch.Status) {
				batches = append(batches, batch)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// DeleteBatch removes a batch record and its order index entry.
func (r *BatchRepository) DeleteBatch(ctx context.Context, id string) error {
	return r.backend.update(func(tx *badger.Txn) error {
		batch, err := readBatch(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(makeBatchKey(id)); err != nil {
			return err
		}
		return tx.Delete(makeBatchOrderKey(batch.CreatedAt, id))
	})
}

func readBatch(tx *badger.Txn, id string) (*core.Batch, error) {
	data, err := getValue(tx, makeBatchKey(id))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, storage.ErrNotFound
	}
	return storage.UnmarshalBatch(data)
}
