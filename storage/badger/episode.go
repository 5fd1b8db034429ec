package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/storage"
)

// EpisodeRepository implements storage.EpisodeRepository for BadgerDB.
type EpisodeRepository struct {
	backend *Backend
}

var _ storage.EpisodeRepository = (*EpisodeRepository)(nil)

// NewEpisodeRepository creates a new EpisodeRepository.
func NewEpisodeRepository(backend *Backend) *EpisodeRepository {
	return &EpisodeRepository{backend: backend}
}

// Close is a no-op; the backend owns the database handle.
func (r *EpisodeRepository) Close() error {
	return nil
}

// CreateEpisodes stores episodes that don't exist yet.
func (r *EpisodeRepository) CreateEpisodes(ctx context.Context, episodes ...*core.Episode) error {
	for _, ep := range episodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		// One transaction per episode keeps large transcripts under badger's
		// transaction size limit.
		err := r.backend.update(func(tx *badger.Txn) error {
			key := makeEpisodeKey(ep.ID)
			existing, err := getValue(tx, key)
			if err != nil {
				return err
			}
			if existing != nil {
				return nil
			}
			if ep.CreatedAt.IsZero() {
				ep.CreatedAt = now()
			}
			ep.UpdatedAt = now()
			if err := tx.Set(key, storage.MarshalEpisode(ep)); err != nil {
				return err
			}
			return tx.Set(makeEpisodeOrderKey(ep.BatchID, ep.CreatedAt, ep.ID), []byte(ep.ID))
		})
		if err != nil {
			return fmt.Errorf("create episode %s: %w", ep.ID, err)
		}
	}
	return nil
}

// GetEpisode retrieves an episode by ID.
func (r *EpisodeRepository) GetEpisode(ctx context.Context, id string) (*core.Episode, error) {
	var ep *core.Episode
	err := r.backend.view(func(tx *badger.Txn) error {
		var err error
		ep, err = readEpisode(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// UpdateEpisode applies fn to the stored episode atomically.
func (r *EpisodeRepository) UpdateEpisode(ctx context.Context, id string, fn func(*core.Episode) error) (*core.Episode, error) {
	var ep *core.Episode
	err := r.backend.update(func(tx *badger.Txn) error {
		var err error
		ep, err = readEpisode(tx, id)
		if err != nil {
			return err
		}
		if err := fn(ep); err != nil {
			return err
		}
		if err := checkProgress(ep); err != nil {
			return err
		}
		ep.UpdatedAt = now()
		return tx.Set(makeEpisodeKey(id), storage.MarshalEpisode(ep))
	})
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// SetNamespaceProgress records the uploaded chunk count for a namespace.
func (r *EpisodeRepository) SetNamespaceProgress(ctx context.Context, episodeID, namespace string, uploaded int) error {
	_, err := r.UpdateEpisode(ctx, episodeID, func(ep *core.Episode) error {
		if ep.NamespaceProgress == nil {
			ep.NamespaceProgress = make(map[string]int)
		}
		ep.NamespaceProgress[namespace] = uploaded
		return nil
	})
	return err
}

// checkProgress enforces 0 <= progress <= len(chunks) for every namespace.
func checkProgress(ep *core.Episode) error {
	for ns, n := range ep.NamespaceProgress {
		if n < 0 || n > len(ep.Chunks) {
			return fmt.Errorf("%w: episode %s namespace %q has %d of %d chunks",
				storage.ErrProgressOutOfRange, ep.ID, ns, n, len(ep.Chunks))
		}
	}
	return nil
}

// ListEpisodes returns a batch's episodes ordered by creation time.
func (r *EpisodeRepository) ListEpisodes(ctx context.Context, batchID string) ([]*core.Episode, error) {
	var episodes []*core.Episode
	err := r.backend.view(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialEpisodeOrderKey(batchID)
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
			ep, err := readEpisode(tx, string(id))
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return err
			}
			episodes = append(episodes, ep)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return episodes, nil
}

// DeleteEpisodes removes a batch's episodes, their order keys and any hash
// index entries they own.
func (r *EpisodeRepository) DeleteEpisodes(ctx context.Context, batchID string) error {
	episodes, err := r.ListEpisodes(ctx, batchID)
	if err != nil {
		return err
	}
	for _, ep := range episodes {
		err := r.backend.update(func(tx *badger.Txn) error {
			if ep.ContentHash != "" {
				owner, err := getValue(tx, makeHashKey(ep.ContentHash))
				if err != nil {
					return err
				}
				if string(owner) == ep.ID {
					if err := tx.Delete(makeHashKey(ep.ContentHash)); err != nil {
						return err
					}
				}
			}
			if err := tx.Delete(makeEpisodeOrderKey(ep.BatchID, ep.CreatedAt, ep.ID)); err != nil {
				return err
			}
			return tx.Delete(makeEpisodeKey(ep.ID))
		})
		if err != nil {
			return fmt.Errorf("delete episode %s: %w", ep.ID, err)
		}
	}
	return nil
}

// FindByHash returns the episode registered for a content hash.
func (r *EpisodeRepository) FindByHash(ctx context.Context, contentHash string) (*core.Episode, error) {
	var ep *core.Episode
	err := r.backend.view(func(tx *badger.Txn) error {
		owner, err := getValue(tx, makeHashKey(contentHash))
		if err != nil {
			return err
		}
		if owner == nil {
			return storage.ErrNotFound
		}
		ep, err = readEpisode(tx, string(owner))
		return err
	})
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// ClaimHash registers episodeID as the owner of a content hash, unless a
// different episode that has not failed already holds it. In that case the
// holder is returned and the index is left alone. The lookup and the write
// share one transaction, so concurrent claims on the same hash serialize
// through badger's conflict detection.
func (r *EpisodeRepository) ClaimHash(ctx context.Context, contentHash, episodeID string) (*core.Episode, error) {
	var holder *core.Episode
	err := r.backend.update(func(tx *badger.Txn) error {
		holder = nil
		key := makeHashKey(contentHash)
		owner, err := getValue(tx, key)
		if err != nil {
			return err
		}
		if owner != nil && string(owner) != episodeID {
			ep, err := readEpisode(tx, string(owner))
			switch {
			case errors.Is(err, storage.ErrNotFound):
				// stale entry
			case err != nil:
				return err
			case ep.Status != core.EpisodeFailed:
				holder = ep
				return nil
			}
		}
		return tx.Set(key, []byte(episodeID))
	})
	if err != nil {
		return nil, fmt.Errorf("claim hash %s: %w", contentHash, err)
	}
	return holder, nil
}

func readEpisode(tx *badger.Txn, id string) (*core.Episode, error) {
	data, err := getValue(tx, makeEpisodeKey(id))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, storage.ErrNotFound
	}
	return storage.UnmarshalEpisode(data)
}
