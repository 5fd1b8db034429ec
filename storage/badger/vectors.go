package badger

import (
	"bytes"
	"context"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mentorit/storage"
)

// VectorRepository is a local storage.VectorStore kept in the same badger
// database as the batch records. It scans a namespace linearly on query, so
// it suits development and tests rather than large indexes.
type VectorRepository struct {
	backend *Backend
}

var _ storage.VectorStore = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository.
func NewVectorRepository(backend *Backend) *VectorRepository {
	return &VectorRepository{backend: backend}
}

// Ping reports whether the database is open.
func (r *VectorRepository) Ping(ctx context.Context) error {
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return nil
}

// Upsert writes vectors, overwriting any with the same ID.
func (r *VectorRepository) Upsert(ctx context.Context, namespace string, vectors []storage.Vector) error {
	return r.backend.update(func(tx *badger.Txn) error {
		for i := range vectors {
			if err := tx.Set(makeVectorKey(namespace, vectors[i].ID), storage.MarshalVector(&vectors[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

// Query ranks every vector in the namespace by cosine similarity.
func (r *VectorRepository) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]storage.Match, error) {
	if topK <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	var results []storage.Match

	err := r.backend.view(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeVectorNamespacePrefix(namespace)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var stored *storage.Vector
			err := iter.Item().Value(func(val []byte) error {
				var err error
				stored, err = storage.UnmarshalVector(val)
				return err
			})
			if err != nil {
				return err
			}
			if len(stored.Values) == 0 {
				continue
			}
			results = append(results, storage.Match{
				ID:       stored.ID,
				Score:    cosineSimilarity(vector, stored.Values),
				Metadata: stored.Metadata,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b storage.Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// ListPaginated walks vector IDs in key order. The token is the last ID of
// the previous page.
func (r *VectorRepository) ListPaginated(ctx context.Context, namespace string, limit int, token string) (*storage.ListPage, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	page := &storage.ListPage{}
	prefix := makeVectorNamespacePrefix(namespace)

	err := r.backend.view(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		if token == "" {
			iter.Rewind()
		} else {
			start := makeVectorKey(namespace, token)
			iter.Seek(start)
			if iter.Valid() && bytes.Equal(iter.Item().Key(), start) {
				iter.Next()
			}
		}

		for ; iter.Valid(); iter.Next() {
			if len(page.IDs) == limit {
				page.NextToken = page.IDs[len(page.IDs)-1]
				return nil
			}
			key := iter.Item().Key()
			page.IDs = append(page.IDs, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Fetch returns the stored vectors for ids, skipping missing ones.
func (r *VectorRepository) Fetch(ctx context.Context, namespace string, ids []string) ([]storage.Vector, error) {
	var vectors []storage.Vector
	err := r.backend.view(func(tx *badger.Txn) error {
		for _, id := range ids {
			data, err := getValue(tx, makeVectorKey(namespace, id))
			if err != nil {
				return err
			}
			if data == nil {
				continue
			}
			v, err := storage.UnmarshalVector(data)
			if err != nil {
				return err
			}
			vectors = append(vectors, *v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// DeleteAll drops every vector in the namespace.
func (r *VectorRepository) DeleteAll(ctx context.Context, namespace string) error {
	return r.backend.db.DropPrefix(makeVectorNamespacePrefix(namespace))
}

// ListNamespaces counts vectors per namespace.
func (r *VectorRepository) ListNamespaces(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	err := r.backend.view(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			rest := iter.Item().Key()[len(vectorPrefix):]
			sep := bytes.IndexByte(rest, vectorNamespaceSep)
			if sep < 0 {
				continue
			}
			counts[string(rest[:sep])]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either has zero magnitude.
func cosineSimilarity(a, b []float32) float32 {
	na := math.Sqrt(float64(dotProduct(a, a)))
	nb := math.Sqrt(float64(dotProduct(b, b)))
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(float64(dotProduct(a, b)) / (na * nb))
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
