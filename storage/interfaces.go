package storage

import (
	"context"

	"github.com/poiesic/mentorit/core"
)

// BatchRepository persists batches. Implementations must be thread-safe.
type BatchRepository interface {
	// CreateBatch stores a new batch, setting CreatedAt and UpdatedAt.
	// Returns ErrDuplicateKey if a batch with the same ID exists.
	CreateBatch(ctx context.Context, batch *core.Batch) error

	// GetBatch retrieves a batch by ID.
	// Returns ErrNotFound if the batch doesn't exist.
	GetBatch(ctx context.Context, id string) (*core.Batch, error)

	// UpdateBatch applies fn to the stored batch and writes the result in a
	// single transaction. UpdatedAt is refreshed automatically. If fn returns
	// an error nothing is written and the error is returned.
	// Returns ErrNotFound if the batch doesn't exist.
	UpdateBatch(ctx context.Context, id string, fn func(*core.Batch) error) (*core.Batch, error)

	// ListBatches returns every batch ordered by creation time.
	ListBatches(ctx context.Context) ([]*core.Batch, error)

	// ListBatchesByStatus returns batches in any of the given statuses,
	// ordered by creation time.
	ListBatchesByStatus(ctx context.Context, statuses ...core.BatchStatus) ([]*core.Batch, error)

	// DeleteBatch removes a batch record.
	// Returns ErrNotFound if the batch doesn't exist.
	DeleteBatch(ctx context.Context, id string) error

	Close() error
}

// ProgressStore records per-namespace upload progress for an episode.
type ProgressStore interface {
	// SetNamespaceProgress stores the confirmed uploaded chunk count for a
	// namespace. Returns ErrProgressOutOfRange if uploaded is negative or
	// exceeds the episode's chunk count.
	SetNamespaceProgress(ctx context.Context, episodeID, namespace string, uploaded int) error
}

// EpisodeRepository persists episodes and the content hash index.
type EpisodeRepository interface {
	ProgressStore

	// CreateEpisodes stores new episodes. Episodes whose ID already exists are
	// left untouched, so re-extracting an archive is harmless.
	CreateEpisodes(ctx context.Context, episodes ...*core.Episode) error

	// GetEpisode retrieves an episode by ID.
	// Returns ErrNotFound if the episode doesn't exist.
	GetEpisode(ctx context.Context, id string) (*core.Episode, error)

	// UpdateEpisode applies fn to the stored episode and writes the result in
	// a single transaction, refreshing UpdatedAt.
	// Returns ErrNotFound if the episode doesn't exist.
	UpdateEpisode(ctx context.Context, id string, fn func(*core.Episode) error) (*core.Episode, error)

	// ListEpisodes returns a batch's episodes ordered by creation time.
	ListEpisodes(ctx context.Context, batchID string) ([]*core.Episode, error)

	// DeleteEpisodes removes every episode of a batch along with any hash
	// index entries pointing at them.
	DeleteEpisodes(ctx context.Context, batchID string) error

	// FindByHash returns the episode currently registered for a content hash.
	// Returns ErrNotFound if no episode is registered.
	FindByHash(ctx context.Context, contentHash string) (*core.Episode, error)

	// ClaimHash atomically registers episodeID as the owner of a content
	// hash. If a different episode that has not failed already owns it, that
	// episode is returned and nothing is written.
	ClaimHash(ctx context.Context, contentHash, episodeID string) (*core.Episode, error)

	Close() error
}

// Vector is one stored embedding with its metadata.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]string
	// Raw carries metadata in the types the backend returned it, for stores
	// that keep numbers and lists. Upserting a fetched vector writes a value
	// back from Raw unless its Metadata string was changed.
	Raw map[string]any
}

// Match is a query result.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// ListPage is one page of vector IDs. NextToken is empty on the last page.
type ListPage struct {
	IDs       []string
	NextToken string
}

// VectorStore is the namespaced vector index the pipeline writes to.
// Upserts with an existing ID overwrite the stored vector.
type VectorStore interface {
	// Upsert writes vectors into a namespace.
	Upsert(ctx context.Context, namespace string, vectors []Vector) error

	// Query returns the topK closest vectors in a namespace, best first.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)

	// ListPaginated returns up to limit vector IDs from a namespace starting
	// after token. An empty token starts from the beginning.
	ListPaginated(ctx context.Context, namespace string, limit int, token string) (*ListPage, error)

	// Fetch returns the stored vectors for ids. Missing IDs are omitted.
	Fetch(ctx context.Context, namespace string, ids []string) ([]Vector, error)

	// DeleteAll removes every vector in a namespace.
	DeleteAll(ctx context.Context, namespace string) error

	// ListNamespaces returns every namespace with its vector count.
	ListNamespaces(ctx context.Context) (map[string]int, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
