package search

import "errors"

var (
	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmptyQuery is returned for a blank query text.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrNamespaceRequired is returned when no namespace is given.
	ErrNamespaceRequired = errors.New("at least one namespace required")
)
