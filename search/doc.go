// Package search retrieves ingested knowledge chunks the way downstream
// agents see them.
//
// A Retriever embeds the query text, asks the vector store for the closest
// chunks in one or more namespaces and merges the matches into a single
// ranking. Hits whose stored text contains every significant query word are
// flagged as verbatim and receive a small score boost.
//
// Basic usage:
//
//	r, err := search.NewRetriever(store, provider.Embedder())
//	results, err := r.Query(ctx, "engineering", "how do I plan a migration", 5)
package search
