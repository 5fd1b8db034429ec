// Package retry provides the retry policy used around every model, embedding
// and vector store call. A Policy bundles the attempt limit, the delay
// schedule and the predicate deciding which errors are worth retrying.
package retry
