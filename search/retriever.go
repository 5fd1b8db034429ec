// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/mentorit/ai"
	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/retry"
	"github.com/poiesic/mentorit/storage"
	"github.com/poiesic/mentorit/upload"
)

const verbatimBoost = 0.3

// Result is one retrieved chunk.
type Result struct {
	Namespace string
	ID        string
	// Score is the similarity, plus verbatimBoost for verbatim hits.
	Score    float32
	Verbatim bool
	Text     string
	Metadata map[string]string
}

// Retriever queries the vector store with embedded text.
type Retriever struct {
	store    storage.VectorStore
	embedder ai.Embedder
	policy   retry.Policy
	minScore float32
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets the logger for the retriever.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithRetryPolicy sets the retry policy for embedding and store calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(r *Retriever) error {
		if p.MaxAttempts < 1 {
			return retry.ErrInvalidMaxAttempts
		}
		r.policy = p
		return nil
	}
}

// WithMinScore drops matches whose raw similarity is below score.
func WithMinScore(score float32) Option {
	return func(r *Retriever) error {
		r.minScore = score
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(store storage.VectorStore, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	if store == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		store:    store,
		embedder: embedder,
		policy:   retry.DefaultPolicy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retriever")
	return r, nil
}

// Query returns up to topK chunks from namespace closest to text.
func (r *Retriever) Query(ctx context.Context, namespace, text string, topK int) ([]Result, error) {
	return r.QueryWithMonitor(ctx, []string{namespace}, text, topK, nil)
}

// QueryWithMonitor searches every namespace in namespaces and merges the
// matches into one ranking of at most topK results.
func (r *Retriever) QueryWithMonitor(ctx context.Context, namespaces []string, text string, topK int, monitor Monitor) ([]Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	targets, err := normalizeAll(namespaces)
	if err != nil {
		return nil, err
	}

	monitor.Start(text, targets)

	vectors, err := retry.Value(ctx, r.policy, func(ctx context.Context) ([][]float32, error) {
		return r.embedder.EmbedTexts(ctx, []string{text})
	})
	if err != nil {
		r.logger.Error("error embedding query", "err", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != r.embedder.Dimension() {
		return nil, ai.ErrDimensionMismatch
	}
	query := upload.NormalizeVector(vectors[0])
	monitor.AfterEmbedding(len(query))

	var results []Result
	for _, ns := range targets {
		matches, err := retry.Value(ctx, r.policy, func(ctx context.Context) ([]storage.Match, error) {
			return r.store.Query(ctx, ns, query, topK)
		})
		if err != nil {
			r.logger.Error("error querying namespace", "namespace", ns, "err", err)
			return nil, fmt.Errorf("query namespace %q: %w", ns, err)
		}
		monitor.AfterNamespaceQuery(ns, len(matches))

		for _, m := range matches {
			if m.Score < r.minScore {
				continue
			}
			res := Result{
				Namespace: ns,
				ID:        m.ID,
				Score:     m.Score,
				Text:      m.Metadata["text"],
				Metadata:  m.Metadata,
			}
			if isVerbatim(res.Text, text) {
				res.Verbatim = true
				res.Score += verbatimBoost
			}
			results = append(results, res)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	monitor.Finish(results)
	return results, nil
}

func normalizeAll(namespaces []string) ([]string, error) {
	seen := make(map[string]bool, len(namespaces))
	out := make([]string, 0, len(namespaces))
	for _, raw := range namespaces {
		ns, err := core.NormalizeNamespace(raw)
		if err != nil {
			return nil, err
		}
		if !seen[ns] {
			seen[ns] = true
			out = append(out, ns)
		}
	}
	if len(out) == 0 {
		return nil, ErrNamespaceRequired
	}
	return out, nil
}
