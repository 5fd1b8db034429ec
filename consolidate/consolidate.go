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

package consolidate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/mentorit/retry"
	"github.com/poiesic/mentorit/storage"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for a consolidation run.
type Config struct {
	// PageSize is the number of vector IDs listed and fetched per page
	PageSize int

	// Concurrency is how many namespace pairs are migrated at once
	Concurrency int

	// ReportInterval is how often to report progress (number of vectors)
	ReportInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PageSize:       100,
		Concurrency:    2,
		ReportInterval: 500,
	}
}

// Pair is a case-variant namespace and the lower-case namespace it merges into.
type Pair struct {
	Source string
	Target string
	// Vectors is the source count reported by the store's namespace listing.
	Vectors int
}

// PairResult is the outcome for one pair.
type PairResult struct {
	Pair
	// Count is the number of vectors listed in the source. In a dry run it
	// is the number that would move; otherwise the number moved.
	Count   int
	Deleted bool
	Err     error
}

// Summary reports a consolidation run.
type Summary struct {
	DryRun  bool
	Pairs   []PairResult
	Moved   int
	Elapsed time.Duration
}

// Errors returns the failures of every pair that did not complete.
func (s *Summary) Errors() []error {
	var errs []error
	for _, p := range s.Pairs {
		if p.Err != nil {
			errs = append(errs, fmt.Errorf("%s -> %s: %w", p.Source, p.Target, p.Err))
		}
	}
	return errs
}

// Service merges case-variant namespaces into their lower-case form.
type Service struct {
	store    storage.VectorStore
	policy   retry.Policy
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// NewService creates a consolidation service.
// progress: where to write progress output (typically os.Stderr), or nil
func NewService(store storage.VectorStore, policy retry.Policy, config *Config, progress io.Writer, logger *slog.Logger) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultConfig().PageSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		policy:   policy,
		config:   config,
		progress: progress,
		logger:   logger.With("component", "consolidate"),
	}
}

// FindPairs returns the namespaces that are not lower-case and whose
// lower-case form also exists, sorted by source name.
func FindPairs(namespaces map[string]int) []Pair {
	var pairs []Pair
	for name, count := range namespaces {
		lower := strings.ToLower(name)
		if lower == name {
			continue
		}
		if _, ok := namespaces[lower]; !ok {
			continue
		}
		pairs = append(pairs, Pair{Source: name, Target: lower, Vectors: count})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Source < pairs[j].Source })
	return pairs
}

// Consolidate migrates every pair's vectors into the target namespace and
// deletes the source once all of its vectors have been written. With dryRun
// set, source IDs are listed and counted but nothing is written. A failing
// pair is recorded in the summary and does not stop the others; the
// returned error is reserved for failing to list namespaces.
func (s *Service) Consolidate(ctx context.Context, dryRun bool) (*Summary, error) {
	start := time.Now()
	namespaces, err := retry.Value(ctx, s.policy, s.store.ListNamespaces)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}

	pairs := FindPairs(namespaces)
	summary := &Summary{DryRun: dryRun, Pairs: make([]PairResult, len(pairs))}
	if len(pairs) == 0 {
		fmt.Fprintf(s.progress, "No case-variant namespaces found (%d namespaces)\n", len(namespaces))
		return summary, nil
	}

	total := 0
	for _, p := range pairs {
		total += p.Vectors
	}
	verb := "Migrating"
	if dryRun {
		verb = "Counting"
	}
	fmt.Fprintf(s.progress, "%s %d namespace pairs (%d vectors)\n", verb, len(pairs), total)

	tracker := NewProgressTracker(s.progress, total, s.config.ReportInterval)
	tracker.Start()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, p := range pairs {
		g.Go(func() error {
			result := s.consolidatePair(gctx, p, dryRun, tracker)
			mu.Lock()
			summary.Pairs[i] = result
			mu.Unlock()
			// pair failures are recorded, not propagated
			return nil
		})
	}
	_ = g.Wait()
	tracker.Finish()

	for _, r := range summary.Pairs {
		if r.Err == nil {
			summary.Moved += r.Count
		}
	}
	summary.Elapsed = time.Since(start)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *Service) consolidatePair(ctx context.Context, p Pair, dryRun bool, tracker *ProgressTracker) PairResult {
	result := PairResult{Pair: p}
	logger := s.logger.With("source", p.Source, "target", p.Target)

	iter := NewIDIterator(s.store, p.Source, s.config.PageSize, s.policy)
	err := iter.ForEach(ctx, func(ids []string) error {
		if dryRun {
			result.Count += len(ids)
			tracker.Increment(len(ids))
			return nil
		}
		n, err := s.movePage(ctx, p, ids)
		if err != nil {
			return err
		}
		result.Count += n
		tracker.Increment(n)
		return nil
	})
	if err != nil {
		logger.Error("namespace migration failed", "moved", result.Count, "err", err)
		result.Err = err
		return result
	}
	if dryRun {
		logger.Info("namespace would be merged", "vectors", result.Count)
		return result
	}

	err = s.policy.Do(ctx, func(ctx context.Context) error {
		return s.store.DeleteAll(ctx, p.Source)
	})
	if err != nil {
		logger.Error("deleting migrated namespace failed", "err", err)
		result.Err = fmt.Errorf("delete source: %w", err)
		return result
	}
	result.Deleted = true
	logger.Info("namespace merged", "vectors", result.Count)
	return result
}

// movePage copies one page of vectors into the target namespace.
func (s *Service) movePage(ctx context.Context, p Pair, ids []string) (int, error) {
	vectors, err := retry.Value(ctx, s.policy, func(ctx context.Context) ([]storage.Vector, error) {
		return s.store.Fetch(ctx, p.Source, ids)
	})
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	if len(vectors) != len(ids) {
		return 0, fmt.Errorf("%w: fetched %d of %d listed vectors", ErrIncompleteFetch, len(vectors), len(ids))
	}
	for i := range vectors {
		if _, ok := vectors[i].Metadata["namespace"]; ok {
			vectors[i].Metadata["namespace"] = p.Target
		}
	}
	err = s.policy.Do(ctx, func(ctx context.Context) error {
		return s.store.Upsert(ctx, p.Target, vectors)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	return len(vectors), nil
}

// ErrIncompleteFetch is returned when the store returns fewer vectors than
// were listed. The source is kept so nothing is lost.
var ErrIncompleteFetch = errors.New("incomplete fetch")
