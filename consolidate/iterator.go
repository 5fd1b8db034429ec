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

	"github.com/poiesic/mentorit/retry"
	"github.com/poiesic/mentorit/storage"
)

const (
	// DefaultPageSize is the default number of IDs listed per page
	DefaultPageSize = 100
)

// IDIterator pages through the vector IDs of one namespace.
type IDIterator struct {
	store     storage.VectorStore
	namespace string
	pageSize  int
	policy    retry.Policy
}

// NewIDIterator creates a new ID iterator.
// pageSize: number of IDs to request per page (must be > 0)
func NewIDIterator(store storage.VectorStore, namespace string, pageSize int, policy retry.Policy) *IDIterator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &IDIterator{
		store:     store,
		namespace: namespace,
		pageSize:  pageSize,
		policy:    policy,
	}
}

// ForEach calls fn with each page of IDs until the namespace is exhausted.
// Iteration stops on the first error from fn or the store.
// Context cancellation is checked between pages.
func (it *IDIterator) ForEach(ctx context.Context, fn func(ids []string) error) error {
	token := ""
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		page, err := retry.Value(ctx, it.policy, func(ctx context.Context) (*storage.ListPage, error) {
			return it.store.ListPaginated(ctx, it.namespace, it.pageSize, token)
		})
		if err != nil {
			return err
		}
		if len(page.IDs) > 0 {
			if err := fn(page.IDs); err != nil {
				return err
			}
		}
		if page.NextToken == "" {
			return nil
		}
		token = page.NextToken
	}
}
