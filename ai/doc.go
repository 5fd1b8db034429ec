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


// Package ai provides abstractions for the model services used by mentorit.
//
// The ingestion pipeline needs three kinds of model call: free-form generation
// (anonymization and chunk extraction), short classification answers
// (anonymization verification and namespace prediction) and batch text
// embedding. This package defines interfaces for each so pipeline code never
// depends on a concrete client.
//
// # Design Principles
//
//   - Completer: single-turn system + user prompt, returns the model text
//   - Embedder: batch embeddings with a fixed, validated dimension
//   - AIProvider: aggregates the services for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: implementation using OpenAI-compatible APIs via langchaingo
//   - ai/mock: test doubles for unit testing without external dependencies
//
// Public constructors (openai.NewProvider) return interface types. Mock
// constructors return concrete types so tests can script responses and
// inspect call counts:
//
//	gen := mock.NewMockCompleter()
//	gen.WithCompleteFunc(func(ctx context.Context, system, user string) (string, error) {
//	    return `[{"text": "...", "content_type": "advice"}]`, nil
//	})
//	provider := mock.NewMockProvider(mock.WithGenerator(gen))
package ai
