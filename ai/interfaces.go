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


package ai

import (
	"context"
	"errors"
)

// Embedder generates vector embeddings.
type Embedder interface {
	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails or if a returned
	// vector does not have Dimension() entries.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the length of every vector this embedder returns.
	Dimension() int
}

// Completer runs a single-turn prompt against a language model.
type Completer interface {
	// Complete sends a system prompt and a user message and returns the
	// model's text response.
	Complete(ctx context.Context, system, user string) (string, error)
}

// AIProvider aggregates the model services used by the pipeline.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Generator returns the model used for anonymization and chunk extraction.
	Generator() Completer

	// Classifier returns the model used for verification and namespace
	// prediction. It may be smaller and faster than the generator.
	Classifier() Completer

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}

// ErrDimensionMismatch indicates an embedding of unexpected length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")
