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


// Package storage provides the storage abstraction layer for mentorit.
//
// This package defines repository interfaces that decouple persistence from
// the ingestion pipeline. Batch and episode records live behind
// BatchRepository and EpisodeRepository; embeddings live behind VectorStore.
//
// # Architecture
//
//   - BatchRepository: batch records and their status
//   - EpisodeRepository: episodes, per-namespace progress and the content hash index
//   - ProgressStore: the narrow progress-writing view used by the uploader
//   - VectorStore: the namespaced vector index (Pinecone or local)
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	batches := badger.NewBatchRepository(backend)
//	episodes := badger.NewEpisodeRepository(backend)
//
// # Persistence as source of truth
//
// Every status change and every progress increment is written through these
// interfaces before the pipeline moves on. In-memory state is only ever a
// projection of what is stored, so a restarted process resumes from the
// repository alone.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
