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


package storage

import "errors"

var (
	// ErrNotFound is returned when a batch, episode or hash entry does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when creating a batch whose ID is taken.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStorageClosed is returned by operations on a closed backend.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery is returned for a non-positive topK or page limit.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed wraps decoding errors for stored records.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrProgressOutOfRange indicates a namespace progress value outside
	// [0, chunk count].
	ErrProgressOutOfRange = errors.New("namespace progress out of range")
)
