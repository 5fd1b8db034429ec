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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidChunk indicates a chunk candidate failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrChunkTooShort indicates chunk text is under the minimum length.
	ErrChunkTooShort = errors.New("chunk text too short")

	// ErrChunkTooLong indicates chunk text is over the maximum length.
	ErrChunkTooLong = errors.New("chunk text too long")

	// ErrInvalidContentType indicates an unrecognized content type.
	ErrInvalidContentType = errors.New("invalid content type")

	// ErrInvalidConfidence indicates an unrecognized confidence level.
	ErrInvalidConfidence = errors.New("invalid confidence level")

	// ErrInvalidVoiceOrigin indicates an unrecognized voice origin.
	ErrInvalidVoiceOrigin = errors.New("invalid voice origin")

	// ErrInvalidMode indicates an unrecognized distillation mode.
	ErrInvalidMode = errors.New("invalid distillation mode")

	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrEmptyNamespace indicates a namespace name is blank.
	ErrEmptyNamespace = errors.New("namespace cannot be empty")
)
