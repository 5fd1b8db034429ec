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

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Chunk text bounds, in characters.
const (
	MinChunkLength = 20
	MaxChunkLength = 1400
)

// ChunkCandidate is an unvalidated chunk as produced by the extraction model.
type ChunkCandidate struct {
	Text        string `json:"text"`
	ContentType string `json:"content_type"`
	Tone        string `json:"tone"`
	Topic       string `json:"topic"`
	Confidence  string `json:"confidence"`
	VoiceOrigin string `json:"voice_origin"`
	Attribution string `json:"attribution"`
}

// NewChunk validates a candidate and returns the cleaned chunk.
//
// Validation rules:
//   - Text, after whitespace normalization, is 20-1400 characters
//   - ContentType is one of the known content types
//   - Confidence, if present, is soft, direct or authoritative (default direct)
//   - VoiceOrigin, if present, is native or attributed (default native)
//
// NOT assigned here (set by the distillation engine):
//   - ID and Index
func NewChunk(c ChunkCandidate) (Chunk, error) {
	text := NormalizeWhitespace(c.Text)
	n := utf8.RuneCountInString(text)
	if n < MinChunkLength {
		return Chunk{}, fmt.Errorf("%w: %w (%d chars)", ErrInvalidChunk, ErrChunkTooShort, n)
	}
	if n > MaxChunkLength {
		return Chunk{}, fmt.Errorf("%w: %w (%d chars)", ErrInvalidChunk, ErrChunkTooLong, n)
	}

	contentType, err := ValidateContentType(c.ContentType)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}
	confidence, err := ValidateConfidence(c.Confidence)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}
	origin, err := ValidateVoiceOrigin(c.VoiceOrigin)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}

	return Chunk{
		Text:        text,
		ContentType: contentType,
		Tone:        strings.TrimSpace(c.Tone),
		Topic:       strings.TrimSpace(c.Topic),
		Confidence:  confidence,
		VoiceOrigin: origin,
		Attribution: strings.TrimSpace(c.Attribution),
	}, nil
}

// ValidateContentType checks s against the known content types.
func ValidateContentType(s string) (ContentType, error) {
	ct := ContentType(strings.ToLower(strings.TrimSpace(s)))
	switch ct {
	case ContentExplanation, ContentAdvice, ContentStory, ContentWarning, ContentReframe:
		return ct, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidContentType, s)
}

// ValidateConfidence checks s against the known confidence levels.
func ValidateConfidence(s string) (ConfidenceLevel, error) {
	cl := ConfidenceLevel(strings.ToLower(strings.TrimSpace(s)))
	switch cl {
	case "":
		return ConfidenceDirect, nil
	case ConfidenceSoft, ConfidenceDirect, ConfidenceAuthoritative:
		return cl, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidConfidence, s)
}

// ValidateVoiceOrigin checks s against the known voice origins.
func ValidateVoiceOrigin(s string) (VoiceOrigin, error) {
	vo := VoiceOrigin(strings.ToLower(strings.TrimSpace(s)))
	switch vo {
	case "":
		return VoiceNative, nil
	case VoiceNative, VoiceAttributed:
		return vo, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidVoiceOrigin, s)
}

// NormalizeNamespace lower-cases and trims a namespace name.
func NormalizeNamespace(ns string) (string, error) {
	ns = strings.ToLower(strings.TrimSpace(ns))
	if ns == "" {
		return "", ErrEmptyNamespace
	}
	return ns, nil
}
