// Package distill turns raw transcripts into standalone knowledge chunks.
//
// A transcript is split into token-bounded segments. Each segment is
// anonymized by the generation model, checked for leftover identifying
// details by the classification model, re-anonymized once more strictly when
// the check fails, and finally mined for chunks. Chunk candidates that do not
// validate are discarded and counted, never fatal.
package distill
