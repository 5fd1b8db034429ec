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

import (
	"fmt"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/mentorit/core"
)

// Record format versions, written as the first varint of every record.
const (
	batchFormat   = 1
	episodeFormat = 1
	vectorFormat  = 1
)

// musWriter appends MUS-encoded values to a growing buffer.
type musWriter struct {
	buf []byte
}

func (w *musWriter) grow(n int) []byte {
	off := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return w.buf[off:]
}

func (w *musWriter) str(v string)   { ord.String.Marshal(v, w.grow(ord.String.Size(v))) }
func (w *musWriter) boolean(v bool) { ord.Bool.Marshal(v, w.grow(ord.Bool.Size(v))) }
func (w *musWriter) int(v int)      { varint.Int.Marshal(v, w.grow(varint.Int.Size(v))) }
func (w *musWriter) int64(v int64)  { varint.Int64.Marshal(v, w.grow(varint.Int64.Size(v))) }

func (w *musWriter) float64(v float64) {
	bits := math.Float64bits(v)
	varint.Uint64.Marshal(bits, w.grow(varint.Uint64.Size(bits)))
}

func (w *musWriter) float32(v float32) {
	bits := math.Float32bits(v)
	varint.Uint32.Marshal(bits, w.grow(varint.Uint32.Size(bits)))
}

// time stores Unix microseconds; the zero time is stored as 0.
func (w *musWriter) time(t time.Time) {
	if t.IsZero() {
		w.int64(0)
		return
	}
	w.int64(t.UnixMicro())
}

func (w *musWriter) strings(vs []string) {
	w.int(len(vs))
	for _, v := range vs {
		w.str(v)
	}
}

func (w *musWriter) stringMap(m map[string]string) {
	w.int(len(m))
	for k, v := range m {
		w.str(k)
		w.str(v)
	}
}

// musReader consumes MUS-encoded values. The first failure sticks and every
// later read returns a zero value.
type musReader struct {
	bs  []byte
	err error
}

func (r *musReader) advance(n int, err error) bool {
	if err != nil {
		r.err = fmt.Errorf("%w: %w", ErrSerializationFailed, err)
		return false
	}
	r.bs = r.bs[n:]
	return true
}

func (r *musReader) str() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs)
	if !r.advance(n, err) {
		return ""
	}
	return v
}

func (r *musReader) boolean() bool {
	if r.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.bs)
	if !r.advance(n, err) {
		return false
	}
	return v
}

func (r *musReader) int() int {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(r.bs)
	if !r.advance(n, err) {
		return 0
	}
	return v
}

// length reads a collection length and rejects values the remaining input
// cannot possibly hold.
func (r *musReader) length() int {
	n := r.int()
	if r.err == nil && (n < 0 || n > len(r.bs)) {
		r.err = fmt.Errorf("%w: invalid length %d", ErrSerializationFailed, n)
		return 0
	}
	return n
}

func (r *musReader) int64() int64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(r.bs)
	if !r.advance(n, err) {
		return 0
	}
	return v
}

func (r *musReader) float64() float64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs)
	if !r.advance(n, err) {
		return 0
	}
	return math.Float64frombits(v)
}

func (r *musReader) float32() float32 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint32.Unmarshal(r.bs)
	if !r.advance(n, err) {
		return 0
	}
	return math.Float32frombits(v)
}

func (r *musReader) time() time.Time {
	us := r.int64()
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

func (r *musReader) strings() []string {
	n := r.length()
	if n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.str())
	}
	return out
}

func (r *musReader) stringMap() map[string]string {
	n := r.length()
	if n == 0 {
		return nil
	}
	out := make(map[string]string, n)
	for i := 0; i < n && r.err == nil; i++ {
		k := r.str()
		out[k] = r.str()
	}
	return out
}

func (r *musReader) version(want int) {
	if v := r.int(); r.err == nil && v != want {
		r.err = fmt.Errorf("%w: unsupported record format %d", ErrSerializationFailed, v)
	}
}

// MarshalBatch serializes a Batch to bytes.
func MarshalBatch(b *core.Batch) []byte {
	w := &musWriter{}
	w.int(batchFormat)
	w.str(b.ID)
	w.str(b.Namespace)
	w.str(b.ArchiveName)
	w.str(b.ArchivePath)
	w.str(string(b.Status))
	w.boolean(b.AutoDetect)
	w.str(string(b.Mode))
	w.int(b.TotalEpisodes)
	w.int(b.ProcessedEpisodes)
	w.int(b.SuccessfulEpisodes)
	w.int(b.FailedEpisodes)
	w.int(b.SkippedEpisodes)
	w.int(b.TotalChunks)
	w.boolean(b.CancelRequested)
	w.str(b.Error)
	w.time(b.CreatedAt)
	w.time(b.UpdatedAt)
	w.time(b.CompletedAt)
	return w.buf
}

// UnmarshalBatch deserializes a Batch from bytes.
func UnmarshalBatch(data []byte) (*core.Batch, error) {
	r := &musReader{bs: data}
	r.version(batchFormat)
	b := &core.Batch{
		ID:                 r.str(),
		Namespace:          r.str(),
		ArchiveName:        r.str(),
		ArchivePath:        r.str(),
		Status:             core.BatchStatus(r.str()),
		AutoDetect:         r.boolean(),
		Mode:               core.Mode(r.str()),
		TotalEpisodes:      r.int(),
		ProcessedEpisodes:  r.int(),
		SuccessfulEpisodes: r.int(),
		FailedEpisodes:     r.int(),
		SkippedEpisodes:    r.int(),
		TotalChunks:        r.int(),
		CancelRequested:    r.boolean(),
		Error:              r.str(),
		CreatedAt:          r.time(),
		UpdatedAt:          r.time(),
		CompletedAt:        r.time(),
	}
	if r.err != nil {
		return nil, r.err
	}
	return b, nil
}

func (w *musWriter) chunk(c *core.Chunk) {
	w.str(c.ID)
	w.int(c.Index)
	w.str(c.Text)
	w.str(string(c.ContentType))
	w.str(c.Tone)
	w.str(c.Topic)
	w.str(string(c.Confidence))
	w.str(string(c.VoiceOrigin))
	w.str(c.Attribution)
}

func (r *musReader) chunk() core.Chunk {
	return core.Chunk{
		ID:          r.str(),
		Index:       r.int(),
		Text:        r.str(),
		ContentType: core.ContentType(r.str()),
		Tone:        r.str(),
		Topic:       r.str(),
		Confidence:  core.ConfidenceLevel(r.str()),
		VoiceOrigin: core.VoiceOrigin(r.str()),
		Attribution: r.str(),
	}
}

// MarshalEpisode serializes an Episode to bytes.
func MarshalEpisode(e *core.Episode) []byte {
	w := &musWriter{}
	w.int(episodeFormat)
	w.str(e.ID)
	w.str(e.BatchID)
	w.str(e.Filename)
	w.str(e.ContentHash)
	w.str(string(e.Status))
	w.str(e.Transcript)

	w.int(len(e.Chunks))
	for i := range e.Chunks {
		w.chunk(&e.Chunks[i])
	}
	w.int(e.SegmentsTotal)
	w.int(e.SegmentsDone)
	w.boolean(e.DistillComplete)
	w.int(e.ChunkCount)
	w.int(e.DiscardedCount)

	w.int(len(e.NamespaceProgress))
	for ns, n := range e.NamespaceProgress {
		w.str(ns)
		w.int(n)
	}
	w.strings(e.TargetNamespaces)
	w.int(len(e.PredictedNamespaces))
	for _, p := range e.PredictedNamespaces {
		w.str(p.Name)
		w.float64(p.Confidence)
	}
	w.str(e.PrimaryNamespace)
	w.float64(e.Confidence)
	w.str(e.Rationale)
	w.boolean(e.ManualOverride)

	w.str(e.DuplicateOf)
	w.str(e.Error)
	w.time(e.CreatedAt)
	w.time(e.UpdatedAt)
	return w.buf
}

// UnmarshalEpisode deserializes an Episode from bytes.
func UnmarshalEpisode(data []byte) (*core.Episode, error) {
	r := &musReader{bs: data}
	r.version(episodeFormat)
	e := &core.Episode{
		ID:          r.str(),
		BatchID:     r.str(),
		Filename:    r.str(),
		ContentHash: r.str(),
		Status:      core.EpisodeStatus(r.str()),
		Transcript:  r.str(),
	}

	if n := r.length(); n > 0 {
		e.Chunks = make([]core.Chunk, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			e.Chunks = append(e.Chunks, r.chunk())
		}
	}
	e.SegmentsTotal = r.int()
	e.SegmentsDone = r.int()
	e.DistillComplete = r.boolean()
	e.ChunkCount = r.int()
	e.DiscardedCount = r.int()

	if n := r.length(); n > 0 {
		e.NamespaceProgress = make(map[string]int, n)
		for i := 0; i < n && r.err == nil; i++ {
			ns := r.str()
			e.NamespaceProgress[ns] = r.int()
		}
	}
	e.TargetNamespaces = r.strings()
	if n := r.length(); n > 0 {
		e.PredictedNamespaces = make([]core.NamespaceScore, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			e.PredictedNamespaces = append(e.PredictedNamespaces, core.NamespaceScore{
				Name:       r.str(),
				Confidence: r.float64(),
			})
		}
	}
	e.PrimaryNamespace = r.str()
	e.Confidence = r.float64()
	e.Rationale = r.str()
	e.ManualOverride = r.boolean()

	e.DuplicateOf = r.str()
	e.Error = r.str()
	e.CreatedAt = r.time()
	e.UpdatedAt = r.time()
	if r.err != nil {
		return nil, r.err
	}
	return e, nil
}

// MarshalVector serializes a Vector to bytes.
func MarshalVector(v *Vector) []byte {
	w := &musWriter{}
	w.int(vectorFormat)
	w.str(v.ID)
	w.int(len(v.Values))
	for _, f := range v.Values {
		w.float32(f)
	}
	w.stringMap(v.Metadata)
	return w.buf
}

// UnmarshalVector deserializes a Vector from bytes.
func UnmarshalVector(data []byte) (*Vector, error) {
	r := &musReader{bs: data}
	r.version(vectorFormat)
	v := &Vector{ID: r.str()}
	if n := r.length(); n > 0 {
		v.Values = make([]float32, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			v.Values = append(v.Values, r.float32())
		}
	}
	v.Metadata = r.stringMap()
	if r.err != nil {
		return nil, r.err
	}
	return v, nil
}
