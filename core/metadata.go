package core

import (
	"strconv"
)

// VectorMetadata is the payload stored alongside a chunk's vector. Each
// distillation mode has its own variant with a fixed field set.
type VectorMetadata interface {
	Mode() Mode
	// Fields renders the metadata for the vector store. Optional fields are
	// omitted when empty.
	Fields() map[string]string
}

// Provenance fields shared by every metadata variant.
type Provenance struct {
	BatchID    string
	EpisodeID  string
	Filename   string
	Namespace  string
	ChunkIndex int
}

func (p Provenance) fields(m map[string]string) {
	m["batch_id"] = p.BatchID
	m["episode_id"] = p.EpisodeID
	m["source"] = p.Filename
	m["namespace"] = p.Namespace
	m["chunk_index"] = strconv.Itoa(p.ChunkIndex)
}

// PlainChunkMetadata describes a neutral knowledge chunk.
type PlainChunkMetadata struct {
	Provenance
	Text        string
	ContentType ContentType
	Topic       string // optional
}

var _ VectorMetadata = PlainChunkMetadata{}

// PlainChunkOptionalFields lists the fields a plain chunk may omit.
var PlainChunkOptionalFields = []string{"topic"}

func (m PlainChunkMetadata) Mode() Mode { return ModePlain }

func (m PlainChunkMetadata) Fields() map[string]string {
	out := map[string]string{
		"mode":         string(ModePlain),
		"text":         m.Text,
		"content_type": string(m.ContentType),
	}
	m.Provenance.fields(out)
	if m.Topic != "" {
		out["topic"] = m.Topic
	}
	return out
}

// MentorVoiceMetadata describes a chunk rewritten in the mentor's voice.
type MentorVoiceMetadata struct {
	Provenance
	Text        string
	ContentType ContentType
	Confidence  ConfidenceLevel
	VoiceOrigin VoiceOrigin
	Tone        string // optional
	Topic       string // optional
	Attribution string // optional, only meaningful for attributed chunks
}

var _ VectorMetadata = MentorVoiceMetadata{}

// MentorVoiceOptionalFields lists the fields a mentor-voice chunk may omit.
var MentorVoiceOptionalFields = []string{"tone", "topic", "attribution"}

func (m MentorVoiceMetadata) Mode() Mode { return ModeMentorVoice }

func (m MentorVoiceMetadata) Fields() map[string]string {
	out := map[string]string{
		"mode":         string(ModeMentorVoice),
		"text":         m.Text,
		"content_type": string(m.ContentType),
		"confidence":   string(m.Confidence),
		"voice_origin": string(m.VoiceOrigin),
	}
	m.Provenance.fields(out)
	if m.Tone != "" {
		out["tone"] = m.Tone
	}
	if m.Topic != "" {
		out["topic"] = m.Topic
	}
	if m.VoiceOrigin == VoiceAttributed && m.Attribution != "" {
		out["attribution"] = m.Attribution
	}
	return out
}

// MetadataFor builds the metadata variant matching mode for a chunk.
func MetadataFor(mode Mode, p Provenance, c Chunk) VectorMetadata {
	if mode == ModeMentorVoice {
		return MentorVoiceMetadata{
			Provenance:  p,
			Text:        c.Text,
			ContentType: c.ContentType,
			Confidence:  c.Confidence,
			VoiceOrigin: c.VoiceOrigin,
			Tone:        c.Tone,
			Topic:       c.Topic,
			Attribution: c.Attribution,
		}
	}
	return PlainChunkMetadata{
		Provenance:  p,
		Text:        c.Text,
		ContentType: c.ContentType,
		Topic:       c.Topic,
	}
}
