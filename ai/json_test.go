package ai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid json untouched", `{"text": "a", "type": "b"}`, `{"text": "a", "type": "b"}`},
		{"missing opening quote", `{"text": "a", type": "b"}`, `{"text": "a", "type": "b"}`},
		{"first key missing quote", `{text": "a"}`, `{"text": "a"}`},
		{"commas inside values", `["one, two", "three"]`, `["one, two", "three"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RepairJSON(tt.in))
		})
	}
}

func TestExtractArray(t *testing.T) {
	resp := "Sure! Here are the chunks:\n```json\n[{\"text\": \"x\", content_type\": \"advice\"}]\n```\nLet me know if you need more."
	block, ok := ExtractArray(resp)
	require.True(t, ok)

	var out []map[string]string
	require.NoError(t, json.Unmarshal([]byte(block), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "advice", out[0]["content_type"])

	_, ok = ExtractArray("I could not find anything useful.")
	assert.False(t, ok)
}

func TestExtractObject(t *testing.T) {
	block, ok := ExtractObject(`The answer is {"namespaces": [{"name": "life", "confidence": 0.9}]} hope that helps`)
	require.True(t, ok)
	assert.Equal(t, `{"namespaces": [{"name": "life", "confidence": 0.9}]}`, block)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `[1]`, StripFences("```json\n[1]\n```"))
	assert.Equal(t, `[1]`, StripFences("```\n[1]```"))
	assert.Equal(t, `[1]`, StripFences("  [1]  "))
}
