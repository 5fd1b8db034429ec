package core

import (
	"encoding/hex"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// NormalizeWhitespace collapses every run of whitespace to a single space
// and trims both ends.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ContentHash returns the hex BLAKE2b-256 digest of text after whitespace
// normalization. Transcripts that differ only in spacing or line breaks hash
// identically; any other difference yields a different digest.
func ContentHash(text string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(NormalizeWhitespace(text)))
	return hex.EncodeToString(h.Sum(nil))
}
