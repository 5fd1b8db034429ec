package distill

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))

	// punctuation and non-ASCII runes cost more than English letters
	assert.Equal(t, 2, EstimateTokens("{};"))
	assert.Equal(t, 9, EstimateTokens("悲しみと喪失"))
	assert.Greater(t, EstimateTokens("func(x){return x*2;}"), EstimateTokens("function returns twice"))
}

func TestSplitWith_UsesCounter(t *testing.T) {
	// every rune counts as a token
	perRune := func(s string) int { return len([]rune(s)) }
	text := strings.Repeat("悲しみについて話しましょう。", 10)

	assert.Len(t, Split(text, 250), 1)

	segments := SplitWith(text, 40, perRune)
	require.Greater(t, len(segments), 1)
	assert.Equal(t, text, strings.Join(segments, ""))
	for _, seg := range segments {
		assert.LessOrEqual(t, perRune(seg), 40)
	}
}

func TestSplit_SmallTextIsOneSegment(t *testing.T) {
	text := "First paragraph.\n\nSecond paragraph."
	segments := Split(text, 100)
	require.Len(t, segments, 1)
	assert.Equal(t, text, segments[0])
}

func TestSplit_ParagraphAligned(t *testing.T) {
	para := strings.Repeat("word ", 30) + "end." // ~38 tokens
	text := strings.Join([]string{para, para, para, para}, "\n\n")

	segments := Split(text, 80)
	require.Len(t, segments, 2)
	for _, seg := range segments {
		assert.LessOrEqual(t, EstimateTokens(seg), 80)
		assert.True(t, strings.HasSuffix(seg, "end."), "segments should end on a paragraph boundary")
	}
}

func TestSplit_OversizedParagraphFallsBackToLines(t *testing.T) {
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "Host: this is a fairly ordinary line of dialogue.")
	}
	segments := Split(strings.Join(lines, "\n"), 50)
	require.Greater(t, len(segments), 1)
	for _, seg := range segments {
		assert.LessOrEqual(t, EstimateTokens(seg), 50)
		assert.True(t, strings.HasPrefix(seg, "Host:"))
	}
}

func TestSplit_SentenceAndHardCut(t *testing.T) {
	long := strings.Repeat("This sentence is short. ", 20)
	for _, seg := range Split(long, 20) {
		assert.LessOrEqual(t, EstimateTokens(seg), 20)
		assert.True(t, strings.HasSuffix(seg, "."))
	}

	unbroken := strings.Repeat("x", 500)
	segments := Split(unbroken, 25)
	assert.Equal(t, unbroken, strings.Join(segments, ""))
	for _, seg := range segments {
		assert.LessOrEqual(t, EstimateTokens(seg), 25)
	}
}

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, Split("   \n\n  ", 100))
}
