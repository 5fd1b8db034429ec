package distill

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
)

// TokenCounter reports how many tokens a model would see for text.
type TokenCounter func(text string) int

var blankLine = regexp.MustCompile(`\n\s*\n`)

// EstimateTokens approximates the token count of text without a tokenizer.
// It is tuned to overcount: ASCII letters, digits and spaces cost a quarter
// token, ASCII punctuation half a token, and any other rune a token and a
// half, which covers code and non-Latin scripts.
func EstimateTokens(text string) int {
	quarters := 0
	for _, r := range text {
		switch {
		case r >= utf8.RuneSelf:
			quarters += 6
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			quarters++
		default:
			quarters += 2
		}
	}
	return (quarters + 3) / 4
}

// ModelCounter counts tokens with the tokenizer langchaingo resolves for
// model. It never reports fewer tokens than EstimateTokens, so an unknown
// model or an unavailable tokenizer falls back to the estimate.
func ModelCounter(model string) TokenCounter {
	return func(text string) int {
		return max(llms.CountTokens(model, text), EstimateTokens(text))
	}
}

// Split breaks text into segments of at most maxTokens estimated tokens.
// Segments end on paragraph boundaries. A paragraph larger than the ceiling
// is split on line breaks, then on sentence ends, and only as a last resort
// mid-sentence.
func Split(text string, maxTokens int) []string {
	return SplitWith(text, maxTokens, EstimateTokens)
}

// SplitWith is Split measuring segments with count.
func SplitWith(text string, maxTokens int, count TokenCounter) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if count == nil {
		count = EstimateTokens
	}
	var units []string
	for _, para := range blankLine.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		units = append(units, fit(para, maxTokens, count)...)
	}
	return pack(units, maxTokens, count)
}

// fit returns pieces of para that each fit under maxTokens.
func fit(para string, maxTokens int, count TokenCounter) []string {
	if count(para) <= maxTokens {
		return []string{para}
	}
	var out []string
	for _, line := range strings.Split(para, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if count(line) <= maxTokens {
			out = append(out, line)
			continue
		}
		for _, sentence := range sentences(line) {
			if count(sentence) <= maxTokens {
				out = append(out, sentence)
				continue
			}
			out = append(out, hardCut(sentence, maxTokens, count)...)
		}
	}
	return out
}

// sentences splits after '.', '!' or '?' followed by whitespace.
func sentences(s string) []string {
	var out []string
	runes := []rune(s)
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		if (runes[i] == '.' || runes[i] == '!' || runes[i] == '?') && unicode.IsSpace(runes[i+1]) {
			if piece := strings.TrimSpace(string(runes[start : i+1])); piece != "" {
				out = append(out, piece)
			}
			start = i + 1
		}
	}
	if piece := strings.TrimSpace(string(runes[start:])); piece != "" {
		out = append(out, piece)
	}
	return out
}

// hardCut splits s into the longest rune prefixes that fit under maxTokens.
func hardCut(s string, maxTokens int, count TokenCounter) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		// longest prefix that fits; at least one rune so the loop advances
		n := sort.Search(len(runes), func(i int) bool {
			return count(string(runes[:i+1])) > maxTokens
		})
		n = max(n, 1)
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

// pack greedily joins units into segments under maxTokens.
func pack(units []string, maxTokens int, count TokenCounter) []string {
	var segments []string
	var current strings.Builder
	for _, u := range units {
		if current.Len() > 0 && count(current.String())+count(u)+1 > maxTokens {
			segments = append(segments, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(u)
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}
