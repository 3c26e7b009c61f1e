package rag

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	lexicalLengthScale = float32(10.0)
	maxLexicalScore    = float32(0.4)
	snippetLength      = 240
)

var lexicalStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "was": {}, "were": {}, "with": {},
}

var sentenceSpan = regexp.MustCompile(`[^.!?\n]*[.!?\n]+|[^.!?\n]+`)

// lexicalScore computes a lightweight lexical relevance score for a passage relative to a query.
// The score is normalized to remain in a predictable range.
func lexicalScore(queryTokens []string, passage string) float32 {
	if len(queryTokens) == 0 {
		return 0
	}

	tokens := tokenize(passage)
	if len(tokens) == 0 {
		return 0
	}

	freq := make(map[string]int, len(tokens))
	for _, token := range tokens {
		freq[token]++
	}

	var rawMatches int
	for _, token := range queryTokens {
		rawMatches += freq[token]
	}

	score := (float32(rawMatches) / (1 + float32(len(tokens)))) * lexicalLengthScale
	if score > maxLexicalScore {
		return maxLexicalScore
	}
	return score
}

// snippet returns the part of text around the sentence that best matches query, at most
// maxRunes runes plus ellipses marking cut edges. Without any lexical match it returns the
// start of text.
func snippet(query, text string, maxRunes int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	queryTokens := filterStopwords(tokenize(query))
	spans := sentenceSpan.FindAllStringIndex(text, -1)

	start := 0
	var best float32
	for _, span := range spans {
		if s := lexicalScore(queryTokens, text[span[0]:span[1]]); s > best {
			best = s
			start = span[0]
		}
	}

	runes := []rune(strings.TrimLeftFunc(text[start:], unicode.IsSpace))
	cut := false
	if len(runes) > maxRunes {
		runes = runes[:maxRunes]
		cut = true
	}

	out := strings.TrimSpace(string(runes))
	if start > 0 {
		out = "..." + out
	}
	if cut {
		out += "..."
	}
	return out
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	tokens := strings.Fields(builder.String())
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

func filterStopwords(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := lexicalStopwords[token]; isStop {
			continue
		}
		result = append(result, token)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
