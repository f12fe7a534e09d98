package classify

import (
	"strings"
	"unicode"

	"github.com/conciergehq/concierge/types"
)

// Fallback classifies by keyword match alone. Keywords match on word
// boundaries ("art" never matches "startup"), phrases outweigh single
// words, and equal scores resolve to the lexically smaller crew key so
// the result is deterministic for a given catalog.
func (c *Classifier) Fallback(text string) *types.Classification {
	lowered := " " + normalizeWords(text) + " "

	bestKey := DefaultCrew
	bestScore := 0
	for _, def := range c.catalog.Definitions() {
		score := 0
		for _, kw := range def.Keywords {
			kw = normalizeWords(kw)
			if kw == "" {
				continue
			}
			if strings.Contains(lowered, " "+kw+" ") {
				score += len(strings.Fields(kw))
			}
		}
		if score > bestScore || (score == bestScore && score > 0 && def.Key < bestKey) {
			bestKey = def.Key
			bestScore = score
		}
	}

	confidence := 0.3
	switch {
	case bestScore == 0:
		confidence = 0.1
	case bestScore > 1:
		confidence = 0.4
	}
	return &types.Classification{CrewKey: bestKey, Confidence: confidence, Fallback: true}
}

// normalizeWords lowercases and maps punctuation to spaces so "rain?"
// and "rain" are the same word.
func normalizeWords(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}
