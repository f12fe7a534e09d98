package classify

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestFallbackKeywordMatch(t *testing.T) {
	c := newTestClassifier(&stubProvider{}, nil)

	tests := []struct {
		text string
		want string
	}{
		{"any news today?", "news_digest"},
		{"what's the weather forecast", "weather_briefing"},
		{"please research this for me", "general_research"},
		{"completely unrelated gibberish", DefaultCrew},
		{"", DefaultCrew},
	}
	for _, tt := range tests {
		cls := c.Fallback(tt.text)
		assert.Equal(t, tt.want, cls.CrewKey, tt.text)
		assert.True(t, cls.Fallback)
	}
}

func TestFallbackMatchesWholeWordsOnly(t *testing.T) {
	c := newTestClassifier(&stubProvider{}, nil)

	// "rain" inside "training" must not count for weather_briefing
	cls := c.Fallback("I am training for a marathon")
	assert.Equal(t, DefaultCrew, cls.CrewKey)

	// adjacent punctuation still matches the word
	cls = c.Fallback("will it rain?")
	assert.Equal(t, "weather_briefing", cls.CrewKey)
}

func TestFallbackPhrasesOutweighWords(t *testing.T) {
	c := newTestClassifier(&stubProvider{}, nil)
	// two weather keywords beat one news keyword
	cls := c.Fallback("weather news: rain expected")
	assert.Equal(t, "weather_briefing", cls.CrewKey)
}

func TestFallbackProperties(t *testing.T) {
	c := newTestClassifier(&stubProvider{}, nil)
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("deterministic for identical text", prop.ForAll(
		func(text string) bool {
			return c.Fallback(text).CrewKey == c.Fallback(text).CrewKey
		},
		gen.AnyString(),
	))

	properties.Property("always yields a known crew", prop.ForAll(
		func(text string) bool {
			return c.catalog.Has(c.Fallback(text).CrewKey)
		},
		gen.AnyString(),
	))

	properties.Property("case and spacing do not change the verdict", prop.ForAll(
		func(a string) bool {
			spaced := "  " + a + "  "
			return c.Fallback(a).CrewKey == c.Fallback(spaced).CrewKey
		},
		gen.AlphaString(),
	))

	properties.Property("confidence stays in (0, 0.5]", prop.ForAll(
		func(text string) bool {
			conf := c.Fallback(text).Confidence
			return conf > 0 && conf <= 0.5
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
