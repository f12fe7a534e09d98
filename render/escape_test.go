package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/conciergehq/concierge/types"
)

// Every renderer serializes model text through the DOM builder, so raw
// markup in the document must never survive into the output.
func TestRenderedOutputEscapesModelText(t *testing.T) {
	factory := NewFactory(zap.NewNop())

	rapid.Check(t, func(t *rapid.T) {
		hostile := rapid.String().Draw(t, "hostile")
		key := rapid.SampledFrom(factory.Keys()).Draw(t, "renderer")

		out := &types.CrewOutput{
			CrewKey: "demo",
			Title:   hostile,
			Summary: "<script>alert(1)</script>" + hostile,
			Data: map[string]any{
				"sections":   []any{map[string]any{"heading": hostile, "body": "<img src=x onerror=alert(1)>"}},
				"stories":    []any{map[string]any{"headline": hostile, "gist": hostile}},
				"cards":      []any{map[string]any{"heading": hostile, "body": hostile}},
				"items":      []any{map[string]any{"name": hostile, "note": hostile}},
				"highlights": []any{hostile},
				"free":       hostile,
			},
		}

		body := factory.Render(key, out)
		got, err := serialize(body)
		require.NoError(t, err)

		// document text must come out entity-escaped: any literal tag
		// open from the model would be an injection
		if strings.Contains(got, "<script") {
			t.Fatalf("unescaped script tag in %s output", key)
		}
		if strings.Contains(got, "<img") {
			t.Fatalf("unescaped img tag in %s output", key)
		}
	})
}

func TestPageShellEscapesTitle(t *testing.T) {
	m, err := NewTemplateManager(t.TempDir())
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		title := rapid.String().Draw(t, "title")
		page, err := m.Page(title+"<script>", "crew", "<section></section>", time.Now())
		require.NoError(t, err)
		if strings.Contains(page, "<script") {
			t.Fatal("unescaped script tag from title")
		}
	})
}
