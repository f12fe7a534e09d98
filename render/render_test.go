package render

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conciergehq/concierge/types"
)

func output(crew string, data map[string]any) *types.CrewOutput {
	return &types.CrewOutput{
		CrewKey:   crew,
		RequestID: "req-1",
		Title:     "Test Report",
		Summary:   "A short summary.",
		Data:      data,
	}
}

func renderToString(t *testing.T, key string, out *types.CrewOutput) string {
	t.Helper()
	body := NewFactory(zap.NewNop()).Render(key, out)
	s, err := serialize(body)
	require.NoError(t, err)
	return s
}

func TestFactoryKnownKeys(t *testing.T) {
	f := NewFactory(zap.NewNop())
	for _, key := range []string{
		"research_report", "news_digest", "market_report", "comparison_table",
		"itinerary", "timeline", "listicle", "qa_brief", "stat_dashboard",
		"digest_cards", "profile_card", "weather_panel", "events_board",
		"recipe_cards", "learning_path", "generic",
	} {
		assert.Equal(t, key, f.For(key).Key(), key)
	}
}

func TestFactoryUnknownKeyFallsBack(t *testing.T) {
	f := NewFactory(zap.NewNop())
	assert.Equal(t, "generic", f.For("holographic_3d").Key())
}

func TestResearchReport(t *testing.T) {
	got := renderToString(t, "research_report", output("general_research", map[string]any{
		"sections": []any{
			map[string]any{"heading": "Background", "body": "Some context."},
			map[string]any{"heading": "Findings", "body": "The facts."},
		},
		"sources": []any{
			map[string]any{"title": "Primary", "url": "https://example.com/a"},
		},
	}))
	assert.Contains(t, got, "A short summary.")
	assert.Contains(t, got, "<h2>Background</h2>")
	assert.Contains(t, got, "The facts.")
	assert.Contains(t, got, `href="https://example.com/a"`)
}

func TestNewsDigest(t *testing.T) {
	got := renderToString(t, "news_digest", output("news_digest", map[string]any{
		"stories": []any{
			map[string]any{"headline": "Big Story", "outlet": "Wire", "date": "2026-08-25", "gist": "It happened.", "url": "https://example.com/s"},
		},
	}))
	assert.Contains(t, got, "Big Story")
	assert.Contains(t, got, "Wire")
	assert.Contains(t, got, "It happened.")
}

func TestMarketReportRowDirection(t *testing.T) {
	got := renderToString(t, "market_report", output("finance_markets", map[string]any{
		"quotes": []any{
			map[string]any{"symbol": "UP", "price": "10.00", "change": "0.50", "change_percent": "5.0%"},
			map[string]any{"symbol": "DN", "price": "9.00", "change": "-0.50", "change_percent": "-5.0%"},
		},
		"highlights": []any{"UP rallied"},
	}))
	assert.Contains(t, got, `<tr class="up">`)
	assert.Contains(t, got, `<tr class="down">`)
	assert.Contains(t, got, "UP rallied")
}

func TestComparisonTableAlignsShortRows(t *testing.T) {
	got := renderToString(t, "comparison_table", output("product_comparison", map[string]any{
		"columns": []any{"A", "B", "C"},
		"rows": []any{
			map[string]any{"criterion": "Price", "values": []any{"$1"}}, // short row
		},
		"verdict": "A wins",
	}))
	assert.Contains(t, got, "$1")
	assert.Contains(t, got, missing) // padded cells
	assert.Contains(t, got, "A wins")
}

func TestRendererMissingKeysUsePlaceholders(t *testing.T) {
	got := renderToString(t, "weather_panel", output("weather_briefing", map[string]any{
		"days": []any{map[string]any{}}, // a day with no fields at all
	}))
	assert.Contains(t, got, missing)
}

func TestGenericRendererDumpsAnything(t *testing.T) {
	got := renderToString(t, "generic", output("general_research", map[string]any{
		"whatever": map[string]any{"nested": []any{"a", float64(2)}},
		"flag":     true,
	}))
	assert.Contains(t, got, "whatever")
	assert.Contains(t, got, "nested")
	assert.Contains(t, got, "<li>a</li>")
	assert.Contains(t, got, "true")
}

func TestAnchorRejectsUnsafeSchemes(t *testing.T) {
	got, err := serialize(anchor("javascript:alert(1)", "click"))
	require.NoError(t, err)
	assert.NotContains(t, got, "javascript:")
	assert.Contains(t, got, "click")
}

func TestServiceWritesReport(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewService(dir, zap.NewNop())
	require.NoError(t, err)

	out := output("news_digest", map[string]any{
		"stories": []any{map[string]any{"headline": "Hello"}},
	})
	report, err := svc.Render("news_digest", out)
	require.NoError(t, err)

	assert.Equal(t, "req-1", report.RequestID)
	assert.Contains(t, report.OutputPath, filepath.Join(dir, "news_digest"))
	assert.Contains(t, report.OutputPath, "test-report-")

	data, err := os.ReadFile(report.OutputPath)
	require.NoError(t, err)
	page := string(data)
	assert.Contains(t, page, "<!DOCTYPE html>")
	assert.Contains(t, page, "<title>Test Report</title>")
	assert.Contains(t, page, "Hello")
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Weekly Market Report", "weekly-market-report"},
		{"  What's on in Oslo?  ", "what-s-on-in-oslo"},
		{"", "report"},
		{"!!!", "report"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slugify(tt.in), tt.in)
	}
}

func TestTemplatePageFooter(t *testing.T) {
	m, err := NewTemplateManager(t.TempDir())
	require.NoError(t, err)

	when := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	page, err := m.Page("T", "news_digest", "<section>x</section>", when)
	require.NoError(t, err)
	assert.Contains(t, page, "2026-08-25 09:30 UTC")
	assert.Contains(t, page, "news_digest")
}
