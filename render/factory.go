package render

import (
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/conciergehq/concierge/types"
)

// Factory resolves renderer keys to renderers. Unknown keys and
// renderer failures resolve to the generic renderer, so rendering as a
// whole cannot fail on document shape.
type Factory struct {
	renderers map[string]Renderer
	generic   Renderer
	logger    *zap.Logger
}

// NewFactory builds a factory with the full built-in renderer set.
func NewFactory(logger *zap.Logger) *Factory {
	f := &Factory{
		renderers: make(map[string]Renderer),
		generic:   rendererFunc{key: "generic", fn: renderGeneric},
		logger:    logger.With(zap.String("component", "render")),
	}
	for _, r := range []Renderer{
		rendererFunc{key: "research_report", fn: renderResearchReport},
		rendererFunc{key: "news_digest", fn: renderNewsDigest},
		rendererFunc{key: "market_report", fn: renderMarketReport},
		rendererFunc{key: "comparison_table", fn: renderComparisonTable},
		rendererFunc{key: "itinerary", fn: renderItinerary},
		rendererFunc{key: "timeline", fn: renderTimeline},
		rendererFunc{key: "listicle", fn: renderListicle},
		rendererFunc{key: "qa_brief", fn: renderQABrief},
		rendererFunc{key: "stat_dashboard", fn: renderStatDashboard},
		rendererFunc{key: "digest_cards", fn: renderDigestCards},
		rendererFunc{key: "profile_card", fn: renderProfileCard},
		rendererFunc{key: "weather_panel", fn: renderWeatherPanel},
		rendererFunc{key: "events_board", fn: renderEventsBoard},
		rendererFunc{key: "recipe_cards", fn: renderRecipeCards},
		rendererFunc{key: "learning_path", fn: renderLearningPath},
	} {
		f.renderers[r.Key()] = r
	}
	f.renderers[f.generic.Key()] = f.generic
	return f
}

// For returns the renderer for key, or the generic renderer.
func (f *Factory) For(key string) Renderer {
	if r, ok := f.renderers[key]; ok {
		return r
	}
	f.logger.Warn("unknown renderer key, using generic", zap.String("renderer", key))
	return f.generic
}

// Keys returns the registered renderer keys.
func (f *Factory) Keys() []string {
	keys := make([]string, 0, len(f.renderers))
	for k := range f.renderers {
		keys = append(keys, k)
	}
	return keys
}

// Render builds the body for out with the renderer for key, falling
// back to the generic renderer when the specific one fails.
func (f *Factory) Render(key string, out *types.CrewOutput) *html.Node {
	r := f.For(key)
	body, err := r.Render(out)
	if err == nil {
		return body
	}
	f.logger.Warn("renderer failed, falling back to generic",
		zap.String("renderer", r.Key()),
		zap.String("crew", out.CrewKey),
		zap.Error(err),
	)
	body, err = f.generic.Render(out)
	if err != nil {
		// the generic renderer accepts any document; an error here means
		// the output itself is unusable
		return div("report-error", para("", "report could not be rendered"))
	}
	return body
}
