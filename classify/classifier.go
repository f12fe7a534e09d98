// Package classify maps a natural-language request to the crew that
// should handle it. One LLM call decides; a deterministic keyword
// matcher takes over when the call fails or its confidence is low.
package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conciergehq/concierge/config"
	"github.com/conciergehq/concierge/crews"
	"github.com/conciergehq/concierge/internal/metrics"
	"github.com/conciergehq/concierge/llm"
	"github.com/conciergehq/concierge/types"
)

// DefaultCrew handles requests nothing else claims.
const DefaultCrew = "general_research"

// Catalog supplies the crew definitions the classifier chooses from.
type Catalog interface {
	Definitions() []*crews.Definition
	Has(key string) bool
}

// Cache stores classification results keyed by normalized request text.
// A nil-safe no-op implementation is acceptable.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// Classifier decides which crew handles a request.
type Classifier struct {
	models  *llm.Registry
	catalog Catalog
	cache   Cache
	cfg     config.ClassifyConfig
	model   string
	metrics *metrics.Collector
	logger  *zap.Logger
}

// New creates a classifier. cache and collector may be nil.
func New(models *llm.Registry, catalog Catalog, cache Cache, cfg config.ClassifyConfig, defaultModel string, collector *metrics.Collector, logger *zap.Logger) *Classifier {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Classifier{
		models:  models,
		catalog: catalog,
		cache:   cache,
		cfg:     cfg,
		model:   model,
		metrics: collector,
		logger:  logger.With(zap.String("component", "classifier")),
	}
}

// Classify maps the request text to a crew key. It never returns an
// error for content reasons: when the LLM path fails the keyword
// fallback decides, and the default crew backstops everything.
func (c *Classifier) Classify(ctx context.Context, req *types.Request) *types.Classification {
	key := cacheKey(req.Text)
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, key); ok {
			var cls types.Classification
			if err := json.Unmarshal([]byte(cached), &cls); err == nil && c.catalog.Has(cls.CrewKey) {
				c.logger.Debug("classification cache hit", zap.String("crew", cls.CrewKey))
				if c.metrics != nil {
					c.metrics.RecordCacheHit("classify")
				}
				cls.Cached = true
				return &cls
			}
		}
		if c.metrics != nil {
			c.metrics.RecordCacheMiss("classify")
		}
	}

	cls := c.classifyLLM(ctx, req)
	if cls == nil || cls.Confidence < c.cfg.MinConfidence || !c.catalog.Has(cls.CrewKey) {
		cls = c.Fallback(req.Text)
	}

	if c.cache != nil {
		if data, err := json.Marshal(cls); err == nil {
			c.cache.Set(ctx, key, string(data), c.cfg.CacheTTL)
		}
	}
	return cls
}

// classifyLLM runs the single classification call. Returns nil on any
// failure so the caller falls back.
func (c *Classifier) classifyLLM(ctx context.Context, req *types.Request) *types.Classification {
	provider, err := c.models.ForModel(c.model)
	if err != nil {
		c.logger.Warn("no provider for classification model", zap.String("model", c.model), zap.Error(err))
		return nil
	}

	text := truncateMiddle(req.Text, c.cfg.MaxPromptTokens, c.model)
	resp, err := provider.Completion(ctx, &llm.ChatRequest{
		TraceID: req.ID,
		Model:   c.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: c.systemPrompt()},
			{Role: llm.RoleUser, Content: text},
		},
		MaxTokens:   128,
		Temperature: 0,
	})
	if err != nil {
		c.logger.Warn("classification call failed, using keyword fallback",
			zap.String("request_id", req.ID), zap.Error(err))
		return nil
	}

	var parsed struct {
		Crew       string  `json:"crew"`
		Confidence float64 `json:"confidence"`
	}
	content := resp.First().Content
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		c.logger.Warn("classification answer had no JSON", zap.String("request_id", req.ID))
		return nil
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		c.logger.Warn("classification answer unparseable", zap.String("request_id", req.ID), zap.Error(err))
		return nil
	}

	c.logger.Info("request classified",
		zap.String("request_id", req.ID),
		zap.String("crew", parsed.Crew),
		zap.Float64("confidence", parsed.Confidence),
	)
	return &types.Classification{CrewKey: parsed.Crew, Confidence: parsed.Confidence}
}

func (c *Classifier) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You route user requests to the single best-suited crew.\n")
	b.WriteString("Crews:\n")
	for _, def := range c.catalog.Definitions() {
		fmt.Fprintf(&b, "- %s: %s\n", def.Key, def.Description)
	}
	b.WriteString("\nAnswer with only a JSON object: ")
	b.WriteString(`{"crew": "<key>", "confidence": <0.0-1.0>}`)
	return b.String()
}

func cacheKey(text string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(norm))
	return "classify:" + hex.EncodeToString(sum[:])
}
