package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/conciergehq/concierge/api"
	"github.com/conciergehq/concierge/classify"
	"github.com/conciergehq/concierge/config"
	"github.com/conciergehq/concierge/crews"
	"github.com/conciergehq/concierge/flow"
	"github.com/conciergehq/concierge/internal/archive"
	"github.com/conciergehq/concierge/internal/cache"
	"github.com/conciergehq/concierge/internal/database"
	"github.com/conciergehq/concierge/internal/metrics"
	"github.com/conciergehq/concierge/internal/server"
	"github.com/conciergehq/concierge/internal/telemetry"
	"github.com/conciergehq/concierge/llm"
	"github.com/conciergehq/concierge/llm/providers/anthropic"
	"github.com/conciergehq/concierge/llm/providers/deepseek"
	"github.com/conciergehq/concierge/llm/providers/gemini"
	"github.com/conciergehq/concierge/llm/retry"
	"github.com/conciergehq/concierge/mailer"
	"github.com/conciergehq/concierge/render"
	"github.com/conciergehq/concierge/tools"
	"github.com/conciergehq/concierge/types"
)

// watchInterval is how often the crew directory is polled for changes.
const watchInterval = 30 * time.Second

// Server wires every component and owns the two HTTP listeners.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	providers  *llm.Registry
	crewLoader *crews.Loader
	crewReg    *crews.Registry
	reception  *flow.ReceptionFlow
	dispatcher *flow.Dispatcher

	cacheManager *cache.Manager
	store        *database.Store
	outputStore  *archive.Archive
	otel         *telemetry.Providers

	bgCancel context.CancelFunc
}

// NewServer builds the full component graph from cfg.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	s.otel, _ = telemetry.Init(cfg.Telemetry, logger)
	collector := metrics.NewCollector("concierge", nil, logger)

	s.providers = buildProviders(cfg.LLM, logger)

	// tools and crews
	toolReg := tools.NewRegistry(logger)
	tools.RegisterDefaults(toolReg, cfg.Tools, logger)
	executor := tools.NewExecutor(toolReg, tools.ExecutorConfig{
		DefaultTimeout: cfg.Tools.Timeout,
		RatePerSecond:  cfg.Tools.RatePerSecond,
		RateBurst:      cfg.Tools.RateBurst,
	}, collector, logger)

	s.crewLoader = crews.NewLoader(cfg.Crews.Dir, logger)
	defs, err := s.crewLoader.Load()
	if err != nil {
		return nil, fmt.Errorf("load crew definitions: %w", err)
	}
	s.crewReg, err = crews.NewRegistry(defs, crews.Deps{
		Models:       s.providers,
		Tools:        toolReg,
		Executor:     executor,
		Config:       cfg.Crews,
		DefaultModel: cfg.LLM.DefaultModel,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build crew registry: %w", err)
	}

	// cache is optional; everything downstream tolerates a nil manager
	if cfg.Redis.Enabled {
		s.cacheManager, err = cache.NewManager(cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis unavailable, caching disabled", zap.Error(err))
			s.cacheManager = nil
		}
	}

	classifier := classify.New(
		s.providers,
		s.crewReg,
		cache.NewClassifyCache(s.cacheManager),
		cfg.Classify,
		cfg.LLM.DefaultModel,
		collector,
		logger,
	)

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.store = database.NewStore(db, logger)

	renderSvc, err := render.NewService(cfg.Output.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("init render service: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	s.outputStore, err = archive.New(ctx, cfg.Archive, logger)
	cancel()
	if err != nil {
		logger.Warn("output archive unavailable", zap.Error(err))
		s.outputStore = nil
	}

	flowDeps := flow.Deps{
		Classifier: classifier,
		Crews:      s.crewReg,
		Renderer:   renderSvc,
		Store:      s.store,
		Metrics:    collector,
		Logger:     logger,
	}
	if s.cacheManager != nil {
		flowDeps.Cache = s.cacheManager
	}
	if s.outputStore.Enabled() {
		flowDeps.Archive = s.outputStore
	}
	if cfg.Mail.Enabled {
		flowDeps.Mailer = mailer.New(cfg.Mail, logger)
	}
	s.reception = flow.New(flowDeps)
	s.dispatcher = flow.NewDispatcher(s.reception, 8, cfg.Server.WriteTimeout, logger)

	// API handler with middleware chain
	apiDeps := api.Deps{
		Dispatcher: s.dispatcher,
		Broker:     s.reception.Broker(),
		Store:      s.store,
		Crews:      s.crewReg,
		DBPing:     func(ctx context.Context) error { return database.Ping(ctx, db) },
		Providers:  s.providers.Names(),
		Version:    Version,
		Logger:     logger,
	}
	if s.cacheManager != nil {
		apiDeps.RedisPing = s.cacheManager.Ping
	}
	if s.outputStore.Enabled() {
		apiDeps.Archive = s.outputStore
	}
	apiServer := api.NewServer(apiDeps)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	s.bgCancel = bgCancel

	skipAuth := []string{"/healthz", "/version"}
	handler := api.Chain(apiServer.Routes(),
		api.Recovery(logger),
		api.RequestID(),
		api.SecurityHeaders(),
		api.AccessLog(logger, collector),
		api.RateLimit(bgCtx, cfg.Server.RateLimit, cfg.Server.RateBurst),
		api.APIKeyAuth(cfg.Server.APIKeys, skipAuth),
		api.JWTAuth(cfg.Server.JWTSecret, skipAuth, logger),
	)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	s.metricsManager = server.NewManager(metricsMux, server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	// hot reload of crew definitions
	if cfg.Crews.Dir != "" {
		watcher := crews.NewWatcher(s.crewLoader, s.crewReg, cfg.Crews.Dir, watchInterval, logger)
		go watcher.Start(bgCtx)
	}

	return s, nil
}

// Start brings up both listeners.
func (s *Server) Start() error {
	if err := s.httpManager.Start(); err != nil {
		return err
	}
	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("concierge serving",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Int("crews", len(s.crewReg.Keys())),
	)
	return nil
}

// WaitForShutdown blocks until a signal, then drains and closes
// everything.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()
	s.Shutdown()
}

// Shutdown closes components in dependency order.
func (s *Server) Shutdown() {
	s.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.bgCancel != nil {
		s.bgCancel()
	}
	if err := s.metricsManager.Shutdown(ctx); err != nil {
		s.logger.Error("metrics server shutdown failed", zap.Error(err))
	}
	s.dispatcher.Wait()
	if s.cacheManager != nil {
		if err := s.cacheManager.Close(); err != nil {
			s.logger.Error("cache close failed", zap.Error(err))
		}
	}
	if s.outputStore != nil {
		if err := s.outputStore.Close(ctx); err != nil {
			s.logger.Error("archive close failed", zap.Error(err))
		}
	}
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
	s.logger.Info("shutdown complete")
}

// buildProviders registers every LLM provider that has a key. Each one
// is wrapped with the configured retry policy.
func buildProviders(cfg config.LLMConfig, logger *zap.Logger) *llm.Registry {
	registry := llm.NewRegistry(cfg.DefaultProvider)

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries

	anthropicKey := cfg.AnthropicKey
	if anthropicKey == "" {
		anthropicKey = cfg.APIKey
	}
	if anthropicKey != "" {
		registry.Register(llm.WithRetry(anthropic.New(anthropic.Config{
			APIKey:  anthropicKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.DefaultModel,
			Timeout: cfg.Timeout,
		}, logger), policy, logger))
	}
	if cfg.DeepSeekKey != "" {
		registry.Register(llm.WithRetry(deepseek.New(deepseek.Config{
			APIKey:  cfg.DeepSeekKey,
			Timeout: cfg.Timeout,
		}, logger), policy, logger))
	}
	if cfg.GeminiKey != "" {
		registry.Register(llm.WithRetry(gemini.New(gemini.Config{
			APIKey:  cfg.GeminiKey,
			Timeout: cfg.Timeout,
		}, logger), policy, logger))
	}

	names := registry.Names()
	if len(names) == 0 {
		logger.Warn("no LLM provider configured; crews will fail until a key is set")
	} else {
		logger.Info("LLM providers registered", zap.Strings("providers", names))
	}
	return registry
}

// errExit logs the error and terminates the one-shot commands.
func errExit(logger *zap.Logger, msg string, err error) {
	logger.Fatal(msg, zap.Error(err), zap.String("code", string(types.CodeOf(err))))
}
