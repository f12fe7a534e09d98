package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/conciergehq/concierge/classify"
	"github.com/conciergehq/concierge/crews"
	"github.com/conciergehq/concierge/flow"
	"github.com/conciergehq/concierge/internal/cache"
	"github.com/conciergehq/concierge/internal/database"
	"github.com/conciergehq/concierge/internal/metrics"
	"github.com/conciergehq/concierge/mailer"
	"github.com/conciergehq/concierge/render"
	"github.com/conciergehq/concierge/tools"
	"github.com/conciergehq/concierge/types"
)

// runAsk runs one request end to end without starting listeners. The
// report lands in the output directory like in serve mode.
func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	email := fs.String("email", "", "email the report to this address")
	_ = fs.Parse(args)

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		fmt.Fprintln(os.Stderr, `usage: concierge ask [--config path] [--email addr] "your question"`)
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	cfg.Log.Format = "console"
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	providers := buildProviders(cfg.LLM, logger)
	collector := metrics.NewCollector("concierge", nil, logger)

	toolReg := tools.NewRegistry(logger)
	tools.RegisterDefaults(toolReg, cfg.Tools, logger)
	executor := tools.NewExecutor(toolReg, tools.ExecutorConfig{
		DefaultTimeout: cfg.Tools.Timeout,
		RatePerSecond:  cfg.Tools.RatePerSecond,
		RateBurst:      cfg.Tools.RateBurst,
	}, collector, logger)

	defs, err := crews.NewLoader(cfg.Crews.Dir, logger).Load()
	if err != nil {
		errExit(logger, "load crew definitions", err)
	}
	crewReg, err := crews.NewRegistry(defs, crews.Deps{
		Models:       providers,
		Tools:        toolReg,
		Executor:     executor,
		Config:       cfg.Crews,
		DefaultModel: cfg.LLM.DefaultModel,
		Logger:       logger,
	})
	if err != nil {
		errExit(logger, "build crew registry", err)
	}

	classifier := classify.New(providers, crewReg,
		cache.NewClassifyCache(nil), cfg.Classify, cfg.LLM.DefaultModel, collector, logger)

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		errExit(logger, "open database", err)
	}
	store := database.NewStore(db, logger)

	renderSvc, err := render.NewService(cfg.Output.Dir, logger)
	if err != nil {
		errExit(logger, "init render service", err)
	}

	flowDeps := flow.Deps{
		Classifier: classifier,
		Crews:      crewReg,
		Renderer:   renderSvc,
		Store:      store,
		Metrics:    collector,
		Logger:     logger,
	}
	if cfg.Mail.Enabled && *email != "" {
		flowDeps.Mailer = mailer.New(cfg.Mail, logger)
	}
	reception := flow.New(flowDeps)

	req := types.NewRequest(text)
	req.Email = *email

	report, err := reception.Handle(context.Background(), req)
	if err != nil {
		errExit(logger, "request failed", err)
	}

	fmt.Printf("\n%s\n  crew:   %s\n  report: %s\n", report.Title, report.CrewKey, report.OutputPath)
	if report.Emailed {
		fmt.Printf("  emailed to %s\n", *email)
	}
}
