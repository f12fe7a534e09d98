// Package flow orchestrates the reception pipeline: persist the
// request, classify it, kick off the matching crew, render the output
// to HTML, and deliver the report.
package flow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/conciergehq/concierge/classify"
	"github.com/conciergehq/concierge/crews"
	"github.com/conciergehq/concierge/internal/metrics"
	"github.com/conciergehq/concierge/internal/telemetry"
	"github.com/conciergehq/concierge/types"
)

// reportCacheTTL bounds how long rendered reports stay in Redis.
const reportCacheTTL = 24 * time.Hour

// Classifier maps a request to a crew. It never fails; low-confidence
// or broken LLM answers fall back to keyword matching.
type Classifier interface {
	Classify(ctx context.Context, req *types.Request) *types.Classification
}

// CrewSource resolves crew keys to runnable crews.
type CrewSource interface {
	Get(key string) (*crews.Crew, error)
	Has(key string) bool
}

// Renderer turns a crew output into a written HTML report.
type Renderer interface {
	Render(rendererKey string, out *types.CrewOutput) (*types.Report, error)
}

// Store persists requests and reports.
type Store interface {
	SaveRequest(ctx context.Context, req *types.Request) error
	UpdateRequest(ctx context.Context, id string, status types.RequestStatus, crewKey, errMsg string) error
	SaveReport(ctx context.Context, report *types.Report) error
	MarkEmailed(ctx context.Context, reportID string) error
}

// ReportCache keeps rendered reports keyed by the request text, so a
// re-ask of the same question is served without another crew run.
// Optional.
type ReportCache interface {
	GetReport(ctx context.Context, text string) (*types.Report, error)
	SetReport(ctx context.Context, text string, report *types.Report, ttl time.Duration) error
}

// Archiver persists raw crew outputs. Optional.
type Archiver interface {
	Save(ctx context.Context, out *types.CrewOutput) error
}

// Sender delivers reports by email. Optional.
type Sender interface {
	Enabled() bool
	Send(ctx context.Context, to, subject, html string) error
}

// Deps wires the reception flow. Classifier, Crews, Renderer, Store,
// Metrics, and Logger are required; the rest may be nil.
type Deps struct {
	Classifier Classifier
	Crews      CrewSource
	Renderer   Renderer
	Store      Store
	Cache      ReportCache
	Archive    Archiver
	Mailer     Sender
	Metrics    *metrics.Collector
	Broker     *Broker
	Logger     *zap.Logger
}

// ReceptionFlow runs requests end to end.
type ReceptionFlow struct {
	deps   Deps
	logger *zap.Logger
}

// New creates the reception flow.
func New(deps Deps) *ReceptionFlow {
	if deps.Broker == nil {
		deps.Broker = NewBroker()
	}
	return &ReceptionFlow{
		deps:   deps,
		logger: deps.Logger.With(zap.String("component", "flow")),
	}
}

// Broker exposes the progress event broker for subscribers.
func (f *ReceptionFlow) Broker() *Broker {
	return f.deps.Broker
}

// Handle runs one request through the full pipeline and returns the
// rendered report. The request is persisted with status updates at
// every stage; on failure the stored request carries the error.
func (f *ReceptionFlow) Handle(ctx context.Context, req *types.Request) (*types.Report, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "flow.handle",
		trace.WithAttributes(attribute.String("request.id", req.ID)))
	defer span.End()

	log := f.logger.With(zap.String("request_id", req.ID))

	if err := f.deps.Store.SaveRequest(ctx, req); err != nil {
		return nil, err
	}
	f.publish(Event{RequestID: req.ID, Stage: StageReceived})
	log.Info("request received", zap.Int("text_len", len(req.Text)))

	// a re-ask of a cached question skips the whole pipeline
	if report, ok := f.fromCache(ctx, req, log); ok {
		return report, nil
	}

	// classify
	cls := f.classify(ctx, req)
	crewKey := cls.CrewKey
	span.SetAttributes(attribute.String("crew", crewKey))

	crew, err := f.deps.Crews.Get(crewKey)
	if err != nil {
		// unknown key from a stale cache entry or a removed crew file
		log.Warn("classified crew not registered, using default",
			zap.String("crew", crewKey), zap.Error(err))
		crewKey = classify.DefaultCrew
		if crew, err = f.deps.Crews.Get(crewKey); err != nil {
			return nil, f.fail(ctx, span, req, crewKey, err)
		}
	}

	f.update(ctx, req, types.RequestStatusClassified, crewKey, "")
	f.publish(Event{RequestID: req.ID, Stage: StageClassified, Crew: crewKey})
	log.Info("request classified",
		zap.String("crew", crewKey),
		zap.Float64("confidence", cls.Confidence),
		zap.Bool("fallback", cls.Fallback),
	)

	// kickoff
	f.update(ctx, req, types.RequestStatusRunning, crewKey, "")
	f.publish(Event{RequestID: req.ID, Stage: StageRunning, Crew: crewKey})

	out, err := f.kickoff(ctx, crew, req)
	if err != nil {
		f.deps.Metrics.RecordCrewRun(crewKey, "error", 0, 0, 0)
		return nil, f.fail(ctx, span, req, crewKey, err)
	}
	f.deps.Metrics.RecordCrewRun(crewKey, "ok",
		out.FinishedAt.Sub(out.StartedAt),
		out.Usage.PromptTokens, out.Usage.CompletionTokens)
	log.Info("crew finished",
		zap.String("crew", crewKey),
		zap.Duration("duration", out.FinishedAt.Sub(out.StartedAt)),
		zap.Int("total_tokens", out.Usage.TotalTokens),
	)

	// render
	f.update(ctx, req, types.RequestStatusRendering, crewKey, "")
	f.publish(Event{RequestID: req.ID, Stage: StageRendering, Crew: crewKey})

	report, err := f.render(ctx, crew.Renderer(), out)
	if err != nil {
		return nil, f.fail(ctx, span, req, crewKey, err)
	}
	f.deps.Metrics.RecordReportRendered(crew.Renderer())

	if err := f.deps.Store.SaveReport(ctx, report); err != nil {
		return nil, f.fail(ctx, span, req, crewKey, err)
	}
	if f.deps.Cache != nil {
		if err := f.deps.Cache.SetReport(ctx, req.Text, report, reportCacheTTL); err != nil {
			log.Warn("report cache write failed", zap.Error(err))
		}
	}
	if f.deps.Archive != nil {
		if err := f.deps.Archive.Save(ctx, out); err != nil {
			log.Warn("crew output archive failed", zap.Error(err))
		}
	}

	f.deliver(ctx, req, report, log)

	f.update(ctx, req, types.RequestStatusDone, crewKey, "")
	f.publish(Event{RequestID: req.ID, Stage: StageDone, Crew: crewKey, Message: report.OutputPath})
	log.Info("request done", zap.String("output_path", report.OutputPath))
	return report, nil
}

// fromCache serves a request from a previously rendered report for the
// same question. The cached report is cloned under a fresh ID so each
// request keeps its own persisted report row.
func (f *ReceptionFlow) fromCache(ctx context.Context, req *types.Request, log *zap.Logger) (*types.Report, bool) {
	if f.deps.Cache == nil {
		return nil, false
	}
	cached, err := f.deps.Cache.GetReport(ctx, req.Text)
	if err != nil || cached == nil {
		f.deps.Metrics.RecordCacheMiss("report")
		return nil, false
	}
	f.deps.Metrics.RecordCacheHit("report")

	report := *cached
	report.ID = uuid.NewString()
	report.RequestID = req.ID
	report.Emailed = false

	if err := f.deps.Store.SaveReport(ctx, &report); err != nil {
		log.Warn("cached report save failed, running crew instead", zap.Error(err))
		return nil, false
	}
	f.deliver(ctx, req, &report, log)
	f.update(ctx, req, types.RequestStatusDone, report.CrewKey, "")
	f.publish(Event{RequestID: req.ID, Stage: StageDone, Crew: report.CrewKey, Message: report.OutputPath})
	log.Info("request served from report cache",
		zap.String("crew", report.CrewKey),
		zap.String("output_path", report.OutputPath),
	)
	return &report, true
}

func (f *ReceptionFlow) classify(ctx context.Context, req *types.Request) *types.Classification {
	ctx, span := telemetry.Tracer().Start(ctx, "flow.classify")
	defer span.End()

	cls := f.deps.Classifier.Classify(ctx, req)
	source := "llm"
	switch {
	case cls.Cached:
		source = "cache"
	case cls.Fallback:
		source = "fallback"
	}
	f.deps.Metrics.RecordClassification(cls.CrewKey, source)
	span.SetAttributes(
		attribute.String("crew", cls.CrewKey),
		attribute.Float64("confidence", cls.Confidence),
	)
	return cls
}

func (f *ReceptionFlow) kickoff(ctx context.Context, crew *crews.Crew, req *types.Request) (*types.CrewOutput, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "flow.kickoff",
		trace.WithAttributes(attribute.String("crew", crew.Key())))
	defer span.End()

	out, err := crew.Kickoff(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

func (f *ReceptionFlow) render(ctx context.Context, rendererKey string, out *types.CrewOutput) (*types.Report, error) {
	_, span := telemetry.Tracer().Start(ctx, "flow.render",
		trace.WithAttributes(attribute.String("renderer", rendererKey)))
	defer span.End()

	report, err := f.deps.Renderer.Render(rendererKey, out)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return report, nil
}

// deliver emails the report when the request asked for it. Delivery
// failures are logged and recorded but never fail the flow.
func (f *ReceptionFlow) deliver(ctx context.Context, req *types.Request, report *types.Report, log *zap.Logger) {
	if req.Email == "" || f.deps.Mailer == nil || !f.deps.Mailer.Enabled() {
		return
	}

	if err := f.deps.Mailer.Send(ctx, req.Email, report.Title, report.HTML); err != nil {
		f.deps.Metrics.RecordReportEmailed(false)
		log.Warn("report delivery failed", zap.String("to", req.Email), zap.Error(err))
		return
	}
	f.deps.Metrics.RecordReportEmailed(true)
	report.Emailed = true
	if err := f.deps.Store.MarkEmailed(ctx, report.ID); err != nil {
		log.Warn("mark emailed failed", zap.Error(err))
	}
}

func (f *ReceptionFlow) update(ctx context.Context, req *types.Request, status types.RequestStatus, crewKey, errMsg string) {
	req.Status = status
	if err := f.deps.Store.UpdateRequest(ctx, req.ID, status, crewKey, errMsg); err != nil {
		f.logger.Warn("request status update failed",
			zap.String("request_id", req.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func (f *ReceptionFlow) fail(ctx context.Context, span trace.Span, req *types.Request, crewKey string, err error) error {
	span.SetStatus(codes.Error, err.Error())
	f.update(ctx, req, types.RequestStatusFailed, crewKey, errMsg(err))
	f.publish(Event{RequestID: req.ID, Stage: StageFailed, Crew: crewKey, Error: errMsg(err)})
	f.logger.Error("request failed",
		zap.String("request_id", req.ID),
		zap.String("crew", crewKey),
		zap.Error(err),
	)
	return err
}

func (f *ReceptionFlow) publish(ev Event) {
	f.deps.Broker.Publish(ev)
}

// errMsg keeps stored error text short and free of wrapped chains
// deeper than the taxonomy message.
func errMsg(err error) string {
	var te *types.Error
	if errors.As(err, &te) {
		return te.Error()
	}
	return err.Error()
}
