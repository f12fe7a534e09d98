package flow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conciergehq/concierge/classify"
	"github.com/conciergehq/concierge/config"
	"github.com/conciergehq/concierge/crews"
	"github.com/conciergehq/concierge/internal/metrics"
	"github.com/conciergehq/concierge/llm"
	"github.com/conciergehq/concierge/render"
	"github.com/conciergehq/concierge/types"
)

// scriptedProvider replays canned responses in order.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []llm.Message
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.responses) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "script exhausted")
	}
	msg := p.responses[0]
	p.responses = p.responses[1:]
	return &llm.ChatResponse{
		Model:   req.Model,
		Choices: []llm.ChatChoice{{Message: msg}},
		Usage:   llm.ChatUsage{PromptTokens: 10, CompletionTokens: 5},
	}, nil
}

func (p *scriptedProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

type stubClassifier struct {
	cls *types.Classification
}

func (s *stubClassifier) Classify(context.Context, *types.Request) *types.Classification {
	return s.cls
}

type memStore struct {
	mu       sync.Mutex
	requests map[string]*types.Request
	statuses []types.RequestStatus
	errMsgs  []string
	reports  []*types.Report
	emailed  []string
}

func newMemStore() *memStore {
	return &memStore{requests: make(map[string]*types.Request)}
}

func (s *memStore) SaveRequest(_ context.Context, req *types.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *memStore) UpdateRequest(_ context.Context, _ string, status types.RequestStatus, _, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	s.errMsgs = append(s.errMsgs, errMsg)
	return nil
}

func (s *memStore) SaveReport(_ context.Context, report *types.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func (s *memStore) MarkEmailed(_ context.Context, reportID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emailed = append(s.emailed, reportID)
	return nil
}

func (s *memStore) snapshot() ([]types.RequestStatus, []*types.Report, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.RequestStatus(nil), s.statuses...),
		append([]*types.Report(nil), s.reports...),
		append([]string(nil), s.emailed...)
}

type memCache struct {
	mu     sync.Mutex
	byText map[string]*types.Report
	sets   int
}

func (c *memCache) GetReport(_ context.Context, text string) (*types.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	report, ok := c.byText[text]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return report, nil
}

func (c *memCache) SetReport(_ context.Context, text string, report *types.Report, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byText == nil {
		c.byText = make(map[string]*types.Report)
	}
	c.byText[text] = report
	c.sets++
	return nil
}

type memArchive struct {
	mu      sync.Mutex
	outputs []*types.CrewOutput
}

func (a *memArchive) Save(_ context.Context, out *types.CrewOutput) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outputs = append(a.outputs, out)
	return nil
}

type stubSender struct {
	enabled bool
	fail    bool
	mu      sync.Mutex
	sent    []string
}

func (s *stubSender) Enabled() bool { return s.enabled }

func (s *stubSender) Send(_ context.Context, to, _, _ string) error {
	if s.fail {
		return types.NewError(types.ErrDeliveryFailed, "provider down")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to)
	return nil
}

func oneTaskDef(key string) *crews.Definition {
	return &crews.Definition{
		Key:      key,
		Name:     "Test Crew",
		Renderer: "generic",
		Agents: []crews.AgentDef{
			{Name: "writer", Role: "Writer", Goal: "Write."},
		},
		Tasks: []crews.TaskDef{
			{ID: "compose", Description: `Answer "{{request}}".`, Expected: "JSON", Agent: "writer"},
		},
	}
}

func crewRegistry(t *testing.T, provider llm.Provider, keys ...string) *crews.Registry {
	t.Helper()
	models := llm.NewRegistry(provider.Name())
	models.Register(provider)

	defs := make(map[string]*crews.Definition, len(keys))
	for _, key := range keys {
		defs[key] = oneTaskDef(key)
	}
	reg, err := crews.NewRegistry(defs, crews.Deps{
		Models: models,
		Config: config.CrewsConfig{
			MaxIterations: 2,
			TaskTimeout:   time.Minute,
		},
		DefaultModel: "test-model",
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	return reg
}

type fixture struct {
	flow    *ReceptionFlow
	store   *memStore
	cache   *memCache
	archive *memArchive
	sender  *stubSender
}

func newFixture(t *testing.T, provider llm.Provider, cls *types.Classification, keys ...string) *fixture {
	t.Helper()
	svc, err := render.NewService(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	f := &fixture{
		store:   newMemStore(),
		cache:   &memCache{},
		archive: &memArchive{},
		sender:  &stubSender{enabled: true},
	}
	f.flow = New(Deps{
		Classifier: &stubClassifier{cls: cls},
		Crews:      crewRegistry(t, provider, keys...),
		Renderer:   svc,
		Store:      f.store,
		Cache:      f.cache,
		Archive:    f.archive,
		Mailer:     f.sender,
		Metrics:    metrics.NewCollector("test", prometheus.NewRegistry(), zap.NewNop()),
		Logger:     zap.NewNop(),
	})
	return f
}

func docResponse(title string) llm.Message {
	doc, _ := json.Marshal(map[string]any{
		"title":    title,
		"summary":  "short",
		"sections": []any{},
	})
	return llm.Message{Role: llm.RoleAssistant, Content: string(doc)}
}

func TestHandleHappyPath(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Message{docResponse("Answer")}}
	f := newFixture(t, provider,
		&types.Classification{CrewKey: "news_digest", Confidence: 0.9},
		"news_digest")

	req := types.NewRequest("what happened today")
	sub, cancel := f.flow.Broker().Subscribe(req.ID)
	defer cancel()

	report, err := f.flow.Handle(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "news_digest", report.CrewKey)
	assert.Equal(t, "Answer", report.Title)
	assert.NotEmpty(t, report.HTML)
	assert.NotEmpty(t, report.OutputPath)

	statuses, reports, _ := f.store.snapshot()
	assert.Equal(t, []types.RequestStatus{
		types.RequestStatusClassified,
		types.RequestStatusRunning,
		types.RequestStatusRendering,
		types.RequestStatusDone,
	}, statuses)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, f.cache.sets)
	assert.Len(t, f.archive.outputs, 1)

	var stages []Stage
	for ev := range sub.Chan() {
		stages = append(stages, ev.Stage)
	}
	assert.Equal(t, []Stage{
		StageReceived, StageClassified, StageRunning, StageRendering, StageDone,
	}, stages)
}

func TestHandleRepeatQuestionServedFromCache(t *testing.T) {
	// one scripted response: only the first request may reach the crew
	provider := &scriptedProvider{responses: []llm.Message{docResponse("Answer")}}
	f := newFixture(t, provider,
		&types.Classification{CrewKey: "news_digest", Confidence: 0.9},
		"news_digest")

	first, err := f.flow.Handle(context.Background(), types.NewRequest("what happened today"))
	require.NoError(t, err)

	repeat := types.NewRequest("what happened today")
	sub, cancel := f.flow.Broker().Subscribe(repeat.ID)
	defer cancel()

	second, err := f.flow.Handle(context.Background(), repeat)
	require.NoError(t, err)

	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, first.OutputPath, second.OutputPath)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, repeat.ID, second.RequestID)

	// the repeat skipped classify/kickoff/render entirely
	statuses, reports, _ := f.store.snapshot()
	assert.Equal(t, types.RequestStatusDone, statuses[len(statuses)-1])
	assert.Len(t, reports, 2)
	assert.Equal(t, 1, f.cache.sets)
	assert.Len(t, f.archive.outputs, 1)

	var stages []Stage
	for ev := range sub.Chan() {
		stages = append(stages, ev.Stage)
	}
	assert.Equal(t, []Stage{StageReceived, StageDone}, stages)
}

func TestHandleEmailsReport(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Message{docResponse("Answer")}}
	f := newFixture(t, provider,
		&types.Classification{CrewKey: "news_digest", Confidence: 0.9},
		"news_digest")

	req := types.NewRequest("what happened today")
	req.Email = "user@example.com"

	report, err := f.flow.Handle(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, report.Emailed)
	assert.Equal(t, []string{"user@example.com"}, f.sender.sent)
	_, _, emailed := f.store.snapshot()
	assert.Equal(t, []string{report.ID}, emailed)
}

func TestHandleDeliveryFailureDoesNotFailFlow(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Message{docResponse("Answer")}}
	f := newFixture(t, provider,
		&types.Classification{CrewKey: "news_digest", Confidence: 0.9},
		"news_digest")
	f.sender.fail = true

	req := types.NewRequest("what happened today")
	req.Email = "user@example.com"

	report, err := f.flow.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, report.Emailed)

	statuses, _, emailed := f.store.snapshot()
	assert.Equal(t, types.RequestStatusDone, statuses[len(statuses)-1])
	assert.Empty(t, emailed)
}

func TestHandleUnknownCrewFallsBackToDefault(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Message{docResponse("Answer")}}
	f := newFixture(t, provider,
		&types.Classification{CrewKey: "no_such_crew", Confidence: 0.9},
		classify.DefaultCrew)

	report, err := f.flow.Handle(context.Background(), types.NewRequest("anything"))
	require.NoError(t, err)
	assert.Equal(t, classify.DefaultCrew, report.CrewKey)
}

func TestHandleCrewFailure(t *testing.T) {
	provider := &scriptedProvider{} // empty script fails the kickoff
	f := newFixture(t, provider,
		&types.Classification{CrewKey: "news_digest", Confidence: 0.9},
		"news_digest")

	req := types.NewRequest("what happened today")
	sub, cancel := f.flow.Broker().Subscribe(req.ID)
	defer cancel()

	_, err := f.flow.Handle(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, types.ErrCrewFailed, types.CodeOf(err))

	statuses, _, _ := f.store.snapshot()
	assert.Equal(t, types.RequestStatusFailed, statuses[len(statuses)-1])

	var last Event
	for ev := range sub.Chan() {
		last = ev
	}
	assert.Equal(t, StageFailed, last.Stage)
	assert.NotEmpty(t, last.Error)
}

func TestDispatcherRunsInBackground(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Message{docResponse("Answer")}}
	f := newFixture(t, provider,
		&types.Classification{CrewKey: "news_digest", Confidence: 0.9},
		"news_digest")

	d := NewDispatcher(f.flow, 2, time.Minute, zap.NewNop())
	require.NoError(t, d.Submit(context.Background(), types.NewRequest("hello")))
	d.Wait()

	statuses, reports, _ := f.store.snapshot()
	require.NotEmpty(t, statuses)
	assert.Equal(t, types.RequestStatusDone, statuses[len(statuses)-1])
	assert.Len(t, reports, 1)
}

func TestErrMsgPrefersTaxonomy(t *testing.T) {
	wrapped := types.NewError(types.ErrCrewFailed, "boom")
	assert.Contains(t, errMsg(wrapped), "CREW_FAILED")
	assert.Equal(t, "plain", errMsg(errors.New("plain")))
}
