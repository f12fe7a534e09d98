package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/conciergehq/concierge/crews"
	"github.com/conciergehq/concierge/flow"
	"github.com/conciergehq/concierge/internal/metrics"
	"github.com/conciergehq/concierge/types"
)

type stubSubmitter struct {
	submitted []*types.Request
	err       error
}

func (s *stubSubmitter) Submit(_ context.Context, req *types.Request) error {
	if s.err != nil {
		return s.err
	}
	s.submitted = append(s.submitted, req)
	return nil
}

type stubStore struct {
	requests map[string]*types.Request
	reports  map[string]*types.Report
	byReq    map[string]*types.Report
	listed   []*types.Report

	// flipTo switches a request's status after its first read,
	// simulating a request that finishes between two lookups
	flipTo map[string]types.RequestStatus
	reads  map[string]int
}

func newStubStore() *stubStore {
	return &stubStore{
		requests: make(map[string]*types.Request),
		reports:  make(map[string]*types.Report),
		byReq:    make(map[string]*types.Report),
		flipTo:   make(map[string]types.RequestStatus),
		reads:    make(map[string]int),
	}
}

func (s *stubStore) GetRequest(_ context.Context, id string) (*types.Request, error) {
	req, ok := s.requests[id]
	if !ok {
		return nil, types.Newf(types.ErrNotFound, "request %q not found", id)
	}
	s.reads[id]++
	if status, ok := s.flipTo[id]; ok && s.reads[id] > 1 {
		flipped := *req
		flipped.Status = status
		return &flipped, nil
	}
	return req, nil
}

func (s *stubStore) GetReport(_ context.Context, id string) (*types.Report, error) {
	if rep, ok := s.reports[id]; ok {
		return rep, nil
	}
	return nil, types.Newf(types.ErrNotFound, "report %q not found", id)
}

func (s *stubStore) GetReportByRequest(_ context.Context, requestID string) (*types.Report, error) {
	if rep, ok := s.byReq[requestID]; ok {
		return rep, nil
	}
	return nil, types.Newf(types.ErrNotFound, "no report for request %q", requestID)
}

func (s *stubStore) ListReports(context.Context, string, int, int) ([]*types.Report, error) {
	return s.listed, nil
}

type stubCatalog struct {
	defs []*crews.Definition
}

func (c *stubCatalog) Definitions() []*crews.Definition { return c.defs }

type testServer struct {
	server    *Server
	submitter *stubSubmitter
	store     *stubStore
	broker    *flow.Broker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		submitter: &stubSubmitter{},
		store:     newStubStore(),
		broker:    flow.NewBroker(),
	}
	ts.server = NewServer(Deps{
		Dispatcher: ts.submitter,
		Broker:     ts.broker,
		Store:      ts.store,
		Crews: &stubCatalog{defs: []*crews.Definition{
			{Key: "news_digest", Name: "News Digest", Renderer: "news", Keywords: []string{"news"}},
		}},
		Providers: []string{"anthropic"},
		Version:   "test",
		Logger:    zaptest.NewLogger(t),
	})
	return ts
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestSubmitAccepted(t *testing.T) {
	ts := newTestServer(t)
	rec, env := doJSON(t, ts.server.Routes(), http.MethodPost, "/v1/requests",
		`{"text":"latest AI news","email":"user@example.com"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, env.Success)
	require.Len(t, ts.submitter.submitted, 1)
	assert.Equal(t, "latest AI news", ts.submitter.submitted[0].Text)
	assert.Equal(t, "user@example.com", ts.submitter.submitted[0].Email)

	data := env.Data.(map[string]any)
	assert.NotEmpty(t, data["request_id"])
	assert.Equal(t, "pending", data["status"])
}

func TestSubmitValidation(t *testing.T) {
	ts := newTestServer(t)
	routes := ts.server.Routes()

	rec, env := doJSON(t, routes, http.MethodPost, "/v1/requests", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)

	rec, _ = doJSON(t, routes, http.MethodPost, "/v1/requests", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, routes, http.MethodPost, "/v1/requests",
		`{"text":"`+strings.Repeat("x", maxRequestTextLen+1)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, ts.submitter.submitted)
}

func TestSubmitAtCapacity(t *testing.T) {
	ts := newTestServer(t)
	ts.submitter.err = types.NewError(types.ErrCrewFailed, "service at capacity").WithRetryable(true)

	rec, env := doJSON(t, ts.server.Routes(), http.MethodPost, "/v1/requests", `{"text":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)
}

func TestGetRequest(t *testing.T) {
	ts := newTestServer(t)
	req := types.NewRequest("hello")
	ts.store.requests[req.ID] = req

	rec, env := doJSON(t, ts.server.Routes(), http.MethodGet, "/v1/requests/"+req.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]any)
	assert.Equal(t, req.ID, data["id"])

	rec, env = doJSON(t, ts.server.Routes(), http.MethodGet, "/v1/requests/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestGetReportAndList(t *testing.T) {
	ts := newTestServer(t)
	rep := &types.Report{ID: "rep-1", RequestID: "req-1", CrewKey: "news_digest", Title: "T"}
	ts.store.reports[rep.ID] = rep
	ts.store.byReq[rep.RequestID] = rep
	ts.store.listed = []*types.Report{rep}

	routes := ts.server.Routes()

	rec, _ := doJSON(t, routes, http.MethodGet, "/v1/reports/rep-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, routes, http.MethodGet, "/v1/requests/req-1/report", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := doJSON(t, routes, http.MethodGet, "/v1/reports?crew=news_digest", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(1), data["count"])
}

type stubArchive struct {
	outputs []map[string]any
	crewKey string
	limit   int
}

func (a *stubArchive) Enabled() bool { return true }

func (a *stubArchive) ListByCrew(_ context.Context, crewKey string, limit int) ([]map[string]any, error) {
	a.crewKey = crewKey
	a.limit = limit
	return a.outputs, nil
}

func TestCrewArchive(t *testing.T) {
	ts := newTestServer(t)
	archive := &stubArchive{outputs: []map[string]any{
		{"crew_key": "news_digest", "title": "T"},
	}}
	ts.server.deps.Archive = archive

	rec, env := doJSON(t, ts.server.Routes(), http.MethodGet, "/v1/crews/news_digest/archive?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "news_digest", archive.crewKey)
	assert.Equal(t, 5, archive.limit)
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(1), data["count"])
}

func TestCrewArchiveNotEnabled(t *testing.T) {
	ts := newTestServer(t)

	rec, env := doJSON(t, ts.server.Routes(), http.MethodGet, "/v1/crews/news_digest/archive", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestListCrews(t *testing.T) {
	ts := newTestServer(t)
	rec, env := doJSON(t, ts.server.Routes(), http.MethodGet, "/v1/crews", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	data := env.Data.(map[string]any)
	assert.Equal(t, float64(1), data["count"])
	crew := data["crews"].([]any)[0].(map[string]any)
	assert.Equal(t, "news_digest", crew["key"])
	assert.Equal(t, "news", crew["renderer"])
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	ts.server.deps.DBPing = func(context.Context) error { return nil }

	rec, env := doJSON(t, ts.server.Routes(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]any)
	assert.Equal(t, "healthy", data["status"])

	ts.server.deps.DBPing = func(context.Context) error {
		return types.NewError(types.ErrStoreUnavailable, "down")
	}
	rec, env = doJSON(t, ts.server.Routes(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	data = env.Data.(map[string]any)
	assert.Equal(t, "degraded", data["status"])
}

func TestEventsStream(t *testing.T) {
	ts := newTestServer(t)
	req := types.NewRequest("hello")
	req.Status = types.RequestStatusRunning
	ts.store.requests[req.ID] = req

	srv := httptest.NewServer(ts.server.Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/requests/" + req.ID + "/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// give the handler a moment to subscribe before publishing
	time.Sleep(50 * time.Millisecond)
	ts.broker.Publish(flow.Event{RequestID: req.ID, Stage: flow.StageRunning})
	ts.broker.Publish(flow.Event{RequestID: req.ID, Stage: flow.StageDone})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev flow.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, flow.StageRunning, ev.Stage)

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, flow.StageDone, ev.Stage)
}

func TestEventsFinishedRequestReplaysTerminal(t *testing.T) {
	ts := newTestServer(t)
	req := types.NewRequest("hello")
	req.Status = types.RequestStatusDone
	ts.store.requests[req.ID] = req

	srv := httptest.NewServer(ts.server.Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/requests/" + req.ID + "/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev flow.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, flow.StageDone, ev.Stage)
}

func TestEventsRequestFinishingDuringSetupStillGetsTerminal(t *testing.T) {
	ts := newTestServer(t)
	req := types.NewRequest("hello")
	req.Status = types.RequestStatusRunning
	ts.store.requests[req.ID] = req
	// the request finishes right after the handler's first status read,
	// before any subscription exists; nothing will ever be published
	ts.store.flipTo[req.ID] = types.RequestStatusDone

	srv := httptest.NewServer(ts.server.Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/requests/" + req.ID + "/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev flow.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, flow.StageDone, ev.Stage)
}

func TestMiddlewareChainAuthAndLimit(t *testing.T) {
	collector := metrics.NewCollector("api_test", prometheus.NewRegistry(), zap.NewNop())
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := Chain(inner,
		RequestID(),
		Recovery(zap.NewNop()),
		AccessLog(zap.NewNop(), collector),
		APIKeyAuth([]string{"secret"}, []string{"/healthz"}),
	)

	// missing key
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/crews", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// skip path
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// valid key, request id echoed
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/crews", nil)
	req.Header.Set("X-API-Key", "secret")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestJWTAuth(t *testing.T) {
	secret := "sekrit"
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Subject", SubjectFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
	handler := JWTAuth(secret, []string{"/healthz"}, zap.NewNop())(inner)

	// no token
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/crews", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// valid token
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/crews", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Header().Get("X-Subject"))

	// wrong secret
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).
		SignedString([]byte("other"))
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/crews", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimit(ctx, 1, 1)(inner)

	req := httptest.NewRequest(http.MethodGet, "/v1/crews", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// other clients are unaffected
	other := httptest.NewRequest(http.MethodGet, "/v1/crews", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/v1/requests", normalizePath("/v1/requests"))
	assert.Equal(t, "/v1/requests/:id",
		normalizePath("/v1/requests/550e8400-e29b-41d4-a716-446655440000"))
	assert.Equal(t, "/v1/reports/:id", normalizePath("/v1/reports/12345"))
	assert.Equal(t, "/v1/crews", normalizePath("/v1/crews"))
}
