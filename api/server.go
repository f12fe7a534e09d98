// Package api serves the concierge HTTP interface: request intake,
// report reads, crew listing, health, and a websocket progress stream.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/conciergehq/concierge/crews"
	"github.com/conciergehq/concierge/flow"
	"github.com/conciergehq/concierge/types"
)

// Store is the read/write surface the handlers need.
type Store interface {
	GetRequest(ctx context.Context, id string) (*types.Request, error)
	GetReport(ctx context.Context, id string) (*types.Report, error)
	GetReportByRequest(ctx context.Context, requestID string) (*types.Report, error)
	ListReports(ctx context.Context, crewKey string, limit, offset int) ([]*types.Report, error)
}

// Catalog lists the registered crews.
type Catalog interface {
	Definitions() []*crews.Definition
}

// ArchiveReader exposes archived crew outputs. Optional.
type ArchiveReader interface {
	Enabled() bool
	ListByCrew(ctx context.Context, crewKey string, limit int) ([]map[string]any, error)
}

// Pinger checks one dependency's health.
type Pinger func(ctx context.Context) error

// Submitter queues requests for background processing.
type Submitter interface {
	Submit(ctx context.Context, req *types.Request) error
}

// Deps wires the API server. DBPing, RedisPing, and Archive may be nil.
type Deps struct {
	Dispatcher Submitter
	Broker     *flow.Broker
	Store      Store
	Crews      Catalog
	Archive    ArchiveReader
	DBPing     Pinger
	RedisPing  Pinger
	Providers  []string
	Version    string
	Logger     *zap.Logger
}

// Server holds the handler set.
type Server struct {
	deps   Deps
	logger *zap.Logger
}

// NewServer creates the API server.
func NewServer(deps Deps) *Server {
	return &Server{
		deps:   deps,
		logger: deps.Logger.With(zap.String("component", "api")),
	}
}

// Routes builds the route table.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("POST /v1/requests", s.handleSubmit)
	mux.HandleFunc("GET /v1/requests/{id}", s.handleGetRequest)
	mux.HandleFunc("GET /v1/requests/{id}/report", s.handleGetRequestReport)
	mux.HandleFunc("GET /v1/requests/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /v1/reports", s.handleListReports)
	mux.HandleFunc("GET /v1/reports/{id}", s.handleGetReport)
	mux.HandleFunc("GET /v1/crews", s.handleListCrews)
	mux.HandleFunc("GET /v1/crews/{key}/archive", s.handleCrewArchive)
	return mux
}

type submitRequest struct {
	Text     string            `json:"text"`
	Email    string            `json:"email,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// maxRequestTextLen bounds submitted text; longer requests are almost
// certainly pasted documents, not questions.
const maxRequestTextLen = 16 * 1024

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&body); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, string(types.ErrInvalidRequest), "malformed JSON body")
		return
	}
	if body.Text == "" {
		writeErrorStatus(w, http.StatusBadRequest, string(types.ErrInvalidRequest), "text is required")
		return
	}
	if len(body.Text) > maxRequestTextLen {
		writeErrorStatus(w, http.StatusBadRequest, string(types.ErrInvalidRequest), "text too long")
		return
	}

	req := types.NewRequest(body.Text)
	req.Email = body.Email
	req.Metadata = body.Metadata

	if err := s.deps.Dispatcher.Submit(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}

	s.logger.Info("request accepted", zap.String("request_id", req.ID))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"request_id": req.ID,
		"status":     req.Status,
	})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.deps.Store.GetRequest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleGetRequestReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Store.GetReportByRequest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Store.GetReport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	reports, err := s.deps.Store.ListReports(r.Context(), q.Get("crew"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

type crewSummary struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Renderer    string   `json:"renderer"`
	Keywords    []string `json:"keywords,omitempty"`
}

func (s *Server) handleListCrews(w http.ResponseWriter, r *http.Request) {
	defs := s.deps.Crews.Definitions()
	out := make([]crewSummary, 0, len(defs))
	for _, def := range defs {
		out = append(out, crewSummary{
			Key:         def.Key,
			Name:        def.Name,
			Description: def.Description,
			Renderer:    def.Renderer,
			Keywords:    def.Keywords,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"crews": out,
		"count": len(out),
	})
}

// handleCrewArchive lists archived raw crew outputs, newest first.
func (s *Server) handleCrewArchive(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil || !s.deps.Archive.Enabled() {
		writeErrorStatus(w, http.StatusNotFound, string(types.ErrNotFound), "archive not enabled")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	outputs, err := s.deps.Archive.ListByCrew(r.Context(), r.PathValue("key"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outputs": outputs,
		"count":   len(outputs),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.deps.Version})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	for name, ping := range map[string]Pinger{
		"database": s.deps.DBPing,
		"redis":    s.deps.RedisPing,
	} {
		if ping == nil {
			continue
		}
		if err := ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":    state,
		"checks":    checks,
		"providers": s.deps.Providers,
		"version":   s.deps.Version,
	})
}
