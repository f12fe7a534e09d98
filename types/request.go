package types

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus tracks a request through the reception flow.
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusClassified RequestStatus = "classified"
	RequestStatusRunning    RequestStatus = "running"
	RequestStatusRendering  RequestStatus = "rendering"
	RequestStatusDone       RequestStatus = "done"
	RequestStatusFailed     RequestStatus = "failed"
)

// Request is one natural-language request submitted by a user.
type Request struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Email     string            `json:"email,omitempty"` // deliver the report here when set
	Metadata  map[string]string `json:"metadata,omitempty"`
	Status    RequestStatus     `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewRequest builds a pending request with a fresh ID.
func NewRequest(text string) *Request {
	return &Request{
		ID:        uuid.NewString(),
		Text:      text,
		Status:    RequestStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Classification is the outcome of mapping a request to a crew.
type Classification struct {
	CrewKey    string  `json:"crew"`
	Confidence float64 `json:"confidence"`
	// Fallback is true when the keyword matcher decided instead of the LLM.
	Fallback bool `json:"fallback,omitempty"`
	// Cached is true when the result was served from the classification
	// cache. Never stored; set on the way out of the cache.
	Cached bool `json:"-"`
}

// CrewOutput is the structured result of one crew kickoff, before rendering.
// Data holds the final task's JSON output decoded into a generic map; the
// renderer for the crew knows which keys to expect and must tolerate
// missing ones.
type CrewOutput struct {
	CrewKey     string         `json:"crew"`
	RequestID   string         `json:"request_id"`
	Title       string         `json:"title"`
	Summary     string         `json:"summary,omitempty"`
	Data        map[string]any `json:"data"`
	TaskOutputs []TaskOutput   `json:"task_outputs,omitempty"`
	Usage       TokenUsage     `json:"usage"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
}

// TaskOutput records one task's raw output for archival and debugging.
type TaskOutput struct {
	TaskID   string `json:"task_id"`
	Agent    string `json:"agent"`
	Output   string `json:"output"`
	Duration int64  `json:"duration_ms"`
}

// TokenUsage aggregates LLM token consumption across a kickoff.
type TokenUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost,omitempty"` // USD
}

// Add accumulates usage from one LLM call.
func (u *TokenUsage) Add(prompt, completion int) {
	u.PromptTokens += prompt
	u.CompletionTokens += completion
	u.TotalTokens += prompt + completion
}

// Report is the rendered artifact for one request.
type Report struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	CrewKey     string    `json:"crew"`
	Title       string    `json:"title"`
	HTML        string    `json:"html,omitempty"`
	OutputPath  string    `json:"output_path,omitempty"`
	Emailed     bool      `json:"emailed"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewReport builds a report for a crew output.
func NewReport(out *CrewOutput) *Report {
	return &Report{
		ID:          uuid.NewString(),
		RequestID:   out.RequestID,
		CrewKey:     out.CrewKey,
		Title:       out.Title,
		GeneratedAt: time.Now().UTC(),
	}
}
