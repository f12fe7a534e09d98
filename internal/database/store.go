package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/conciergehq/concierge/types"
)

// requestRecord is the persisted form of a request. Metadata is the
// caller-supplied key/value map stored as JSON text.
type requestRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Text      string `gorm:"type:text"`
	Email     string `gorm:"size:255"`
	Metadata  string `gorm:"type:text"`
	CrewKey   string `gorm:"size:64;index"`
	Status    string `gorm:"size:16;index"`
	Error     string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (requestRecord) TableName() string { return "requests" }

// reportRecord is the persisted form of a rendered report.
type reportRecord struct {
	ID          string `gorm:"primaryKey;size:36"`
	RequestID   string `gorm:"size:36;index"`
	CrewKey     string `gorm:"size:64;index"`
	Title       string `gorm:"type:text"`
	HTML        string `gorm:"type:text"`
	OutputPath  string `gorm:"type:text"`
	Emailed     bool
	GeneratedAt time.Time
}

func (reportRecord) TableName() string { return "reports" }

// Store persists requests and reports.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore wraps a connected database.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.With(zap.String("component", "store"))}
}

// SaveRequest inserts a new request row.
func (s *Store) SaveRequest(ctx context.Context, req *types.Request) error {
	rec := requestRecord{
		ID:        req.ID,
		Text:      req.Text,
		Email:     req.Email,
		Metadata:  marshalMetadata(req.Metadata),
		Status:    string(req.Status),
		CreatedAt: req.CreatedAt,
		UpdatedAt: req.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return storeErr("save request", err)
	}
	return nil
}

// UpdateRequest records a status transition, optionally with the crew
// key that claimed it or the error that ended it.
func (s *Store) UpdateRequest(ctx context.Context, id string, status types.RequestStatus, crewKey, errMsg string) error {
	updates := map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	}
	if crewKey != "" {
		updates["crew_key"] = crewKey
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	res := s.db.WithContext(ctx).Model(&requestRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return storeErr("update request", res.Error)
	}
	return nil
}

// GetRequest loads one request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (*types.Request, error) {
	var rec requestRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.Newf(types.ErrNotFound, "request %s not found", id)
	}
	if err != nil {
		return nil, storeErr("get request", err)
	}
	return &types.Request{
		ID:        rec.ID,
		Text:      rec.Text,
		Email:     rec.Email,
		Metadata:  unmarshalMetadata(rec.Metadata),
		Status:    types.RequestStatus(rec.Status),
		CreatedAt: rec.CreatedAt,
	}, nil
}

// SaveReport inserts a rendered report.
func (s *Store) SaveReport(ctx context.Context, report *types.Report) error {
	rec := reportRecord{
		ID:          report.ID,
		RequestID:   report.RequestID,
		CrewKey:     report.CrewKey,
		Title:       report.Title,
		HTML:        report.HTML,
		OutputPath:  report.OutputPath,
		Emailed:     report.Emailed,
		GeneratedAt: report.GeneratedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return storeErr("save report", err)
	}
	return nil
}

// MarkEmailed flags a report as delivered.
func (s *Store) MarkEmailed(ctx context.Context, reportID string) error {
	res := s.db.WithContext(ctx).Model(&reportRecord{}).Where("id = ?", reportID).Update("emailed", true)
	if res.Error != nil {
		return storeErr("mark emailed", res.Error)
	}
	return nil
}

// GetReport loads one report by ID.
func (s *Store) GetReport(ctx context.Context, id string) (*types.Report, error) {
	var rec reportRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.Newf(types.ErrNotFound, "report %s not found", id)
	}
	if err != nil {
		return nil, storeErr("get report", err)
	}
	return recordToReport(&rec), nil
}

// GetReportByRequest loads the report for a request ID.
func (s *Store) GetReportByRequest(ctx context.Context, requestID string) (*types.Report, error) {
	var rec reportRecord
	err := s.db.WithContext(ctx).First(&rec, "request_id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.Newf(types.ErrNotFound, "no report for request %s", requestID)
	}
	if err != nil {
		return nil, storeErr("get report by request", err)
	}
	return recordToReport(&rec), nil
}

// ListReports returns recent reports, optionally filtered by crew. HTML
// bodies are omitted from listings.
func (s *Store) ListReports(ctx context.Context, crewKey string, limit, offset int) ([]*types.Report, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := s.db.WithContext(ctx).Model(&reportRecord{}).
		Omit("html").
		Order("generated_at DESC").
		Limit(limit).
		Offset(offset)
	if crewKey != "" {
		q = q.Where("crew_key = ?", crewKey)
	}
	var recs []reportRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, storeErr("list reports", err)
	}
	reports := make([]*types.Report, len(recs))
	for i := range recs {
		reports[i] = recordToReport(&recs[i])
	}
	return reports, nil
}

func recordToReport(rec *reportRecord) *types.Report {
	return &types.Report{
		ID:          rec.ID,
		RequestID:   rec.RequestID,
		CrewKey:     rec.CrewKey,
		Title:       rec.Title,
		HTML:        rec.HTML,
		OutputPath:  rec.OutputPath,
		Emailed:     rec.Emailed,
		GeneratedAt: rec.GeneratedAt,
	}
}

func marshalMetadata(md map[string]string) string {
	if len(md) == 0 {
		return ""
	}
	data, err := json.Marshal(md)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalMetadata(s string) map[string]string {
	if s == "" {
		return nil
	}
	var md map[string]string
	if err := json.Unmarshal([]byte(s), &md); err != nil {
		return nil
	}
	return md
}

func storeErr(op string, err error) error {
	return types.NewError(types.ErrStoreUnavailable, op+": "+err.Error()).WithCause(err)
}
