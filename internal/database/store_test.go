package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/conciergehq/concierge/types"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return NewStore(gdb, zap.NewNop()), mock
}

func TestStoreSaveRequest(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "requests"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req := types.NewRequest("check the weather")
	require.NoError(t, store.SaveRequest(context.Background(), req))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSaveRequestPersistsMetadata(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "requests"`).
		WithArgs("id-1", "check the weather", "", `{"tier":"gold"}`, "", "pending", "",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req := types.NewRequest("check the weather")
	req.ID = "id-1"
	req.Metadata = map[string]string{"tier": "gold"}
	require.NoError(t, store.SaveRequest(context.Background(), req))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetRequestLoadsMetadata(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "text", "email", "metadata", "crew_key", "status", "error", "created_at", "updated_at"}).
		AddRow("id-1", "check the weather", "", `{"tier":"gold"}`, "weather_briefing", "done", "", time.Now(), time.Now())
	mock.ExpectQuery(`SELECT \* FROM "requests"`).WillReturnRows(rows)

	req, err := store.GetRequest(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"tier": "gold"}, req.Metadata)
}

func TestMetadataRoundTrip(t *testing.T) {
	assert.Empty(t, marshalMetadata(nil))
	assert.Nil(t, unmarshalMetadata(""))
	assert.Nil(t, unmarshalMetadata("not json"))

	md := map[string]string{"a": "1", "b": "2"}
	assert.Equal(t, md, unmarshalMetadata(marshalMetadata(md)))
}

func TestStoreUpdateRequest(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "requests" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.UpdateRequest(context.Background(), "id-1", types.RequestStatusRunning, "weather_briefing", "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetRequestNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "requests"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetRequest(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.CodeOf(err))
}

func TestStoreGetReport(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "request_id", "crew_key", "title", "html", "output_path", "emailed", "generated_at"}).
		AddRow("rep-1", "req-1", "news_digest", "Title", "<html></html>", "output/news_digest/x.html", true, now)
	mock.ExpectQuery(`SELECT \* FROM "reports"`).WillReturnRows(rows)

	report, err := store.GetReport(context.Background(), "rep-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", report.RequestID)
	assert.Equal(t, "news_digest", report.CrewKey)
	assert.True(t, report.Emailed)
}

func TestStoreListReportsFiltersByCrew(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "request_id", "crew_key", "title", "output_path", "emailed", "generated_at"}).
		AddRow("rep-1", "req-1", "news_digest", "A", "p1", false, time.Now()).
		AddRow("rep-2", "req-2", "news_digest", "B", "p2", false, time.Now())
	mock.ExpectQuery(`SELECT .* FROM "reports" WHERE crew_key = \$1`).
		WithArgs("news_digest", 20).
		WillReturnRows(rows)

	reports, err := store.ListReports(context.Background(), "news_digest", 0, 0)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}

func TestStoreErrorsCarryStoreCode(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "reports"`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := store.SaveReport(context.Background(), &types.Report{ID: "r", RequestID: "q"})
	require.Error(t, err)
	assert.Equal(t, types.ErrStoreUnavailable, types.CodeOf(err))
}
