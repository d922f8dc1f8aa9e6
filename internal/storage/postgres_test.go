package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

const (
	dealID  = "6f1c2a4e-8b1d-4c55-9a0e-2f7b3c9d1e01"
	dealID2 = "6f1c2a4e-8b1d-4c55-9a0e-2f7b3c9d1e02"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var dealColumnNames = []string{
	"id", "owner_id", "brand_name", "platform", "contact", "status", "deal_value", "last_contacted_at",
	"next_follow_up_at", "follow_up_interval_days", "follow_up_count", "notes", "rate_check", "brief_analysis",
	"created_at", "updated_at",
}

var eventColumnNames = []string{"deal_id", "id", "type", "date", "description", "metadata"}

func newMockPostgres(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewPostgresFromDB(db)
	s.now = func() time.Time { return testNow }
	return s, mock
}

func dealRow(rows *sqlmock.Rows, id, brand string, rateCheck []byte) *sqlmock.Rows {
	return rows.AddRow(id, "owner-1", brand, "TikTok", "pr@brand.com", "Negotiating", 1200.0,
		testNow.Add(-48*time.Hour), testNow.Add(-time.Hour), int64(2), int64(1), "Asked for usage terms",
		rateCheck, nil, testNow.Add(-72*time.Hour), testNow.Add(-48*time.Hour))
}

func TestPostgres_GetDeal(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM deals WHERE id = $1")).
		WithArgs(dealID).
		WillReturnRows(dealRow(sqlmock.NewRows(dealColumnNames), dealID, "Glossier",
			[]byte(`{"suggestedLow":800,"suggestedHigh":1200,"confidenceScore":70,"explanation":"CPM"}`)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM timeline_events WHERE deal_id = $1 ORDER BY seq")).
		WithArgs(dealID).
		WillReturnRows(sqlmock.NewRows(eventColumnNames).
			AddRow(dealID, "ev-1", "status_change", testNow.Add(-72*time.Hour), "Deal Created", nil).
			AddRow(dealID, "ev-2", "follow_up", testNow.Add(-48*time.Hour), "Follow-up email sent", []byte(`{"count":1}`)))

	d, err := s.GetDeal(context.Background(), dealID)
	if err != nil {
		t.Fatalf("GetDeal() error = %v", err)
	}
	if d.BrandName != "Glossier" || d.Platform != models.PlatformTikTok || d.Status != models.StatusNegotiating {
		t.Errorf("GetDeal() = %+v", d)
	}
	if d.DealValue == nil || *d.DealValue != 1200 {
		t.Errorf("DealValue = %v", d.DealValue)
	}
	if d.RateCheck == nil || d.RateCheck.SuggestedHigh != 1200 {
		t.Errorf("RateCheck = %+v", d.RateCheck)
	}
	if d.BriefAnalysis != nil {
		t.Errorf("BriefAnalysis = %+v, want nil", d.BriefAnalysis)
	}
	if len(d.Timeline) != 2 || d.Timeline[0].ID != "ev-1" || d.Timeline[1].Type != models.EventFollowUp {
		t.Errorf("Timeline = %+v", d.Timeline)
	}
	if d.Timeline[1].Metadata["count"] != float64(1) {
		t.Errorf("Metadata = %v", d.Timeline[1].Metadata)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgres_GetDeal_NotFound(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM deals WHERE id = $1")).
		WithArgs(dealID).
		WillReturnRows(sqlmock.NewRows(dealColumnNames))

	if _, err := s.GetDeal(context.Background(), dealID); !errors.Is(err, models.ErrDealNotFound) {
		t.Errorf("Expected ErrDealNotFound, got %v", err)
	}
	if _, err := s.GetDeal(context.Background(), "not-a-uuid"); !errors.Is(err, models.ErrDealNotFound) {
		t.Errorf("Expected ErrDealNotFound for malformed id, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgres_ListDeals(t *testing.T) {
	s, mock := newMockPostgres(t)

	rows := sqlmock.NewRows(dealColumnNames)
	dealRow(rows, dealID, "Glossier", nil)
	dealRow(rows, dealID2, "Notion", nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM deals WHERE owner_id = $1 ORDER BY created_at DESC")).
		WithArgs("owner-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM timeline_events WHERE deal_id = ANY($1) ORDER BY seq")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(eventColumnNames).
			AddRow(dealID2, "ev-1", "status_change", testNow, "Deal Created", nil).
			AddRow(dealID, "ev-2", "status_change", testNow, "Deal Created", nil).
			AddRow(dealID2, "ev-3", "note", testNow, "Notes updated", nil))

	deals, err := s.ListDeals(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("ListDeals() error = %v", err)
	}
	if len(deals) != 2 {
		t.Fatalf("Expected 2 deals, got %d", len(deals))
	}
	if len(deals[0].Timeline) != 1 || deals[0].Timeline[0].ID != "ev-2" {
		t.Errorf("first deal timeline = %+v", deals[0].Timeline)
	}
	if len(deals[1].Timeline) != 2 || deals[1].Timeline[0].ID != "ev-1" || deals[1].Timeline[1].ID != "ev-3" {
		t.Errorf("second deal timeline = %+v", deals[1].Timeline)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgres_ListDeals_Empty(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM deals WHERE owner_id = $1")).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(dealColumnNames))

	deals, err := s.ListDeals(context.Background(), "nobody")
	if err != nil || len(deals) != 0 {
		t.Errorf("ListDeals() = %v, %v", deals, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("timeline query should be skipped: %v", err)
	}
}

func TestPostgres_CreateDeal(t *testing.T) {
	s, mock := newMockPostgres(t)

	value := 900.0
	in := models.Deal{
		BrandName:            "Notion",
		Platform:             models.PlatformYouTube,
		Status:               models.StatusDiscovery,
		DealValue:            &value,
		FollowUpIntervalDays: 7,
		LastContactedAt:      testNow,
		NextFollowUpAt:       testNow.Add(7 * 24 * time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO deals")).
		WithArgs(sqlmock.AnyArg(), "owner-1", "Notion", "YouTube", "", "Discovery", 900.0,
			testNow, testNow.Add(7*24*time.Hour), 7, 0, "", nil, nil, testNow, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	d, err := s.CreateDeal(context.Background(), "owner-1", in)
	if err != nil {
		t.Fatalf("CreateDeal() error = %v", err)
	}
	if _, err := uuid.Parse(d.ID); err != nil {
		t.Errorf("Expected UUID id, got %q", d.ID)
	}
	if d.OwnerID != "owner-1" || !d.CreatedAt.Equal(testNow) {
		t.Errorf("CreateDeal() = %+v", d)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgres_CreateDeal_Duplicate(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO deals")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	_, err := s.CreateDeal(context.Background(), "owner-1", models.Deal{ID: dealID, BrandName: "Notion"})
	if !errors.Is(err, models.ErrDealExists) {
		t.Errorf("Expected ErrDealExists, got %v", err)
	}
}

func TestPostgres_UpdateDeal(t *testing.T) {
	s, mock := newMockPostgres(t)

	status := models.StatusSecured
	count := 2
	mock.ExpectExec(regexp.QuoteMeta("UPDATE deals SET status = $1, follow_up_count = $2, updated_at = $3 WHERE id = $4")).
		WithArgs("Secured", 2, testNow, dealID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpdateDeal(context.Background(), dealID, models.DealUpdate{Status: &status, FollowUpCount: &count}); err != nil {
		t.Fatalf("UpdateDeal() error = %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE deals SET notes = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	notes := "x"
	if err := s.UpdateDeal(context.Background(), dealID, models.DealUpdate{Notes: &notes}); !errors.Is(err, models.ErrDealNotFound) {
		t.Errorf("Expected ErrDealNotFound, got %v", err)
	}

	if err := s.UpdateDeal(context.Background(), dealID, models.DealUpdate{}); err != nil {
		t.Errorf("empty update should be a no-op, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresUpdate_ClearDealValue(t *testing.T) {
	query, args, err := postgresUpdate(dealID, models.DealUpdate{ClearDealValue: true}, testNow)
	if err != nil {
		t.Fatalf("postgresUpdate() error = %v", err)
	}
	if want := "UPDATE deals SET deal_value = $1, updated_at = $2 WHERE id = $3"; query != want {
		t.Errorf("query = %q, want %q", query, want)
	}
	if len(args) != 3 || args[0] != nil || args[2] != dealID {
		t.Errorf("args = %v", args)
	}
}

func TestPostgres_AppendTimelineEvent(t *testing.T) {
	s, mock := newMockPostgres(t)
	ev := models.TimelineEvent{ID: "ev-9", Type: models.EventNote, Date: testNow, Description: "Notes updated"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE deals SET updated_at = $1 WHERE id = $2")).
		WithArgs(testNow, dealID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timeline_events")).
		WithArgs("ev-9", dealID, "note", testNow, "Notes updated", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	got, err := s.AppendTimelineEvent(context.Background(), dealID, ev)
	if err != nil {
		t.Fatalf("AppendTimelineEvent() error = %v", err)
	}
	if got.ID != "ev-9" {
		t.Errorf("AppendTimelineEvent() = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgres_AppendTimelineEvent_MissingDeal(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE deals SET updated_at")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.AppendTimelineEvent(context.Background(), dealID, models.TimelineEvent{ID: "ev-1", Type: models.EventNote})
	if !errors.Is(err, models.ErrDealNotFound) {
		t.Errorf("Expected ErrDealNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgres_DeleteDeal(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM deals WHERE id = $1")).
		WithArgs(dealID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM deals WHERE id = $1")).
		WithArgs(dealID2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.DeleteDeal(context.Background(), dealID); err != nil {
		t.Errorf("DeleteDeal() error = %v", err)
	}
	if err := s.DeleteDeal(context.Background(), dealID2); !errors.Is(err, models.ErrDealNotFound) {
		t.Errorf("Expected ErrDealNotFound, got %v", err)
	}
}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS deals")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate() error = %v", err)
	}
}
