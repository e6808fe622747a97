package data_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/halcyon-labs/watchtower/internal/data"
	"github.com/halcyon-labs/watchtower/internal/engine"
)

func TestCreateBatch_CommitsAllRows(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	m := data.VisitorLogModel{DB: db}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO visitor_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO visitor_logs").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	rows := []engine.VisitorLog{
		{Camera: "Front Door", Person: "Alice", Confidence: 0.95, VisitedAt: time.Now()},
		{Camera: "Front Door", Person: "Bob", Confidence: 0.80, VisitedAt: time.Now()},
	}
	if err := m.CreateBatch(context.Background(), rows); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateBatch_RollsBackOnFailure(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	m := data.VisitorLogModel{DB: db}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO visitor_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO visitor_logs").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	rows := []engine.VisitorLog{
		{Camera: "Front Door", Person: "Alice", Confidence: 0.95, VisitedAt: time.Now()},
		{Camera: "Front Door", Person: "Bob", Confidence: 0.80, VisitedAt: time.Now()},
	}
	if err := m.CreateBatch(context.Background(), rows); err == nil {
		t.Fatal("expected CreateBatch to fail")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateBatch_EmptyIsNoOp(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	m := data.VisitorLogModel{DB: db}

	if err := m.CreateBatch(context.Background(), nil); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database activity: %v", err)
	}
}

func TestRecent(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	m := data.VisitorLogModel{DB: db}

	newer := time.Date(2026, 2, 1, 12, 5, 0, 0, time.UTC)
	older := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"camera_name", "person", "confidence", "visited_at"}).
		AddRow("Front Door", "Alice", 0.95, newer).
		AddRow("Backyard", "Bob", 0.80, older)

	mock.ExpectQuery("SELECT (.+) FROM visitor_logs").WillReturnRows(rows)

	logs, err := m.Recent(context.Background(), 50)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].Person != "Alice" || !logs[0].VisitedAt.Equal(newer) {
		t.Errorf("unexpected first row: %+v", logs[0])
	}
}
