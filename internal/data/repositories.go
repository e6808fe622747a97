package data

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrRecordNotFound = errors.New("record not found")
)

// FarFuture is the sentinel timestamp meaning "not yet": a motion event row
// carries it in uploaded_at and face_processed_at until the corresponding job
// completes, so the pending-work queries stay plain timestamp comparisons.
var FarFuture = time.Date(9998, 12, 31, 23, 59, 59, 0, time.UTC)

// DBTX is a common interface for *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
