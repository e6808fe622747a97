package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/halcyon-labs/watchtower/internal/engine"
)

type VisitorLogModel struct {
	DB *sql.DB
}

func (m VisitorLogModel) Create(ctx context.Context, camera, person string, confidence float64, visitedAt time.Time) error {
	query := `
		INSERT INTO visitor_logs (camera_name, person, confidence, visited_at)
		VALUES ($1, $2, $3, $4)`
	_, err := m.DB.ExecContext(ctx, query, camera, person, confidence, visitedAt.UTC())
	return err
}

// CreateBatch writes every row in a single transaction so a failure partway
// through leaves nothing behind.
func (m VisitorLogModel) CreateBatch(ctx context.Context, rows []engine.VisitorLog) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO visitor_logs (camera_name, person, confidence, visited_at)
		VALUES ($1, $2, $3, $4)`
	for _, vl := range rows {
		if _, err := tx.ExecContext(ctx, query, vl.Camera, vl.Person, vl.Confidence, vl.VisitedAt.UTC()); err != nil {
			return fmt.Errorf("inserting visitor log for %q: %w", vl.Person, err)
		}
	}
	return tx.Commit()
}

// Recent returns the newest visitor logs, most recent first.
func (m VisitorLogModel) Recent(ctx context.Context, limit int) ([]engine.VisitorLog, error) {
	query := `
		SELECT camera_name, person, confidence, visited_at
		FROM visitor_logs
		ORDER BY visited_at DESC
		LIMIT $1`

	rows, err := m.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.VisitorLog
	for rows.Next() {
		var vl engine.VisitorLog
		var visitedAt time.Time
		if err := rows.Scan(&vl.Camera, &vl.Person, &vl.Confidence, &visitedAt); err != nil {
			return nil, err
		}
		vl.VisitedAt = visitedAt.UTC()
		out = append(out, vl)
	}
	return out, rows.Err()
}

var _ engine.VisitorLogStore = VisitorLogModel{}
