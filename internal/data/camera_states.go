package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/halcyon-labs/watchtower/internal/engine"
)

// CameraStateModel persists registry snapshots so camera status survives a
// daemon restart and is readable while the poll loop is stopped.
type CameraStateModel struct {
	DB *sql.DB
}

// Save replaces the stored snapshot with the given one, atomically.
func (m CameraStateModel) Save(ctx context.Context, snaps []engine.CameraSnapshot) error {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM camera_states`); err != nil {
		return err
	}

	query := `
		INSERT INTO camera_states (camera_name, camera_vendor, status, last_polled, status_updated)
		VALUES ($1, $2, $3, $4, $5)`
	for _, s := range snaps {
		if _, err := tx.ExecContext(ctx, query,
			s.Name, s.Vendor, s.Status, s.LastPolled.UTC(), s.StatusUpdated.UTC()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m CameraStateModel) Load(ctx context.Context) ([]engine.CameraSnapshot, error) {
	query := `
		SELECT camera_name, camera_vendor, status, last_polled, status_updated
		FROM camera_states
		ORDER BY camera_vendor, camera_name`

	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.CameraSnapshot
	for rows.Next() {
		var s engine.CameraSnapshot
		var lastPolled, statusUpdated time.Time
		if err := rows.Scan(&s.Name, &s.Vendor, &s.Status, &lastPolled, &statusUpdated); err != nil {
			return nil, err
		}
		s.LastPolled = lastPolled.UTC()
		s.StatusUpdated = statusUpdated.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

var _ engine.SnapshotStore = CameraStateModel{}
