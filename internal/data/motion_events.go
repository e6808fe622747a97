package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/halcyon-labs/watchtower/internal/engine"
)

// Pending-work queries are capped so a cold start with a deep backlog cannot
// flood the dispatcher in one pass.
const pendingBatchLimit = 500

type MotionEventModel struct {
	DB DBTX
}

// InsertIfAbsent stores a motion event unless a row with the same
// (camera_name, event_id) pair already exists. Returns true when a new row
// was written.
func (m MotionEventModel) InsertIfAbsent(ctx context.Context, ev engine.MotionEvent) (bool, error) {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return false, fmt.Errorf("encoding event metadata: %w", err)
	}

	query := `
		INSERT INTO motion_events (event_id, camera_vendor, camera_name, motion_at, video_ref, metadata, uploaded_at, face_processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (camera_name, event_id) DO NOTHING`

	res, err := m.DB.ExecContext(ctx, query,
		ev.EventID, ev.Vendor, ev.CameraName, ev.OccurredAt.UTC(), ev.VideoRef, meta, FarFuture)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListUnuploaded returns events whose video has not been uploaded yet,
// oldest first.
func (m MotionEventModel) ListUnuploaded(ctx context.Context) ([]engine.StoredEvent, error) {
	query := `
		SELECT id, event_id, camera_vendor, camera_name, motion_at, video_ref, metadata
		FROM motion_events
		WHERE uploaded_at > (NOW() AT TIME ZONE 'UTC')
		ORDER BY motion_at ASC
		LIMIT $1`

	rows, err := m.DB.QueryContext(ctx, query, pendingBatchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStoredEvents(rows)
}

// ListUnprocessed returns uploaded events that still await face search.
func (m MotionEventModel) ListUnprocessed(ctx context.Context) ([]engine.StoredEvent, error) {
	query := `
		SELECT id, event_id, camera_vendor, camera_name, motion_at, video_ref, metadata
		FROM motion_events
		WHERE face_processed_at > (NOW() AT TIME ZONE 'UTC')
		  AND uploaded_at <= (NOW() AT TIME ZONE 'UTC')
		  AND video_ref <> ''
		ORDER BY motion_at ASC
		LIMIT $1`

	rows, err := m.DB.QueryContext(ctx, query, pendingBatchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStoredEvents(rows)
}

func (m MotionEventModel) MarkProcessed(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE motion_events
		SET face_processed_at = $1
		WHERE id = $2`
	res, err := m.DB.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// SetVideoRef records where the event's video landed and stamps uploaded_at.
func (m MotionEventModel) SetVideoRef(ctx context.Context, id int64, ref string, at time.Time) error {
	query := `
		UPDATE motion_events
		SET video_ref = $1, uploaded_at = $2
		WHERE id = $3`
	res, err := m.DB.ExecContext(ctx, query, ref, at.UTC(), id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

var _ engine.EventStore = MotionEventModel{}

func scanStoredEvents(rows *sql.Rows) ([]engine.StoredEvent, error) {
	var out []engine.StoredEvent
	for rows.Next() {
		var ev engine.StoredEvent
		var motionAt time.Time
		var meta []byte
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.Vendor, &ev.CameraName, &motionAt, &ev.VideoRef, &meta); err != nil {
			return nil, err
		}
		ev.MotionAt = motionAt.UTC()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("decoding event metadata: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
