package engine

import (
	"context"
	"time"
)

// MotionEvent is a single detected-motion occurrence reported by a camera.
// Immutable once constructed; VideoRef is filled in on the stored row after
// the upload job completes, never on this struct.
type MotionEvent struct {
	EventID    string         `json:"event_id"`
	Vendor     string         `json:"vendor"`
	CameraName string         `json:"camera_name"`
	OccurredAt time.Time      `json:"occurred_at"`
	VideoRef   string         `json:"video_ref,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// StoredEvent is a durably persisted motion event. ID is the database row id.
type StoredEvent struct {
	ID         int64
	EventID    string
	Vendor     string
	CameraName string
	MotionAt   time.Time
	VideoRef   string
	Metadata   map[string]any
}

// FaceMatch is one person hit returned by the face-search service.
type FaceMatch struct {
	Person     string  `json:"person"`
	Confidence float64 `json:"confidence"`
}

// CameraSource is the capability surface a vendor integration provides for a
// single camera. Implementations live under internal/vendors.
type CameraSource interface {
	Vendor() string
	Name() string
	PollInterval() time.Duration

	GetProperties(ctx context.Context) (map[string]any, error)
	RetrieveEvents(ctx context.Context, from, to time.Time) ([]MotionEvent, error)
	RetrieveVideoAndUpload(ctx context.Context, ev StoredEvent) error
	IsHealthy(ctx context.Context) bool
}

// VendorSession is the per-vendor connection/authentication surface.
type VendorSession interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context) (bool, error)
	IsHealthy(ctx context.Context) bool
}

// EventStore is the durable motion-event storage consumed by the scheduler
// and the dispatcher. InsertIfAbsent reports whether a row was inserted;
// a (camera_name, event_id) collision returns false with no error.
type EventStore interface {
	InsertIfAbsent(ctx context.Context, ev MotionEvent) (bool, error)
	ListUnuploaded(ctx context.Context) ([]StoredEvent, error)
	ListUnprocessed(ctx context.Context) ([]StoredEvent, error)
	MarkProcessed(ctx context.Context, id int64, at time.Time) error
	SetVideoRef(ctx context.Context, id int64, ref string, at time.Time) error
}

// VisitorLog is one recognized-person row derived from a face search.
type VisitorLog struct {
	Camera     string    `json:"camera"`
	Person     string    `json:"person"`
	Confidence float64   `json:"confidence"`
	VisitedAt  time.Time `json:"visited_at"`
}

// VisitorLogStore records recognized people. CreateBatch must be atomic:
// either every row of a face-search result set is committed or none is, so
// a retried event never leaves partial visitor rows behind.
type VisitorLogStore interface {
	Create(ctx context.Context, camera, person string, confidence float64, visitedAt time.Time) error
	CreateBatch(ctx context.Context, rows []VisitorLog) error
}

// FaceSearchService submits a stored video for face search. The second
// return is true when a search for the same video reference is already in
// flight; the caller must treat that as a clean skip, not a failure.
type FaceSearchService interface {
	StartSearch(ctx context.Context, videoRef string) ([]FaceMatch, bool, error)
}

// Publisher fans newly stored events out to interested consumers.
// Publishing is best-effort; a failure never aborts the scheduler tick.
type Publisher interface {
	Publish(ev MotionEvent) error
}
