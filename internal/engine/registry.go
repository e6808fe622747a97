package engine

import (
	"context"
	"log"
	"sync"
	"time"
)

type CameraStatus string

const (
	CameraActive   CameraStatus = "ACTIVE"
	CameraInactive CameraStatus = "INACTIVE"
)

// CameraKey uniquely identifies a camera within the registry.
type CameraKey struct {
	Vendor string
	Name   string
}

// CameraEntry pairs a camera handle with its operational state. The registry
// owns these exclusively; callers get copies and must not hold stale ones
// across mutations.
type CameraEntry struct {
	Source        CameraSource
	Status        CameraStatus
	LastPolled    time.Time
	StatusUpdated time.Time
}

// CameraSnapshot is the serializable view of a registry entry, written to
// durable storage so the management API can report camera health from a
// separate process.
type CameraSnapshot struct {
	Name          string    `json:"name"`
	Vendor        string    `json:"vendor"`
	Status        string    `json:"status"`
	LastPolled    time.Time `json:"last_polled"`
	StatusUpdated time.Time `json:"status_last_updated"`
}

// SnapshotStore persists the full registry state on every mutation.
type SnapshotStore interface {
	Save(ctx context.Context, states []CameraSnapshot) error
}

// CameraRegistry is the authoritative map of known camera sources. All
// mutations re-serialize the registry through the snapshot store; snapshot
// failures are logged, not raised, so a flaky store never blocks polling.
type CameraRegistry struct {
	mu        sync.Mutex
	cameras   map[CameraKey]*CameraEntry
	snapshots SnapshotStore
	now       func() time.Time
}

func NewCameraRegistry(snapshots SnapshotStore) *CameraRegistry {
	return &CameraRegistry{
		cameras:   make(map[CameraKey]*CameraEntry),
		snapshots: snapshots,
		now:       time.Now,
	}
}

// Register queries the camera for its identity and adds it as ACTIVE.
func (r *CameraRegistry) Register(ctx context.Context, src CameraSource) error {
	props, err := src.GetProperties(ctx)
	if err != nil {
		return err
	}
	name, _ := props["name"].(string)
	if name == "" {
		return ErrMissingIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := CameraKey{Vendor: src.Vendor(), Name: name}
	if _, ok := r.cameras[key]; ok {
		return ErrDuplicateCamera
	}

	now := r.now()
	r.cameras[key] = &CameraEntry{
		Source:        src,
		Status:        CameraActive,
		LastPolled:    now,
		StatusUpdated: now,
	}
	log.Printf("[DEBUG] Camera Registry: registered %s/%s", key.Vendor, key.Name)
	r.saveSnapshotLocked(ctx)
	return nil
}

func (r *CameraRegistry) Unregister(ctx context.Context, vendor, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := CameraKey{Vendor: vendor, Name: name}
	if _, ok := r.cameras[key]; !ok {
		return ErrCameraNotFound
	}
	delete(r.cameras, key)
	log.Printf("[DEBUG] Camera Registry: removed %s/%s", vendor, name)
	r.saveSnapshotLocked(ctx)
	return nil
}

// Get returns a copy of the entry for the camera, if present.
func (r *CameraRegistry) Get(vendor, name string) (CameraEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.cameras[CameraKey{Vendor: vendor, Name: name}]
	if !ok {
		return CameraEntry{}, false
	}
	return *e, true
}

// Source returns the camera handle for the given key, or nil.
func (r *CameraRegistry) Source(vendor, name string) CameraSource {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.cameras[CameraKey{Vendor: vendor, Name: name}]; ok {
		return e.Source
	}
	return nil
}

func (r *CameraRegistry) ListAll() []CameraSource {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]CameraSource, 0, len(r.cameras))
	for _, e := range r.cameras {
		out = append(out, e.Source)
	}
	return out
}

func (r *CameraRegistry) ListActive() []CameraSource {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []CameraSource
	for _, e := range r.cameras {
		if e.Status == CameraActive {
			out = append(out, e.Source)
		}
	}
	return out
}

func (r *CameraRegistry) ListByVendor(vendor string) []CameraSource {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []CameraSource
	for key, e := range r.cameras {
		if key.Vendor == vendor {
			out = append(out, e.Source)
		}
	}
	return out
}

func (r *CameraRegistry) UpdateStatus(ctx context.Context, vendor, name string, status CameraStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.cameras[CameraKey{Vendor: vendor, Name: name}]
	if !ok {
		return ErrCameraNotFound
	}
	e.Status = status
	e.StatusUpdated = r.now()
	log.Printf("[DEBUG] Camera Registry: %s/%s status -> %s", vendor, name, status)
	r.saveSnapshotLocked(ctx)
	return nil
}

func (r *CameraRegistry) UpdateLastPolled(ctx context.Context, vendor, name string, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.cameras[CameraKey{Vendor: vendor, Name: name}]
	if !ok {
		return ErrCameraNotFound
	}
	e.LastPolled = t
	r.saveSnapshotLocked(ctx)
	return nil
}

// RefreshLastPolled rebaselines every camera's poll window to t. The
// lifecycle manager calls this on start so a restart does not immediately
// re-poll a stale window.
func (r *CameraRegistry) RefreshLastPolled(ctx context.Context, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.cameras {
		e.LastPolled = t
	}
	r.saveSnapshotLocked(ctx)
}

// saveSnapshotLocked must be called with r.mu held. Save errors are logged
// only; the snapshot is a health-reporting side channel, not a dependency of
// the polling path.
func (r *CameraRegistry) saveSnapshotLocked(ctx context.Context) {
	if r.snapshots == nil {
		return
	}
	states := make([]CameraSnapshot, 0, len(r.cameras))
	for key, e := range r.cameras {
		states = append(states, CameraSnapshot{
			Name:          key.Name,
			Vendor:        key.Vendor,
			Status:        string(e.Status),
			LastPolled:    e.LastPolled,
			StatusUpdated: e.StatusUpdated,
		})
	}

	saveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.snapshots.Save(saveCtx, states); err != nil {
		log.Printf("[ERROR] Camera Registry: failed to save state snapshot: %v", err)
	}
}
