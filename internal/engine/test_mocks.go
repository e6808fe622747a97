package engine

import (
	"context"
	"errors"
	"sync"
	"time"
)

// mockCamera
type mockCamera struct {
	vendor   string
	name     string
	interval time.Duration
	healthy  bool

	mu            sync.Mutex
	retrieveCalls int
	retrieveErr   error
	events        []MotionEvent

	RetrieveFunc func(ctx context.Context, from, to time.Time) ([]MotionEvent, error)
	UploadFunc   func(ctx context.Context, ev StoredEvent) error
}

func newMockCamera(vendor, name string, interval time.Duration) *mockCamera {
	return &mockCamera{vendor: vendor, name: name, interval: interval, healthy: true}
}

func (c *mockCamera) Vendor() string              { return c.vendor }
func (c *mockCamera) Name() string                { return c.name }
func (c *mockCamera) PollInterval() time.Duration { return c.interval }

func (c *mockCamera) GetProperties(ctx context.Context) (map[string]any, error) {
	return map[string]any{"name": c.name}, nil
}

func (c *mockCamera) RetrieveEvents(ctx context.Context, from, to time.Time) ([]MotionEvent, error) {
	c.mu.Lock()
	c.retrieveCalls++
	c.mu.Unlock()
	if c.RetrieveFunc != nil {
		return c.RetrieveFunc(ctx, from, to)
	}
	if c.retrieveErr != nil {
		return nil, c.retrieveErr
	}
	return c.events, nil
}

func (c *mockCamera) RetrieveVideoAndUpload(ctx context.Context, ev StoredEvent) error {
	if c.UploadFunc != nil {
		return c.UploadFunc(ctx, ev)
	}
	return nil
}

func (c *mockCamera) IsHealthy(ctx context.Context) bool { return c.healthy }

func (c *mockCamera) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retrieveCalls
}

// mockSession
type mockSession struct {
	mu      sync.Mutex
	healthy bool
	logins  int
}

func (s *mockSession) Login(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins++
	return nil
}

func (s *mockSession) Logout(ctx context.Context) (bool, error) { return true, nil }

func (s *mockSession) IsHealthy(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}

func (s *mockSession) setHealthy(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = v
}

// memEventStore
type memEventStore struct {
	mu     sync.Mutex
	nextID int64
	rows   []StoredEvent

	processed map[int64]time.Time

	InsertErr error
}

func newMemEventStore() *memEventStore {
	return &memEventStore{nextID: 1, processed: make(map[int64]time.Time)}
}

func (s *memEventStore) InsertIfAbsent(ctx context.Context, ev MotionEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return false, s.InsertErr
	}
	for _, r := range s.rows {
		if r.CameraName == ev.CameraName && r.EventID == ev.EventID {
			return false, nil
		}
	}
	s.rows = append(s.rows, StoredEvent{
		ID:         s.nextID,
		EventID:    ev.EventID,
		Vendor:     ev.Vendor,
		CameraName: ev.CameraName,
		MotionAt:   ev.OccurredAt,
		VideoRef:   ev.VideoRef,
		Metadata:   ev.Metadata,
	})
	s.nextID++
	return true, nil
}

func (s *memEventStore) ListUnuploaded(ctx context.Context) ([]StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StoredEvent
	for _, r := range s.rows {
		if r.VideoRef == "" {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memEventStore) ListUnprocessed(ctx context.Context) ([]StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StoredEvent
	for _, r := range s.rows {
		if r.VideoRef == "" {
			continue
		}
		if _, done := s.processed[r.ID]; !done {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memEventStore) MarkProcessed(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[id] = at
	return nil
}

func (s *memEventStore) SetVideoRef(ctx context.Context, id int64, ref string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].VideoRef = ref
			return nil
		}
	}
	return errors.New("no such event")
}

func (s *memEventStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *memEventStore) isProcessed(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[id]
	return ok
}

// memVisitorLogStore
type memVisitorLogStore struct {
	mu       sync.Mutex
	rows     []VisitorLog
	BatchErr error
}

func (s *memVisitorLogStore) Create(ctx context.Context, camera, person string, confidence float64, visitedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, VisitorLog{Camera: camera, Person: person, Confidence: confidence, VisitedAt: visitedAt})
	return nil
}

func (s *memVisitorLogStore) CreateBatch(ctx context.Context, rows []VisitorLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.BatchErr != nil {
		return s.BatchErr
	}
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *memVisitorLogStore) all() []VisitorLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]VisitorLog, len(s.rows))
	copy(out, s.rows)
	return out
}

// memSnapshotStore
type memSnapshotStore struct {
	mu    sync.Mutex
	last  []CameraSnapshot
	saves int
	Err   error
}

func (s *memSnapshotStore) Save(ctx context.Context, states []CameraSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.last = states
	s.saves++
	return nil
}

// memStateStore
type memStateStore struct {
	mu      sync.Mutex
	state   LoopState
	saved   bool
	saves   int
	SaveErr error
	LoadErr error

	// FailNextSaves makes the next N saves fail, then recover.
	FailNextSaves int
}

func (s *memStateStore) Save(ctx context.Context, st LoopState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	if s.FailNextSaves > 0 {
		s.FailNextSaves--
		return errors.New("simulated save failure")
	}
	s.state = st
	s.saved = true
	s.saves++
	return nil
}

func (s *memStateStore) Load(ctx context.Context) (LoopState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return LoopState{}, s.LoadErr
	}
	if !s.saved {
		return LoopState{}, errors.New("no state saved")
	}
	return s.state, nil
}

func (s *memStateStore) current() LoopState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// mockFaces
type mockFaces struct {
	mu      sync.Mutex
	calls   int
	running int
	maxSeen int

	SearchFunc func(ctx context.Context, videoRef string) ([]FaceMatch, bool, error)
}

func (f *mockFaces) StartSearch(ctx context.Context, videoRef string) ([]FaceMatch, bool, error) {
	f.mu.Lock()
	f.calls++
	f.running++
	if f.running > f.maxSeen {
		f.maxSeen = f.running
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if f.SearchFunc != nil {
		return f.SearchFunc(ctx, videoRef)
	}
	return nil, false, nil
}

func (f *mockFaces) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *mockFaces) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

// mockPublisher
type mockPublisher struct {
	mu     sync.Mutex
	events []MotionEvent
}

func (p *mockPublisher) Publish(ev MotionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *mockPublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
