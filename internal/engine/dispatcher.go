package engine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/halcyon-labs/watchtower/internal/metrics"
)

type DispatcherConfig struct {
	UploadWorkers     int
	FaceSearchWorkers int
	SubmitDelay       time.Duration
}

// Dispatcher launches fire-and-forget jobs for durably-stored events that
// still need their video uploaded or their face search run. Each pool is
// capped by its own counting semaphore; jobs are tracked in live-job sets so
// an event is never submitted twice while a prior job for it is pending.
//
// Jobs deliberately run on context.Background: stopping the scheduler loop
// must not abort an in-flight upload mid-write. A failed job is logged and
// dropped; the event stays unuploaded/unprocessed and is picked up again on
// the next dispatcher pass.
type Dispatcher struct {
	store       EventStore
	visitorLogs VisitorLogStore
	faces       FaceSearchService
	registry    *CameraRegistry
	cfg         DispatcherConfig

	uploadSem chan struct{}
	faceSem   chan struct{}

	mu           sync.Mutex
	liveUploads  map[int64]struct{}
	liveSearches map[string]struct{}

	runningUploads  atomic.Int32
	runningSearches atomic.Int32

	wg  sync.WaitGroup
	now func() time.Time
}

func NewDispatcher(store EventStore, visitorLogs VisitorLogStore, faces FaceSearchService, registry *CameraRegistry, cfg DispatcherConfig) *Dispatcher {
	if cfg.UploadWorkers <= 0 {
		cfg.UploadWorkers = 2
	}
	if cfg.FaceSearchWorkers <= 0 {
		cfg.FaceSearchWorkers = 2
	}
	if cfg.SubmitDelay <= 0 {
		cfg.SubmitDelay = 100 * time.Millisecond
	}
	return &Dispatcher{
		store:        store,
		visitorLogs:  visitorLogs,
		faces:        faces,
		registry:     registry,
		cfg:          cfg,
		uploadSem:    make(chan struct{}, cfg.UploadWorkers),
		faceSem:      make(chan struct{}, cfg.FaceSearchWorkers),
		liveUploads:  make(map[int64]struct{}),
		liveSearches: make(map[string]struct{}),
		now:          time.Now,
	}
}

// DispatchUploads spawns an upload job for every stored event still missing
// its video reference, skipping events with a job already pending.
func (d *Dispatcher) DispatchUploads(ctx context.Context) {
	events, err := d.store.ListUnuploaded(ctx)
	if err != nil {
		log.Printf("[ERROR] Dispatcher: failed to list unuploaded events: %v", err)
		return
	}

	for _, ev := range events {
		if !d.claimUpload(ev.ID) {
			continue
		}

		cam := d.registry.Source(ev.Vendor, ev.CameraName)
		if cam == nil {
			log.Printf("[WARN] Dispatcher: no camera handle for %s/%s, skipping upload of event %d", ev.Vendor, ev.CameraName, ev.ID)
			d.releaseUpload(ev.ID)
			continue
		}

		d.wg.Add(1)
		go d.runUpload(ev, cam)

		if !d.submitPause(ctx) {
			return
		}
	}
}

// DispatchFaceSearches spawns a face-search job for every uploaded event not
// yet processed, keyed by video reference for duplicate suppression.
func (d *Dispatcher) DispatchFaceSearches(ctx context.Context) {
	events, err := d.store.ListUnprocessed(ctx)
	if err != nil {
		log.Printf("[ERROR] Dispatcher: failed to list unprocessed events: %v", err)
		return
	}

	for _, ev := range events {
		if ev.VideoRef == "" {
			continue
		}
		if !d.claimSearch(ev.VideoRef) {
			continue
		}

		d.wg.Add(1)
		go d.runFaceSearch(ev)

		if !d.submitPause(ctx) {
			return
		}
	}
}

func (d *Dispatcher) runUpload(ev StoredEvent, cam CameraSource) {
	defer d.wg.Done()
	defer d.releaseUpload(ev.ID)

	d.uploadSem <- struct{}{}
	defer func() { <-d.uploadSem }()

	d.runningUploads.Add(1)
	defer d.runningUploads.Add(-1)

	// Deliberately not tied to the scheduler loop context; see type doc.
	ctx := context.Background()

	if err := cam.RetrieveVideoAndUpload(ctx, ev); err != nil {
		metrics.UploadJobsTotal.WithLabelValues("fail").Inc()
		log.Printf("[ERROR] Dispatcher: upload job for event %d failed: %v", ev.ID, err)
		return
	}
	metrics.UploadJobsTotal.WithLabelValues("success").Inc()
}

func (d *Dispatcher) runFaceSearch(ev StoredEvent) {
	defer d.wg.Done()
	defer d.releaseSearch(ev.VideoRef)

	d.faceSem <- struct{}{}
	defer func() { <-d.faceSem }()

	d.runningSearches.Add(1)
	defer d.runningSearches.Add(-1)

	ctx := context.Background()
	start := d.now()

	matches, alreadyRunning, err := d.faces.StartSearch(ctx, ev.VideoRef)
	if err != nil {
		metrics.FaceSearchTotal.WithLabelValues("fail").Inc()
		log.Printf("[ERROR] Dispatcher: face search for event %d failed: %v", ev.ID, err)
		return
	}
	if alreadyRunning {
		metrics.FaceSearchTotal.WithLabelValues("skipped").Inc()
		log.Printf("[DEBUG] Dispatcher: face search for event %d skipped, job already running for %s", ev.ID, ev.VideoRef)
		return
	}
	metrics.FaceSearchDuration.Observe(d.now().Sub(start).Seconds())
	metrics.FaceSearchTotal.WithLabelValues("success").Inc()

	if len(matches) > 0 {
		rows := consolidateMatches(ev, matches)
		if err := d.visitorLogs.CreateBatch(ctx, rows); err != nil {
			log.Printf("[ERROR] Dispatcher: failed to create visitor logs for event %d: %v", ev.ID, err)
			// Event stays unprocessed; the whole batch is retried next pass.
			return
		}
		for _, row := range rows {
			log.Printf("[DEBUG] Dispatcher: visitor log for %q at event %d, confidence %.2f", row.Person, ev.ID, row.Confidence)
		}
	}

	if err := d.store.MarkProcessed(ctx, ev.ID, d.now()); err != nil {
		log.Printf("[ERROR] Dispatcher: failed to mark event %d processed: %v", ev.ID, err)
	}
}

// consolidateMatches collapses a result set to one row per person at the
// maximum confidence seen. Strictly-greater comparison keeps the first-seen
// match on ties, which makes the output deterministic for a given ordering.
func consolidateMatches(ev StoredEvent, matches []FaceMatch) []VisitorLog {
	best := make(map[string]float64)
	var order []string
	for _, m := range matches {
		if m.Person == "" {
			continue
		}
		cur, ok := best[m.Person]
		if !ok {
			order = append(order, m.Person)
			best[m.Person] = m.Confidence
		} else if m.Confidence > cur {
			best[m.Person] = m.Confidence
		}
	}

	rows := make([]VisitorLog, 0, len(order))
	for _, person := range order {
		rows = append(rows, VisitorLog{
			Camera:     ev.CameraName,
			Person:     person,
			Confidence: best[person],
			VisitedAt:  ev.MotionAt,
		})
	}
	return rows
}

func (d *Dispatcher) claimUpload(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.liveUploads[id]; ok {
		return false
	}
	d.liveUploads[id] = struct{}{}
	return true
}

func (d *Dispatcher) releaseUpload(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.liveUploads, id)
}

func (d *Dispatcher) claimSearch(ref string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.liveSearches[ref]; ok {
		return false
	}
	d.liveSearches[ref] = struct{}{}
	return true
}

func (d *Dispatcher) releaseSearch(ref string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.liveSearches, ref)
}

// submitPause spaces out job submissions so a large backlog does not open
// every outbound connection at once. Not a correctness requirement.
func (d *Dispatcher) submitPause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d.cfg.SubmitDelay):
		return true
	}
}

// LiveUploads reports the number of upload jobs submitted and not yet done.
func (d *Dispatcher) LiveUploads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.liveUploads)
}

// LiveFaceSearches reports pending face-search jobs.
func (d *Dispatcher) LiveFaceSearches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.liveSearches)
}

// RunningUploads reports upload jobs that currently hold a semaphore slot.
func (d *Dispatcher) RunningUploads() int {
	return int(d.runningUploads.Load())
}

// RunningFaceSearches reports face-search jobs holding a semaphore slot.
func (d *Dispatcher) RunningFaceSearches() int {
	return int(d.runningSearches.Load())
}

// WaitIdle blocks until every spawned job has finished or the timeout
// elapses. Used by daemon shutdown; returns false on timeout.
func (d *Dispatcher) WaitIdle(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
