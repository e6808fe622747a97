package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/halcyon-labs/watchtower/internal/metrics"
)

type SchedulerConfig struct {
	TickInterval   time.Duration
	HeartbeatTicks int
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	DedupCacheSize int
	DedupTTL       time.Duration
}

// Scheduler drives one shared tick across all registered cameras. Each tick
// it polls every active camera whose poll interval has elapsed, funnels the
// collected events through duplicate suppression into the event store, then
// hands control to the dispatcher for upload and face-search passes.
//
// Per-camera time gating from the last successful poll keeps cameras with
// different intervals correctly staggered on a single tick and retries a
// failed window unchanged on the next tick.
type Scheduler struct {
	registry   *CameraRegistry
	sessions   *SessionRegistry
	store      EventStore
	dispatcher *Dispatcher
	pub        Publisher
	dedup      *DedupCache
	cfg        SchedulerConfig

	now func() time.Time
}

func NewScheduler(registry *CameraRegistry, sessions *SessionRegistry, store EventStore, dispatcher *Dispatcher, pub Publisher, cfg SchedulerConfig) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.HeartbeatTicks <= 0 {
		cfg.HeartbeatTicks = 60
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 2 * time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupCacheSize <= 0 {
		cfg.DedupCacheSize = 4096
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 10 * time.Minute
	}
	return &Scheduler{
		registry:   registry,
		sessions:   sessions,
		store:      store,
		dispatcher: dispatcher,
		pub:        pub,
		dedup:      NewDedupCache(cfg.DedupCacheSize, cfg.DedupTTL),
		cfg:        cfg,
		now:        time.Now,
	}
}

// Run executes the tick loop until the stop flag is raised or ctx is
// cancelled. The stop flag is the cooperative signal checked between ticks
// and between cameras; ctx cancellation is the forced path that also aborts
// in-flight vendor I/O. The lifecycle manager owns the goroutine this runs
// on.
func (s *Scheduler) Run(ctx context.Context, stopped func() bool) {
	if stopped == nil {
		stopped = func() bool { return false }
	}

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	heartbeat := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("[DEBUG] Scheduler: loop cancelled")
			return
		case <-ticker.C:
			if stopped() {
				log.Printf("[DEBUG] Scheduler: stop requested, exiting loop")
				return
			}
			heartbeat++
			if heartbeat >= s.cfg.HeartbeatTicks {
				log.Printf("[HEARTBEAT] Scheduler: polling loop is running")
				heartbeat = 0
			}
			s.runTick(ctx, stopped)
		}
	}
}

// RunTick performs one full scheduler iteration.
func (s *Scheduler) RunTick(ctx context.Context) {
	s.runTick(ctx, func() bool { return false })
}

func (s *Scheduler) runTick(ctx context.Context, stopped func() bool) {
	now := s.now()
	var batch []MotionEvent

	for _, cam := range s.registry.ListActive() {
		// Cancellation is checked between cameras so stop() never waits
		// on the whole fleet.
		if ctx.Err() != nil || stopped() {
			return
		}
		s.pollCamera(ctx, cam, now, &batch)
	}

	if len(batch) > 0 {
		s.insertBatch(ctx, batch)
	}

	if s.dispatcher != nil {
		s.dispatcher.DispatchUploads(ctx)
		s.dispatcher.DispatchFaceSearches(ctx)
	}
}

func (s *Scheduler) pollCamera(ctx context.Context, cam CameraSource, now time.Time, batch *[]MotionEvent) {
	props, err := cam.GetProperties(ctx)
	if err != nil {
		log.Printf("[ERROR] Scheduler (%s/%s): failed to fetch properties: %v", cam.Vendor(), cam.Name(), err)
		metrics.PollErrorsTotal.WithLabelValues(cam.Vendor()).Inc()
		s.handleCameraError(ctx, cam, cam.Name())
		return
	}
	name, _ := props["name"].(string)
	if name == "" {
		name = cam.Name()
	}

	entry, ok := s.registry.Get(cam.Vendor(), name)
	if !ok {
		log.Printf("[WARN] Scheduler: camera %s/%s not in registry, skipping", cam.Vendor(), name)
		return
	}

	if now.Sub(entry.LastPolled) <= cam.PollInterval() {
		// Interval not elapsed; camera re-validated but not re-polled.
		return
	}

	events, err := s.retrieveWithRetry(ctx, cam, entry.LastPolled, now)
	if err != nil {
		log.Printf("[ERROR] Scheduler (%s/%s): failed to retrieve motion events after retries: %v", cam.Vendor(), name, err)
		metrics.PollErrorsTotal.WithLabelValues(cam.Vendor()).Inc()
		// last_polled stays put so the next tick retries the same window.
		s.handleCameraError(ctx, cam, name)
		return
	}

	*batch = append(*batch, events...)
	if err := s.registry.UpdateLastPolled(ctx, cam.Vendor(), name, now); err != nil {
		log.Printf("[ERROR] Scheduler (%s/%s): failed to update last polled: %v", cam.Vendor(), name, err)
	}
}

// retrieveWithRetry retries transient vendor failures with exponential
// backoff before giving up and letting the error handler degrade the camera.
func (s *Scheduler) retrieveWithRetry(ctx context.Context, cam CameraSource, from, to time.Time) ([]MotionEvent, error) {
	delay := s.cfg.RetryBaseDelay
	var lastErr error

	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		events, err := cam.RetrieveEvents(ctx, from, to)
		if err == nil {
			return events, nil
		}
		lastErr = err
		if !errors.Is(err, ErrVendorCommunication) || attempt == s.cfg.RetryAttempts {
			break
		}
		log.Printf("[WARN] Scheduler (%s/%s): retrieve attempt %d failed: %v", cam.Vendor(), cam.Name(), attempt, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.cfg.RetryMaxDelay {
			delay = s.cfg.RetryMaxDelay
		}
	}
	return nil, lastErr
}

// handleCameraError applies the fault-isolation policy: an unhealthy vendor
// session silences every camera of that vendor; a healthy session degrades
// only the failing camera.
func (s *Scheduler) handleCameraError(ctx context.Context, cam CameraSource, name string) {
	vendor := cam.Vendor()

	sess, err := s.sessions.Get(vendor)
	if err == nil && !sess.Session.IsHealthy(ctx) {
		log.Printf("[WARN] Scheduler: vendor %s session unhealthy, deactivating all its cameras", vendor)
		if err := s.sessions.UpdateStatus(vendor, VendorInactive); err != nil {
			log.Printf("[ERROR] Scheduler: failed to update session status for %s: %v", vendor, err)
		}
		for _, c := range s.registry.ListByVendor(vendor) {
			if err := s.registry.UpdateStatus(ctx, vendor, c.Name(), CameraInactive); err != nil {
				log.Printf("[ERROR] Scheduler: failed to deactivate camera %s/%s: %v", vendor, c.Name(), err)
			}
		}
		return
	}
	if err != nil {
		log.Printf("[ERROR] Scheduler: no session registered for vendor %s: %v", vendor, err)
	}

	if err := s.registry.UpdateStatus(ctx, vendor, name, CameraInactive); err != nil {
		log.Printf("[ERROR] Scheduler: failed to deactivate camera %s/%s: %v", vendor, name, err)
	}
}

func (s *Scheduler) insertBatch(ctx context.Context, batch []MotionEvent) {
	for _, ev := range batch {
		if ev.EventID == "" {
			log.Printf("[WARN] Scheduler: event from camera %s missing vendor event id, skipping", ev.CameraName)
			continue
		}
		if s.dedup.Seen(eventDedupKey(ev)) {
			metrics.EventsDuplicateTotal.Inc()
			continue
		}

		inserted, err := s.store.InsertIfAbsent(ctx, ev)
		if err != nil {
			log.Printf("[ERROR] Scheduler: failed to store event %s for camera %s: %v", ev.EventID, ev.CameraName, err)
			continue
		}
		if !inserted {
			metrics.EventsDuplicateTotal.Inc()
			continue
		}
		metrics.EventsInsertedTotal.Inc()

		if s.pub != nil {
			if err := s.pub.Publish(ev); err != nil {
				log.Printf("[WARN] Scheduler: failed to publish event %s: %v", ev.EventID, err)
			}
		}
	}
}
