package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/halcyon-labs/watchtower/internal/metrics"
)

// LoopState is the persisted lifecycle record, the single source of truth
// for whether the engine should be running. Timestamps are kept as RFC 3339
// strings so a status reader can report a malformed record instead of
// failing to decode it.
type LoopState struct {
	Running     bool   `json:"running"`
	StartTime   string `json:"start_time,omitempty"`
	Completed   *bool  `json:"business_logic_completed"`
	Cancelled   *bool  `json:"business_logic_cancelled"`
	LastUpdated string `json:"last_updated"`
}

// StateStore persists LoopState across process restarts. Single writer (the
// lifecycle manager), many readers (status queries from other processes).
type StateStore interface {
	Save(ctx context.Context, st LoopState) error
	Load(ctx context.Context) (LoopState, error)
}

// Status is the outward-facing lifecycle view consumed by the HTTP/CLI layer.
type Status struct {
	Running   bool   `json:"running"`
	StartTime string `json:"start_time,omitempty"`
	Uptime    string `json:"uptime,omitempty"`
	Completed *bool  `json:"business_logic_completed,omitempty"`
	Cancelled *bool  `json:"business_logic_cancelled,omitempty"`
	Error     string `json:"error,omitempty"`
}

type LifecycleConfig struct {
	StopTimeout time.Duration
}

// loopTask is the handle for one spawned scheduler loop. The stop flag is
// the cooperative cancellation signal checked between cameras and between
// tick iterations; cancel aborts in-flight I/O when the grace period runs
// out. The flag is an atomic so a failed stop() can roll it back.
type loopTask struct {
	stopRequested atomic.Bool
	cancelled     atomic.Bool
	cancel        context.CancelFunc
	done          chan struct{}
}

func (t *loopTask) isDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *loopTask) forceCancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// lifecycleSnapshot captures every mutable manager field for rollback.
type lifecycleSnapshot struct {
	running       bool
	startTime     time.Time
	task          *loopTask
	stopRequested bool
}

// LifecycleManager is the start/stop state machine wrapping the scheduler
// loop. Every transition persists LoopState after the in-memory mutation;
// if persistence fails the mutation is rolled back so memory and store
// never diverge past a single operation.
type LifecycleManager struct {
	scheduler *Scheduler
	registry  *CameraRegistry
	store     StateStore
	cfg       LifecycleConfig

	mu        sync.Mutex
	running   bool
	startTime time.Time
	task      *loopTask

	now func() time.Time
}

func NewLifecycleManager(scheduler *Scheduler, registry *CameraRegistry, store StateStore, cfg LifecycleConfig) *LifecycleManager {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	return &LifecycleManager{
		scheduler: scheduler,
		registry:  registry,
		store:     store,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Start spawns the scheduler loop and persists the running state. A
// persistence failure rolls every in-memory field back to its pre-call
// value, tears down the just-spawned loop, and surfaces the error.
func (m *LifecycleManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		log.Printf("[WARN] Lifecycle: business logic loop is already running")
		return nil
	}

	snap := m.captureLocked()
	now := m.now()

	// Rebaseline poll windows before persisting so a save failure rolls
	// back the flag and the baseline together from the caller's view;
	// repeating the refresh on a retried start is harmless.
	m.registry.RefreshLastPolled(ctx, now)

	log.Printf("[DEBUG] Lifecycle: starting business logic loop")
	m.running = true
	m.startTime = now

	loopCtx, cancel := context.WithCancel(context.Background())
	task := &loopTask{cancel: cancel, done: make(chan struct{})}
	m.task = task
	go func() {
		defer close(task.done)
		m.scheduler.Run(loopCtx, func() bool { return task.stopRequested.Load() })
	}()

	if err := m.saveStateLocked(ctx); err != nil {
		metrics.EngineStartsTotal.WithLabelValues("fail").Inc()
		log.Printf("[ERROR] Lifecycle: error starting business logic loop: %v", err)

		task.stopRequested.Store(true)
		task.forceCancel()
		m.restoreLocked(snap)
		if saveErr := m.saveStateLocked(ctx); saveErr != nil {
			log.Printf("[ERROR] Lifecycle: failed to save rolled back state: %v", saveErr)
			return fmt.Errorf("starting business logic loop: %w (additionally failed to save rolled back state: %v)", err, saveErr)
		}
		return fmt.Errorf("starting business logic loop: %w", err)
	}

	metrics.EngineStartsTotal.WithLabelValues("success").Inc()
	log.Printf("[DEBUG] Lifecycle: business logic loop started")
	return nil
}

// Stop signals cooperative cancellation, persists the stopped state, then
// waits out the grace period before forcing cancellation of the loop.
func (m *LifecycleManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		log.Printf("[WARN] Lifecycle: business logic loop is not running")
		return nil
	}

	snap := m.captureLocked()
	task := m.task

	log.Printf("[DEBUG] Lifecycle: stopping business logic loop")
	m.running = false
	if task != nil {
		task.stopRequested.Store(true)
	}

	if err := m.saveStateLocked(ctx); err != nil {
		metrics.EngineStopsTotal.WithLabelValues("fail").Inc()
		log.Printf("[ERROR] Lifecycle: error stopping business logic loop: %v", err)

		m.restoreLocked(snap)
		if saveErr := m.saveStateLocked(ctx); saveErr != nil {
			log.Printf("[ERROR] Lifecycle: failed to save rolled back state: %v", saveErr)
			return fmt.Errorf("stopping business logic loop: %w (additionally failed to save rolled back state: %v)", err, saveErr)
		}
		return fmt.Errorf("stopping business logic loop: %w", err)
	}

	if task != nil && !task.isDone() {
		m.awaitTask(task)
	}
	m.task = nil

	// Final persisted state must reflect running=false even if the loop
	// had already finished on its own.
	if err := m.saveStateLocked(ctx); err != nil {
		metrics.EngineStopsTotal.WithLabelValues("fail").Inc()
		log.Printf("[ERROR] Lifecycle: failed to save final stopped state: %v", err)
		return fmt.Errorf("saving final stopped state: %w", err)
	}

	metrics.EngineStopsTotal.WithLabelValues("success").Inc()
	log.Printf("[DEBUG] Lifecycle: business logic loop stopped")
	return nil
}

func (m *LifecycleManager) awaitTask(task *loopTask) {
	select {
	case <-task.done:
		log.Printf("[DEBUG] Lifecycle: loop task completed gracefully")
		return
	case <-time.After(m.cfg.StopTimeout):
	}

	log.Printf("[WARN] Lifecycle: loop did not stop within %v, cancelling", m.cfg.StopTimeout)
	task.forceCancel()

	select {
	case <-task.done:
		log.Printf("[DEBUG] Lifecycle: loop task cancelled")
	case <-time.After(5 * time.Second):
		log.Printf("[ERROR] Lifecycle: loop task did not exit after forced cancellation")
	}
}

// GetStatus reads the persisted state, never the in-memory fields, so it
// works from a process that does not own the loop. Operational errors are
// reported in the Error field rather than raised.
func (m *LifecycleManager) GetStatus(ctx context.Context) Status {
	return ReadStatus(ctx, m.store, m.now)
}

// ReadStatus computes a Status from a state store. Exposed separately so
// the CLI can report without constructing a manager.
func ReadStatus(ctx context.Context, store StateStore, now func() time.Time) Status {
	if now == nil {
		now = time.Now
	}

	st, err := store.Load(ctx)
	if err != nil {
		log.Printf("[ERROR] Lifecycle: failed to load persisted state: %v", err)
		return Status{Running: false, Error: err.Error()}
	}

	status := Status{
		Running:   st.Running,
		StartTime: st.StartTime,
		Completed: st.Completed,
		Cancelled: st.Cancelled,
	}
	status.Uptime = computeUptime(st, now())
	return status
}

func computeUptime(st LoopState, now time.Time) string {
	if st.StartTime == "" {
		return ""
	}
	start, err := time.Parse(time.RFC3339Nano, st.StartTime)
	if err != nil {
		log.Printf("[ERROR] Lifecycle: failed to parse timestamps in persisted state: %v", err)
		return "Unknown (invalid timestamps)"
	}

	if st.Running {
		return now.Sub(start).Round(time.Second).String()
	}

	stop := now
	if st.LastUpdated != "" {
		parsed, err := time.Parse(time.RFC3339Nano, st.LastUpdated)
		if err != nil {
			log.Printf("[ERROR] Lifecycle: failed to parse timestamps in persisted state: %v", err)
			return "Unknown (invalid timestamps)"
		}
		stop = parsed
	}
	return stop.Sub(start).Round(time.Second).String() + " (stopped)"
}

func (m *LifecycleManager) captureLocked() lifecycleSnapshot {
	snap := lifecycleSnapshot{
		running:   m.running,
		startTime: m.startTime,
		task:      m.task,
	}
	if m.task != nil {
		snap.stopRequested = m.task.stopRequested.Load()
	}
	return snap
}

func (m *LifecycleManager) restoreLocked(snap lifecycleSnapshot) {
	m.running = snap.running
	m.startTime = snap.startTime
	m.task = snap.task
	if snap.task != nil {
		snap.task.stopRequested.Store(snap.stopRequested)
	}
}

// saveStateLocked persists the current in-memory state. Must be called with
// m.mu held.
func (m *LifecycleManager) saveStateLocked(ctx context.Context) error {
	st := LoopState{
		Running:     m.running,
		LastUpdated: m.now().Format(time.RFC3339Nano),
	}
	if !m.startTime.IsZero() {
		st.StartTime = m.startTime.Format(time.RFC3339Nano)
	}
	if m.task != nil {
		completed := m.task.isDone()
		cancelled := m.task.cancelled.Load()
		st.Completed = &completed
		st.Cancelled = &cancelled
	}
	return m.store.Save(ctx, st)
}
