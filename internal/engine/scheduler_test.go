package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval:   10 * time.Millisecond,
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	}
}

func newTestScheduler(t *testing.T, store *memEventStore, pub Publisher) (*Scheduler, *CameraRegistry, *SessionRegistry) {
	t.Helper()
	registry := NewCameraRegistry(nil)
	sessions := NewSessionRegistry()
	s := NewScheduler(registry, sessions, store, nil, pub, testSchedulerConfig())
	return s, registry, sessions
}

func TestScheduler_PollGating(t *testing.T) {
	store := newMemEventStore()
	s, registry, _ := newTestScheduler(t, store, nil)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	cam := newMockCamera("ring", "Front Door", time.Minute)
	require.NoError(t, registry.Register(ctx, cam))

	// Interval not elapsed: no retrieval, last_polled untouched.
	require.NoError(t, registry.UpdateLastPolled(ctx, "ring", "Front Door", base.Add(-30*time.Second)))
	s.RunTick(ctx)
	assert.Equal(t, 0, cam.calls())

	entry, _ := registry.Get("ring", "Front Door")
	assert.Equal(t, base.Add(-30*time.Second), entry.LastPolled)

	// Interval elapsed: retrieval happens and last_polled advances.
	require.NoError(t, registry.UpdateLastPolled(ctx, "ring", "Front Door", base.Add(-61*time.Second)))
	s.RunTick(ctx)
	assert.Equal(t, 1, cam.calls())

	entry, _ = registry.Get("ring", "Front Door")
	assert.Equal(t, base, entry.LastPolled)
}

func TestScheduler_PollWindowFromLastPolled(t *testing.T) {
	store := newMemEventStore()
	s, registry, _ := newTestScheduler(t, store, nil)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	var gotFrom, gotTo time.Time
	cam := newMockCamera("ring", "Front Door", time.Minute)
	cam.RetrieveFunc = func(ctx context.Context, from, to time.Time) ([]MotionEvent, error) {
		gotFrom, gotTo = from, to
		return nil, nil
	}
	require.NoError(t, registry.Register(ctx, cam))
	require.NoError(t, registry.UpdateLastPolled(ctx, "ring", "Front Door", base.Add(-2*time.Minute)))

	s.RunTick(ctx)
	assert.Equal(t, base.Add(-2*time.Minute), gotFrom)
	assert.Equal(t, base, gotTo)
}

func TestScheduler_DuplicateEventsSuppressed(t *testing.T) {
	store := newMemEventStore()
	pub := &mockPublisher{}
	s, registry, _ := newTestScheduler(t, store, pub)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	cam := newMockCamera("ring", "Front Door", time.Minute)
	cam.events = []MotionEvent{{
		EventID:    "ev-100",
		Vendor:     "ring",
		CameraName: "Front Door",
		OccurredAt: base.Add(-10 * time.Second),
	}}
	require.NoError(t, registry.Register(ctx, cam))

	// The vendor re-reports the same event on consecutive polls.
	for i := 0; i < 3; i++ {
		require.NoError(t, registry.UpdateLastPolled(ctx, "ring", "Front Door", now.Add(-2*time.Minute)))
		s.RunTick(ctx)
		now = now.Add(time.Minute)
	}

	assert.Equal(t, 1, store.count())
	assert.Equal(t, 1, pub.published())
}

func TestScheduler_SameEventIDAcrossCamerasBothPersist(t *testing.T) {
	store := newMemEventStore()
	pub := &mockPublisher{}
	s, registry, _ := newTestScheduler(t, store, pub)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	// Some vendors hand out event ids that are only unique per camera.
	front := newMockCamera("ring", "Front Door", time.Minute)
	front.events = []MotionEvent{{
		EventID:    "ev-100",
		Vendor:     "ring",
		CameraName: "Front Door",
		OccurredAt: base.Add(-10 * time.Second),
	}}
	back := newMockCamera("ring", "Back Door", time.Minute)
	back.events = []MotionEvent{{
		EventID:    "ev-100",
		Vendor:     "ring",
		CameraName: "Back Door",
		OccurredAt: base.Add(-5 * time.Second),
	}}
	require.NoError(t, registry.Register(ctx, front))
	require.NoError(t, registry.Register(ctx, back))
	require.NoError(t, registry.UpdateLastPolled(ctx, "ring", "Front Door", base.Add(-2*time.Minute)))
	require.NoError(t, registry.UpdateLastPolled(ctx, "ring", "Back Door", base.Add(-2*time.Minute)))

	s.RunTick(ctx)

	assert.Equal(t, 2, store.count())
	assert.Equal(t, 2, pub.published())
}

func TestScheduler_EmptyEventIDSkipped(t *testing.T) {
	store := newMemEventStore()
	s, registry, _ := newTestScheduler(t, store, nil)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	cam := newMockCamera("ring", "Front Door", time.Minute)
	cam.events = []MotionEvent{
		{EventID: "", Vendor: "ring", CameraName: "Front Door", OccurredAt: base},
		{EventID: "ev-1", Vendor: "ring", CameraName: "Front Door", OccurredAt: base},
	}
	require.NoError(t, registry.Register(ctx, cam))
	require.NoError(t, registry.UpdateLastPolled(ctx, "ring", "Front Door", base.Add(-2*time.Minute)))

	s.RunTick(ctx)
	assert.Equal(t, 1, store.count())
}

func TestScheduler_TransientErrorRetried(t *testing.T) {
	store := newMemEventStore()
	s, registry, sessions := newTestScheduler(t, store, nil)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	sess := &mockSession{healthy: true}
	sessions.Register("ring", sess)

	attempts := 0
	cam := newMockCamera("ring", "Front Door", time.Minute)
	cam.RetrieveFunc = func(ctx context.Context, from, to time.Time) ([]MotionEvent, error) {
		attempts++
		if attempts < 3 {
			return nil, fmt.Errorf("%w: connection reset", ErrVendorCommunication)
		}
		return []MotionEvent{{EventID: "ev-1", Vendor: "ring", CameraName: "Front Door", OccurredAt: base}}, nil
	}
	require.NoError(t, registry.Register(ctx, cam))
	require.NoError(t, registry.UpdateLastPolled(ctx, "ring", "Front Door", base.Add(-2*time.Minute)))

	s.RunTick(ctx)

	assert.Equal(t, 3, attempts)
	assert.Equal(t, 1, store.count())

	entry, _ := registry.Get("ring", "Front Door")
	assert.Equal(t, CameraActive, entry.Status)
}

func TestScheduler_NonTransientErrorNotRetried(t *testing.T) {
	store := newMemEventStore()
	s, registry, sessions := newTestScheduler(t, store, nil)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	sessions.Register("ring", &mockSession{healthy: true})

	cam := newMockCamera("ring", "Front Door", time.Minute)
	cam.retrieveErr = errors.New("bad credentials")
	require.NoError(t, registry.Register(ctx, cam))
	require.NoError(t, registry.UpdateLastPolled(ctx, "ring", "Front Door", base.Add(-2*time.Minute)))

	s.RunTick(ctx)

	assert.Equal(t, 1, cam.calls())

	// Session is healthy, so only the failing camera is degraded and its
	// poll window stays put for the next tick.
	entry, _ := registry.Get("ring", "Front Door")
	assert.Equal(t, CameraInactive, entry.Status)
	assert.Equal(t, base.Add(-2*time.Minute), entry.LastPolled)
}

func TestScheduler_UnhealthyVendorCascades(t *testing.T) {
	store := newMemEventStore()
	s, registry, sessions := newTestScheduler(t, store, nil)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	ringSess := &mockSession{healthy: false}
	sessions.Register("ring", ringSess)
	sessions.Register("nest", &mockSession{healthy: true})
	require.NoError(t, sessions.UpdateStatus("ring", VendorActive))
	require.NoError(t, sessions.UpdateStatus("nest", VendorActive))

	failing := newMockCamera("ring", "Front Door", time.Minute)
	failing.retrieveErr = fmt.Errorf("%w: timeout", ErrVendorCommunication)
	sibling := newMockCamera("ring", "Backyard", time.Hour)
	other := newMockCamera("nest", "Garage", time.Hour)

	for _, cam := range []*mockCamera{failing, sibling, other} {
		require.NoError(t, registry.Register(ctx, cam))
	}
	require.NoError(t, registry.UpdateLastPolled(ctx, "ring", "Front Door", base.Add(-2*time.Minute)))

	s.RunTick(ctx)

	// Every ring camera goes inactive, the other vendor is untouched.
	for _, name := range []string{"Front Door", "Backyard"} {
		entry, _ := registry.Get("ring", name)
		assert.Equal(t, CameraInactive, entry.Status, name)
	}
	entry, _ := registry.Get("nest", "Garage")
	assert.Equal(t, CameraActive, entry.Status)

	sess, err := sessions.Get("ring")
	require.NoError(t, err)
	assert.Equal(t, VendorInactive, sess.Status)

	sess, err = sessions.Get("nest")
	require.NoError(t, err)
	assert.Equal(t, VendorActive, sess.Status)
}

func TestScheduler_InactiveCamerasNotPolled(t *testing.T) {
	store := newMemEventStore()
	s, registry, _ := newTestScheduler(t, store, nil)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	cam := newMockCamera("ring", "Front Door", time.Minute)
	require.NoError(t, registry.Register(ctx, cam))
	require.NoError(t, registry.UpdateLastPolled(ctx, "ring", "Front Door", base.Add(-2*time.Minute)))
	require.NoError(t, registry.UpdateStatus(ctx, "ring", "Front Door", CameraInactive))

	s.RunTick(ctx)
	assert.Equal(t, 0, cam.calls())
}

func TestScheduler_RunStopsOnFlag(t *testing.T) {
	store := newMemEventStore()
	s, _, _ := newTestScheduler(t, store, nil)

	var stopped atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(context.Background(), stopped.Load)
	}()

	time.Sleep(25 * time.Millisecond)
	stopped.Store(true)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after flag was raised")
	}
}
