package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	snaps := &memSnapshotStore{}
	r := NewCameraRegistry(snaps)
	ctx := context.Background()

	cam := newMockCamera("ring", "Front Door", time.Minute)
	require.NoError(t, r.Register(ctx, cam))

	entry, ok := r.Get("ring", "Front Door")
	require.True(t, ok)
	assert.Equal(t, CameraActive, entry.Status)
	assert.False(t, entry.LastPolled.IsZero())

	assert.Len(t, r.ListAll(), 1)
	assert.Len(t, r.ListActive(), 1)
	assert.Equal(t, 1, snaps.saves)
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewCameraRegistry(nil)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, newMockCamera("ring", "Front Door", time.Minute)))
	err := r.Register(ctx, newMockCamera("ring", "Front Door", time.Minute))
	assert.ErrorIs(t, err, ErrDuplicateCamera)
	assert.Len(t, r.ListAll(), 1)
}

func TestRegistry_MissingIdentity(t *testing.T) {
	r := NewCameraRegistry(nil)

	cam := newMockCamera("ring", "", time.Minute)
	err := r.Register(context.Background(), cam)
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewCameraRegistry(nil)
	ctx := context.Background()

	assert.ErrorIs(t, r.Unregister(ctx, "ring", "Front Door"), ErrCameraNotFound)

	require.NoError(t, r.Register(ctx, newMockCamera("ring", "Front Door", time.Minute)))
	require.NoError(t, r.Unregister(ctx, "ring", "Front Door"))
	assert.Len(t, r.ListAll(), 0)
}

func TestRegistry_UpdateStatus(t *testing.T) {
	snaps := &memSnapshotStore{}
	r := NewCameraRegistry(snaps)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, newMockCamera("ring", "Front Door", time.Minute)))
	require.NoError(t, r.UpdateStatus(ctx, "ring", "Front Door", CameraInactive))

	entry, _ := r.Get("ring", "Front Door")
	assert.Equal(t, CameraInactive, entry.Status)
	assert.Empty(t, r.ListActive())

	// Snapshot written on each mutation, final one reflects the new status.
	require.NotEmpty(t, snaps.last)
	assert.Equal(t, string(CameraInactive), snaps.last[0].Status)
}

func TestRegistry_SnapshotFailureDoesNotBlock(t *testing.T) {
	snaps := &memSnapshotStore{Err: assert.AnError}
	r := NewCameraRegistry(snaps)

	err := r.Register(context.Background(), newMockCamera("ring", "Front Door", time.Minute))
	assert.NoError(t, err)
	_, ok := r.Get("ring", "Front Door")
	assert.True(t, ok)
}

func TestRegistry_ListByVendor(t *testing.T) {
	r := NewCameraRegistry(nil)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, newMockCamera("ring", "Front Door", time.Minute)))
	require.NoError(t, r.Register(ctx, newMockCamera("ring", "Backyard", time.Minute)))
	require.NoError(t, r.Register(ctx, newMockCamera("nest", "Garage", time.Minute)))

	assert.Len(t, r.ListByVendor("ring"), 2)
	assert.Len(t, r.ListByVendor("nest"), 1)
	assert.Empty(t, r.ListByVendor("wyze"))
}

func TestRegistry_RefreshLastPolled(t *testing.T) {
	r := NewCameraRegistry(nil)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, newMockCamera("ring", "Front Door", time.Minute)))
	require.NoError(t, r.Register(ctx, newMockCamera("ring", "Backyard", time.Minute)))

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	r.RefreshLastPolled(ctx, base)

	for _, name := range []string{"Front Door", "Backyard"} {
		entry, ok := r.Get("ring", name)
		require.True(t, ok)
		assert.Equal(t, base, entry.LastPolled)
	}
}
