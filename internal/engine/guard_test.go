package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobGuard_ClaimRelease(t *testing.T) {
	g := NewJobGuard()

	assert.True(t, g.TryStart("clip-1"))
	assert.False(t, g.TryStart("clip-1"))
	assert.True(t, g.TryStart("clip-2"))
	assert.Equal(t, 2, g.Len())

	g.Finish("clip-1")
	assert.True(t, g.TryStart("clip-1"))

	// Finish on an unclaimed key is a no-op.
	g.Finish("never-claimed")
	assert.Equal(t, 2, g.Len())
}

func TestJobGuard_ConcurrentClaim(t *testing.T) {
	g := NewJobGuard()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryStart("clip-1") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, g.Len())
}

func TestDedupCache_Seen(t *testing.T) {
	d := NewDedupCache(16, time.Minute)

	assert.False(t, d.Seen("cam|ev1"))
	assert.True(t, d.Seen("cam|ev1"))
	assert.False(t, d.Seen("cam|ev2"))
}
