package engine

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DedupCache is a fast-path duplicate filter consulted before the
// authoritative (camera_name, event_id) uniqueness check in the event store.
// It bounds the per-tick database chatter when a vendor re-reports a
// recently-seen window.
type DedupCache struct {
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
}

func NewDedupCache(maxKeys int, ttl time.Duration) *DedupCache {
	c, _ := lru.New[string, time.Time](maxKeys)
	return &DedupCache{cache: c, ttl: ttl}
}

// Seen reports whether key was observed within the TTL window, and records
// the observation either way.
func (d *DedupCache) Seen(key string) bool {
	if addedAt, ok := d.cache.Get(key); ok {
		if time.Since(addedAt) < d.ttl {
			return true
		}
	}
	d.cache.Add(key, time.Now())
	return false
}

func eventDedupKey(ev MotionEvent) string {
	return fmt.Sprintf("%s|%s", ev.CameraName, ev.EventID)
}
