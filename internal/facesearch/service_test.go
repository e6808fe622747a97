package facesearch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-labs/watchtower/internal/engine"
	"github.com/halcyon-labs/watchtower/internal/facesearch"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestStartSearch_ReturnsMatches(t *testing.T) {
	var gotBody map[string]string
	srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/searches", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"matches": []map[string]any{
				{"person": "Alice", "confidence": 0.93},
			},
		})
	})

	svc := facesearch.New(facesearch.Config{
		BaseURL:      srv.URL,
		APIKey:       "secret",
		CollectionID: "household",
	}, engine.NewJobGuard())

	matches, alreadyRunning, err := svc.StartSearch(context.Background(), "blob/ev.mp4")
	require.NoError(t, err)
	assert.False(t, alreadyRunning)
	require.Len(t, matches, 1)
	assert.Equal(t, engine.FaceMatch{Person: "Alice", Confidence: 0.93}, matches[0])

	assert.Equal(t, "blob/ev.mp4", gotBody["video_ref"])
	assert.Equal(t, "household", gotBody["collection_id"])
}

func TestStartSearch_BackendError(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	})

	svc := facesearch.New(facesearch.Config{BaseURL: srv.URL}, engine.NewJobGuard())

	_, alreadyRunning, err := svc.StartSearch(context.Background(), "blob/ev.mp4")
	assert.Error(t, err)
	assert.False(t, alreadyRunning)
}

func TestStartSearch_ConcurrentDuplicateRefHitsBackendOnce(t *testing.T) {
	var backendCalls atomic.Int32
	release := make(chan struct{})
	srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		backendCalls.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"matches":[]}`))
	})

	svc := facesearch.New(facesearch.Config{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	}, engine.NewJobGuard())

	started := make(chan struct{})
	var skipped atomic.Int32
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		close(started)
		_, _, err := svc.StartSearch(context.Background(), "blob/shared.mp4")
		assert.NoError(t, err)
	}()

	<-started
	// Give the first search time to claim the ref and reach the backend.
	for backendCalls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, alreadyRunning, err := svc.StartSearch(context.Background(), "blob/shared.mp4")
			assert.NoError(t, err)
			if alreadyRunning {
				skipped.Add(1)
			}
		}()
	}

	// Let the duplicates hit the guard before the first search finishes.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), backendCalls.Load())
	assert.Equal(t, int32(5), skipped.Load())
}

func TestStartSearch_SequentialSameRefAllowed(t *testing.T) {
	var backendCalls atomic.Int32
	srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		backendCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"matches":[]}`))
	})

	svc := facesearch.New(facesearch.Config{BaseURL: srv.URL}, engine.NewJobGuard())

	for i := 0; i < 2; i++ {
		_, alreadyRunning, err := svc.StartSearch(context.Background(), "blob/ev.mp4")
		require.NoError(t, err)
		assert.False(t, alreadyRunning)
	}
	assert.Equal(t, int32(2), backendCalls.Load())
}
