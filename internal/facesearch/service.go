// Package facesearch calls the face recognition backend for uploaded motion
// clips and guards against the same clip being searched twice concurrently.
package facesearch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/halcyon-labs/watchtower/internal/engine"
)

type Config struct {
	BaseURL      string
	APIKey       string
	CollectionID string
	Timeout      time.Duration
}

type Service struct {
	http  *resty.Client
	cfg   Config
	guard *engine.JobGuard
}

func New(cfg Config, guard *engine.JobGuard) *Service {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	r := resty.New()
	r.SetBaseURL(cfg.BaseURL)
	r.SetTimeout(cfg.Timeout)
	r.SetHeader("Content-Type", "application/json")
	r.SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		r.SetHeader("X-Api-Key", cfg.APIKey)
	}

	return &Service{http: r, cfg: cfg, guard: guard}
}

type searchRequest struct {
	VideoRef     string `json:"video_ref"`
	CollectionID string `json:"collection_id"`
}

type searchResponse struct {
	Matches []struct {
		Person     string  `json:"person"`
		Confidence float64 `json:"confidence"`
	} `json:"matches"`
}

// StartSearch runs face recognition against the clip behind videoRef. When a
// search for the same clip is already in flight it returns alreadyRunning
// without touching the backend.
func (s *Service) StartSearch(ctx context.Context, videoRef string) ([]engine.FaceMatch, bool, error) {
	if !s.guard.TryStart(videoRef) {
		log.Printf("[DEBUG] FaceSearch: search already running for %s, skipping", videoRef)
		return nil, true, nil
	}
	defer s.guard.Finish(videoRef)

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(searchRequest{VideoRef: videoRef, CollectionID: s.cfg.CollectionID}).
		SetResult(&searchResponse{}).
		Post("/v1/searches")
	if err != nil {
		return nil, false, fmt.Errorf("face search request for %s: %w", videoRef, err)
	}
	if resp.IsError() {
		return nil, false, fmt.Errorf("face search for %s returned %d: %s", videoRef, resp.StatusCode(), resp.String())
	}

	result, ok := resp.Result().(*searchResponse)
	if !ok {
		return nil, false, fmt.Errorf("face search for %s: unexpected response shape", videoRef)
	}

	matches := make([]engine.FaceMatch, 0, len(result.Matches))
	for _, m := range result.Matches {
		matches = append(matches, engine.FaceMatch{Person: m.Person, Confidence: m.Confidence})
	}
	return matches, false, nil
}

var _ engine.FaceSearchService = (*Service)(nil)
