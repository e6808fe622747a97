// Package storage uploads motion clips to the object store over its HTTP
// gateway and hands back a stable reference for the event row.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/go-resty/resty/v2"
)

type BlobStore interface {
	// Upload stores the file at localPath under key and returns the
	// reference to record on the event.
	Upload(ctx context.Context, key, localPath string) (string, error)
}

type HTTPBlobStore struct {
	http   *resty.Client
	bucket string
}

func NewHTTPBlobStore(baseURL, bucket, apiKey string) *HTTPBlobStore {
	r := resty.New()
	r.SetBaseURL(baseURL)
	r.SetTimeout(5 * time.Minute)
	if apiKey != "" {
		r.SetHeader("X-Api-Key", apiKey)
	}
	return &HTTPBlobStore{http: r, bucket: bucket}
}

func (s *HTTPBlobStore) Upload(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening %s for upload: %w", localPath, err)
	}
	defer f.Close()

	target := path.Join("/", s.bucket, key)
	resp, err := s.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "video/mp4").
		SetBody(f).
		Put(target)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("uploading %s returned %d: %s", key, resp.StatusCode(), resp.String())
	}
	return fmt.Sprintf("%s/%s/%s", s.http.BaseURL, s.bucket, key), nil
}
