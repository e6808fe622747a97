// Package statestore persists the poll-loop lifecycle state so a restarted
// daemon (or the CLI) can report status without the loop running.
package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/halcyon-labs/watchtower/internal/engine"
)

type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Save(ctx context.Context, st engine.LoopState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding loop state: %w", err)
	}

	// Write-then-rename so a crash mid-write never leaves a torn file.
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing loop state: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Load(ctx context.Context) (engine.LoopState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st engine.LoopState
	data, err := os.ReadFile(s.path)
	if err != nil {
		return st, fmt.Errorf("reading loop state: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("decoding loop state: %w", err)
	}
	return st, nil
}
