// Package vendors holds the camera vendor integrations. Each integration
// registers itself by plugin name and produces a session plus the cameras
// reachable through that session.
package vendors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/halcyon-labs/watchtower/internal/engine"
	"github.com/halcyon-labs/watchtower/internal/storage"
	"github.com/halcyon-labs/watchtower/internal/transcode"
)

// Account carries the decrypted credentials for one vendor integration.
type Account struct {
	Plugin       string
	Username     string
	Password     string
	RefreshToken string
	BaseURL      string
	UserAgent    string
	PollInterval time.Duration
}

// Deps is what an adapter needs to complete upload jobs and persist rotated
// credentials.
type Deps struct {
	Events    engine.EventStore
	Blobs     storage.BlobStore
	Converter *transcode.Converter

	// SaveToken persists a rotated refresh token for the plugin. Optional.
	SaveToken func(ctx context.Context, plugin, refreshToken string, expires time.Time) error
}

// Factory builds a logged-out session and the camera sources behind it.
type Factory func(acct Account, deps Deps) (engine.VendorSession, []engine.CameraSource, error)

// Registry of adapter factories
var Registry = map[string]Factory{}

// Register adds a factory for a plugin name
func Register(plugin string, f Factory) {
	Registry[strings.ToLower(plugin)] = f
}

// Build returns an initialized session and cameras for the account's plugin.
func Build(ctx context.Context, acct Account, deps Deps) (engine.VendorSession, []engine.CameraSource, error) {
	factory, ok := Registry[strings.ToLower(acct.Plugin)]
	if !ok {
		return nil, nil, fmt.Errorf("unknown vendor plugin %q", acct.Plugin)
	}

	session, cameras, err := factory(acct, deps)
	if err != nil {
		return nil, nil, fmt.Errorf("building %s adapter: %w", acct.Plugin, err)
	}
	if err := session.Login(ctx); err != nil {
		return nil, nil, fmt.Errorf("logging in to %s: %w", acct.Plugin, err)
	}
	return session, cameras, nil
}
