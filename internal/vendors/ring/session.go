package ring

import (
	"context"
	"log"
	"time"

	"github.com/halcyon-labs/watchtower/internal/engine"
	"github.com/halcyon-labs/watchtower/internal/vendors"
)

// TokenSaver persists a rotated refresh token. Nil is allowed; rotation is
// then kept in memory only.
type TokenSaver func(ctx context.Context, refreshToken string, expires time.Time) error

// Session is the account-level Ring connection shared by all its cameras.
type Session struct {
	client    *Client
	saveToken TokenSaver
	loggedIn  bool
}

func NewSession(client *Client, saveToken TokenSaver) *Session {
	return &Session{client: client, saveToken: saveToken}
}

func (s *Session) Login(ctx context.Context) error {
	refresh, expires, err := s.client.Authenticate(ctx)
	if err != nil {
		return err
	}
	s.loggedIn = true

	if s.saveToken != nil && refresh != "" {
		if err := s.saveToken(ctx, refresh, expires); err != nil {
			// The session works either way; losing the rotation only
			// forces a password grant after the next restart.
			log.Printf("[WARN] Ring session: persisting refresh token failed: %v", err)
		}
	}
	return nil
}

func (s *Session) Logout(ctx context.Context) (bool, error) {
	if !s.loggedIn {
		return false, nil
	}
	s.client.ClearToken()
	s.loggedIn = false
	return true, nil
}

func (s *Session) IsHealthy(ctx context.Context) bool {
	if !s.loggedIn {
		return false
	}
	if s.client.TokenValid() {
		return true
	}
	// Expired token: try one refresh before declaring the vendor down.
	if _, _, err := s.client.Authenticate(ctx); err != nil {
		log.Printf("[WARN] Ring session: health refresh failed: %v", err)
		return false
	}
	return true
}

var _ engine.VendorSession = (*Session)(nil)

func init() {
	vendors.Register("ring", func(acct vendors.Account, deps vendors.Deps) (engine.VendorSession, []engine.CameraSource, error) {
		client := NewClient(ClientConfig{
			APIBase:      acct.BaseURL,
			Username:     acct.Username,
			Password:     acct.Password,
			RefreshToken: acct.RefreshToken,
			UserAgent:    acct.UserAgent,
		})
		var saver TokenSaver
		if deps.SaveToken != nil {
			saver = func(ctx context.Context, token string, expires time.Time) error {
				return deps.SaveToken(ctx, acct.Plugin, token, expires)
			}
		}
		session := NewSession(client, saver)

		devices, err := client.Devices(context.Background())
		if err != nil {
			return nil, nil, err
		}

		cameras := make([]engine.CameraSource, 0, len(devices))
		for _, dev := range devices {
			cameras = append(cameras, NewCamera(client, dev, acct.PollInterval, deps))
		}
		return session, cameras, nil
	})
}
