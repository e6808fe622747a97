// Package ring integrates Ring doorbell and stickup cameras through the
// public Ring HTTP API.
package ring

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/halcyon-labs/watchtower/internal/engine"
)

const (
	defaultAPIBase   = "https://api.ring.com/clients_api"
	defaultOAuthBase = "https://oauth.ring.com"
	oauthClientID    = "ring_official_android"
)

// Client wraps the two Ring endpoints the integration needs: the OAuth token
// service and the clients API. It refreshes the access token on demand and
// serializes token state behind a mutex.
type Client struct {
	api       *resty.Client
	oauth     *resty.Client
	userAgent string

	mu           sync.Mutex
	username     string
	password     string
	refreshToken string
	accessToken  string
	tokenExpires time.Time
}

type ClientConfig struct {
	APIBase   string
	OAuthBase string
	Username  string
	Password  string
	// RefreshToken, when set, is preferred over the password grant.
	RefreshToken string
	UserAgent    string
	Timeout      time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.OAuthBase == "" {
		cfg.OAuthBase = defaultOAuthBase
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "watchtower/1.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	api := resty.New()
	api.SetBaseURL(cfg.APIBase)
	api.SetTimeout(cfg.Timeout)
	api.SetHeader("User-Agent", cfg.UserAgent)

	oauth := resty.New()
	oauth.SetBaseURL(cfg.OAuthBase)
	oauth.SetTimeout(cfg.Timeout)
	oauth.SetHeader("User-Agent", cfg.UserAgent)

	return &Client{
		api:          api,
		oauth:        oauth,
		userAgent:    cfg.UserAgent,
		username:     cfg.Username,
		password:     cfg.Password,
		refreshToken: cfg.RefreshToken,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Authenticate obtains a fresh access token, preferring the refresh-token
// grant. Returns the refresh token to persist (Ring rotates it) and its
// expiry.
func (c *Client) Authenticate(ctx context.Context) (string, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) (string, time.Time, error) {
	form := map[string]string{
		"client_id": oauthClientID,
		"scope":     "client",
	}
	if c.refreshToken != "" {
		form["grant_type"] = "refresh_token"
		form["refresh_token"] = c.refreshToken
	} else {
		form["grant_type"] = "password"
		form["username"] = c.username
		form["password"] = c.password
	}

	resp, err := c.oauth.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&tokenResponse{}).
		Post("/oauth/token")
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: ring token request: %v", engine.ErrVendorCommunication, err)
	}
	if resp.IsError() {
		// 4xx here means the credentials are bad, not that the network
		// hiccuped. Do not mark it transient.
		return "", time.Time{}, fmt.Errorf("ring token request returned %d: %s", resp.StatusCode(), resp.String())
	}

	tok, ok := resp.Result().(*tokenResponse)
	if !ok || tok.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("ring token response missing access token")
	}

	c.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.refreshToken = tok.RefreshToken
	}
	c.tokenExpires = time.Now().UTC().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.refreshToken, c.tokenExpires, nil
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken == "" || time.Now().UTC().After(c.tokenExpires.Add(-time.Minute)) {
		if _, _, err := c.authenticateLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.accessToken, nil
}

// TokenValid reports whether the current access token is usable without a
// refresh round trip.
func (c *Client) TokenValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken != "" && time.Now().UTC().Before(c.tokenExpires)
}

// ClearToken drops the cached tokens.
func (c *Client) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.tokenExpires = time.Time{}
}

// Device is one camera-capable device on the account.
type Device struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	Kind        string  `json:"kind"`
	BatteryLife any     `json:"battery_life"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type devicesResponse struct {
	Doorbots    []Device `json:"doorbots"`
	StickupCams []Device `json:"stickup_cams"`
}

func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.api.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&devicesResponse{}).
		Get("/ring_devices")
	if err != nil {
		return nil, fmt.Errorf("%w: listing ring devices: %v", engine.ErrVendorCommunication, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: listing ring devices returned %d", engine.ErrVendorCommunication, resp.StatusCode())
	}

	result, _ := resp.Result().(*devicesResponse)
	if result == nil {
		return nil, fmt.Errorf("ring devices response had unexpected shape")
	}
	return append(result.Doorbots, result.StickupCams...), nil
}

// HistoryEvent is one ding/motion entry from a device's history feed.
type HistoryEvent struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Answered  bool      `json:"answered"`
}

func (c *Client) History(ctx context.Context, deviceID int64, limit int) ([]HistoryEvent, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	var events []HistoryEvent
	resp, err := c.api.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&events).
		Get(fmt.Sprintf("/doorbots/%d/history", deviceID))
	if err != nil {
		return nil, fmt.Errorf("%w: fetching ring history for device %d: %v", engine.ErrVendorCommunication, deviceID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: ring history for device %d returned %d", engine.ErrVendorCommunication, deviceID, resp.StatusCode())
	}
	return events, nil
}

// DownloadRecording streams the recording for a history event into path.
func (c *Client) DownloadRecording(ctx context.Context, eventID int64, path string) error {
	token, err := c.bearer(ctx)
	if err != nil {
		return err
	}

	resp, err := c.api.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetDoNotParseResponse(true).
		Get(fmt.Sprintf("/dings/%d/recording", eventID))
	if err != nil {
		return fmt.Errorf("%w: downloading recording %d: %v", engine.ErrVendorCommunication, eventID, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 400 {
		return fmt.Errorf("%w: recording %d returned %d", engine.ErrVendorCommunication, eventID, resp.StatusCode())
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("%w: writing recording %d: %v", engine.ErrVendorCommunication, eventID, err)
	}
	return nil
}
