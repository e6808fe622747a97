package ring

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/halcyon-labs/watchtower/internal/engine"
	"github.com/halcyon-labs/watchtower/internal/vendors"
)

const (
	vendorName     = "ring"
	historyLimit   = 50
	defaultPollGap = 60 * time.Second
)

// Camera adapts one Ring device to the engine's camera surface.
type Camera struct {
	client       *Client
	device       Device
	pollInterval time.Duration
	deps         vendors.Deps
}

func NewCamera(client *Client, device Device, pollInterval time.Duration, deps vendors.Deps) *Camera {
	if pollInterval <= 0 {
		pollInterval = defaultPollGap
	}
	return &Camera{client: client, device: device, pollInterval: pollInterval, deps: deps}
}

func (c *Camera) Vendor() string              { return vendorName }
func (c *Camera) Name() string                { return c.device.Description }
func (c *Camera) PollInterval() time.Duration { return c.pollInterval }

func (c *Camera) GetProperties(ctx context.Context) (map[string]any, error) {
	return map[string]any{
		"name":         c.device.Description,
		"kind":         c.device.Kind,
		"device_id":    c.device.ID,
		"battery_life": c.device.BatteryLife,
	}, nil
}

// RetrieveEvents returns the motion entries from the device history that fall
// inside [from, to).
func (c *Camera) RetrieveEvents(ctx context.Context, from, to time.Time) ([]engine.MotionEvent, error) {
	history, err := c.client.History(ctx, c.device.ID, historyLimit)
	if err != nil {
		return nil, err
	}

	var out []engine.MotionEvent
	for _, h := range history {
		if h.Kind != "motion" && h.Kind != "ding" {
			continue
		}
		at := h.CreatedAt.UTC()
		if at.Before(from) || !at.Before(to) {
			continue
		}
		out = append(out, engine.MotionEvent{
			EventID:    strconv.FormatInt(h.ID, 10),
			Vendor:     vendorName,
			CameraName: c.device.Description,
			OccurredAt: at,
			Metadata: map[string]any{
				"kind":      h.Kind,
				"device_id": c.device.ID,
				"answered":  h.Answered,
			},
		})
	}
	return out, nil
}

// RetrieveVideoAndUpload downloads the event's recording, normalizes it, and
// pushes it to the blob store, then records the reference on the event row.
func (c *Camera) RetrieveVideoAndUpload(ctx context.Context, ev engine.StoredEvent) error {
	recordingID, err := strconv.ParseInt(ev.EventID, 10, 64)
	if err != nil {
		return fmt.Errorf("ring event id %q is not numeric: %w", ev.EventID, err)
	}

	tmpDir, err := os.MkdirTemp("", "watchtower-ring-*")
	if err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	raw := filepath.Join(tmpDir, "raw.mp4")
	if err := c.client.DownloadRecording(ctx, recordingID, raw); err != nil {
		return err
	}

	upload := raw
	if c.deps.Converter != nil {
		normalized := filepath.Join(tmpDir, "normalized.mp4")
		if err := c.deps.Converter.Convert(ctx, raw, normalized); err != nil {
			return err
		}
		upload = normalized
	}

	key := fmt.Sprintf("%s/%s/%s.mp4", vendorName, c.device.Description, ev.EventID)
	ref, err := c.deps.Blobs.Upload(ctx, key, upload)
	if err != nil {
		return err
	}

	if err := c.deps.Events.SetVideoRef(ctx, ev.ID, ref, time.Now().UTC()); err != nil {
		return fmt.Errorf("recording video ref for event %d: %w", ev.ID, err)
	}
	log.Printf("[DEBUG] Ring camera (%s): uploaded recording for event %s", c.device.Description, ev.EventID)
	return nil
}

func (c *Camera) IsHealthy(ctx context.Context) bool {
	return c.client.TokenValid()
}

var _ engine.CameraSource = (*Camera)(nil)
