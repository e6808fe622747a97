// Package natspub fans freshly stored motion events out over NATS so other
// services (alerting, dashboards) see them without polling the database.
package natspub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/halcyon-labs/watchtower/internal/engine"
)

type Publisher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
}

func New(conn *nats.Conn, subject string, maxRetries int) *Publisher {
	return &Publisher{
		conn:       conn,
		subject:    subject,
		maxRetries: maxRetries,
	}
}

func (p *Publisher) Publish(ev engine.MotionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	// Subject per vendor so consumers can subscribe selectively,
	// e.g. watchtower.events.ring.
	subject := fmt.Sprintf("%s.%s", p.subject, ev.Vendor)

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(subject, data)
		if err == nil {
			return nil
		}

		// Backoff
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}

	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}

var _ engine.Publisher = (*Publisher)(nil)
