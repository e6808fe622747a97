package engine

import (
	"sync"
	"time"
)

type VendorStatus string

const (
	VendorActive   VendorStatus = "ACTIVE"
	VendorInactive VendorStatus = "INACTIVE"
)

// SessionEntry holds the connection state for one vendor integration.
type SessionEntry struct {
	Vendor    string
	Session   VendorSession
	Status    VendorStatus
	Token     string
	ExpiresAt *time.Time
}

// SessionRegistry keeps one session entry per vendor. Registering the same
// vendor twice replaces the prior entry entirely.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*SessionEntry
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*SessionEntry)}
}

func (r *SessionRegistry) Register(vendor string, session VendorSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[vendor] = &SessionEntry{
		Vendor:  vendor,
		Session: session,
		Status:  VendorInactive,
	}
}

func (r *SessionRegistry) Get(vendor string) (SessionEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[vendor]
	if !ok {
		return SessionEntry{}, ErrSessionNotFound
	}
	return *e, nil
}

func (r *SessionRegistry) ListAll() []SessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SessionEntry, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, *e)
	}
	return out
}

func (r *SessionRegistry) UpdateStatus(vendor string, status VendorStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[vendor]
	if !ok {
		return ErrSessionNotFound
	}
	e.Status = status
	return nil
}

func (r *SessionRegistry) SetToken(vendor, token string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[vendor]
	if !ok {
		return ErrSessionNotFound
	}
	e.Token = token
	e.ExpiresAt = expiresAt
	return nil
}
