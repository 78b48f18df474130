package kiosk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTooManySessions is returned by Open when MaxSessions are already open.
var ErrTooManySessions = errors.New("too many open sessions")

// Registry owns the open sessions of a shell and expires idle ones.
type Registry struct {
	cfg     Config
	ttl     time.Duration
	onClose func(id string)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. Sessions idle for longer than ttl are
// closed by Sweep; onClose, if set, runs after a session is removed.
func NewRegistry(cfg Config, ttl time.Duration, onClose func(id string)) *Registry {
	return &Registry{
		cfg:      cfg.withDefaults(),
		ttl:      ttl,
		onClose:  onClose,
		sessions: map[string]*Session{},
	}
}

// Open starts a session with a new random id. newSink builds the effect sink
// for that id.
func (r *Registry) Open(newSink func(id string) Sink) (*Session, error) {
	id := uuid.NewString()

	r.mu.Lock()
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, ErrTooManySessions
	}
	s := NewSession(id, r.cfg, newSink(id))
	r.sessions[id] = s
	r.mu.Unlock()

	r.cfg.Metrics.SessionOpened()
	r.cfg.Logger.Debug("session opened", "session", id)
	return s, nil
}

// Get returns an open session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close removes and closes a session. It reports whether the id was open.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return false
	}

	s.Close()
	r.cfg.Metrics.SessionClosed()
	if r.onClose != nil {
		r.onClose(id)
	}
	return true
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the ttl and returns how many.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.cfg.Now().Add(-r.ttl)

	r.mu.Lock()
	var idle []string
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, id := range idle {
		if r.Close(id) {
			n++
		}
	}
	if n > 0 {
		r.cfg.Logger.Info("expired idle sessions", "count", n)
	}
	return n
}

// Run sweeps every interval until ctx is done, then closes all sessions.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			r.CloseAll()
			return nil
		}
	}
}

// CloseAll closes every open session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Close(id)
	}
}
