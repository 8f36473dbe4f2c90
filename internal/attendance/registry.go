package attendance

import (
	"context"
	"time"

	"checkin/internal/clock"
)

// State is the temporal state of a session.
type State int

const (
	StateUpcoming State = iota
	StateActive
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateUpcoming:
		return "UPCOMING"
	case StateActive:
		return "ACTIVE"
	case StateExpired:
		return "EXPIRED"
	}
	return "UNKNOWN"
}

// StateOf is the one predicate every time-window decision goes through.
// Both boundaries belong to the active window.
func StateOf(s Session, now time.Time) State {
	switch {
	case now.Before(s.StartTime):
		return StateUpcoming
	case now.After(s.EndTime):
		return StateExpired
	default:
		return StateActive
	}
}

// SessionReader looks up sessions by id.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (Session, error)
}

// Registry is a read-only view over sessions with their current state.
type Registry struct {
	sessions SessionReader
	clock    clock.Clock
}

// NewRegistry creates a registry.
func NewRegistry(sessions SessionReader, clk clock.Clock) *Registry {
	return &Registry{sessions: sessions, clock: clk}
}

// Lookup returns the session and its state now.
func (r *Registry) Lookup(ctx context.Context, id string) (Session, State, error) {
	s, err := r.sessions.GetSession(ctx, id)
	if err != nil {
		return Session{}, 0, err
	}
	return s, StateOf(s, r.clock.Now()), nil
}

// Active returns the session only while it is in its window.
func (r *Registry) Active(ctx context.Context, id string) (Session, error) {
	s, state, err := r.Lookup(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if state != StateActive {
		return Session{}, ErrSessionNotActive
	}
	return s, nil
}
