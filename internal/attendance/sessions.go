package attendance

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"checkin/internal/audit"
)

// NewSession is the administrator input for opening a session.
type NewSession struct {
	Title     string
	StartTime time.Time
	Latitude  float64
	Longitude float64
	Radius    float64
}

func (n NewSession) validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return invalid("title is required")
	}
	if n.StartTime.IsZero() {
		return invalid("start time is required")
	}
	if math.IsNaN(n.Latitude) || n.Latitude < -90 || n.Latitude > 90 {
		return invalid("latitude must be between -90 and 90")
	}
	if math.IsNaN(n.Longitude) || n.Longitude < -180 || n.Longitude > 180 {
		return invalid("longitude must be between -180 and 180")
	}
	if math.IsNaN(n.Radius) || math.IsInf(n.Radius, 0) || n.Radius <= 0 {
		return invalid("radius must be greater than 0")
	}
	return nil
}

// CreateSession opens a one hour session starting at StartTime.
func (s *Service) CreateSession(ctx context.Context, who Identity, in NewSession) (Session, error) {
	if who.Role != RoleAdmin {
		return Session{}, ErrForbidden
	}
	if err := s.allow(ctx, ActionSessionCreate, who.UserID, s.rules.SessionCreate); err != nil {
		return Session{}, err
	}
	if err := in.validate(); err != nil {
		return Session{}, err
	}

	start := in.StartTime.UTC()
	sess := Session{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(in.Title),
		StartTime: start,
		EndTime:   start.Add(SessionDuration),
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Radius:    in.Radius,
		CreatedBy: who.UserID,
		CreatedAt: s.clock.Now(),
	}
	created, err := s.store.CreateSession(ctx, sess)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	s.metrics.SessionCreated()
	s.emit(ctx, audit.NewEvent(audit.ActionSessionCreate, who.UserID, created.ID, map[string]any{"title": created.Title}, created.CreatedAt))
	return created, nil
}

// SessionSummary pairs a session with its state at listing time.
type SessionSummary struct {
	Session
	State State
}

// ListSessions returns every session, newest first, with its current state.
func (s *Service) ListSessions(ctx context.Context, who Identity) ([]SessionSummary, error) {
	if who.Role != RoleAdmin && who.Role != RoleStudent {
		return nil, ErrForbidden
	}
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	now := s.clock.Now()
	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionSummary{Session: sess, State: StateOf(sess, now)})
	}
	return out, nil
}
