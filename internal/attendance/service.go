package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"checkin/internal/audit"
	"checkin/internal/clock"
	"checkin/internal/geo"
	"checkin/internal/metrics"
	"checkin/internal/nonce"
	"checkin/internal/ratelimit"
)

// Action classes used for rate limiting. Each has its own window.
const (
	ActionNonce         = "attendance-checkin-nonce"
	ActionCheckIn       = "attendance-checkin"
	ActionBulk          = "attendance-bulk"
	ActionSessionCreate = "attendance-sessions-create"
)

// Store is the durable side of attendance. InsertIfAbsent and Upsert are deliberately
// separate: students can only ever create their record, admins may overwrite it.
type Store interface {
	SessionReader
	ListSessions(ctx context.Context) ([]Session, error)
	CreateSession(ctx context.Context, s Session) (Session, error)
	GetStudent(ctx context.Context, userID string) (Student, error)
	StudentsByNIM(ctx context.Context, nims []string) ([]Student, error)
	// InsertIfAbsent returns ErrAlreadyCheckedIn when a record for the pair exists.
	InsertIfAbsent(ctx context.Context, rec Record) error
	Upsert(ctx context.Context, rec Record) error
}

// Rules are the per-action rate limits.
type Rules struct {
	Nonce         ratelimit.Rule
	CheckIn       ratelimit.Rule
	Bulk          ratelimit.Rule
	SessionCreate ratelimit.Rule
}

// DefaultRules mirrors the limits of the web client this service backs.
func DefaultRules() Rules {
	return Rules{
		Nonce:         ratelimit.PerMinute(30),
		CheckIn:       ratelimit.PerMinute(10),
		Bulk:          ratelimit.PerMinute(15),
		SessionCreate: ratelimit.PerMinute(10),
	}
}

// Options tunes a Service. Zero values select defaults.
type Options struct {
	Rules          Rules
	BatchSize      int
	MaxIdentifiers int
	Audit          audit.Sink
	Metrics        *metrics.Metrics
}

const (
	defaultBatchSize      = 20
	defaultMaxIdentifiers = 200
)

// Service coordinates nonce issuance, check-in and administrative writes.
type Service struct {
	store    Store
	registry *Registry
	limiter  *ratelimit.Limiter
	broker   *nonce.Broker
	clock    clock.Clock

	rules          Rules
	batchSize      int
	maxIdentifiers int
	audit          audit.Sink
	metrics        *metrics.Metrics
}

// NewService wires a service.
func NewService(store Store, limiter *ratelimit.Limiter, broker *nonce.Broker, clk clock.Clock, opts Options) *Service {
	if opts.Rules == (Rules{}) {
		opts.Rules = DefaultRules()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxIdentifiers <= 0 {
		opts.MaxIdentifiers = defaultMaxIdentifiers
	}
	return &Service{
		store:          store,
		registry:       NewRegistry(store, clk),
		limiter:        limiter,
		broker:         broker,
		clock:          clk,
		rules:          opts.Rules,
		batchSize:      opts.BatchSize,
		maxIdentifiers: opts.MaxIdentifiers,
		audit:          opts.Audit,
		metrics:        opts.Metrics,
	}
}

// Registry exposes the session view used for gating.
func (s *Service) Registry() *Registry { return s.registry }

// CheckInRequest is what a student submits.
type CheckInRequest struct {
	SessionID string
	Nonce     string
	Latitude  float64
	Longitude float64
}

func (r CheckInRequest) validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return invalid("session id is required")
	}
	if strings.TrimSpace(r.Nonce) == "" {
		return invalid("nonce is required")
	}
	if math.IsNaN(r.Latitude) || math.IsInf(r.Latitude, 0) || r.Latitude < -90 || r.Latitude > 90 {
		return invalid("latitude must be between -90 and 90")
	}
	if math.IsNaN(r.Longitude) || math.IsInf(r.Longitude, 0) || r.Longitude < -180 || r.Longitude > 180 {
		return invalid("longitude must be between -180 and 180")
	}
	return nil
}

// CheckInResult is returned on success.
type CheckInResult struct {
	Distance int
}

// IssueNonce hands a student a fresh single-use token for an active session.
func (s *Service) IssueNonce(ctx context.Context, who Identity, sessionID string) (string, error) {
	if who.Role != RoleStudent {
		return "", ErrForbidden
	}
	if err := s.allow(ctx, ActionNonce, who.UserID, s.rules.Nonce); err != nil {
		return "", err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", invalid("session id is required")
	}
	student, err := s.resolveStudent(ctx, who.UserID)
	if err != nil {
		return "", err
	}
	sess, err := s.registry.Active(ctx, sessionID)
	if err != nil {
		return "", err
	}

	token, err := s.broker.Issue(ctx, student.UserID, sess.ID, sess.StartTime, sess.EndTime)
	if errors.Is(err, nonce.ErrOutsideWindow) {
		return "", ErrSessionNotActive
	}
	if err != nil {
		return "", err
	}
	s.metrics.NonceIssued()
	return token, nil
}

// CheckIn marks the caller present. Steps run in a fixed order and stop at the first
// failure; the nonce is consumed before the geofence check so a rejected attempt cannot
// be replayed.
func (s *Service) CheckIn(ctx context.Context, who Identity, req CheckInRequest) (CheckInResult, error) {
	res, err := s.checkIn(ctx, who, req)
	s.metrics.CheckIn(Outcome(err))
	return res, err
}

func (s *Service) checkIn(ctx context.Context, who Identity, req CheckInRequest) (CheckInResult, error) {
	if who.Role != RoleStudent {
		return CheckInResult{}, ErrForbidden
	}
	if err := s.allow(ctx, ActionCheckIn, who.UserID, s.rules.CheckIn); err != nil {
		return CheckInResult{}, err
	}
	if err := req.validate(); err != nil {
		return CheckInResult{}, err
	}
	student, err := s.resolveStudent(ctx, who.UserID)
	if err != nil {
		return CheckInResult{}, err
	}
	sess, err := s.registry.Active(ctx, strings.TrimSpace(req.SessionID))
	if err != nil {
		return CheckInResult{}, err
	}

	ok, err := s.broker.Consume(ctx, student.UserID, sess.ID, strings.TrimSpace(req.Nonce))
	if err != nil {
		return CheckInResult{}, err
	}
	if !ok {
		return CheckInResult{}, ErrInvalidNonce
	}

	dist := geo.DistanceMeters(req.Latitude, req.Longitude, sess.Latitude, sess.Longitude)
	if dist > sess.Radius {
		return CheckInResult{}, &OutOfRangeError{Distance: dist, Radius: sess.Radius}
	}

	now := s.clock.Now()
	rec := Record{
		ID:         uuid.NewString(),
		UserID:     student.UserID,
		SessionID:  sess.ID,
		Status:     StatusPresent,
		AttendedAt: &now,
	}
	if err := s.store.InsertIfAbsent(ctx, rec); err != nil {
		if errors.Is(err, ErrAlreadyCheckedIn) {
			return CheckInResult{}, ErrAlreadyCheckedIn
		}
		return CheckInResult{}, fmt.Errorf("insert attendance: %w", err)
	}

	meters := int(math.Round(dist))
	s.emit(ctx, audit.NewEvent(audit.ActionCheckIn, student.UserID, sess.ID, map[string]any{"distance": meters}, now))
	return CheckInResult{Distance: meters}, nil
}

// resolveStudent loads the caller and checks roster membership.
func (s *Service) resolveStudent(ctx context.Context, userID string) (Student, error) {
	st, err := s.store.GetStudent(ctx, userID)
	if err != nil {
		return Student{}, err
	}
	if st.NIM == "" {
		return Student{}, ErrMissingNIM
	}
	if !st.Active {
		return Student{}, ErrInactiveStudent
	}
	return st, nil
}

func (s *Service) allow(ctx context.Context, action, identity string, rule ratelimit.Rule) error {
	d, err := s.limiter.Check(ctx, action, identity, rule)
	if err != nil {
		return err
	}
	if !d.Allowed {
		s.metrics.RateLimited(action)
		return &RateLimitedError{Action: action, RetryAfter: d.RetryAfter}
	}
	return nil
}

func (s *Service) emit(ctx context.Context, e audit.Event) {
	if s.audit != nil {
		s.audit.Emit(ctx, e)
	}
}

// Outcome maps a check-in error to a stable metric label.
func Outcome(err error) string {
	var oor *OutOfRangeError
	var rl *RateLimitedError
	switch {
	case err == nil:
		return "OK"
	case errors.As(err, &oor):
		return "OUT_OF_RANGE"
	case errors.As(err, &rl):
		return "RATE_LIMIT"
	case errors.Is(err, ErrInvalidNonce):
		return "INVALID_NONCE"
	case errors.Is(err, ErrAlreadyCheckedIn):
		return "ALREADY_CHECKED_IN"
	case errors.Is(err, ErrSessionNotActive):
		return "SESSION_NOT_ACTIVE"
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrUserNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrInactiveStudent):
		return "FORBIDDEN"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMissingNIM):
		return "BAD_REQUEST"
	default:
		return "ERROR"
	}
}
