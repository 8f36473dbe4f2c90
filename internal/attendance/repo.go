package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, title, start_time, end_time, latitude, longitude, radius, created_by, created_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.Title, &s.StartTime, &s.EndTime, &s.Latitude, &s.Longitude, &s.Radius, &s.CreatedBy, &s.CreatedAt)
	if err != nil {
		return Session{}, err
	}
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

// GetSession returns a session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Session{}, ErrSessionNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

// ListSessions returns sessions newest first.
func (r *Repository) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// CreateSession inserts a session.
func (r *Repository) CreateSession(ctx context.Context, s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions (id, title, start_time, end_time, latitude, longitude, radius, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, s.ID, s.Title, s.StartTime, s.EndTime, s.Latitude, s.Longitude, s.Radius, s.CreatedBy)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return Session{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

// GetStudent loads a user with their roster state.
func (r *Repository) GetStudent(ctx context.Context, userID string) (Student, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return Student{}, ErrUserNotFound
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, COALESCE(u.name, ''), COALESCE(u.nim, ''), u.role, COALESCE(sr.is_active, FALSE)
		FROM users u
		LEFT JOIN student_roster sr ON sr.nim = u.nim
		WHERE u.id = $1
	`, userID)
	var st Student
	if err := row.Scan(&st.UserID, &st.Email, &st.Name, &st.NIM, &st.Role, &st.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrUserNotFound
		}
		return Student{}, err
	}
	return st, nil
}

// StudentsByNIM resolves student numbers to users. Unknown numbers are simply absent.
func (r *Repository) StudentsByNIM(ctx context.Context, nims []string) ([]Student, error) {
	if len(nims) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.email, COALESCE(u.name, ''), u.nim, u.role, COALESCE(sr.is_active, FALSE)
		FROM users u
		LEFT JOIN student_roster sr ON sr.nim = u.nim
		WHERE u.nim = ANY($1)
	`, nims)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.UserID, &st.Email, &st.Name, &st.NIM, &st.Role, &st.Active); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

// InsertIfAbsent writes a new record and relies on the (user_id, session_id) unique
// constraint to reject a second one.
func (r *Repository) InsertIfAbsent(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, user_id, session_id, status, attended_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.UserID, rec.SessionID, rec.Status, nullableTime(rec.AttendedAt))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyCheckedIn
	}
	return err
}

// Upsert creates the record or overwrites its status and timestamp.
func (r *Repository) Upsert(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, user_id, session_id, status, attended_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, session_id) DO UPDATE SET
			status = EXCLUDED.status,
			attended_at = EXCLUDED.attended_at,
			updated_at = NOW()
	`, rec.ID, rec.UserID, rec.SessionID, rec.Status, nullableTime(rec.AttendedAt))
	return err
}

// GetRecord returns the record for a (user, session) pair, nil when absent.
func (r *Repository) GetRecord(ctx context.Context, userID, sessionID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, session_id, status, attended_at
		FROM attendance_records WHERE user_id = $1 AND session_id = $2
	`, userID, sessionID)
	var rec Record
	var attended sql.NullTime
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &rec.Status, &attended); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if attended.Valid {
		t := attended.Time.UTC()
		rec.AttendedAt = &t
	}
	return &rec, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
