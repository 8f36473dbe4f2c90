package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"checkin/internal/queue"
)

// Writer persists events.
type Writer interface {
	Write(ctx context.Context, e Event) error
}

// Repository writes events to the audit_log table.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Write inserts e; redelivered events are ignored.
func (r *Repository) Write(ctx context.Context, e Event) error {
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("encode detail: %w", err)
	}
	var sessionID any
	if e.SessionID != "" {
		sessionID = e.SessionID
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, actor_hash, session_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Action, e.ActorHash, sessionID, string(detail), e.At)
	return err
}

// LogWriter writes events as log lines. Used when no database is attached.
type LogWriter struct{}

// Write implements Writer.
func (LogWriter) Write(_ context.Context, e Event) error {
	log.Printf("[audit] %s actor=%s session=%s detail=%v", e.Action, e.ActorHash, e.SessionID, e.Detail)
	return nil
}

// MultiWriter writes to every writer in order and returns the first error.
type MultiWriter []Writer

// Write implements Writer.
func (m MultiWriter) Write(ctx context.Context, e Event) error {
	var first error
	for _, w := range m {
		if err := w.Write(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Consume drains audit messages from q into w until ctx ends. Malformed messages and
// write failures are logged and skipped.
func Consume(ctx context.Context, q queue.Queue, w Writer) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	for msg := range messages {
		if msg.Type != MessageType {
			continue
		}
		var e Event
		if err := json.Unmarshal(msg.Body, &e); err != nil {
			log.Printf("audit: drop malformed message: %v", err)
			continue
		}
		if err := w.Write(ctx, e); err != nil {
			log.Printf("audit: write %s (%s) failed: %v", e.ID, e.Action, err)
		}
	}
	return nil
}
