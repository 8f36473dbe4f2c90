// Package audit ships administrative and check-in events from the API to the worker,
// which persists them.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"checkin/internal/queue"
)

// MessageType tags audit messages on the shared queue.
const MessageType = "audit"

// Actions recorded by the service.
const (
	ActionCheckIn       = "attendance.checkin"
	ActionBulk          = "attendance.bulk"
	ActionSessionCreate = "attendance.session.create"
)

// Event is one audit entry. Actors are stored hashed.
type Event struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	ActorHash string         `json:"actorHash"`
	SessionID string         `json:"sessionId,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	At        time.Time      `json:"at"`
}

// NewEvent builds an event for actorID, hashing the actor.
func NewEvent(action, actorID, sessionID string, detail map[string]any, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Action:    action,
		ActorHash: HashActor(actorID),
		SessionID: sessionID,
		Detail:    detail,
		At:        at.UTC(),
	}
}

// HashActor returns the hex SHA-256 of an actor identifier.
func HashActor(actorID string) string {
	sum := sha256.Sum256([]byte(actorID))
	return hex.EncodeToString(sum[:])
}

// Sink accepts events. Emitting never fails the caller.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Publisher is a Sink that pushes events onto a queue.
type Publisher struct {
	q       queue.Queue
	timeout time.Duration
}

// NewPublisher creates a publisher on q.
func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q, timeout: 2 * time.Second}
}

// Emit implements Sink. The request context's cancellation is ignored so that events for
// completed requests are still delivered.
func (p *Publisher) Emit(ctx context.Context, e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		log.Printf("audit: encode %s failed: %v", e.Action, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.q.Publish(ctx, queue.Message{Type: MessageType, Body: body}); err != nil {
		log.Printf("audit: publish %s failed: %v", e.Action, err)
	}
}
