package attendance

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests. It enforces the
// same one-record-per-(user, session) rule as the Postgres schema.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	users    map[string]Student
	records  map[recordKey]Record
}

type recordKey struct {
	userID    string
	sessionID string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		users:    make(map[string]Student),
		records:  make(map[recordKey]Record),
	}
}

// PutStudent adds or replaces a user.
func (m *MemoryStore) PutStudent(st Student) {
	m.mu.Lock()
	m.users[st.UserID] = st
	m.mu.Unlock()
}

// PutSession adds or replaces a session.
func (m *MemoryStore) PutSession(s Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
}

// Record returns the stored record for a pair.
func (m *MemoryStore) Record(userID, sessionID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordKey{userID, sessionID}]
	return rec, ok
}

// RecordCount returns the number of stored records.
func (m *MemoryStore) RecordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// GetSession implements Store.
func (m *MemoryStore) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

// ListSessions implements Store.
func (m *MemoryStore) ListSessions(_ context.Context) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CreateSession implements Store.
func (m *MemoryStore) CreateSession(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// GetStudent implements Store.
func (m *MemoryStore) GetStudent(_ context.Context, userID string) (Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.users[userID]
	if !ok {
		return Student{}, ErrUserNotFound
	}
	return st, nil
}

// StudentsByNIM implements Store.
func (m *MemoryStore) StudentsByNIM(_ context.Context, nims []string) ([]Student, error) {
	want := make(map[string]struct{}, len(nims))
	for _, n := range nims {
		want[n] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Student
	for _, st := range m.users {
		if _, ok := want[st.NIM]; ok && st.NIM != "" {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NIM < out[j].NIM })
	return out, nil
}

// InsertIfAbsent implements Store.
func (m *MemoryStore) InsertIfAbsent(_ context.Context, rec Record) error {
	k := recordKey{rec.UserID, rec.SessionID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[k]; exists {
		return ErrAlreadyCheckedIn
	}
	m.records[k] = rec
	return nil
}

// Upsert implements Store.
func (m *MemoryStore) Upsert(_ context.Context, rec Record) error {
	k := recordKey{rec.UserID, rec.SessionID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, exists := m.records[k]; exists {
		prev.Status = rec.Status
		prev.AttendedAt = rec.AttendedAt
		m.records[k] = prev
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.records[k] = rec
	return nil
}
