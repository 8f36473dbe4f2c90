package attendance

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// SessionDuration is the fixed length of a session window.
const SessionDuration = time.Hour

// Role is the capability carried by an authenticated identity.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleAdmin   Role = "ADMIN"
)

// Identity is the authenticated caller, provided by the auth layer.
type Identity struct {
	UserID string
	Role   Role
}

// Session is a time-boxed, geofenced attendance window. Immutable after creation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Radius    float64   `json:"radius"`
	CreatedBy string    `json:"createdById"`
	CreatedAt time.Time `json:"createdAt"`
}

// Student is a user resolved together with their roster membership.
type Student struct {
	UserID string
	Email  string
	Name   string
	NIM    string
	Role   Role
	Active bool
}

// Status is the closed set of attendance outcomes.
type Status uint8

const (
	StatusPresent Status = iota + 1
	StatusExcused
	StatusAbsent
)

// String returns the storage value.
func (s Status) String() string {
	switch s {
	case StatusPresent:
		return "PRESENT"
	case StatusExcused:
		return "EXCUSED"
	case StatusAbsent:
		return "ABSENT"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	return s >= StatusPresent && s <= StatusAbsent
}

// ParseStatus parses a storage value.
func ParseStatus(v string) (Status, error) {
	switch v {
	case "PRESENT":
		return StatusPresent, nil
	case "EXCUSED":
		return StatusExcused, nil
	case "ABSENT":
		return StatusAbsent, nil
	}
	return 0, fmt.Errorf("unknown attendance status %q", v)
}

// Value implements driver.Valuer.
func (s Status) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid attendance status %d", uint8(s))
	}
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *Status) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Status", src)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Record is one attendance row. At most one exists per (UserID, SessionID).
type Record struct {
	ID         string
	UserID     string
	SessionID  string
	Status     Status
	AttendedAt *time.Time
}
