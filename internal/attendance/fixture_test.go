package attendance

import (
	"math"
	"testing"
	"time"

	"checkin/internal/clock"
	"checkin/internal/geo"
	"checkin/internal/nonce"
	"checkin/internal/ratelimit"
)

var (
	campus       = geo.Point{Lat: -5.3852, Lon: 105.2714}
	sessionStart = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
)

const (
	sessionID = "9b7c1c9e-3f7e-4d6a-9a43-0c1f2b7d5e10"
	studentID = "5f0e6f52-6a1c-4c1e-8d53-2b8f1f9a7c01"
	adminID   = "0c3d2b1a-9f8e-4d7c-b6a5-4e3d2c1b0a99"
)

type fixture struct {
	svc    *Service
	store  *MemoryStore
	clock  *clock.Manual
	broker *nonce.Broker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewManual(sessionStart.Add(30 * time.Minute))
	store := NewMemoryStore()
	store.PutSession(Session{
		ID:        sessionID,
		Title:     "Algoritma",
		StartTime: sessionStart,
		EndTime:   sessionStart.Add(SessionDuration),
		Latitude:  campus.Lat,
		Longitude: campus.Lon,
		Radius:    100,
		CreatedBy: adminID,
		CreatedAt: sessionStart.Add(-time.Hour),
	})
	store.PutStudent(Student{UserID: studentID, Email: "2117051001@students.example.ac.id", NIM: "2117051001", Role: RoleStudent, Active: true})
	store.PutStudent(Student{UserID: adminID, Email: "admin@example.ac.id", Role: RoleAdmin})

	broker := nonce.NewBroker(nonce.NewMemoryStore(clk), clk, nonce.DefaultMaxTTL)
	limiter := ratelimit.New(ratelimit.NewMemoryCounter(clk))
	svc := NewService(store, limiter, broker, clk, Options{})
	return &fixture{svc: svc, store: store, clock: clk, broker: broker}
}

var (
	student = Identity{UserID: studentID, Role: RoleStudent}
	admin   = Identity{UserID: adminID, Role: RoleAdmin}
)

// north returns a point the given distance due north of p.
func north(p geo.Point, meters float64) geo.Point {
	return geo.Point{Lat: p.Lat + meters/geo.EarthRadiusMeters*180/math.Pi, Lon: p.Lon}
}
