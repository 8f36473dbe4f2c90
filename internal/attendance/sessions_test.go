package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start := time.Date(2025, 3, 1, 13, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	sess, err := f.svc.CreateSession(ctx, admin, NewSession{
		Title:     "  Basis Data ",
		StartTime: start,
		Latitude:  campus.Lat,
		Longitude: campus.Lon,
		Radius:    75,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "Basis Data", sess.Title)
	assert.Equal(t, time.UTC, sess.StartTime.Location())
	assert.Equal(t, SessionDuration, sess.EndTime.Sub(sess.StartTime))
	assert.Equal(t, adminID, sess.CreatedBy)

	stored, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, stored)
}

func TestCreateSession_rejects(t *testing.T) {
	ctx := context.Background()
	ok := NewSession{Title: "X", StartTime: sessionStart, Latitude: 1, Longitude: 1, Radius: 50}

	t.Run("students cannot open sessions", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateSession(ctx, student, ok)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	bad := map[string]func(*NewSession){
		"blank title":     func(n *NewSession) { n.Title = " " },
		"no start":        func(n *NewSession) { n.StartTime = time.Time{} },
		"latitude":        func(n *NewSession) { n.Latitude = -91 },
		"longitude":       func(n *NewSession) { n.Longitude = 200 },
		"zero radius":     func(n *NewSession) { n.Radius = 0 },
		"negative radius": func(n *NewSession) { n.Radius = -5 },
	}
	for name, mutate := range bad {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			in := ok
			mutate(&in)
			_, err := f.svc.CreateSession(ctx, admin, in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestCreateSession_rateLimited(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		_, err := f.svc.CreateSession(context.Background(), admin, NewSession{})
		require.ErrorIs(t, err, ErrInvalidInput)
	}
	_, err := f.svc.CreateSession(context.Background(), admin, NewSession{})
	var rl *RateLimitedError
	assert.ErrorAs(t, err, &rl)
}

func TestListSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	later, err := f.svc.CreateSession(ctx, admin, NewSession{
		Title: "Besok", StartTime: sessionStart.Add(24 * time.Hour), Latitude: campus.Lat, Longitude: campus.Lon, Radius: 100,
	})
	require.NoError(t, err)

	for _, who := range []Identity{admin, student} {
		list, err := f.svc.ListSessions(ctx, who)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, later.ID, list[0].ID, "newest first")
		assert.Equal(t, StateUpcoming, list[0].State)
		assert.Equal(t, sessionID, list[1].ID)
		assert.Equal(t, StateActive, list[1].State)
	}

	_, err = f.svc.ListSessions(ctx, Identity{UserID: "x", Role: "GUEST"})
	assert.ErrorIs(t, err, ErrForbidden)
}
