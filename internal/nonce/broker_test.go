package nonce

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/internal/clock"
)

var (
	sessionStart = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	sessionEnd   = sessionStart.Add(time.Hour)
)

// storeCase builds a store plus a way to let time pass for it.
type storeCase struct {
	name  string
	build func(t *testing.T, clk *clock.Manual) (Store, func(time.Duration))
}

func storeCases() []storeCase {
	return []storeCase{
		{
			name: "memory",
			build: func(t *testing.T, clk *clock.Manual) (Store, func(time.Duration)) {
				return NewMemoryStore(clk), clk.Advance
			},
		},
		{
			name: "redis",
			build: func(t *testing.T, clk *clock.Manual) (Store, func(time.Duration)) {
				mr := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = client.Close() })
				return NewRedisStore(client), func(d time.Duration) {
					clk.Advance(d)
					mr.FastForward(d)
				}
			},
		},
	}
}

func TestBroker(t *testing.T) {
	ctx := context.Background()

	for _, sc := range storeCases() {
		t.Run(sc.name, func(t *testing.T) {
			newBroker := func(t *testing.T) (*Broker, func(time.Duration)) {
				clk := clock.NewManual(sessionStart.Add(30 * time.Minute))
				store, advance := sc.build(t, clk)
				return NewBroker(store, clk, DefaultMaxTTL), advance
			}

			t.Run("consume succeeds exactly once", func(t *testing.T) {
				b, _ := newBroker(t)
				tok, err := b.Issue(ctx, "u1", "s1", sessionStart, sessionEnd)
				require.NoError(t, err)
				assert.Len(t, tok, 43)

				ok, err := b.Consume(ctx, "u1", "s1", tok)
				require.NoError(t, err)
				assert.True(t, ok)

				ok, err = b.Consume(ctx, "u1", "s1", tok)
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("reissue invalidates previous token", func(t *testing.T) {
				b, _ := newBroker(t)
				first, err := b.Issue(ctx, "u1", "s1", sessionStart, sessionEnd)
				require.NoError(t, err)
				second, err := b.Issue(ctx, "u1", "s1", sessionStart, sessionEnd)
				require.NoError(t, err)
				assert.NotEqual(t, first, second)

				ok, err := b.Consume(ctx, "u1", "s1", first)
				require.NoError(t, err)
				assert.False(t, ok)

				// the mismatched attempt burned the live token as well
				ok, err = b.Consume(ctx, "u1", "s1", second)
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("tokens are scoped to user and session", func(t *testing.T) {
				b, _ := newBroker(t)
				tok, err := b.Issue(ctx, "u1", "s1", sessionStart, sessionEnd)
				require.NoError(t, err)

				ok, _ := b.Consume(ctx, "u2", "s1", tok)
				assert.False(t, ok)
				ok, _ = b.Consume(ctx, "u1", "s2", tok)
				assert.False(t, ok)
				ok, _ = b.Consume(ctx, "u1", "s1", tok)
				assert.True(t, ok, "foreign attempts must not touch the owner's key")
			})

			t.Run("empty token never matches", func(t *testing.T) {
				b, _ := newBroker(t)
				_, err := b.Issue(ctx, "u1", "s1", sessionStart, sessionEnd)
				require.NoError(t, err)
				ok, err := b.Consume(ctx, "u1", "s1", "")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("expired token is rejected", func(t *testing.T) {
				b, advance := newBroker(t)
				tok, err := b.Issue(ctx, "u1", "s1", sessionStart, sessionEnd)
				require.NoError(t, err)

				advance(DefaultMaxTTL + time.Second)
				ok, err := b.Consume(ctx, "u1", "s1", tok)
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("ttl never outlives the session", func(t *testing.T) {
				b, advance := newBroker(t)
				// 30 seconds before the session ends
				advance(29*time.Minute + 30*time.Second)
				tok, err := b.Issue(ctx, "u1", "s1", sessionStart, sessionEnd)
				require.NoError(t, err)

				advance(31 * time.Second)
				ok, err := b.Consume(ctx, "u1", "s1", tok)
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("concurrent consumers see one match", func(t *testing.T) {
				b, _ := newBroker(t)
				tok, err := b.Issue(ctx, "u1", "s1", sessionStart, sessionEnd)
				require.NoError(t, err)

				var wins atomic.Int32
				var wg sync.WaitGroup
				for i := 0; i < 20; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						if ok, err := b.Consume(ctx, "u1", "s1", tok); err == nil && ok {
							wins.Add(1)
						}
					}()
				}
				wg.Wait()
				assert.Equal(t, int32(1), wins.Load())
			})
		})
	}
}

func TestBroker_outsideWindow(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(sessionStart.Add(-time.Second))
	b := NewBroker(NewMemoryStore(clk), clk, 0)

	_, err := b.Issue(ctx, "u1", "s1", sessionStart, sessionEnd)
	assert.ErrorIs(t, err, ErrOutsideWindow)

	clk.Set(sessionEnd)
	_, err = b.Issue(ctx, "u1", "s1", sessionStart, sessionEnd)
	assert.ErrorIs(t, err, ErrOutsideWindow)
}

func TestBroker_redisKeyCarriesTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	clk := clock.NewManual(sessionEnd.Add(-45 * time.Second))
	b := NewBroker(NewRedisStore(client), clk, time.Minute)

	tok, err := b.Issue(context.Background(), "u1", "s1", sessionStart, sessionEnd)
	require.NoError(t, err)

	got, err := mr.Get(Key("u1", "s1"))
	require.NoError(t, err)
	assert.Equal(t, tok, got)
	assert.Equal(t, 45*time.Second, mr.TTL(Key("u1", "s1")))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func TestBroker_randomFailure(t *testing.T) {
	clk := clock.NewManual(sessionStart)
	b := NewBroker(NewMemoryStore(clk), clk, 0)
	b.random = failingReader{}

	_, err := b.Issue(context.Background(), "u1", "s1", sessionStart, sessionEnd)
	assert.Error(t, err)
}

func TestBroker_deterministicRandom(t *testing.T) {
	clk := clock.NewManual(sessionStart)
	b := NewBroker(NewMemoryStore(clk), clk, 0)
	b.random = bytes.NewReader(make([]byte, tokenBytes))

	tok, err := b.Issue(context.Background(), "u1", "s1", sessionStart, sessionEnd)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("A", 43), tok)
}

func TestMemoryStore_sweep(t *testing.T) {
	clk := clock.NewManual(sessionStart)
	s := NewMemoryStore(clk)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", "1", time.Second))
	require.NoError(t, s.Put(ctx, "b", "2", time.Hour))

	clk.Advance(2 * time.Second)
	assert.Equal(t, 1, s.Sweep())

	v, ok, err := s.Take(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}
