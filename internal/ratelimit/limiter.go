// Package ratelimit counts actions per (action class, identity) inside fixed windows.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Rule caps an action class to Max calls per Window.
type Rule struct {
	Window time.Duration
	Max    int64
}

// PerMinute is shorthand for a one minute window.
func PerMinute(max int64) Rule {
	return Rule{Window: time.Minute, Max: max}
}

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// Counter is the shared ephemeral store behind the limiter. Hit must atomically start a
// window with count 1 when none is live, or increment the live one, and report the new
// count with the time left in the window.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Limiter applies rules to a Counter.
type Limiter struct {
	counter Counter
}

// New creates a limiter backed by counter.
func New(counter Counter) *Limiter {
	return &Limiter{counter: counter}
}

// Key builds the counter key for an action class and identity.
func Key(action, identity string) string {
	return "ratelimit:" + action + ":" + identity
}

// Check records one call for (action, identity) and reports whether it fits the rule.
// Rejected calls still count.
func (l *Limiter) Check(ctx context.Context, action, identity string, rule Rule) (Decision, error) {
	if rule.Window <= 0 || rule.Max <= 0 {
		return Decision{}, errors.New("ratelimit: rule needs a positive window and max")
	}
	count, ttl, err := l.counter.Hit(ctx, Key(action, identity), rule.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit %s: %w", action, err)
	}
	if count <= rule.Max {
		return Decision{Allowed: true, Count: count}, nil
	}
	if ttl <= 0 || ttl > rule.Window {
		ttl = rule.Window
	}
	return Decision{Allowed: false, Count: count, RetryAfter: ttl}, nil
}
