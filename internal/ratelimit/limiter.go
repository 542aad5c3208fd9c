// Package ratelimit spaces outbound sends with a randomized delay so the
// timing between messages carries no fixed fingerprint.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrInvalidConfig is returned by New for negative or inverted bounds.
var ErrInvalidConfig = errors.New("ratelimit: invalid configuration")

// Limiter blocks for a random whole number of seconds within [min, max].
type Limiter struct {
	min   int
	max   int
	intN  func(n int) int
	sleep func(ctx context.Context, d time.Duration)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithRand replaces the random source. intN must return a value in [0, n).
func WithRand(intN func(n int) int) Option {
	return func(l *Limiter) { l.intN = intN }
}

// WithSleep replaces the blocking sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// New validates the bounds and returns a Limiter.
func New(minSeconds, maxSeconds int, opts ...Option) (*Limiter, error) {
	if minSeconds < 0 || maxSeconds < 0 {
		return nil, fmt.Errorf("%w: seconds must be non-negative (min=%d, max=%d)", ErrInvalidConfig, minSeconds, maxSeconds)
	}
	if minSeconds > maxSeconds {
		return nil, fmt.Errorf("%w: min_seconds %d is greater than max_seconds %d", ErrInvalidConfig, minSeconds, maxSeconds)
	}
	l := &Limiter{
		min:   minSeconds,
		max:   maxSeconds,
		intN:  rand.IntN,
		sleep: sleepWithContext,
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Next draws the next delay without sleeping.
func (l *Limiter) Next() time.Duration {
	secs := l.min + l.intN(l.max-l.min+1)
	return time.Duration(secs) * time.Second
}

// Wait blocks for a randomly drawn delay.
func (l *Limiter) Wait() {
	l.WaitContext(context.Background())
}

// WaitContext blocks for a randomly drawn delay or until ctx is done.
func (l *Limiter) WaitContext(ctx context.Context) {
	l.sleep(ctx, l.Next())
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
