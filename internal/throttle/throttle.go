// Package throttle spaces outbound calls to the billing provider.
package throttle

import (
	"context"
	"sync"
	"time"
)

// DefaultRequestsPerSecond keeps a sync comfortably under the provider's
// read rate limit.
const DefaultRequestsPerSecond = 4

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Throttle enforces a minimum interval between consecutive calls to Wait.
// One instance is shared by every pagination loop of one outbound client.
type Throttle struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastCall    time.Time
	now         func() time.Time
	sleep       Sleeper
}

type Option func(*Throttle)

// WithClock overrides the time source and the sleep function, for tests.
func WithClock(now func() time.Time, sleep Sleeper) Option {
	return func(t *Throttle) {
		if now != nil {
			t.now = now
		}
		if sleep != nil {
			t.sleep = sleep
		}
	}
}

// New returns a throttle allowing at most rps calls per second.
// A non-positive rps falls back to DefaultRequestsPerSecond.
func New(rps float64, opts ...Option) *Throttle {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	t := &Throttle{
		minInterval: time.Duration(float64(time.Second) / rps),
		now:         time.Now,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MinInterval is the enforced spacing between calls.
func (t *Throttle) MinInterval() time.Duration {
	return t.minInterval
}

// Wait blocks until the minimum interval has elapsed since the previous call,
// then records the current time as the last call. It returns how long the
// caller was held back.
func (t *Throttle) Wait(ctx context.Context) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var waited time.Duration
	if !t.lastCall.IsZero() {
		if remaining := t.minInterval - t.now().Sub(t.lastCall); remaining > 0 {
			if err := t.sleep(ctx, remaining); err != nil {
				return 0, err
			}
			waited = remaining
		}
	}
	t.lastCall = t.now()
	return waited, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
