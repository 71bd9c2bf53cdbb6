package flaky

import (
	"context"
	"time"
)

// PollConfig controls a single-assertion polling loop.
type PollConfig struct {
	// Timeout is the wall-clock budget for the whole poll. It is checked
	// between polls, so the loop may overshoot by at most one Interval.
	Timeout time.Duration
	// Interval is the pause between polls
	Interval time.Duration

	// Now returns current time (for testing, defaults to time.Now)
	Now func() time.Time
	// Sleep waits between polls (for testing, defaults to a context-aware
	// time.After wait)
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPollConfig returns the standard poll settings.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Timeout:  5 * time.Second,
		Interval: 100 * time.Millisecond,
	}
}

func (c *PollConfig) normalize() {
	if c.Interval <= 0 {
		c.Interval = 100 * time.Millisecond
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		}
	}
}

// Poll re-evaluates a single flaky assertion until it holds or the timeout
// expires. It is a strictly finer-grained retry than Run and composes with
// it: a polled assertion may live inside a retried test body.
//
// Each iteration obtains a fresh value from produce and checks it with
// assert. A produce error or an assert error that is not assertion-classified
// propagates immediately without further polling. When the timeout expires
// the last assertion error is surfaced as-is; there is no distinct timeout
// type.
func Poll[T any](ctx context.Context, cfg PollConfig, produce func(ctx context.Context) (T, error), assert func(v T) error) error {
	cfg.normalize()
	start := cfg.Now()

	var lastErr error
	for {
		v, err := produce(ctx)
		if err != nil {
			return err
		}
		aerr := assert(v)
		if aerr == nil {
			return nil
		}
		if Classify(aerr) != KindAssertion {
			return aerr
		}
		lastErr = aerr

		if cfg.Now().Sub(start) >= cfg.Timeout {
			return lastErr
		}
		if err := cfg.Sleep(ctx, cfg.Interval); err != nil {
			return err
		}
		if cfg.Now().Sub(start) >= cfg.Timeout {
			return lastErr
		}
	}
}
