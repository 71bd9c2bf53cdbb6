package flaky

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"
)

// Lifecycle acquires and releases the per-attempt resource, typically a
// browser session. Release must never fail; implementations log and swallow
// close errors so that it always completes.
type Lifecycle[S any] interface {
	Acquire(ctx context.Context) (S, error)
	Release(ctx context.Context, s S)
}

// ResetFunc restores external test data to a known state between attempts.
// It should be idempotent; failures are treated as best-effort and logged.
type ResetFunc func(ctx context.Context) error

// Env bundles the external collaborators a run needs.
type Env[S any] struct {
	// Lifecycle provides a fresh resource per attempt when the policy has
	// ReinitializeResources set.
	Lifecycle Lifecycle[S]
	// Reset is invoked before every attempt after the first when the policy
	// has ResetDataBetweenRetries set. May be nil.
	Reset ResetFunc
	// Shared is the caller-owned resource passed to every attempt when
	// ReinitializeResources is false. The engine never releases it.
	Shared S
}

// TestFunc is the caller-supplied test body. It receives the session for the
// current attempt and reports failure through its error: assertion-tagged
// errors (see Assertf) are retried, anything else aborts immediately.
type TestFunc[S, T any] func(ctx context.Context, s S) (T, error)

// Run executes fn under the given policy.
//
// Each attempt is fully scoped: the session is acquired before fn and
// released on every exit path, including panics. On an assertion-classified
// failure the loop waits RetryDelay and tries again; on any other failure the
// error propagates unchanged with no further attempts. fn is invoked at most
// p.Attempts times and never again after a success. The error surfaced after
// exhaustion is the last attempt's original error, unwrapped.
func Run[S, T any](ctx context.Context, p Policy, env Env[S], fn TestFunc[S, T]) (T, error) {
	var zero T
	if err := p.Normalize(); err != nil {
		return zero, err
	}
	if p.ReinitializeResources && env.Lifecycle == nil {
		return zero, errors.New("flaky: Env.Lifecycle required when ReinitializeResources is set")
	}

	if p.Attempts < 2 {
		p.Logger.Warn("retries disabled: policy allows a single attempt",
			slog.Int("attempts", p.Attempts))
		return runAttempt(ctx, p, env, 1, fn)
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		v, err := runAttempt(ctx, p, env, attempt, fn)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if Classify(err) == KindUnexpected {
			// Programming bugs and unknown failures surface immediately,
			// regardless of remaining attempts.
			return zero, err
		}
		if attempt == p.Attempts {
			break
		}

		p.Logger.Info("attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("remaining", p.Attempts-attempt),
			slog.Any("error", err))
		if p.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(p.RetryDelay):
			}
		}
	}
	return zero, lastErr
}

// runAttempt performs one fully scoped attempt: acquire, reset, invoke,
// release. Release is deferred so it runs on every exit path.
func runAttempt[S, T any](ctx context.Context, p Policy, env Env[S], attempt int, fn TestFunc[S, T]) (v T, err error) {
	start := time.Now()
	defer func() {
		if p.OnAttempt == nil {
			return
		}
		a := Attempt{Index: attempt, Err: err, Duration: time.Since(start)}
		if err != nil {
			a.Kind = Classify(err)
		}
		p.OnAttempt(a)
	}()

	s := env.Shared
	if p.ReinitializeResources {
		acquired, aerr := env.Lifecycle.Acquire(ctx)
		if aerr != nil {
			// Wrapped so classification stays unexpected no matter how the
			// underlying launch error is worded. The attempt is still consumed.
			p.Logger.Error("resource acquisition failed",
				slog.Int("attempt", attempt), slog.Any("error", aerr))
			return v, &ResourceError{Err: aerr}
		}
		s = acquired
		defer env.Lifecycle.Release(ctx, acquired)
	}

	if p.ResetDataBetweenRetries && attempt > 1 && env.Reset != nil {
		if rerr := env.Reset(ctx); rerr != nil {
			p.Logger.Warn("data reset failed, continuing",
				slog.Int("attempt", attempt), slog.Any("error", rerr))
		}
	}

	return invoke(ctx, s, fn)
}

// invoke calls fn with panic recovery so a panicking test body still runs
// the deferred release and is classified instead of tearing down the worker.
func invoke[S, T any](ctx context.Context, s S, fn TestFunc[S, T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx, s)
}
