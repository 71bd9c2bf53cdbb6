package flaky

import (
	"errors"
	"log/slog"
	"time"
)

// Policy defines how a flaky test body is re-executed.
type Policy struct {
	// Attempts is the maximum number of executions (including the first one)
	Attempts int
	// RetryDelay is the pause between an assertion failure and the next attempt
	RetryDelay time.Duration
	// ReinitializeResources acquires a fresh session for every attempt and
	// releases it when the attempt ends. When false the shared session from
	// Env is reused and never released by the engine.
	ReinitializeResources bool
	// ResetDataBetweenRetries invokes the Env reset callback before every
	// attempt after the first. Reset failures are logged and ignored.
	ResetDataBetweenRetries bool
	// Logger receives warnings emitted by the run loop (nil = slog.Default)
	Logger *slog.Logger
	// OnAttempt is called after every attempt for observability
	OnAttempt func(Attempt)
}

// DefaultPolicy returns the standard policy: three attempts, one second apart,
// with fresh resources and a data reset between attempts.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:                3,
		RetryDelay:              time.Second,
		ReinitializeResources:   true,
		ResetDataBetweenRetries: true,
	}
}

// Normalize validates the policy and fills optional fields.
func (p *Policy) Normalize() error {
	if p.Attempts < 1 {
		return errors.New("flaky: Attempts must be at least 1")
	}
	if p.RetryDelay < 0 {
		return errors.New("flaky: RetryDelay cannot be negative")
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return nil
}

// Attempt describes one execution of the test body. It exists only for the
// duration of a Run call and is handed to the OnAttempt hook; nothing is
// persisted by the engine itself.
type Attempt struct {
	// Index is 1-based
	Index int
	// Err is nil on success, otherwise the error the attempt produced
	Err error
	// Kind is the classification of Err; KindUnknown on success
	Kind FailureKind
	// Duration covers the test body plus resource acquisition and release
	Duration time.Duration
}

// Succeeded reports whether the attempt returned without error.
func (a Attempt) Succeeded() bool { return a.Err == nil }
