package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flakeguard/internal/platform/browser"
	"flakeguard/pkg/flaky"
)

// stubLifecycle hands out empty sessions without an engine.
type stubLifecycle struct {
	mu       sync.Mutex
	acquired int
	released int
}

func (l *stubLifecycle) Acquire(ctx context.Context) (*browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired++
	return &browser.Session{}, nil
}

func (l *stubLifecycle) Release(ctx context.Context, s *browser.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
}

// memRecorder collects attempts keyed by test name.
type memRecorder struct {
	mu       sync.Mutex
	attempts map[string][]flaky.Attempt
}

func newMemRecorder() *memRecorder {
	return &memRecorder{attempts: map[string][]flaky.Attempt{}}
}

func (r *memRecorder) Record(ctx context.Context, test string, a flaky.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[test] = append(r.attempts[test], a)
}

// memNotifier collects terminal failures.
type memNotifier struct {
	mu     sync.Mutex
	failed []string
}

func (n *memNotifier) TestFailed(ctx context.Context, test string, attempts int, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, test)
}

func testPolicy() flaky.Policy {
	p := flaky.DefaultPolicy()
	p.RetryDelay = 0
	p.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return p
}

func TestRunMixedOutcomes(t *testing.T) {
	lc := &stubLifecycle{}
	rec := newMemRecorder()
	not := &memNotifier{}

	r := New(Options{
		Policy:    testPolicy(),
		Lifecycle: lc,
		Recorder:  rec,
		Notifier:  not,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	var flakyCalls int
	cases := []Case{
		{Name: "stable", Fn: func(ctx context.Context, s *browser.Session) error { return nil }},
		{Name: "flaky", Fn: func(ctx context.Context, s *browser.Session) error {
			flakyCalls++
			if flakyCalls < 2 {
				return flaky.Assertf("not ready")
			}
			return nil
		}},
		{Name: "broken", Fn: func(ctx context.Context, s *browser.Session) error {
			return flaky.Assertf("always fails")
		}},
	}

	report := r.Run(context.Background(), cases)
	require.Len(t, report.Results, 3)

	passed, failed, flakyCount := report.Counts()
	assert.Equal(t, 2, passed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, flakyCount)

	assert.True(t, report.Results[0].Passed)
	assert.False(t, report.Results[0].Flaky)
	assert.Equal(t, 1, report.Results[0].Attempts)

	assert.True(t, report.Results[1].Passed)
	assert.True(t, report.Results[1].Flaky)
	assert.Equal(t, 2, report.Results[1].Attempts)

	assert.False(t, report.Results[2].Passed)
	assert.Equal(t, 3, report.Results[2].Attempts)

	// Every attempt was recorded, sessions never leaked, only the broken
	// case triggered an alert.
	assert.Len(t, rec.attempts["stable"], 1)
	assert.Len(t, rec.attempts["flaky"], 2)
	assert.Len(t, rec.attempts["broken"], 3)
	assert.Equal(t, lc.acquired, lc.released)
	assert.Equal(t, []string{"broken"}, not.failed)
}

func TestRunPropagatesOriginalError(t *testing.T) {
	boom := errors.New("net::ERR_CONNECTION_REFUSED")
	r := New(Options{
		Policy:    testPolicy(),
		Lifecycle: &stubLifecycle{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	report := r.Run(context.Background(), []Case{
		{Name: "crash", Fn: func(ctx context.Context, s *browser.Session) error { return boom }},
	})

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.False(t, res.Passed)
	assert.True(t, errors.Is(res.Err, boom))
	// Unexpected error: no retries.
	assert.Equal(t, 1, res.Attempts)
}

func TestRunParallelWorkersIndependent(t *testing.T) {
	lc := &stubLifecycle{}
	rec := newMemRecorder()
	r := New(Options{
		Policy:    testPolicy(),
		Lifecycle: lc,
		Recorder:  rec,
		Workers:   4,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	var cases []Case
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		n := name
		cases = append(cases, Case{Name: n, Fn: func(ctx context.Context, s *browser.Session) error {
			return nil
		}})
	}

	report := r.Run(context.Background(), cases)
	passed, failed, _ := report.Counts()
	assert.Equal(t, 8, passed)
	assert.Zero(t, failed)
	// One attempt per case, each with its own session.
	assert.Equal(t, 8, lc.acquired)
	assert.Equal(t, 8, lc.released)
	for _, res := range report.Results {
		assert.Equal(t, 1, res.Attempts, res.Name)
	}
}
