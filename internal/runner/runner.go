// Package runner drives a suite of browser test cases through the retry
// engine and reports the aggregate outcome.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"flakeguard/internal/adapter/notify"
	"flakeguard/internal/platform/browser"
	"flakeguard/pkg/flaky"
)

// Case is one named test body. The session it receives is scoped to the
// current attempt unless the policy reuses a shared one.
type Case struct {
	Name string
	Fn   func(ctx context.Context, s *browser.Session) error
}

// Result is the terminal outcome of one case.
type Result struct {
	Name     string
	Passed   bool
	Attempts int
	// Flaky means the case passed but needed more than one attempt
	Flaky    bool
	Err      error
	Duration time.Duration
}

// Report aggregates a suite run.
type Report struct {
	Results []Result
}

// Counts returns passed, failed and flaky totals.
func (r Report) Counts() (passed, failed, flaked int) {
	for _, res := range r.Results {
		if res.Passed {
			passed++
			if res.Flaky {
				flaked++
			}
		} else {
			failed++
		}
	}
	return
}

// Recorder persists per-attempt outcomes. history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, test string, a flaky.Attempt)
}

// Options configures a Runner. Lifecycle is required; everything else has a
// working default.
type Options struct {
	Policy    flaky.Policy
	Lifecycle flaky.Lifecycle[*browser.Session]
	Reset     flaky.ResetFunc
	// Shared is handed to every attempt when the policy does not
	// reinitialize resources; the runner never releases it.
	Shared   *browser.Session
	Recorder Recorder
	Notifier notify.Notifier
	Workers  int
	Logger   *slog.Logger
}

// Runner executes cases. Each case gets its own independent flaky.Run
// invocation, so concurrent workers never share retry state.
type Runner struct {
	opts Options
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	return &Runner{opts: opts}
}

// Run executes all cases and returns the report in input order.
func (r *Runner) Run(ctx context.Context, cases []Case) Report {
	results := make([]Result, len(cases))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.runCase(ctx, cases[i])
			}
		}()
	}
	for i := range cases {
		select {
		case jobs <- i:
		case <-ctx.Done():
			for j := i; j < len(cases); j++ {
				results[j] = Result{Name: cases[j].Name, Err: ctx.Err()}
			}
			close(jobs)
			wg.Wait()
			return Report{Results: results}
		}
	}
	close(jobs)
	wg.Wait()
	return Report{Results: results}
}

func (r *Runner) runCase(ctx context.Context, c Case) Result {
	log := r.opts.Logger.With(slog.String("test", c.Name))

	var attempts int
	p := r.opts.Policy
	p.Logger = log
	p.OnAttempt = func(a flaky.Attempt) {
		attempts++
		if r.opts.Recorder != nil {
			r.opts.Recorder.Record(ctx, c.Name, a)
		}
	}

	env := flaky.Env[*browser.Session]{Lifecycle: r.opts.Lifecycle, Reset: r.opts.Reset, Shared: r.opts.Shared}

	start := time.Now()
	_, err := flaky.Run(ctx, p, env, func(ctx context.Context, s *browser.Session) (struct{}, error) {
		return struct{}{}, c.Fn(ctx, s)
	})
	res := Result{
		Name:     c.Name,
		Attempts: attempts,
		Duration: time.Since(start),
	}
	if err != nil {
		res.Err = err
		log.Error("test failed", slog.Int("attempts", attempts), slog.Any("error", err))
		r.opts.Notifier.TestFailed(ctx, c.Name, attempts, err)
		return res
	}
	res.Passed = true
	res.Flaky = attempts > 1
	if res.Flaky {
		log.Warn("test passed after retries", slog.Int("attempts", attempts))
	} else {
		log.Info("test passed")
	}
	return res
}
