package main

import (
	"context"
	"os"
	"time"

	"flakeguard/internal/app"
	"flakeguard/internal/platform/browser"
	"flakeguard/internal/runner"
	"flakeguard/pkg/flaky"
)

// smokeCases exercises the wiring end to end; real suites register their own
// cases and link against internal/runner directly.
func smokeCases() []runner.Case {
	return []runner.Case{
		{
			Name: "session-available",
			Fn: func(ctx context.Context, s *browser.Session) error {
				if s == nil {
					return flaky.Assertf("expected a session for the attempt")
				}
				return nil
			},
		},
		{
			Name: "poll-composes-with-retry",
			Fn: func(ctx context.Context, s *browser.Session) error {
				start := time.Now()
				return flaky.Poll(ctx,
					flaky.PollConfig{Timeout: time.Second, Interval: 50 * time.Millisecond},
					func(ctx context.Context) (time.Duration, error) {
						return time.Since(start), nil
					},
					func(elapsed time.Duration) error {
						if elapsed < 100*time.Millisecond {
							return flaky.Assertf("expected at least 100ms elapsed, got %v", elapsed)
						}
						return nil
					})
			},
		},
	}
}

func main() {
	application, err := app.New()
	if err != nil {
		panic(err)
	}
	if err := application.Run(smokeCases()); err != nil {
		os.Exit(1)
	}
}
