// Package flaky implements retry orchestration for flaky browser tests: it
// decides how many times a test body is re-executed, which failures count as
// retryable, and how per-attempt resources are scoped.
//
// Key pieces:
//   - Policy: attempts, delay, resource reinitialization, data reset
//   - Classify: assertion failures retry, everything else fails fast
//   - Run: the attempt loop with scoped acquire/release per attempt
//   - Poll: sub-test polling retry for one flaky assertion
//
// Basic usage:
//
//	p := flaky.DefaultPolicy()
//	env := flaky.Env[*browser.Session]{Lifecycle: mgr, Reset: resetter.Reset}
//	_, err := flaky.Run(ctx, p, env, func(ctx context.Context, s *browser.Session) (struct{}, error) {
//	    if got := title(s); got != "Home" {
//	        return struct{}{}, flaky.Assertf("expected title %q, got %q", "Home", got)
//	    }
//	    return struct{}{}, nil
//	})
//
// Polling a single assertion inside a test body:
//
//	err := flaky.Poll(ctx, flaky.PollConfig{Timeout: 3 * time.Second, Interval: 200 * time.Millisecond},
//	    func(ctx context.Context) (int, error) { return countRows(s) },
//	    func(n int) error {
//	        if n != 5 {
//	            return flaky.Assertf("expected 5 rows, got %d", n)
//	        }
//	        return nil
//	    })
//
// Errors produced with Assertf or MarkAssertion carry an explicit tag, making
// classification an errors.Is check. Untagged errors fall back to a message
// vocabulary match for compatibility with third-party assertion helpers.
package flaky
