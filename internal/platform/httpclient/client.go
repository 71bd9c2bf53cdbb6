// Package httpclient wraps http.Client with logging and retries for the
// harness's outbound calls.
package httpclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	randv2 "math/rand"
	"net"
	stdhttp "net/http"
	"net/url"
	"strconv"
	"time"
)

// Client wraps http.Client with logging and bounded retries.
type Client struct {
	hc          *stdhttp.Client
	log         *slog.Logger
	retries     int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	headers     map[string]string
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets request timeout.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = t }
}

// WithLogger sets logger used by client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetries enables retries with exponential backoff and jitter.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		if backoff > 0 {
			c.baseBackoff = backoff
		}
	}
}

// WithMaxBackoff limits exponential backoff growth.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) { c.maxBackoff = d }
}

// WithHeaders adds default headers to each request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers[k] = v
		}
	}
}

// New creates a Client with sane defaults.
func New(opts ...Option) *Client {
	c := &Client{
		hc:          &stdhttp.Client{Timeout: 30 * time.Second},
		log:         slog.Default(),
		retries:     2,
		baseBackoff: 200 * time.Millisecond,
		maxBackoff:  5 * time.Second,
		headers:     map[string]string{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// drainAndClose drains up to 512KB from body and closes it.
func drainAndClose(b io.ReadCloser) {
	if b == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, b, 512<<10)
	_ = b.Close()
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		if ne, ok := ue.Err.(net.Error); ok && ne.Timeout() {
			return true
		}
		var oe *net.OpError
		if errors.As(ue.Err, &oe) {
			return true
		}
	}
	return false
}

// retryInfo decides whether the response warrants a retry and returns an
// optional server-requested delay.
func retryInfo(resp *stdhttp.Response, err error) (time.Duration, bool) {
	if err != nil {
		return 0, isRetryableError(err)
	}
	switch {
	case resp.StatusCode == 429 || resp.StatusCode == 503:
		delay := retryAfter(resp.Header.Get("Retry-After"))
		drainAndClose(resp.Body)
		return delay, true
	case resp.StatusCode >= 500:
		drainAndClose(resp.Body)
		return 0, true
	default:
		return 0, false
	}
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// Do sends an HTTP request with context, logging and retries. Only requests
// with a rewindable body (GetBody set or no body) are replayed.
func (c *Client) Do(ctx context.Context, req *stdhttp.Request) (*stdhttp.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries+1; attempt++ {
		r := req.Clone(ctx)
		for k, v := range c.headers {
			if r.Header.Get(k) == "" {
				r.Header.Set(k, v)
			}
		}
		if r.GetBody != nil {
			rc, err := r.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = rc
		}

		st := time.Now()
		resp, err := c.hc.Do(r)
		dur := time.Since(st)

		delay, retry := retryInfo(resp, err)
		if !retry {
			if err != nil {
				c.log.Warn("http request error",
					slog.String("method", r.Method), slog.String("url", r.URL.Redacted()),
					slog.Int("attempt", attempt), slog.Any("error", err))
				return nil, err
			}
			c.log.Debug("http request",
				slog.String("method", r.Method), slog.String("url", r.URL.Redacted()),
				slog.Int("status", resp.StatusCode), slog.Duration("dur", dur),
				slog.Int("attempt", attempt))
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = errors.New("http status " + resp.Status)
		}
		if attempt == c.retries+1 {
			break
		}

		wait := c.baseBackoff * time.Duration(1<<uint(attempt-1))
		if delay > 0 {
			wait = delay
		} else if wait > 0 {
			wait += time.Duration(randv2.Int63n(int64(wait)))
		}
		if c.maxBackoff > 0 && wait > c.maxBackoff {
			wait = c.maxBackoff
		}
		c.log.Debug("http retry",
			slog.String("method", r.Method), slog.String("url", r.URL.Redacted()),
			slog.Int("attempt", attempt), slog.Duration("wait", wait), slog.Any("error", lastErr))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}
