// Package browser defines the automation-engine contract and the per-attempt
// session lifecycle built on top of it.
package browser

import "context"

// Engine launches browser instances. Implementations wrap a real automation
// driver; tests use in-package fakes.
type Engine interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is a running browser instance.
type Browser interface {
	NewContext(ctx context.Context) (Context, error)
	Close(ctx context.Context) error
}

// Context is an isolated browser profile within one Browser.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page is a single tab.
type Page interface {
	Close(ctx context.Context) error
}

// Session is the (browser, context, page) triple used by one attempt.
// Ownership: a session acquired by the Manager belongs to the current attempt
// and is destroyed when it ends; a caller-supplied shared session is never
// destroyed by the harness.
type Session struct {
	Browser Browser
	Context Context
	Page    Page
}
