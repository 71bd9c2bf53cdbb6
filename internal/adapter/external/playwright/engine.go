// Package playwright adapts the Playwright driver to the harness browser
// engine contract.
package playwright

import (
	"context"

	pw "github.com/playwright-community/playwright-go"

	"flakeguard/internal/platform/browser"
	"flakeguard/internal/shared"
)

// Engine drives Chromium through a shared Playwright driver process.
type Engine struct {
	driver   *pw.Playwright
	headless bool
}

// NewEngine starts the Playwright driver. Call Stop when the harness shuts
// down; individual sessions are closed by the session manager.
func NewEngine(headless bool) (*Engine, error) {
	driver, err := pw.Run()
	if err != nil {
		return nil, shared.Mark(shared.Wrap(err, "start playwright driver"), shared.ErrResource)
	}
	return &Engine{driver: driver, headless: headless}, nil
}

// Launch starts a fresh Chromium instance.
func (e *Engine) Launch(ctx context.Context) (browser.Browser, error) {
	b, err := e.driver.Chromium.Launch(pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(e.headless),
	})
	if err != nil {
		return nil, shared.Wrap(err, "launch chromium")
	}
	return &browserHandle{b: b}, nil
}

// Stop shuts the driver process down.
func (e *Engine) Stop() error {
	return e.driver.Stop()
}

type browserHandle struct {
	b pw.Browser
}

func (h *browserHandle) NewContext(ctx context.Context) (browser.Context, error) {
	bctx, err := h.b.NewContext()
	if err != nil {
		return nil, shared.Wrap(err, "new browser context")
	}
	return &contextHandle{c: bctx}, nil
}

func (h *browserHandle) Close(ctx context.Context) error {
	return h.b.Close()
}

type contextHandle struct {
	c pw.BrowserContext
}

func (h *contextHandle) NewPage(ctx context.Context) (browser.Page, error) {
	page, err := h.c.NewPage()
	if err != nil {
		return nil, shared.Wrap(err, "new page")
	}
	return &pageHandle{p: page}, nil
}

func (h *contextHandle) Close(ctx context.Context) error {
	return h.c.Close()
}

type pageHandle struct {
	p pw.Page
}

func (h *pageHandle) Close(ctx context.Context) error {
	return h.p.Close()
}
