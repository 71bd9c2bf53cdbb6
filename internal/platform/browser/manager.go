package browser

import (
	"context"
	"errors"
	"log/slog"

	"flakeguard/internal/shared"
)

// Manager builds and tears down sessions. It satisfies
// flaky.Lifecycle[*Session].
type Manager struct {
	engine Engine
	log    *slog.Logger
}

// NewManager creates a session manager over the given engine.
func NewManager(engine Engine, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{engine: engine, log: log}
}

// Acquire creates a fresh session: browser, then context, then page. On a
// mid-build failure the parts already opened are closed before the error is
// returned, so a failed acquire never leaks.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	b, err := m.engine.Launch(ctx)
	if err != nil {
		return nil, shared.Mark(shared.Wrap(err, "launch browser"), shared.ErrResource)
	}

	bctx, err := b.NewContext(ctx)
	if err != nil {
		m.closeQuietly(ctx, "browser", b.Close)
		return nil, shared.Mark(shared.Wrap(err, "new context"), shared.ErrResource)
	}

	page, err := bctx.NewPage(ctx)
	if err != nil {
		m.closeQuietly(ctx, "context", bctx.Close)
		m.closeQuietly(ctx, "browser", b.Close)
		return nil, shared.Mark(shared.Wrap(err, "new page"), shared.ErrResource)
	}

	return &Session{Browser: b, Context: bctx, Page: page}, nil
}

// Release closes the session in reverse order: page, context, browser. It
// never fails; close errors are joined and logged so release always
// completes. Nil sessions and nil members are tolerated.
func (m *Manager) Release(ctx context.Context, s *Session) {
	if s == nil {
		return
	}

	var errs []error
	if s.Page != nil {
		if err := s.Page.Close(ctx); err != nil {
			errs = append(errs, shared.Wrap(err, "close page"))
		}
	}
	if s.Context != nil {
		if err := s.Context.Close(ctx); err != nil {
			errs = append(errs, shared.Wrap(err, "close context"))
		}
	}
	if s.Browser != nil {
		if err := s.Browser.Close(ctx); err != nil {
			errs = append(errs, shared.Wrap(err, "close browser"))
		}
	}

	if len(errs) > 0 {
		m.log.Warn("session release completed with errors",
			slog.Any("error", shared.Mark(errors.Join(errs...), shared.ErrResource)))
	}
}

func (m *Manager) closeQuietly(ctx context.Context, what string, closeFn func(context.Context) error) {
	if err := closeFn(ctx); err != nil {
		m.log.Warn("close during failed acquire", slog.String("resource", what), slog.Any("error", err))
	}
}
