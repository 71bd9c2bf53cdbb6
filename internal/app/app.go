// Package app wires harness components from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"flakeguard/internal/adapter/external/playwright"
	"flakeguard/internal/adapter/notify"
	"flakeguard/internal/adapter/reset"
	"flakeguard/internal/adapter/scheduler"
	"flakeguard/internal/config"
	"flakeguard/internal/history"
	"flakeguard/internal/platform/browser"
	"flakeguard/internal/platform/httpclient"
	"flakeguard/internal/platform/logger"
	"flakeguard/internal/runner"
	"flakeguard/pkg/flaky"
)

// App wires harness components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "flakeguard",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Run executes the given suite under the configured policy and returns an
// error when any case ultimately failed.
func (a *App) Run(cases []runner.Case) error {
	defer func() { _ = logger.Close(a.log) }()
	a.log.Info("starting", slog.Int("cases", len(cases)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy := flaky.Policy{
		Attempts:                a.cfg.Retry.Attempts,
		RetryDelay:              a.cfg.Retry.Delay,
		ReinitializeResources:   a.cfg.Retry.ReinitResources,
		ResetDataBetweenRetries: a.cfg.Retry.ResetDataBetweenTry,
	}

	lifecycle, cleanup, err := a.buildLifecycle()
	if err != nil {
		return err
	}
	defer cleanup()

	resetFn, closeReset, err := a.buildReset(ctx)
	if err != nil {
		return err
	}
	defer closeReset()

	store, err := history.Open(ctx, a.cfg.History.Path, a.log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	sched := scheduler.New(ctx, a.log)
	if err := sched.Add("history-prune", a.cfg.History.PruneSpec, func(ctx context.Context) error {
		n, perr := store.Prune(ctx, a.cfg.History.Retention)
		if perr == nil && n > 0 {
			a.log.Info("history pruned", slog.Int64("rows", n))
		}
		return perr
	}); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	var notifier notify.Notifier = notify.Nop{}
	if a.cfg.Notify.TelegramToken != "" {
		tg, nerr := notify.NewTelegram(a.cfg.Notify.TelegramToken, a.cfg.Notify.TelegramChat, a.log)
		if nerr != nil {
			return nerr
		}
		notifier = tg
	}

	r := runner.New(runner.Options{
		Policy:    policy,
		Lifecycle: lifecycle,
		Reset:     resetFn,
		Recorder:  store,
		Notifier:  notifier,
		Workers:   a.cfg.Runner.Workers,
		Logger:    a.log,
	})

	report := r.Run(ctx, cases)
	passed, failed, flakyCount := report.Counts()
	a.log.Info("suite finished",
		slog.Int("passed", passed), slog.Int("failed", failed), slog.Int("flaky", flakyCount))
	if failed > 0 {
		return fmt.Errorf("%d of %d cases failed", failed, len(cases))
	}
	return nil
}

func (a *App) buildLifecycle() (flaky.Lifecycle[*browser.Session], func(), error) {
	switch a.cfg.Browser.Engine {
	case "playwright":
		engine, err := playwright.NewEngine(a.cfg.Browser.Headless)
		if err != nil {
			return nil, nil, err
		}
		return browser.NewManager(engine, a.log), func() { _ = engine.Stop() }, nil
	case "none":
		// Session-less suites (API checks, poll-only cases).
		return nullLifecycle{}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown browser engine %q", a.cfg.Browser.Engine)
	}
}

func (a *App) buildReset(ctx context.Context) (flaky.ResetFunc, func(), error) {
	switch {
	case a.cfg.Reset.URL != "":
		client := httpclient.New(httpclient.WithLogger(a.log))
		return reset.NewHTTP(client, a.cfg.Reset.URL).Reset, func() {}, nil
	case a.cfg.Reset.PGDSN != "":
		pg, err := reset.NewPostgres(ctx, a.cfg.Reset.PGDSN, a.cfg.Reset.PGTables)
		if err != nil {
			return nil, nil, err
		}
		return pg.Reset, pg.Close, nil
	default:
		return nil, func() {}, nil
	}
}

// nullLifecycle hands out empty sessions when no engine is configured.
type nullLifecycle struct{}

func (nullLifecycle) Acquire(ctx context.Context) (*browser.Session, error) {
	return &browser.Session{}, nil
}

func (nullLifecycle) Release(ctx context.Context, s *browser.Session) {}
