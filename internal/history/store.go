// Package history persists per-attempt outcomes to a local SQLite database
// so flaky tests can be spotted across runs.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"flakeguard/internal/shared"
	"flakeguard/pkg/flaky"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is an append-only attempt log. Recording failures never propagate to
// the retry loop; they are logged and dropped.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if needed) the history database and applies pending
// migrations.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, shared.Mark(shared.Wrap(err, "create history dir"), shared.ErrHistory)
		}
	}

	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, shared.Mark(shared.Wrap(err, "open history db"), shared.ErrHistory)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, shared.Mark(shared.Wrap(err, "ping history db"), shared.ErrHistory)
	}

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, shared.Mark(shared.Wrapf(err, "apply %s", pragma), shared.ErrHistory)
		}
	}

	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

func applyMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return shared.Mark(shared.Wrap(err, "load migrations"), shared.ErrHistory)
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return shared.Mark(shared.Wrap(err, "migration driver"), shared.ErrHistory)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return shared.Mark(shared.Wrap(err, "create migrator"), shared.ErrHistory)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return shared.Mark(shared.Wrap(err, "apply migrations"), shared.ErrHistory)
	}
	return nil
}

// Record appends one attempt for the named test.
func (s *Store) Record(ctx context.Context, test string, a flaky.Attempt) {
	outcome := "pass"
	errText := ""
	classification := ""
	if a.Err != nil {
		outcome = "fail"
		errText = a.Err.Error()
		classification = a.Kind.String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (test, attempt, outcome, classification, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		test, a.Index, outcome, classification, errText, a.Duration.Milliseconds())
	if err != nil {
		s.log.Warn("history record failed",
			slog.String("test", test), slog.Int("attempt", a.Index), slog.Any("error", err))
	}
}

// TestStats aggregates attempt outcomes for one test.
type TestStats struct {
	Test     string
	Attempts int
	Failures int
	LastSeen time.Time
}

// FlakeRate is the share of failed attempts.
func (s TestStats) FlakeRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Attempts)
}

// Stats aggregates attempts recorded since the given time, ordered by
// failure count descending.
func (s *Store) Stats(ctx context.Context, since time.Time) ([]TestStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT test,
		        COUNT(*),
		        SUM(CASE WHEN outcome = 'fail' THEN 1 ELSE 0 END),
		        MAX(created_at)
		 FROM attempts
		 WHERE created_at >= ?
		 GROUP BY test
		 ORDER BY 3 DESC, test`,
		since.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, shared.Mark(shared.Wrap(err, "query stats"), shared.ErrHistory)
	}
	defer rows.Close()

	var out []TestStats
	for rows.Next() {
		var st TestStats
		var lastSeen string
		if err := rows.Scan(&st.Test, &st.Attempts, &st.Failures, &lastSeen); err != nil {
			return nil, shared.Mark(shared.Wrap(err, "scan stats"), shared.ErrHistory)
		}
		if t, perr := time.Parse("2006-01-02 15:04:05", lastSeen); perr == nil {
			st.LastSeen = t
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Mark(shared.Wrap(err, "iterate stats"), shared.ErrHistory)
	}
	return out, nil
}

// Prune deletes attempts older than the retention window and returns how
// many rows were removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format("2006-01-02 15:04:05")
	res, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, shared.Mark(shared.Wrap(err, "prune"), shared.ErrHistory)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, shared.Mark(shared.Wrap(err, "rows affected"), shared.ErrHistory)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close history db: %w", err)
	}
	return nil
}
