package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flakeguard/pkg/flaky"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.sqlite")
	s, err := Open(context.Background(), path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Record(ctx, "checkout", flaky.Attempt{Index: 1, Err: flaky.Assertf("cart empty"), Kind: flaky.KindAssertion, Duration: 120 * time.Millisecond})
	s.Record(ctx, "checkout", flaky.Attempt{Index: 2, Duration: 90 * time.Millisecond})
	s.Record(ctx, "login", flaky.Attempt{Index: 1, Duration: 40 * time.Millisecond})

	stats, err := s.Stats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 2)

	// Ordered by failures descending.
	assert.Equal(t, "checkout", stats[0].Test)
	assert.Equal(t, 2, stats[0].Attempts)
	assert.Equal(t, 1, stats[0].Failures)
	assert.InDelta(t, 0.5, stats[0].FlakeRate(), 0.001)

	assert.Equal(t, "login", stats[1].Test)
	assert.Equal(t, 0, stats[1].Failures)
	assert.Zero(t, stats[1].FlakeRate())
}

func TestStatsSinceFiltersOld(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Record(ctx, "search", flaky.Attempt{Index: 1, Duration: time.Millisecond})

	stats, err := s.Stats(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Record(ctx, "search", flaky.Attempt{Index: 1, Duration: time.Millisecond})

	// Nothing is older than a day yet.
	n, err := s.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Everything is older than a negative window.
	n, err = s.Prune(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stats, err := s.Stats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestRecordFailureClassification(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	boom := errors.New("connection refused")
	s.Record(ctx, "checkout", flaky.Attempt{Index: 1, Err: boom, Kind: flaky.KindUnexpected, Duration: time.Millisecond})

	var classification, errText string
	row := s.db.QueryRowContext(ctx, `SELECT classification, error FROM attempts WHERE test = ?`, "checkout")
	require.NoError(t, row.Scan(&classification, &errText))
	assert.Equal(t, "UnexpectedException", classification)
	assert.Equal(t, "connection refused", errText)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.sqlite")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s1, err := Open(context.Background(), path, log)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// Reopening applies no new migrations and must not fail.
	s2, err := Open(context.Background(), path, log)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}
