package reset

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"flakeguard/internal/shared"
)

// Postgres truncates fixture tables directly, for suites that own their test
// database instead of calling a reset endpoint.
type Postgres struct {
	pool   *pgxpool.Pool
	tables []string
}

// NewPostgres connects to the fixture database and validates the table list.
// Table names are identifiers from the harness config, not user input; they
// are still checked against a conservative character set before being
// interpolated into the TRUNCATE statement.
func NewPostgres(ctx context.Context, dsn string, tables []string) (*Postgres, error) {
	if len(tables) == 0 {
		return nil, shared.Mark(fmt.Errorf("no tables to reset"), shared.ErrConfig)
	}
	for _, tbl := range tables {
		if !validIdent(tbl) {
			return nil, shared.Mark(fmt.Errorf("invalid table name %q", tbl), shared.ErrConfig)
		}
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, shared.Mark(shared.Wrap(err, "parse dsn"), shared.ErrConfig)
	}
	cfg.MaxConns = 2
	cfg.MinConns = 0
	cfg.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, shared.Mark(shared.Wrap(err, "connect"), shared.ErrReset)
	}
	return &Postgres{pool: pool, tables: tables}, nil
}

// Reset truncates all configured tables in one statement, restarting
// identities so attempts see identical fixture state.
func (p *Postgres) Reset(ctx context.Context) error {
	quoted := make([]string, len(p.tables))
	for i, tbl := range p.tables {
		quoted[i] = quoteIdent(tbl)
	}
	sql := fmt.Sprintf("TRUNCATE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
	if _, err := p.pool.Exec(ctx, sql); err != nil {
		return shared.Mark(shared.Wrap(err, "truncate"), shared.ErrReset)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// validIdent accepts optionally schema-qualified names made of letters,
// digits and underscores. Mixed case is allowed; segments are quoted before
// interpolation so case is preserved.
func validIdent(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for _, r := range part {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			default:
				return false
			}
		}
	}
	return true
}

// quoteIdent quotes each dot segment separately so "public.orders" becomes
// "public"."orders" rather than one identifier containing a dot.
func quoteIdent(s string) string {
	parts := strings.Split(s, ".")
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return strings.Join(parts, ".")
}
