package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mcpgateway/pkg/gwerr"
)

//go:embed schema.sql
var schemaFS embed.FS

// DB wraps a *sql.DB configured per spec.md §4.2/§4.1 pool knobs. Mutations
// of gateways, tools, resources, prompts, virtual servers, sessions and the
// leader lock run through WithTx, which surfaces pool exhaustion as
// gwerr.Unavailable rather than blocking indefinitely; the team, user,
// token, metric and audit writes use the pool directly.
type DB struct {
	sql         *sql.DB
	poolTimeout time.Duration
}

// Open connects to the sqlite-backed entity store and applies the embedded
// schema. databaseURL accepts the sqlite:// scheme used by spec.md's
// DATABASE_URL option; any other scheme is rejected since only sqlite
// semantics are implemented in this core (other engines share the contract
// per spec.md §4.2 but are not wired here).
func Open(databaseURL string, poolSize, maxOverflow int, poolTimeout, poolRecycle time.Duration) (*DB, error) {
	if strings.Contains(databaseURL, "://") && !strings.HasPrefix(databaseURL, "sqlite://") {
		return nil, fmt.Errorf("store: unsupported DATABASE_URL scheme; only sqlite:// is implemented")
	}
	path := strings.TrimPrefix(databaseURL, "sqlite://")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		path = "mcpgateway.db"
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(poolSize + maxOverflow)
	sqlDB.SetMaxIdleConns(poolSize)
	sqlDB.SetConnMaxLifetime(poolRecycle)

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("store: enabling foreign keys: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("store: enabling WAL: %w", err)
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("store: reading embedded schema: %w", err)
	}
	if _, err := sqlDB.Exec(string(schema)); err != nil {
		return nil, fmt.Errorf("store: applying schema: %w", err)
	}

	return &DB{sql: sqlDB, poolTimeout: poolTimeout}, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.sql.Close()
}

// WithTx runs fn inside a single serializable transaction (spec.md §4.2:
// "every mutation runs in a single serializable transaction"), committing on
// nil return and rolling back otherwise. Acquiring the connection is bounded
// by d.poolTimeout; exceeding it surfaces gwerr.Unavailable.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.poolTimeout)
	defer cancel()

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		if ctx.Err() != nil {
			return gwerr.Wrap(gwerr.KindUnavailable, err, "store: pool exhausted acquiring connection")
		}
		return gwerr.Wrap(gwerr.KindInternal, err, "store: beginning transaction")
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return gwerr.Wrap(gwerr.KindInternal, err, "store: committing transaction")
	}
	return nil
}

// QueryContext exposes read-only snapshot queries outside a transaction,
// used by list()/get_by_id() paths that don't need serializable isolation.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.sql.QueryContext(ctx, query, args...)
}

// QueryRowContext is the single-row counterpart to QueryContext.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.sql.QueryRowContext(ctx, query, args...)
}
