package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mcpgateway/pkg/gwerr"
)

// LeaderLock implements the single-row advisory lock that backs leader
// election for background tasks (spec.md §4.8/§5). There is no distributed
// consensus library in this core; a TTL'd compare-and-swap row is the
// documented fallback (see DESIGN.md) when the store itself is the only
// shared resource.
type LeaderLock struct {
	db   *DB
	name string
}

func NewLeaderLock(db *DB, name string) *LeaderLock {
	return &LeaderLock{db: db, name: name}
}

// Acquire attempts to become leader, succeeding if the lock is unheld or
// its TTL has expired. holder should be a process-unique identifier.
func (l *LeaderLock) Acquire(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	acquired := false
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT holder, expires_at FROM leader_lock WHERE name = ?`, l.name)
		var currentHolder, expiresAtStr string
		err := row.Scan(&currentHolder, &expiresAtStr)
		expiresAt, _ := time.Parse(time.RFC3339Nano, expiresAtStr)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, `INSERT INTO leader_lock (name, holder, expires_at) VALUES (?,?,?)`,
				l.name, holder, now().Add(ttl).Format(time.RFC3339Nano))
			if err != nil {
				return gwerr.Wrap(gwerr.KindInternal, err, "inserting leader lock")
			}
			acquired = true
			return nil
		case err != nil:
			return gwerr.Wrap(gwerr.KindInternal, err, "reading leader lock")
		case currentHolder == holder || now().After(expiresAt):
			_, err = tx.ExecContext(ctx, `UPDATE leader_lock SET holder=?, expires_at=? WHERE name=?`,
				holder, now().Add(ttl).Format(time.RFC3339Nano), l.name)
			if err != nil {
				return gwerr.Wrap(gwerr.KindInternal, err, "updating leader lock")
			}
			acquired = true
			return nil
		default:
			acquired = false
			return nil
		}
	})
	return acquired, err
}

// Renew is Acquire: it extends the TTL when holder is the current leader,
// and also takes the lock when it is unheld or its TTL has expired.
func (l *LeaderLock) Renew(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	return l.Acquire(ctx, holder, ttl)
}

// Release yields leadership immediately, used on graceful shutdown so
// another worker need not wait out the full TTL (spec.md §5 "On leader
// loss, the worker yields within 1 s").
func (l *LeaderLock) Release(ctx context.Context, holder string) error {
	return l.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM leader_lock WHERE name=? AND holder=?`, l.name, holder)
		if err != nil {
			return gwerr.Wrap(gwerr.KindInternal, err, "releasing leader lock")
		}
		return nil
	})
}
