package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mcpgateway/pkg/gwerr"
)

// TeamStore, UserStore and TokenStore are the simple repositories backing
// the ownership/sharing model of spec.md §3. They're intentionally thin:
// team/user identity itself is sourced from a verified principal (see
// internal/auth), these tables only persist the stable ids that own
// entities and issue tokens.
type TeamStore struct{ db *DB }

func NewTeamStore(db *DB) *TeamStore { return &TeamStore{db: db} }

func (s *TeamStore) Create(ctx context.Context, t *Team) error {
	if t.ID.IsZero() {
		t.ID = NewID()
	}
	_, err := s.db.sql.ExecContext(ctx, `INSERT INTO teams (id, name) VALUES (?,?)`, t.ID, t.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return gwerr.Wrap(gwerr.KindConflict, err, "team %q already exists", t.Name)
		}
		return gwerr.Wrap(gwerr.KindInternal, err, "inserting team")
	}
	return nil
}

func (s *TeamStore) GetByID(ctx context.Context, id ID) (*Team, error) {
	var t Team
	t.ID = id
	err := s.db.QueryRowContext(ctx, `SELECT name FROM teams WHERE id = ?`, id).Scan(&t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gwerr.New(gwerr.KindNotFound, "team %s not found", id)
	}
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "loading team")
	}
	return &t, nil
}

type UserStore struct{ db *DB }

func NewUserStore(db *DB) *UserStore { return &UserStore{db: db} }

// GetOrCreateBySubject finds (or lazily creates) the durable User row for a
// verified JWT subject, scoped to tenantID. This is how a freshly verified
// principal (internal/auth) acquires a stable UserID/TeamID for ownership
// checks without a separate user-provisioning flow.
func (s *UserStore) GetOrCreateBySubject(ctx context.Context, tenantID ID, subject string) (*User, error) {
	var u User
	u.TenantID = tenantID
	u.Subject = subject
	var teamID sql.NullString

	err := s.db.QueryRowContext(ctx, `SELECT id, team_id FROM users WHERE tenant_id=? AND subject=?`, tenantID, subject).
		Scan(&u.ID, &teamID)
	if err == nil {
		if teamID.Valid {
			u.TeamID, _ = ParseID(teamID.String)
		}
		return &u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "loading user")
	}

	u.ID = NewID()
	_, err = s.db.sql.ExecContext(ctx, `INSERT INTO users (id, tenant_id, subject, team_id) VALUES (?,?,?,?)`,
		u.ID, tenantID, subject, nil)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "creating user")
	}
	return &u, nil
}

type TokenStore struct{ db *DB }

func NewTokenStore(db *DB) *TokenStore { return &TokenStore{db: db} }

func (s *TokenStore) Create(ctx context.Context, t *Token) error {
	if t.ID.IsZero() {
		t.ID = NewID()
	}
	t.CreatedAt = now()
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO tokens (id, user_id, name, expires_at, revoked, created_at)
		VALUES (?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Name, formatNullableTime(t.ExpiresAt), boolToInt(t.Revoked), t.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return gwerr.Wrap(gwerr.KindInternal, err, "inserting token")
	}
	return nil
}

// IsValid reports whether tokenID is unrevoked and unexpired.
func (s *TokenStore) IsValid(ctx context.Context, tokenID ID) (bool, error) {
	var revoked int
	var expiresAt sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT revoked, expires_at FROM tokens WHERE id=?`, tokenID).Scan(&revoked, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, gwerr.Wrap(gwerr.KindInternal, err, "checking token validity")
	}
	if revoked != 0 {
		return false, nil
	}
	if expiresAt.Valid {
		t, perr := time.Parse(time.RFC3339Nano, expiresAt.String)
		if perr == nil && now().After(t) {
			return false, nil
		}
	}
	return true, nil
}

// SweepExpired revokes every token past its expiry, the leader-only
// "token-expiry sweep" background task of spec.md §5.
func (s *TokenStore) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.db.sql.ExecContext(ctx, `UPDATE tokens SET revoked=1 WHERE revoked=0 AND expires_at IS NOT NULL AND expires_at < ?`,
		now().Format(time.RFC3339Nano))
	if err != nil {
		return 0, gwerr.Wrap(gwerr.KindInternal, err, "sweeping expired tokens")
	}
	return res.RowsAffected()
}
