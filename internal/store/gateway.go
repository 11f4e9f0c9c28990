package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"mcpgateway/pkg/gwerr"
)

// GatewayStore is the repository for Gateway entities (spec.md §4.2).
type GatewayStore struct {
	db *DB
}

func NewGatewayStore(db *DB) *GatewayStore { return &GatewayStore{db: db} }

// Create inserts g, enforcing the (tenant_id, name) uniqueness invariant and
// the one-time-auth invariant from spec.md §3 ("auth_material MUST be null
// and health_checks_enabled MUST be false").
func (s *GatewayStore) Create(ctx context.Context, g *Gateway) error {
	if strings.TrimSpace(g.Name) == "" {
		return gwerr.New(gwerr.KindInvalid, "gateway name is required")
	}
	if g.OneTimeAuth {
		g.AuthMaterial = ""
		g.HealthChecksEnabled = false
	}
	if g.ID.IsZero() {
		g.ID = NewID()
	}
	g.CreatedAt = now()
	g.Version = 1

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO gateways (id, tenant_id, name, url, transport, auth_type, auth_material,
				one_time_auth, passthrough_headers, ca_certificate, enabled, reachable,
				health_checks_enabled, created_at, last_seen_at, owner_team_id, visibility, version)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			g.ID, g.TenantID, g.Name, g.URL, string(g.Transport), string(g.AuthType), nullableAuthMaterial(g),
			boolToInt(g.OneTimeAuth), strings.Join(g.PassthroughHeaders, ","), g.CACertificate,
			boolToInt(g.Enabled), boolToInt(g.Reachable), boolToInt(g.HealthChecksEnabled),
			g.CreatedAt.Format(time.RFC3339Nano), nil, g.OwnerTeamID, string(g.Visibility), g.Version)
		if err != nil {
			if isUniqueViolation(err) {
				return gwerr.Wrap(gwerr.KindConflict, err, "gateway %q already registered for tenant", g.Name)
			}
			return gwerr.Wrap(gwerr.KindInternal, err, "inserting gateway")
		}
		return nil
	})
}

func nullableAuthMaterial(g *Gateway) any {
	if g.OneTimeAuth || g.AuthMaterial == "" {
		return nil
	}
	return g.AuthMaterial
}

// GetByID fetches a Gateway, enforcing visibility per spec.md §3.
// auth_material is never returned, matching spec.md §8's invariant that no
// repository API makes a one-time-auth credential readable after registration —
// this accessor never echoes ANY gateway's raw auth_material back out; code
// that opens an upstream connection reads it through GetForConnection.
func (s *GatewayStore) GetByID(ctx context.Context, id ID, principal Principal) (*Gateway, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, url, transport, auth_type, one_time_auth,
			passthrough_headers, ca_certificate, enabled, reachable, health_checks_enabled,
			created_at, last_seen_at, owner_team_id, visibility, version
		FROM gateways WHERE id = ?`, id)

	g, err := scanGateway(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gwerr.New(gwerr.KindNotFound, "gateway %s not found", id)
		}
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "scanning gateway")
	}
	if !principal.CanRead(g.OwnerTeamID, g.Visibility) {
		return nil, gwerr.New(gwerr.KindForbidden, "gateway %s not visible to principal", id)
	}
	return g, nil
}

// GetForConnection fetches a Gateway including its auth_material, for
// internal use by code that actually opens the upstream connection
// (internal/upstream via internal/dispatcher and internal/federation). It
// enforces no visibility check and must never back an admin-facing API —
// GetByID is the one exposed through internal/server; this accessor exists
// solely so a bearer/basic/custom-header gateway's stored credential
// reaches its NewClient call, which GetByID's redacted row cannot supply.
func (s *GatewayStore) GetForConnection(ctx context.Context, id ID) (*Gateway, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, url, transport, auth_type, auth_material, one_time_auth,
			passthrough_headers, ca_certificate, enabled, reachable, health_checks_enabled,
			created_at, last_seen_at, owner_team_id, visibility, version
		FROM gateways WHERE id = ?`, id)

	g, err := scanGatewayWithCredentials(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gwerr.New(gwerr.KindNotFound, "gateway %s not found", id)
		}
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "scanning gateway")
	}
	return g, nil
}

func scanGatewayWithCredentials(row rowScanner) (*Gateway, error) {
	var g Gateway
	var transport, authType, visibility, passthrough string
	var oneTimeAuth, enabled, reachable, healthChecks int
	var createdAt string
	var lastSeenAt, authMaterial sql.NullString

	if err := row.Scan(&g.ID, &g.TenantID, &g.Name, &g.URL, &transport, &authType, &authMaterial, &oneTimeAuth,
		&passthrough, &g.CACertificate, &enabled, &reachable, &healthChecks,
		&createdAt, &lastSeenAt, &g.OwnerTeamID, &visibility, &g.Version); err != nil {
		return nil, err
	}
	g.Transport = Transport(transport)
	g.AuthType = AuthType(authType)
	g.OneTimeAuth = oneTimeAuth != 0
	g.Enabled = enabled != 0
	g.Reachable = reachable != 0
	g.HealthChecksEnabled = healthChecks != 0
	g.Visibility = Visibility(visibility)
	if passthrough != "" {
		g.PassthroughHeaders = strings.Split(passthrough, ",")
	}
	if authMaterial.Valid {
		g.AuthMaterial = authMaterial.String
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if lastSeenAt.Valid {
		g.LastSeenAt, _ = time.Parse(time.RFC3339Nano, lastSeenAt.String)
	}
	return &g, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGateway(row rowScanner) (*Gateway, error) {
	var g Gateway
	var transport, authType, visibility, passthrough string
	var oneTimeAuth, enabled, reachable, healthChecks int
	var createdAt string
	var lastSeenAt sql.NullString

	if err := row.Scan(&g.ID, &g.TenantID, &g.Name, &g.URL, &transport, &authType, &oneTimeAuth,
		&passthrough, &g.CACertificate, &enabled, &reachable, &healthChecks,
		&createdAt, &lastSeenAt, &g.OwnerTeamID, &visibility, &g.Version); err != nil {
		return nil, err
	}
	g.Transport = Transport(transport)
	g.AuthType = AuthType(authType)
	g.OneTimeAuth = oneTimeAuth != 0
	g.Enabled = enabled != 0
	g.Reachable = reachable != 0
	g.HealthChecksEnabled = healthChecks != 0
	g.Visibility = Visibility(visibility)
	if passthrough != "" {
		g.PassthroughHeaders = strings.Split(passthrough, ",")
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if lastSeenAt.Valid {
		g.LastSeenAt, _ = time.Parse(time.RFC3339Nano, lastSeenAt.String)
	}
	return &g, nil
}

// List returns a bounded, visibility-filtered page of gateways.
func (s *GatewayStore) List(ctx context.Context, tenantID ID, principal Principal, page Page) ([]*Gateway, error) {
	page = page.Normalize()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, url, transport, auth_type, one_time_auth,
			passthrough_headers, ca_certificate, enabled, reachable, health_checks_enabled,
			created_at, last_seen_at, owner_team_id, visibility, version
		FROM gateways WHERE tenant_id = ? ORDER BY name LIMIT ? OFFSET ?`,
		tenantID, page.Limit, page.Offset)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "listing gateways")
	}
	defer rows.Close()

	var out []*Gateway
	for rows.Next() {
		g, err := scanGateway(rows)
		if err != nil {
			return nil, gwerr.Wrap(gwerr.KindInternal, err, "scanning gateway row")
		}
		if principal.CanRead(g.OwnerTeamID, g.Visibility) {
			out = append(out, g)
		}
	}
	return out, rows.Err()
}

// Update applies a patch to a gateway with optimistic concurrency: the
// caller-supplied expectedVersion must match the stored version, or Stale is
// returned (spec.md §4.2).
func (s *GatewayStore) Update(ctx context.Context, id ID, expectedVersion int64, patch func(*Gateway), principal Principal) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, tenant_id, name, url, transport, auth_type, one_time_auth,
				passthrough_headers, ca_certificate, enabled, reachable, health_checks_enabled,
				created_at, last_seen_at, owner_team_id, visibility, version
			FROM gateways WHERE id = ?`, id)
		g, err := scanGateway(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return gwerr.New(gwerr.KindNotFound, "gateway %s not found", id)
			}
			return gwerr.Wrap(gwerr.KindInternal, err, "scanning gateway")
		}
		if !principal.CanRead(g.OwnerTeamID, g.Visibility) {
			return gwerr.New(gwerr.KindForbidden, "gateway %s not visible to principal", id)
		}
		if g.Version != expectedVersion {
			return gwerr.New(gwerr.KindStale, "gateway %s version %d does not match expected %d", id, g.Version, expectedVersion)
		}
		patch(g)
		g.Version++

		_, err = tx.ExecContext(ctx, `
			UPDATE gateways SET url=?, transport=?, auth_type=?, passthrough_headers=?,
				ca_certificate=?, enabled=?, reachable=?, health_checks_enabled=?,
				last_seen_at=?, visibility=?, version=?
			WHERE id = ?`,
			g.URL, string(g.Transport), string(g.AuthType), strings.Join(g.PassthroughHeaders, ","),
			g.CACertificate, boolToInt(g.Enabled), boolToInt(g.Reachable), boolToInt(g.HealthChecksEnabled),
			formatNullableTime(g.LastSeenAt), string(g.Visibility), g.Version, id)
		if err != nil {
			return gwerr.Wrap(gwerr.KindInternal, err, "updating gateway")
		}
		return nil
	})
}

// Delete removes a Gateway and cascades to its Tools/Resources/Prompts and
// any Virtual Server associations referencing them, atomically, per
// spec.md §3/§4.2.
func (s *GatewayStore) Delete(ctx context.Context, id ID, principal Principal) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT owner_team_id, visibility FROM gateways WHERE id = ?`, id)
		var ownerTeamID ID
		var visibility string
		if err := row.Scan(&ownerTeamID, &visibility); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return gwerr.New(gwerr.KindNotFound, "gateway %s not found", id)
			}
			return gwerr.Wrap(gwerr.KindInternal, err, "loading gateway for delete")
		}
		if !principal.CanRead(ownerTeamID, Visibility(visibility)) {
			return gwerr.New(gwerr.KindForbidden, "gateway %s not visible to principal", id)
		}

		if err := pruneVirtualServerAssociationsForGateway(ctx, tx, id); err != nil {
			return err
		}
		// Tools/Resources/Prompts cascade via ON DELETE CASCADE foreign keys.
		if _, err := tx.ExecContext(ctx, `DELETE FROM gateways WHERE id = ?`, id); err != nil {
			return gwerr.Wrap(gwerr.KindInternal, err, "deleting gateway")
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatNullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var now = time.Now
