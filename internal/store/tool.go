package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"mcpgateway/pkg/gwerr"
)

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ToolStore is the repository for Tool entities.
type ToolStore struct {
	db *DB
}

func NewToolStore(db *DB) *ToolStore { return &ToolStore{db: db} }

// Create inserts t, enforcing spec.md §3's invariants: name pattern,
// (gateway_id, name) uniqueness, and REST/MCP-specific required fields.
func (s *ToolStore) Create(ctx context.Context, t *Tool) error {
	if !toolNamePattern.MatchString(t.Name) {
		return gwerr.New(gwerr.KindInvalid, "tool name %q does not match [A-Za-z0-9_-]{1,128}", t.Name)
	}
	if t.IntegrationType == IntegrationREST && t.URL == "" {
		return gwerr.New(gwerr.KindInvalid, "REST tool %q requires a URL", t.Name)
	}
	if t.IntegrationType == IntegrationMCP && t.MCPMethod == "" {
		return gwerr.New(gwerr.KindInvalid, "MCP tool %q requires an mcp_method", t.Name)
	}
	if t.ID.IsZero() {
		t.ID = NewID()
	}
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt
	t.Version = 1

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tools (id, gateway_id, name, display_name, description, integration_type,
				request_type, url, mcp_method, input_schema, tags, enabled, reachable,
				owner_team_id, visibility, created_at, updated_at, version)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			t.ID, nullableID(t.GatewayID), t.Name, t.DisplayName, t.Description, string(t.IntegrationType),
			string(t.RequestType), t.URL, t.MCPMethod, t.InputSchema, strings.Join(t.Tags, ","),
			boolToInt(t.Enabled), boolToInt(t.Reachable), t.OwnerTeamID, string(t.Visibility),
			t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano), t.Version)
		if err != nil {
			if isUniqueViolation(err) {
				return gwerr.Wrap(gwerr.KindConflict, err, "tool %q already exists for gateway", t.Name)
			}
			return gwerr.Wrap(gwerr.KindInternal, err, "inserting tool")
		}
		return nil
	})
}

func nullableID(id ID) any {
	if id.IsZero() {
		return nil
	}
	return id
}

func (s *ToolStore) GetByID(ctx context.Context, id ID, principal Principal) (*Tool, error) {
	row := s.db.QueryRowContext(ctx, toolSelectColumns+" FROM tools WHERE id = ?", id)
	t, err := scanTool(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gwerr.New(gwerr.KindNotFound, "tool %s not found", id)
		}
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "scanning tool")
	}
	if !principal.CanRead(t.OwnerTeamID, t.Visibility) {
		return nil, gwerr.New(gwerr.KindForbidden, "tool %s not visible to principal", id)
	}
	return t, nil
}

const toolSelectColumns = `SELECT id, gateway_id, name, display_name, description, integration_type,
	request_type, url, mcp_method, input_schema, tags, enabled, reachable,
	owner_team_id, visibility, created_at, updated_at, version`

func scanTool(row rowScanner) (*Tool, error) {
	var t Tool
	var gatewayID sql.NullString
	var integrationType, requestType, tags, visibility, createdAt, updatedAt string
	var enabled, reachable int

	if err := row.Scan(&t.ID, &gatewayID, &t.Name, &t.DisplayName, &t.Description, &integrationType,
		&requestType, &t.URL, &t.MCPMethod, &t.InputSchema, &tags, &enabled, &reachable,
		&t.OwnerTeamID, &visibility, &createdAt, &updatedAt, &t.Version); err != nil {
		return nil, err
	}
	if gatewayID.Valid {
		id, err := ParseID(gatewayID.String)
		if err == nil {
			t.GatewayID = id
		}
	}
	t.IntegrationType = IntegrationType(integrationType)
	t.RequestType = RequestType(requestType)
	t.Enabled = enabled != 0
	t.Reachable = reachable != 0
	t.Visibility = Visibility(visibility)
	if tags != "" {
		t.Tags = strings.Split(tags, ",")
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &t, nil
}

// List returns a bounded, visibility-filtered page of tools, stable-sorted
// by name (the (gateway_name, tool_name) stable sort of spec.md §8 is
// applied one layer up, in internal/dispatcher, once gateway names are
// known).
func (s *ToolStore) List(ctx context.Context, principal Principal, page Page) ([]*Tool, error) {
	page = page.Normalize()
	rows, err := s.db.QueryContext(ctx, toolSelectColumns+" FROM tools ORDER BY name LIMIT ? OFFSET ?", page.Limit, page.Offset)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "listing tools")
	}
	defer rows.Close()
	var out []*Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, gwerr.Wrap(gwerr.KindInternal, err, "scanning tool row")
		}
		if principal.CanRead(t.OwnerTeamID, t.Visibility) {
			out = append(out, t)
		}
	}
	return out, rows.Err()
}

// ListByGateway returns every tool owned by gatewayID, used by federation
// sync to diff against a peer's current tools/list (spec.md §4.8).
func (s *ToolStore) ListByGateway(ctx context.Context, gatewayID ID) ([]*Tool, error) {
	rows, err := s.db.QueryContext(ctx, toolSelectColumns+" FROM tools WHERE gateway_id = ? ORDER BY name", gatewayID)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "listing tools by gateway")
	}
	defer rows.Close()
	var out []*Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, gwerr.Wrap(gwerr.KindInternal, err, "scanning tool row")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *ToolStore) Update(ctx context.Context, id ID, expectedVersion int64, patch func(*Tool), principal Principal) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, toolSelectColumns+" FROM tools WHERE id = ?", id)
		t, err := scanTool(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return gwerr.New(gwerr.KindNotFound, "tool %s not found", id)
			}
			return gwerr.Wrap(gwerr.KindInternal, err, "scanning tool")
		}
		if !principal.CanRead(t.OwnerTeamID, t.Visibility) {
			return gwerr.New(gwerr.KindForbidden, "tool %s not visible to principal", id)
		}
		if t.Version != expectedVersion {
			return gwerr.New(gwerr.KindStale, "tool %s version %d does not match expected %d", id, t.Version, expectedVersion)
		}
		patch(t)
		t.Version++
		t.UpdatedAt = now()

		_, err = tx.ExecContext(ctx, `
			UPDATE tools SET display_name=?, description=?, enabled=?, reachable=?, tags=?,
				visibility=?, input_schema=?, updated_at=?, version=?
			WHERE id = ?`,
			t.DisplayName, t.Description, boolToInt(t.Enabled), boolToInt(t.Reachable),
			strings.Join(t.Tags, ","), string(t.Visibility), t.InputSchema,
			t.UpdatedAt.Format(time.RFC3339Nano), t.Version, id)
		if err != nil {
			return gwerr.Wrap(gwerr.KindInternal, err, "updating tool")
		}
		return nil
	})
}

// Delete removes a tool and prunes any virtual server associations
// referencing it, atomically (spec.md §3 Virtual Server invariant).
func (s *ToolStore) Delete(ctx context.Context, id ID, principal Principal) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT owner_team_id, visibility FROM tools WHERE id = ?`, id)
		var ownerTeamID ID
		var visibility string
		if err := row.Scan(&ownerTeamID, &visibility); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return gwerr.New(gwerr.KindNotFound, "tool %s not found", id)
			}
			return gwerr.Wrap(gwerr.KindInternal, err, "loading tool for delete")
		}
		if !principal.CanRead(ownerTeamID, Visibility(visibility)) {
			return gwerr.New(gwerr.KindForbidden, "tool %s not visible to principal", id)
		}
		if err := pruneVirtualServerAssociations(ctx, tx, []ID{id}); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tools WHERE id = ?`, id); err != nil {
			return gwerr.Wrap(gwerr.KindInternal, err, "deleting tool")
		}
		return nil
	})
}
