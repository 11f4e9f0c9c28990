package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"mcpgateway/pkg/gwerr"
)

// VirtualServerStore is the repository for Virtual Server entities.
type VirtualServerStore struct {
	db *DB
}

func NewVirtualServerStore(db *DB) *VirtualServerStore { return &VirtualServerStore{db: db} }

func (s *VirtualServerStore) Create(ctx context.Context, v *VirtualServer) error {
	if strings.TrimSpace(v.Name) == "" {
		return gwerr.New(gwerr.KindInvalid, "virtual server name is required")
	}
	if v.ID.IsZero() {
		v.ID = NewID()
	}
	v.Version = 1
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := validateAssociations(ctx, tx, v); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO virtual_servers (id, name, associated_tools, associated_resources,
				associated_prompts, visibility, owner_team_id, version)
			VALUES (?,?,?,?,?,?,?,?)`,
			v.ID, v.Name, joinIDs(v.AssociatedTools), joinIDs(v.AssociatedResources),
			joinIDs(v.AssociatedPrompts), string(v.Visibility), v.OwnerTeamID, v.Version)
		if err != nil {
			if isUniqueViolation(err) {
				return gwerr.Wrap(gwerr.KindConflict, err, "virtual server %q already exists", v.Name)
			}
			return gwerr.Wrap(gwerr.KindInternal, err, "inserting virtual server")
		}
		return nil
	})
}

// validateAssociations enforces spec.md §3's invariant that "all associations
// must refer to currently-existing entities".
func validateAssociations(ctx context.Context, tx *sql.Tx, v *VirtualServer) error {
	checks := []struct {
		table string
		ids   []ID
	}{
		{"tools", v.AssociatedTools},
		{"resources", v.AssociatedResources},
		{"prompts", v.AssociatedPrompts},
	}
	for _, c := range checks {
		for _, id := range c.ids {
			var exists int
			row := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+c.table+" WHERE id = ?", id)
			if err := row.Scan(&exists); err != nil {
				return gwerr.Wrap(gwerr.KindInternal, err, "checking association")
			}
			if exists == 0 {
				return gwerr.New(gwerr.KindInvalid, "association references non-existent %s %s", c.table, id)
			}
		}
	}
	return nil
}

func (s *VirtualServerStore) GetByID(ctx context.Context, id ID, principal Principal) (*VirtualServer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, associated_tools, associated_resources, associated_prompts,
			visibility, owner_team_id, version
		FROM virtual_servers WHERE id = ?`, id)
	v, err := scanVirtualServer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gwerr.New(gwerr.KindNotFound, "virtual server %s not found", id)
		}
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "scanning virtual server")
	}
	if !principal.CanRead(v.OwnerTeamID, v.Visibility) {
		return nil, gwerr.New(gwerr.KindForbidden, "virtual server %s not visible to principal", id)
	}
	// Self-healing: prune associations to entities deleted since last write
	// (spec.md §4.9 "auto-pruned at read time").
	v.AssociatedTools = filterExistingIDs(ctx, s.db, "tools", v.AssociatedTools)
	v.AssociatedResources = filterExistingIDs(ctx, s.db, "resources", v.AssociatedResources)
	v.AssociatedPrompts = filterExistingIDs(ctx, s.db, "prompts", v.AssociatedPrompts)
	return v, nil
}

func scanVirtualServer(row rowScanner) (*VirtualServer, error) {
	var v VirtualServer
	var tools, resources, prompts, visibility string
	if err := row.Scan(&v.ID, &v.Name, &tools, &resources, &prompts, &visibility, &v.OwnerTeamID, &v.Version); err != nil {
		return nil, err
	}
	v.AssociatedTools = splitIDs(tools)
	v.AssociatedResources = splitIDs(resources)
	v.AssociatedPrompts = splitIDs(prompts)
	v.Visibility = Visibility(visibility)
	return &v, nil
}

func filterExistingIDs(ctx context.Context, db *DB, table string, ids []ID) []ID {
	var out []ID
	for _, id := range ids {
		var exists int
		row := db.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+table+" WHERE id = ?", id)
		if err := row.Scan(&exists); err == nil && exists > 0 {
			out = append(out, id)
		}
	}
	return out
}

// PersistPrunedAssociations writes back an association list already
// self-healed by GetByID, bumping version, but only if something actually
// changed (compare-free no-op write would otherwise race a concurrent
// legitimate edit). Used by the periodic association sweep (spec.md §4.9).
func (s *VirtualServerStore) PersistPrunedAssociations(ctx context.Context, id ID, tools, resources, prompts []ID) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT associated_tools, associated_resources, associated_prompts, version
			FROM virtual_servers WHERE id = ?`, id)
		var curTools, curResources, curPrompts string
		var version int64
		if err := row.Scan(&curTools, &curResources, &curPrompts, &version); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return gwerr.Wrap(gwerr.KindInternal, err, "loading virtual server for sweep")
		}
		if curTools == joinIDs(tools) && curResources == joinIDs(resources) && curPrompts == joinIDs(prompts) {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE virtual_servers SET associated_tools=?, associated_resources=?, associated_prompts=?, version=version+1
			WHERE id = ?`, joinIDs(tools), joinIDs(resources), joinIDs(prompts), id)
		if err != nil {
			return gwerr.Wrap(gwerr.KindInternal, err, "persisting pruned virtual server associations")
		}
		return nil
	})
}

func (s *VirtualServerStore) List(ctx context.Context, principal Principal, page Page) ([]*VirtualServer, error) {
	page = page.Normalize()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, associated_tools, associated_resources, associated_prompts,
			visibility, owner_team_id, version
		FROM virtual_servers ORDER BY name LIMIT ? OFFSET ?`, page.Limit, page.Offset)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "listing virtual servers")
	}
	defer rows.Close()
	var out []*VirtualServer
	for rows.Next() {
		v, err := scanVirtualServer(rows)
		if err != nil {
			return nil, gwerr.Wrap(gwerr.KindInternal, err, "scanning virtual server row")
		}
		if principal.CanRead(v.OwnerTeamID, v.Visibility) {
			out = append(out, v)
		}
	}
	return out, rows.Err()
}

func (s *VirtualServerStore) Delete(ctx context.Context, id ID, principal Principal) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT owner_team_id, visibility FROM virtual_servers WHERE id = ?`, id)
		var ownerTeamID ID
		var visibility string
		if err := row.Scan(&ownerTeamID, &visibility); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return gwerr.New(gwerr.KindNotFound, "virtual server %s not found", id)
			}
			return gwerr.Wrap(gwerr.KindInternal, err, "loading virtual server for delete")
		}
		if !principal.CanRead(ownerTeamID, Visibility(visibility)) {
			return gwerr.New(gwerr.KindForbidden, "virtual server %s not visible to principal", id)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM virtual_servers WHERE id = ?`, id); err != nil {
			return gwerr.Wrap(gwerr.KindInternal, err, "deleting virtual server")
		}
		return nil
	})
}

// pruneVirtualServerAssociationsForGateway drops associations to any
// tool/resource/prompt owned by gatewayID, atomically with the gateway's
// own delete (spec.md §3 "Virtual Server" invariant).
func pruneVirtualServerAssociationsForGateway(ctx context.Context, tx *sql.Tx, gatewayID ID) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM tools WHERE gateway_id = ?
		UNION SELECT id FROM resources WHERE gateway_id = ?
		UNION SELECT id FROM prompts WHERE gateway_id = ?`, gatewayID, gatewayID, gatewayID)
	if err != nil {
		return gwerr.Wrap(gwerr.KindInternal, err, "collecting gateway entities")
	}
	defer rows.Close()

	var doomed []ID
	for rows.Next() {
		var id ID
		if err := rows.Scan(&id); err != nil {
			return gwerr.Wrap(gwerr.KindInternal, err, "scanning doomed entity id")
		}
		doomed = append(doomed, id)
	}
	if err := rows.Err(); err != nil {
		return gwerr.Wrap(gwerr.KindInternal, err, "iterating doomed entities")
	}
	return pruneVirtualServerAssociations(ctx, tx, doomed)
}

// pruneVirtualServerAssociations removes references to the given entity ids
// from every virtual server's association lists.
func pruneVirtualServerAssociations(ctx context.Context, tx *sql.Tx, doomed []ID) error {
	if len(doomed) == 0 {
		return nil
	}
	doomedSet := make(map[ID]bool, len(doomed))
	for _, id := range doomed {
		doomedSet[id] = true
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, associated_tools, associated_resources, associated_prompts FROM virtual_servers`)
	if err != nil {
		return gwerr.Wrap(gwerr.KindInternal, err, "loading virtual servers for prune")
	}
	type vsAssoc struct {
		id                            ID
		tools, resources, prompts     []ID
	}
	var toUpdate []vsAssoc
	for rows.Next() {
		var id ID
		var tools, resources, prompts string
		if err := rows.Scan(&id, &tools, &resources, &prompts); err != nil {
			rows.Close()
			return gwerr.Wrap(gwerr.KindInternal, err, "scanning virtual server for prune")
		}
		toUpdate = append(toUpdate, vsAssoc{id: id, tools: splitIDs(tools), resources: splitIDs(resources), prompts: splitIDs(prompts)})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return gwerr.Wrap(gwerr.KindInternal, err, "iterating virtual servers for prune")
	}
	rows.Close()

	for _, v := range toUpdate {
		newTools := removeIDs(v.tools, doomedSet)
		newResources := removeIDs(v.resources, doomedSet)
		newPrompts := removeIDs(v.prompts, doomedSet)
		if len(newTools) == len(v.tools) && len(newResources) == len(v.resources) && len(newPrompts) == len(v.prompts) {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE virtual_servers SET associated_tools=?, associated_resources=?, associated_prompts=?, version=version+1
			WHERE id = ?`, joinIDs(newTools), joinIDs(newResources), joinIDs(newPrompts), v.id); err != nil {
			return gwerr.Wrap(gwerr.KindInternal, err, "pruning virtual server association")
		}
	}
	return nil
}

func removeIDs(ids []ID, doomed map[ID]bool) []ID {
	var out []ID
	for _, id := range ids {
		if !doomed[id] {
			out = append(out, id)
		}
	}
	return out
}

func joinIDs(ids []ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) []ID {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]ID, 0, len(parts))
	for _, p := range parts {
		if id, err := ParseID(p); err == nil {
			out = append(out, id)
		}
	}
	return out
}
