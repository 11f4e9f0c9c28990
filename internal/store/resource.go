package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"mcpgateway/pkg/gwerr"
)

// ResourceStore is the repository for Resource entities.
type ResourceStore struct{ db *DB }

func NewResourceStore(db *DB) *ResourceStore { return &ResourceStore{db: db} }

const resourceSelectColumns = `SELECT id, gateway_id, uri, mime_type, size_hint, tags, visibility, version`

func (s *ResourceStore) Create(ctx context.Context, r *Resource) error {
	if strings.TrimSpace(r.URI) == "" {
		return gwerr.New(gwerr.KindInvalid, "resource uri is required")
	}
	r.URI = normalizeURI(r.URI)
	if r.ID.IsZero() {
		r.ID = NewID()
	}
	r.Version = 1
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO resources (id, gateway_id, uri, mime_type, size_hint, tags, visibility, version)
			VALUES (?,?,?,?,?,?,?,?)`,
			r.ID, nullableID(r.GatewayID), r.URI, r.MimeType, r.SizeHint, strings.Join(r.Tags, ","), string(r.Visibility), r.Version)
		if err != nil {
			if isUniqueViolation(err) {
				return gwerr.Wrap(gwerr.KindConflict, err, "resource %q already exists for gateway", r.URI)
			}
			return gwerr.Wrap(gwerr.KindInternal, err, "inserting resource")
		}
		return nil
	})
}

// normalizeURI applies spec.md §3's "resource URIs normalized" invariant by
// collapsing trailing slashes; scheme and host case are left as given.
func normalizeURI(uri string) string {
	return strings.TrimRight(uri, "/")
}

func scanResource(row rowScanner) (*Resource, error) {
	var r Resource
	var gatewayID sql.NullString
	var tags, visibility string
	if err := row.Scan(&r.ID, &gatewayID, &r.URI, &r.MimeType, &r.SizeHint, &tags, &visibility, &r.Version); err != nil {
		return nil, err
	}
	if gatewayID.Valid {
		if id, err := ParseID(gatewayID.String); err == nil {
			r.GatewayID = id
		}
	}
	r.Visibility = Visibility(visibility)
	if tags != "" {
		r.Tags = strings.Split(tags, ",")
	}
	return &r, nil
}

func (s *ResourceStore) GetByID(ctx context.Context, id ID, principal Principal) (*Resource, error) {
	row := s.db.QueryRowContext(ctx, resourceSelectColumns+" FROM resources WHERE id = ?", id)
	r, err := scanResource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gwerr.New(gwerr.KindNotFound, "resource %s not found", id)
		}
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "scanning resource")
	}
	if !principal.CanRead(ID{}, r.Visibility) && r.Visibility != VisibilityPublic {
		return nil, gwerr.New(gwerr.KindForbidden, "resource %s not visible to principal", id)
	}
	return r, nil
}

func (s *ResourceStore) List(ctx context.Context, principal Principal, page Page) ([]*Resource, error) {
	page = page.Normalize()
	rows, err := s.db.QueryContext(ctx, resourceSelectColumns+" FROM resources ORDER BY uri LIMIT ? OFFSET ?", page.Limit, page.Offset)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "listing resources")
	}
	defer rows.Close()
	var out []*Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, gwerr.Wrap(gwerr.KindInternal, err, "scanning resource row")
		}
		if r.Visibility == VisibilityPublic || principal.IsAdmin {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

func (s *ResourceStore) Delete(ctx context.Context, id ID, principal Principal) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id); err != nil {
			return gwerr.Wrap(gwerr.KindInternal, err, "deleting resource")
		}
		return pruneVirtualServerAssociations(ctx, tx, []ID{id})
	})
}
