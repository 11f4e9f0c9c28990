package store

import (
	"context"
	"database/sql"
	"errors"

	"mcpgateway/pkg/gwerr"
)

// PromptStore is the repository for Prompt entities. Template rendering
// itself (pure, no network I/O per spec.md §3) lives in internal/template,
// called from internal/dispatcher; this store treats Prompt.Template as an
// opaque string.
type PromptStore struct{ db *DB }

func NewPromptStore(db *DB) *PromptStore { return &PromptStore{db: db} }

const promptSelectColumns = `SELECT id, gateway_id, name, arguments, template, visibility, version`

func (s *PromptStore) Create(ctx context.Context, p *Prompt) error {
	if p.Name == "" {
		return gwerr.New(gwerr.KindInvalid, "prompt name is required")
	}
	if p.ID.IsZero() {
		p.ID = NewID()
	}
	p.Version = 1
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO prompts (id, gateway_id, name, arguments, template, visibility, version)
			VALUES (?,?,?,?,?,?,?)`,
			p.ID, nullableID(p.GatewayID), p.Name, p.Arguments, p.Template, string(p.Visibility), p.Version)
		if err != nil {
			if isUniqueViolation(err) {
				return gwerr.Wrap(gwerr.KindConflict, err, "prompt %q already exists for gateway", p.Name)
			}
			return gwerr.Wrap(gwerr.KindInternal, err, "inserting prompt")
		}
		return nil
	})
}

func scanPrompt(row rowScanner) (*Prompt, error) {
	var p Prompt
	var gatewayID sql.NullString
	var visibility string
	if err := row.Scan(&p.ID, &gatewayID, &p.Name, &p.Arguments, &p.Template, &visibility, &p.Version); err != nil {
		return nil, err
	}
	if gatewayID.Valid {
		if id, err := ParseID(gatewayID.String); err == nil {
			p.GatewayID = id
		}
	}
	p.Visibility = Visibility(visibility)
	return &p, nil
}

func (s *PromptStore) GetByID(ctx context.Context, id ID, principal Principal) (*Prompt, error) {
	row := s.db.QueryRowContext(ctx, promptSelectColumns+" FROM prompts WHERE id = ?", id)
	p, err := scanPrompt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gwerr.New(gwerr.KindNotFound, "prompt %s not found", id)
		}
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "scanning prompt")
	}
	if p.Visibility != VisibilityPublic && !principal.IsAdmin {
		return nil, gwerr.New(gwerr.KindForbidden, "prompt %s not visible to principal", id)
	}
	return p, nil
}

func (s *PromptStore) List(ctx context.Context, principal Principal, page Page) ([]*Prompt, error) {
	page = page.Normalize()
	rows, err := s.db.QueryContext(ctx, promptSelectColumns+" FROM prompts ORDER BY name LIMIT ? OFFSET ?", page.Limit, page.Offset)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "listing prompts")
	}
	defer rows.Close()
	var out []*Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, gwerr.Wrap(gwerr.KindInternal, err, "scanning prompt row")
		}
		if p.Visibility == VisibilityPublic || principal.IsAdmin {
			out = append(out, p)
		}
	}
	return out, rows.Err()
}

func (s *PromptStore) Delete(ctx context.Context, id ID, principal Principal) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM prompts WHERE id = ?`, id); err != nil {
			return gwerr.Wrap(gwerr.KindInternal, err, "deleting prompt")
		}
		return pruneVirtualServerAssociations(ctx, tx, []ID{id})
	})
}
