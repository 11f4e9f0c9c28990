package store

import (
	"context"
	"time"

	"mcpgateway/pkg/gwerr"
)

// AuditStore appends to audit_log (spec.md §6). Never updated or deleted.
type AuditStore struct{ db *DB }

func NewAuditStore(db *DB) *AuditStore { return &AuditStore{db: db} }

func (s *AuditStore) Append(ctx context.Context, rec AuditRecord) error {
	if rec.ID.IsZero() {
		rec.ID = NewID()
	}
	if rec.At.IsZero() {
		rec.At = now()
	}
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO audit_log (id, request_id, actor, action, target_id, at, details_json)
		VALUES (?,?,?,?,?,?,?)`,
		rec.ID, rec.RequestID, rec.Actor, rec.Action, nullableID(rec.TargetID),
		rec.At.Format(time.RFC3339Nano), orDefault(rec.Details, "{}"))
	if err != nil {
		return gwerr.Wrap(gwerr.KindInternal, err, "appending audit record")
	}
	return nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
