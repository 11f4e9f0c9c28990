package store

import (
	"context"
	"database/sql"
	"time"

	"mcpgateway/pkg/gwerr"
)

// MetricStore is the append-only repository for MetricEvent rows
// (spec.md §3 "Metric event ... Append-only").
type MetricStore struct{ db *DB }

func NewMetricStore(db *DB) *MetricStore { return &MetricStore{db: db} }

func (s *MetricStore) Record(ctx context.Context, m MetricEvent) error {
	if m.ID.IsZero() {
		m.ID = NewID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = now()
	}
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO metrics_event (id, tool_id, resource_id, prompt_id, tenant_id, request_id,
			duration_ms, status, error_code, at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.ID, nullableID(m.ToolID), nullableID(m.ResourceID), nullableID(m.PromptID), nullableID(m.TenantID),
		m.RequestID, m.DurationMS, m.Status, m.ErrorCode, m.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return gwerr.Wrap(gwerr.KindInternal, err, "recording metric event")
	}
	return nil
}

// ListByTool returns the most recent metric events for a tool, bounded by
// limit (at most 500).
func (s *MetricStore) ListByTool(ctx context.Context, toolID ID, limit int) ([]MetricEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool_id, request_id, duration_ms, status, error_code, at
		FROM metrics_event WHERE tool_id = ? ORDER BY at DESC LIMIT ?`, toolID, limit)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "listing metric events")
	}
	defer rows.Close()

	var out []MetricEvent
	for rows.Next() {
		var m MetricEvent
		var errorCode sql.NullString
		var at string
		if err := rows.Scan(&m.ID, &m.ToolID, &m.RequestID, &m.DurationMS, &m.Status, &errorCode, &at); err != nil {
			return nil, gwerr.Wrap(gwerr.KindInternal, err, "scanning metric event")
		}
		m.ErrorCode = errorCode.String
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, m)
	}
	return out, rows.Err()
}
