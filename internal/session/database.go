package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"mcpgateway/internal/store"
	"mcpgateway/pkg/gwerr"
)

// DatabaseBackend persists sessions in the entity store's `sessions` table
// (CACHE_BACKEND=database). Pending elicitations are not stored in the
// table: they live in an in-process map with a response channel, so
// AwaitElicitation wakes without polling, and an elicitation can only be
// resolved by the process that attached it.
type DatabaseBackend struct {
	db              *store.DB
	idleTimeout     time.Duration
	maxElicitations int

	mu       sync.Mutex
	pending  map[string]map[string]*ElicitationRequest // sessionID -> requestID -> request
}

func NewDatabaseBackend(db *store.DB, maxElicitations int, idleTimeout time.Duration) *DatabaseBackend {
	return &DatabaseBackend{db: db, idleTimeout: idleTimeout, maxElicitations: maxElicitations, pending: make(map[string]map[string]*ElicitationRequest)}
}

func (b *DatabaseBackend) Create(ctx context.Context, id string, principal store.Principal, caps map[Capability]bool, kind TransportKind) (*Session, error) {
	now := time.Now()
	names := make([]string, 0, len(caps))
	for c, on := range caps {
		if on {
			names = append(names, string(c))
		}
	}
	principalJSON, err := json.Marshal(principal)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "marshaling principal")
	}
	err = b.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO sessions (session_id, principal_json, capabilities, transport_kind, created_at, last_activity_at) VALUES (?,?,?,?,?,?)`,
			id, string(principalJSON), strings.Join(names, ","), string(kind), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "store: creating session")
	}
	return &Session{ID: id, Principal: principal, Capabilities: caps, Transport: kind, CreatedAt: now, LastActivityAt: now,
		pendingElicitations: make(map[string]*ElicitationRequest)}, nil
}

func (b *DatabaseBackend) Get(ctx context.Context, id string) (*Session, error) {
	row := b.db.QueryRowContext(ctx, `SELECT session_id, principal_json, capabilities, transport_kind, created_at, last_activity_at FROM sessions WHERE session_id=?`, id)
	var sid, principalJSON, capsCSV, kind, createdAt, lastActivity string
	if err := row.Scan(&sid, &principalJSON, &capsCSV, &kind, &createdAt, &lastActivity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gwerr.New(gwerr.KindNotFound, "session %s not found", id)
		}
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "store: reading session")
	}
	last, _ := time.Parse(time.RFC3339Nano, lastActivity)
	if b.idleTimeout > 0 && time.Since(last) > b.idleTimeout {
		_ = b.Delete(ctx, id)
		return nil, gwerr.New(gwerr.KindNotFound, "session %s expired", id)
	}
	var principal store.Principal
	_ = json.Unmarshal([]byte(principalJSON), &principal)
	caps := map[Capability]bool{}
	if capsCSV != "" {
		for _, c := range strings.Split(capsCSV, ",") {
			caps[Capability(c)] = true
		}
	}
	created, _ := time.Parse(time.RFC3339Nano, createdAt)
	return &Session{ID: sid, Principal: principal, Capabilities: caps, Transport: TransportKind(kind),
		CreatedAt: created, LastActivityAt: last, pendingElicitations: make(map[string]*ElicitationRequest)}, nil
}

func (b *DatabaseBackend) Touch(ctx context.Context, id string) error {
	return b.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE sessions SET last_activity_at=? WHERE session_id=?`, time.Now().Format(time.RFC3339Nano), id)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return gwerr.New(gwerr.KindNotFound, "session %s not found", id)
		}
		return nil
	})
}

func (b *DatabaseBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
	return b.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id=?`, id)
		return err
	})
}

func (b *DatabaseBackend) AttachPendingElicitation(ctx context.Context, sessionID, requestID string, req *ElicitationRequest) error {
	if _, err := b.Get(ctx, sessionID); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.pending[sessionID]
	if !ok {
		m = make(map[string]*ElicitationRequest)
		b.pending[sessionID] = m
	}
	if len(m) >= b.maxElicitations {
		return ErrTooManyElicitations()
	}
	req.response = make(chan ElicitationResponse, 1)
	m[requestID] = req
	return nil
}

func (b *DatabaseBackend) ResolveElicitation(ctx context.Context, sessionID, requestID string, resp ElicitationResponse) error {
	b.mu.Lock()
	m, ok := b.pending[sessionID]
	var req *ElicitationRequest
	if ok {
		req, ok = m[requestID]
		if ok {
			delete(m, requestID)
		}
	}
	b.mu.Unlock()
	if !ok {
		return gwerr.New(gwerr.KindNotFound, "no pending elicitation %s on session %s", requestID, sessionID)
	}
	req.response <- resp
	return nil
}

func (b *DatabaseBackend) AwaitElicitation(ctx context.Context, sessionID, requestID string, timeout time.Duration) (ElicitationResponse, error) {
	b.mu.Lock()
	m, ok := b.pending[sessionID]
	var req *ElicitationRequest
	if ok {
		req, ok = m[requestID]
	}
	b.mu.Unlock()
	if !ok {
		return ElicitationResponse{}, gwerr.New(gwerr.KindNotFound, "no pending elicitation %s", requestID)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-req.response:
		return resp, nil
	case <-timer.C:
		b.mu.Lock()
		delete(m, requestID)
		b.mu.Unlock()
		return ElicitationResponse{}, gwerr.New(gwerr.KindTimeout, "elicitation %s timed out", requestID)
	case <-ctx.Done():
		return ElicitationResponse{}, gwerr.Wrap(gwerr.KindTimeout, ctx.Err(), "elicitation %s cancelled", requestID)
	}
}
