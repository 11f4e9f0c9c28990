package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mcpgateway/internal/store"
	"mcpgateway/pkg/gwerr"
)

// RedisBackend shares session state across a multi-worker deployment
// (CACHE_BACKEND=redis per spec.md §4.1). Elicitation wake-up rides Redis
// pub/sub on a per-session channel (spec.md §4.6: "wake is via a pub/sub
// channel keyed by session_id"), since a request may be accepted on one
// worker and resolved by a client reply landing on another.
type RedisBackend struct {
	client          *redis.Client
	maxElicitations int
	idleTimeout     time.Duration
}

func NewRedisBackend(client *redis.Client, maxElicitations int, idleTimeout time.Duration) *RedisBackend {
	return &RedisBackend{client: client, maxElicitations: maxElicitations, idleTimeout: idleTimeout}
}

type wireSession struct {
	ID             string          `json:"id"`
	Principal      store.Principal `json:"principal"`
	Capabilities   []Capability    `json:"capabilities"`
	Transport      TransportKind   `json:"transport"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
}

func sessionKey(id string) string     { return "session:" + id }
func pendingKey(id string) string     { return "session:" + id + ":pending" }
func elicitChannel(id string) string  { return "session:" + id + ":elicit" }

func toWire(s *Session) wireSession {
	caps := make([]Capability, 0, len(s.Capabilities))
	for c, on := range s.Capabilities {
		if on {
			caps = append(caps, c)
		}
	}
	return wireSession{s.ID, s.Principal, caps, s.Transport, s.CreatedAt, s.LastActivityAt}
}

func fromWire(w wireSession) *Session {
	caps := make(map[Capability]bool, len(w.Capabilities))
	for _, c := range w.Capabilities {
		caps[c] = true
	}
	return &Session{
		ID: w.ID, Principal: w.Principal, Capabilities: caps, Transport: w.Transport,
		CreatedAt: w.CreatedAt, LastActivityAt: w.LastActivityAt,
		pendingElicitations: make(map[string]*ElicitationRequest),
	}
}

func (b *RedisBackend) Create(ctx context.Context, id string, principal store.Principal, caps map[Capability]bool, kind TransportKind) (*Session, error) {
	now := time.Now()
	s := &Session{ID: id, Principal: principal, Capabilities: caps, Transport: kind, CreatedAt: now, LastActivityAt: now}
	raw, err := json.Marshal(toWire(s))
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "marshaling session")
	}
	if err := b.client.Set(ctx, sessionKey(id), raw, b.idleTimeout).Err(); err != nil {
		return nil, gwerr.Wrap(gwerr.KindUnavailable, err, "redis: creating session")
	}
	s.pendingElicitations = make(map[string]*ElicitationRequest)
	return s, nil
}

func (b *RedisBackend) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := b.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, gwerr.New(gwerr.KindNotFound, "session %s not found", id)
	}
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindUnavailable, err, "redis: reading session")
	}
	var w wireSession
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "unmarshaling session")
	}
	return fromWire(w), nil
}

func (b *RedisBackend) Touch(ctx context.Context, id string) error {
	s, err := b.Get(ctx, id)
	if err != nil {
		return err
	}
	s.LastActivityAt = time.Now()
	raw, _ := json.Marshal(toWire(s))
	if err := b.client.Set(ctx, sessionKey(id), raw, b.idleTimeout).Err(); err != nil {
		return gwerr.Wrap(gwerr.KindUnavailable, err, "redis: touching session")
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	if err := b.client.Del(ctx, sessionKey(id), pendingKey(id)).Err(); err != nil {
		return gwerr.Wrap(gwerr.KindUnavailable, err, "redis: deleting session")
	}
	return nil
}

func (b *RedisBackend) AttachPendingElicitation(ctx context.Context, sessionID, requestID string, req *ElicitationRequest) error {
	if _, err := b.Get(ctx, sessionID); err != nil {
		return err
	}
	count, err := b.client.HLen(ctx, pendingKey(sessionID)).Result()
	if err != nil {
		return gwerr.Wrap(gwerr.KindUnavailable, err, "redis: counting pending elicitations")
	}
	if int(count) >= b.maxElicitations {
		return ErrTooManyElicitations()
	}
	entry, _ := json.Marshal(map[string]any{"message": req.Message, "schema": string(req.Schema)})
	if err := b.client.HSet(ctx, pendingKey(sessionID), requestID, entry).Err(); err != nil {
		return gwerr.Wrap(gwerr.KindUnavailable, err, "redis: attaching elicitation")
	}
	return nil
}

func (b *RedisBackend) ResolveElicitation(ctx context.Context, sessionID, requestID string, resp ElicitationResponse) error {
	removed, err := b.client.HDel(ctx, pendingKey(sessionID), requestID).Result()
	if err != nil {
		return gwerr.Wrap(gwerr.KindUnavailable, err, "redis: resolving elicitation")
	}
	if removed == 0 {
		return gwerr.New(gwerr.KindNotFound, "no pending elicitation %s on session %s", requestID, sessionID)
	}
	payload, _ := json.Marshal(resp)
	if err := b.client.Publish(ctx, elicitChannel(sessionID), fmt.Sprintf("%s:%s", requestID, payload)).Err(); err != nil {
		return gwerr.Wrap(gwerr.KindUnavailable, err, "redis: publishing elicitation response")
	}
	return nil
}

func (b *RedisBackend) AwaitElicitation(ctx context.Context, sessionID, requestID string, timeout time.Duration) (ElicitationResponse, error) {
	sub := b.client.Subscribe(ctx, elicitChannel(sessionID))
	defer sub.Close()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := sub.Channel()
	prefix := requestID + ":"
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return ElicitationResponse{}, gwerr.New(gwerr.KindInternal, "elicitation subscription closed")
			}
			if len(msg.Payload) <= len(prefix) || msg.Payload[:len(prefix)] != prefix {
				continue
			}
			var resp ElicitationResponse
			if err := json.Unmarshal([]byte(msg.Payload[len(prefix):]), &resp); err != nil {
				return ElicitationResponse{}, gwerr.Wrap(gwerr.KindInternal, err, "decoding elicitation response")
			}
			return resp, nil
		case <-waitCtx.Done():
			b.client.HDel(context.Background(), pendingKey(sessionID), requestID)
			return ElicitationResponse{}, gwerr.New(gwerr.KindTimeout, "elicitation %s timed out", requestID)
		}
	}
}
