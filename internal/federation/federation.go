// Package federation discovers and syncs peer Gateways (spec.md §4.8,
// component C8): optional mDNS announce/discovery, a leader-elected health
// checker, and tool capability-sync against the entity store. Its
// ticker-driven worker with a delayed retry queue is a direct generalization
// of the teacher's internal/reconciler.Manager, repointed at peer-gateway
// reconciliation instead of Kubernetes/filesystem service reconciliation.
package federation

import (
	"context"
	"sort"
	"sync"
	"time"

	"mcpgateway/internal/store"
	"mcpgateway/internal/upstream"
	"mcpgateway/pkg/gwerr"
	"mcpgateway/pkg/logging"
)

const logSubsystem = "federation"

// Manager runs the leader-elected federation worker: health checks and
// capability sync. mDNS announce/discovery is the separate Discoverer type
// (mdns.go); Manager does not start it.
type Manager struct {
	lock       *store.LeaderLock
	holder     string
	gateways   *store.GatewayStore
	tools      *store.ToolStore
	resources  *store.ResourceStore
	prompts    *store.PromptStore
	pool       *upstream.Pool
	tenantID   store.ID
	separator  string

	healthInterval time.Duration
	lockTTL        time.Duration
	renewInterval  time.Duration

	mu       sync.Mutex
	isLeader bool

	retryQueue *delayedQueue
}

func NewManager(lock *store.LeaderLock, holder string, gateways *store.GatewayStore, tools *store.ToolStore,
	resources *store.ResourceStore, prompts *store.PromptStore, pool *upstream.Pool, tenantID store.ID,
	separator string, healthInterval, lockTTL, renewInterval time.Duration) *Manager {
	if separator == "" {
		separator = "_"
	}
	return &Manager{
		lock: lock, holder: holder, gateways: gateways, tools: tools, resources: resources, prompts: prompts,
		pool: pool, tenantID: tenantID, separator: separator,
		healthInterval: healthInterval, lockTTL: lockTTL, renewInterval: renewInterval,
		retryQueue: newDelayedQueue(),
	}
}

// Run blocks, alternating leader-election renewal and (while leader)
// health-check/capability-sync passes, until ctx is cancelled. Leadership
// is re-checked once per renewInterval tick, so after leader loss the
// worker stops syncing at the next renewal tick, not sooner.
func (m *Manager) Run(ctx context.Context) {
	electionTicker := time.NewTicker(m.renewInterval)
	defer electionTicker.Stop()
	workTicker := time.NewTicker(m.healthInterval)
	defer workTicker.Stop()

	m.tryAcquire(ctx)
	defer m.release(context.Background())

	for {
		select {
		case <-ctx.Done():
			return
		case <-electionTicker.C:
			m.tryAcquire(ctx)
		case <-workTicker.C:
			if m.leading() {
				m.syncAll(ctx)
			}
		case req := <-m.retryQueue.ready():
			if m.leading() {
				m.syncOne(ctx, req.gatewayID, req.attempt)
			}
		}
	}
}

func (m *Manager) tryAcquire(ctx context.Context) {
	ok, err := m.lock.Acquire(ctx, m.holder, m.lockTTL)
	if err != nil {
		logging.Error(logSubsystem, err, "acquiring leader lock")
		ok = false
	}
	m.mu.Lock()
	m.isLeader = ok
	m.mu.Unlock()
}

func (m *Manager) leading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isLeader
}

func (m *Manager) release(ctx context.Context) {
	if m.leading() {
		_ = m.lock.Release(ctx, m.holder)
	}
}

func (m *Manager) syncAll(ctx context.Context) {
	page := store.Page{Limit: 200}
	admin := store.Principal{IsAdmin: true}
	for {
		gateways, err := m.gateways.List(ctx, m.tenantID, admin, page)
		if err != nil {
			logging.Error(logSubsystem, err, "listing gateways for federation sync")
			return
		}
		if len(gateways) == 0 {
			return
		}
		for _, g := range gateways {
			if !g.Enabled || !g.HealthChecksEnabled {
				continue
			}
			m.syncOne(ctx, g.ID, 0)
		}
		if len(gateways) < page.Limit {
			return
		}
		page.Offset += page.Limit
	}
}

// syncOne health-checks one gateway, and on success diffs and applies its
// advertised tools (see syncCapabilities). A
// failed health check or sync is requeued with exponential backoff rather
// than retried inline, so one slow/unreachable peer cannot stall the pass.
func (m *Manager) syncOne(ctx context.Context, gatewayID store.ID, attempt int) {
	g, err := m.gateways.GetForConnection(ctx, gatewayID)
	if err != nil {
		return // gateway deleted since enqueue
	}

	err = m.pool.Call(ctx, g, func(ctx context.Context, c upstream.Client) error { return c.Ping(ctx) })
	if err != nil {
		logging.Warn(logSubsystem, "health check failed for gateway %s: %v", g.Name, err)
		m.markUnreachable(ctx, g)
		m.retryQueue.push(gatewayID, attempt+1)
		return
	}
	m.markReachable(ctx, g)

	if err := m.syncCapabilities(ctx, g); err != nil {
		logging.Error(logSubsystem, err, "capability sync failed for gateway %s", g.Name)
		m.retryQueue.push(gatewayID, attempt+1)
	}
}

func (m *Manager) markReachable(ctx context.Context, g *store.Gateway) {
	if g.Reachable {
		return
	}
	_ = m.gateways.Update(ctx, g.ID, g.Version, func(gg *store.Gateway) { gg.Reachable = true }, store.Principal{IsAdmin: true})
}

func (m *Manager) markUnreachable(ctx context.Context, g *store.Gateway) {
	if !g.Reachable {
		return
	}
	_ = m.gateways.Update(ctx, g.ID, g.Version, func(gg *store.Gateway) { gg.Reachable = false }, store.Principal{IsAdmin: true})
}

// syncCapabilities fetches a peer's tools and applies the diff against the
// store: remote tools not yet mirrored are created and mirrored tools no
// longer advertised are deleted, one store call per tool. Resources and
// prompts are not synced, already-mirrored tools are not updated, and the
// changes are not applied in a single transaction.
func (m *Manager) syncCapabilities(ctx context.Context, g *store.Gateway) error {
	admin := store.Principal{IsAdmin: true}
	slug := peerSlug(g)

	var remoteToolNames []string
	err := m.pool.Call(ctx, g, func(ctx context.Context, c upstream.Client) error {
		remote, err := c.ListTools(ctx)
		if err != nil {
			return err
		}
		for _, rt := range remote {
			remoteToolNames = append(remoteToolNames, rt.Name)
		}
		return nil
	})
	if err != nil {
		return gwerr.Wrap(gwerr.KindUnavailable, err, "listing tools on gateway %s", g.Name)
	}

	existing, err := m.tools.ListByGateway(ctx, g.ID)
	if err != nil {
		return err
	}
	existingByRemote := make(map[string]*store.Tool, len(existing))
	for _, t := range existing {
		existingByRemote[remoteNameFromExposed(t.Name, slug, m.separator)] = t
	}

	exposedNames := make(map[string]bool, len(existing))
	for _, t := range existing {
		exposedNames[t.Name] = true
	}

	for _, remoteName := range remoteToolNames {
		if _, ok := existingByRemote[remoteName]; ok {
			continue // already mirrored
		}
		exposed := exposedName(slug, remoteName, m.separator, g.ID, exposedNames)
		exposedNames[exposed] = true
		t := &store.Tool{
			GatewayID:       g.ID,
			Name:            exposed,
			IntegrationType: store.IntegrationMCP,
			MCPMethod:       remoteName,
			Enabled:         true,
			Reachable:       true,
			OwnerTeamID:     g.OwnerTeamID,
			Visibility:      g.Visibility,
		}
		if err := m.tools.Create(ctx, t); err != nil {
			logging.Error(logSubsystem, err, "mirroring tool %s from gateway %s", remoteName, g.Name)
		}
	}

	remoteSet := make(map[string]bool, len(remoteToolNames))
	for _, n := range remoteToolNames {
		remoteSet[n] = true
	}
	for remoteName, t := range existingByRemote {
		if !remoteSet[remoteName] {
			if err := m.tools.Delete(ctx, t.ID, admin); err != nil {
				logging.Error(logSubsystem, err, "pruning stale mirrored tool %s", t.Name)
			}
		}
	}
	return nil
}

// peerSlug derives the stable name prefix used for a peer's mirrored tools
// (spec.md §4.8 "{peer_slug}{separator}{remote_name}").
func peerSlug(g *store.Gateway) string {
	if g.Name != "" {
		return g.Name
	}
	return shortHex(g.ID.String())
}

func exposedName(slug, remoteName, separator string, gatewayID store.ID, taken map[string]bool) string {
	candidate := slug + separator + remoteName
	if !taken[candidate] {
		return candidate
	}
	return candidate + separator + shortHex(gatewayID.String())
}

// remoteNameFromExposed recovers the remote tool name from a previously
// mirrored exposed name, for diffing against a fresh tools/list response.
func remoteNameFromExposed(exposed, slug, separator string) string {
	prefix := slug + separator
	if len(exposed) > len(prefix) && exposed[:len(prefix)] == prefix {
		return exposed[len(prefix):]
	}
	return exposed
}

// shortHex returns the first 8 characters of s, the hex form of an ID.
func shortHex(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// retryItem and delayedQueue implement the requeue-with-backoff behavior
// the teacher's internal/reconciler uses for failed reconciles (its
// queue.go delayedQueue), here repointed at peer-gateway retries.
type retryItem struct {
	gatewayID store.ID
	attempt   int
	fireAt    time.Time
}

type delayedQueue struct {
	mu    sync.Mutex
	items []retryItem
	out   chan retryItem
}

func newDelayedQueue() *delayedQueue {
	q := &delayedQueue{out: make(chan retryItem, 64)}
	go q.pump()
	return q
}

func (q *delayedQueue) push(gatewayID store.ID, attempt int) {
	backoff := computeFederationBackoff(attempt)
	q.mu.Lock()
	q.items = append(q.items, retryItem{gatewayID: gatewayID, attempt: attempt, fireAt: time.Now().Add(backoff)})
	sort.Slice(q.items, func(i, j int) bool { return q.items[i].fireAt.Before(q.items[j].fireAt) })
	q.mu.Unlock()
}

func (q *delayedQueue) ready() <-chan retryItem { return q.out }

func (q *delayedQueue) pump() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		q.mu.Lock()
		now := time.Now()
		var fire []retryItem
		remaining := q.items[:0]
		for _, it := range q.items {
			if now.After(it.fireAt) {
				fire = append(fire, it)
			} else {
				remaining = append(remaining, it)
			}
		}
		q.items = remaining
		q.mu.Unlock()
		for _, it := range fire {
			q.out <- it
		}
	}
}

// computeFederationBackoff mirrors the teacher reconciler's doubling
// InitialBackoff/MaxBackoff curve: 2s doubled once per attempt, capped at
// 2 minutes.
func computeFederationBackoff(attempt int) time.Duration {
	const initial = 2 * time.Second
	const max = 2 * time.Minute
	d := initial
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}
