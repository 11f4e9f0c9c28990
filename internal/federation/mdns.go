package federation

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"mcpgateway/pkg/gwerr"
)

// serviceType is the mDNS service advertised and queried for peer discovery
// (spec.md §4.8 "_mcp._tcp.local.").
const serviceType = "_mcp._tcp.local."

const mdnsGroupAddr = "224.0.0.251:5353"

// Announcement is this gateway's self-advertisement, TXT-encoded as
// "version=<v> tenant_hint=<id>" per spec.md §4.8.
type Announcement struct {
	Port       int
	Version    string
	TenantHint string
}

// DiscoveredPeer is an mDNS-observed gateway not yet registered. Discovery
// never auto-registers (spec.md §4.8 "offered to admins"); callers surface
// these through an admin-facing list and a human decides whether to
// register them as a Gateway entity.
type DiscoveredPeer struct {
	Name       string
	Addr       net.IP
	Port       int
	Version    string
	TenantHint string
	SeenAt     time.Time
}

// Discoverer announces this gateway's presence and tracks peers seen on the
// local segment. There is no mDNS library in the example corpus (see
// DESIGN.md); this is a minimal responder/observer built directly on
// net.ListenMulticastUDP, modeled structurally on the teacher's
// ticker-driven background-loop shape rather than any literal mDNS code.
type Discoverer struct {
	ann      Announcement
	selfName string

	mu    sync.Mutex
	peers map[string]DiscoveredPeer
}

func NewDiscoverer(selfName string, ann Announcement) *Discoverer {
	return &Discoverer{selfName: selfName, ann: ann, peers: make(map[string]DiscoveredPeer)}
}

// Peers returns a snapshot of currently known peers, for the admin-facing
// discovery list.
func (d *Discoverer) Peers() []DiscoveredPeer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DiscoveredPeer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p)
	}
	return out
}

// Run joins the mDNS multicast group, periodically announces this gateway,
// and records peer announcements it observes, until ctx is cancelled.
func (d *Discoverer) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", mdnsGroupAddr)
	if err != nil {
		return gwerr.Wrap(gwerr.KindInternal, err, "resolving mdns group address")
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return gwerr.Wrap(gwerr.KindUnavailable, err, "joining mdns multicast group")
	}
	defer conn.Close()

	go d.listen(ctx, conn)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	d.announce(conn, addr)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.announce(conn, addr)
		}
	}
}

func (d *Discoverer) announce(conn *net.UDPConn, addr *net.UDPAddr) {
	payload := fmt.Sprintf("MCPGW-ANNOUNCE %s %s port=%d version=%s tenant_hint=%s",
		serviceType, d.selfName, d.ann.Port, d.ann.Version, d.ann.TenantHint)
	_, _ = conn.WriteToUDP([]byte(payload), addr)
}

func (d *Discoverer) listen(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, 512)
	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		peer, ok := parseAnnouncement(string(buf[:n]), src.IP)
		if !ok || peer.Name == d.selfName {
			continue
		}
		d.mu.Lock()
		d.peers[peer.Name] = peer
		d.mu.Unlock()
	}
}

func parseAnnouncement(line string, from net.IP) (DiscoveredPeer, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 || fields[0] != "MCPGW-ANNOUNCE" || fields[1] != serviceType {
		return DiscoveredPeer{}, false
	}
	p := DiscoveredPeer{Name: fields[2], Addr: from, SeenAt: time.Now()}
	for _, kv := range fields[3:] {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "port":
			p.Port, _ = strconv.Atoi(parts[1])
		case "version":
			p.Version = parts[1]
		case "tenant_hint":
			p.TenantHint = parts[1]
		}
	}
	return p, true
}
