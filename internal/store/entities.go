package store

import "time"

// Visibility controls cross-principal lookup per spec.md §3's ownership model.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityTeam    Visibility = "team"
	VisibilityPublic  Visibility = "public"
)

// Transport is an upstream Gateway's wire transport.
type Transport string

const (
	TransportSSE            Transport = "SSE"
	TransportStreamableHTTP Transport = "STREAMABLEHTTP"
	TransportStdio          Transport = "STDIO"
	TransportWebSocket      Transport = "WEBSOCKET"
)

// AuthType is how the gateway authenticates to an upstream.
type AuthType string

const (
	AuthNone           AuthType = "none"
	AuthBasic          AuthType = "basic"
	AuthBearer         AuthType = "bearer"
	AuthCustomHeaders  AuthType = "custom-headers"
	AuthOAuth          AuthType = "oauth"
)

// Gateway is a federated upstream MCP endpoint (spec.md §3 "Gateway (peer)").
type Gateway struct {
	ID                 ID
	TenantID           ID
	Name               string
	URL                string
	Transport          Transport
	AuthType           AuthType
	AuthMaterial       string // never populated for one-time-auth gateways after registration
	OneTimeAuth        bool
	PassthroughHeaders []string
	CACertificate      string
	Enabled            bool
	Reachable          bool
	HealthChecksEnabled bool
	CreatedAt          time.Time
	LastSeenAt         time.Time
	OwnerTeamID        ID
	Visibility         Visibility
	Version            int64
}

// IntegrationType distinguishes MCP-native tools from REST-wrapped ones.
type IntegrationType string

const (
	IntegrationMCP  IntegrationType = "MCP"
	IntegrationREST IntegrationType = "REST"
)

// RequestType is the HTTP verb (REST tools) or framing (MCP streaming tools).
type RequestType string

const (
	RequestGET            RequestType = "GET"
	RequestPOST           RequestType = "POST"
	RequestPUT            RequestType = "PUT"
	RequestPATCH          RequestType = "PATCH"
	RequestDELETE         RequestType = "DELETE"
	RequestSSE            RequestType = "SSE"
	RequestStreamableHTTP RequestType = "STREAMABLEHTTP"
)

// Tool is an invocable capability (spec.md §3 "Tool").
type Tool struct {
	ID             ID
	GatewayID      ID // zero value => native tool
	Name           string
	DisplayName    string
	Description    string
	IntegrationType IntegrationType
	RequestType    RequestType
	URL            string // REST tools
	MCPMethod      string // MCP tools
	InputSchema    string // JSON Schema document
	Annotations    map[string]string
	Tags           []string
	Enabled        bool
	Reachable      bool
	OwnerTeamID    ID
	Visibility     Visibility
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int64
}

// IsNative reports whether t is a native (non-federated) tool, which per
// spec.md §8 invariant must carry no circuit breaker state.
func (t Tool) IsNative() bool { return t.GatewayID.IsZero() }

// Resource is addressable content (spec.md §3 "Resource").
type Resource struct {
	ID         ID
	GatewayID  ID
	URI        string
	MimeType   string
	SizeHint   int64
	Tags       []string
	Visibility Visibility
	Version    int64
}

// Prompt is a parameterized template (spec.md §3 "Prompt").
type Prompt struct {
	ID         ID
	GatewayID  ID
	Name       string
	Arguments  string // JSON schema with required/optional
	Template   string
	Visibility Visibility
	Version    int64
}

// VirtualServer composes subsets of upstream capabilities (spec.md §3).
type VirtualServer struct {
	ID                  ID
	Name                string
	AssociatedTools     []ID
	AssociatedResources []ID
	AssociatedPrompts   []ID
	Visibility          Visibility
	OwnerTeamID         ID
	Version             int64
}

// Team groups users for ownership/visibility purposes.
type Team struct {
	ID   ID
	Name string
}

// User is an authenticated principal's durable identity.
type User struct {
	ID       ID
	TenantID ID
	Subject  string // external identity subject (from verified JWT)
	TeamID   ID
}

// Token represents an issued API/service token record (metadata only; the
// signing secret lives in config, not the store).
type Token struct {
	ID        ID
	UserID    ID
	Name      string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// MetricEvent is an append-only per-invocation record (spec.md §3).
type MetricEvent struct {
	ID         ID
	ToolID     ID
	ResourceID ID
	PromptID   ID
	TenantID   ID
	RequestID  string
	DurationMS int64
	Status     string
	ErrorCode  string
	Timestamp  time.Time
}

// AuditRecord is one row of the append-only audit_log (spec.md §6).
type AuditRecord struct {
	ID        ID
	RequestID string
	Actor     string
	Action    string
	TargetID  ID
	At        time.Time
	Details   string // JSON
}

// Principal is the authenticated identity attached to every request
// (spec.md §3/§GLOSSARY). It is never persisted directly — it is derived
// fresh from a verified token on every request.
type Principal struct {
	UserID   ID
	TenantID ID
	TeamID   ID
	Subject  string
	IsAdmin  bool
}

// CanRead reports whether p may read an entity with the given owner/visibility,
// implementing spec.md §3's "private = owner only; team = team members;
// public = all authenticated principals of the tenant".
func (p Principal) CanRead(ownerTeamID ID, visibility Visibility) bool {
	if p.IsAdmin {
		return true
	}
	switch visibility {
	case VisibilityPublic:
		return true
	case VisibilityTeam:
		return p.TeamID == ownerTeamID
	case VisibilityPrivate:
		return p.TeamID == ownerTeamID
	default:
		return false
	}
}

// Page bounds a list() result per spec.md §4.2 (default 50, max 500).
type Page struct {
	Offset int
	Limit  int
}

// Normalize clamps p to the spec's bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
