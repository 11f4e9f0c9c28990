package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mcpgateway/internal/store"
	"mcpgateway/pkg/gwerr"
)

// Verifier turns a bearer token into a store.Principal. It validates the JWT
// signature and (optionally) expiration, then resolves a durable user/team
// identity via store.UserStore the same way the teacher resolves an
// oauth-verified identity into a session before any tool is ever routed.
type Verifier struct {
	secret                 Secret
	algorithm              string
	requireExpiration      bool
	users                  *store.UserStore
	teams                  *store.TeamStore
}

func NewVerifier(secret Secret, algorithm string, requireExpiration bool, users *store.UserStore, teams *store.TeamStore) *Verifier {
	return &Verifier{secret: secret, algorithm: algorithm, requireExpiration: requireExpiration, users: users, teams: teams}
}

// claims mirrors the minimal registered+custom claim set the gateway relies
// on: subject, tenant, and an optional team assignment that, if absent,
// falls back to store.UserStore's lazily-provisioned user/team mapping.
type claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	TeamID   string `json:"team_id"`
	Admin    bool   `json:"admin"`
}

// Authenticate validates a raw "Bearer <token>" header value (or bare
// token) and resolves it to a Principal. Unauthenticated/Forbidden map
// straight onto pkg/gwerr.Kind so dispatcher can translate them without
// inspecting this package.
func (v *Verifier) Authenticate(ctx context.Context, authorizationHeader string) (store.Principal, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(authorizationHeader, "Bearer"))
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return store.Principal{}, gwerr.New(gwerr.KindUnauthenticated, "missing bearer token")
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != v.algorithm {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(v.secret.Value()), nil
	}, jwt.WithValidMethods([]string{v.algorithm}))
	if err != nil {
		return store.Principal{}, gwerr.Wrap(gwerr.KindUnauthenticated, err, "invalid token")
	}
	if v.requireExpiration && c.ExpiresAt == nil {
		return store.Principal{}, gwerr.New(gwerr.KindUnauthenticated, "token must carry an expiration claim")
	}
	if c.Subject == "" {
		return store.Principal{}, gwerr.New(gwerr.KindUnauthenticated, "token missing subject claim")
	}

	tenantID, err := store.ParseID(c.TenantID)
	if err != nil {
		return store.Principal{}, gwerr.New(gwerr.KindUnauthenticated, "token has malformed tenant_id")
	}

	user, err := v.users.GetOrCreateBySubject(ctx, tenantID, c.Subject)
	if err != nil {
		return store.Principal{}, err
	}

	teamID := user.TeamID
	if c.TeamID != "" {
		if parsed, perr := store.ParseID(c.TeamID); perr == nil {
			teamID = parsed
		}
	}

	return store.Principal{
		UserID:   user.ID,
		TenantID: tenantID,
		TeamID:   teamID,
		Subject:  c.Subject,
		IsAdmin:  c.Admin,
	}, nil
}

// IssueToken mints a signed token for a principal. ttl of zero means no
// expiration claim, only valid when requireExpiration is false.
func (v *Verifier) IssueToken(p store.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.Subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
		TenantID: p.TenantID.String(),
		TeamID:   p.TeamID.String(),
		Admin:    p.IsAdmin,
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	} else if v.requireExpiration {
		return "", gwerr.New(gwerr.KindInvalid, "token requires a non-zero ttl")
	}

	token := jwt.NewWithClaims(jwt.GetSigningMethod(v.algorithm), c)
	return token.SignedString([]byte(v.secret.Value()))
}
