package auth

import (
	"net/http"
	"regexp"
	"strings"
)

// MaxPassthroughHeaderBytes bounds a single forwarded header value
// (spec.md §3 passthrough-header invariant).
const MaxPassthroughHeaderBytes = 4 * 1024

var headerNamePattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// hopByHop headers are never forwarded regardless of a gateway's
// configured passthrough list, mirroring RFC 7230 §6.1.
var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"host":                true,
}

// SanitizePassthrough builds the header set forwarded to an upstream,
// restricted to allowed (the gateway's configured passthrough list),
// stripped of CR/LF (header-injection defense), length-bounded, and never
// including hop-by-hop or Authorization headers that belong to the
// gateway-to-upstream leg rather than the client-to-gateway one.
func SanitizePassthrough(incoming http.Header, allowed []string) http.Header {
	out := make(http.Header)
	allowSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowSet[strings.ToLower(name)] = true
	}

	for name, values := range incoming {
		lower := strings.ToLower(name)
		if hopByHop[lower] || lower == "authorization" {
			continue
		}
		if !allowSet[lower] {
			continue
		}
		if !headerNamePattern.MatchString(name) {
			continue
		}
		for _, v := range values {
			clean := stripCRLF(v)
			if len(clean) > MaxPassthroughHeaderBytes {
				clean = clean[:MaxPassthroughHeaderBytes]
			}
			out.Add(name, clean)
		}
	}
	return out
}

func stripCRLF(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
