package auth

// Secret wraps a credential string so it can carry a bearer token, basic
// auth password, or custom header value through logs and error paths
// without ever rendering it. Adapted from the teacher's oauth.RedactedToken.
type Secret struct {
	value string
}

func NewSecret(value string) Secret { return Secret{value: value} }

// Value returns the actual credential. Only call this immediately before
// attaching it to an outbound request; never pass the result to a logger.
func (s Secret) Value() string { return s.value }

func (s Secret) String() string { return "[REDACTED]" }

func (s Secret) GoString() string { return "auth.Secret{[REDACTED]}" }

func (s Secret) IsEmpty() bool { return s.value == "" }

func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

func (s Secret) MarshalJSON() ([]byte, error) { return []byte(`"[REDACTED]"`), nil }
