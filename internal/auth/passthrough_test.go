package auth

import (
	"net/http"
	"strings"
	"testing"
)

func TestSanitizePassthroughOnlyForwardsAllowedHeaders(t *testing.T) {
	incoming := http.Header{
		"X-Tenant-Id":   []string{"acme"},
		"X-Other":       []string{"nope"},
		"Authorization": []string{"Bearer secret"},
		"Connection":    []string{"keep-alive"},
	}
	out := SanitizePassthrough(incoming, []string{"X-Tenant-Id"})

	if got := out.Get("X-Tenant-Id"); got != "acme" {
		t.Fatalf("X-Tenant-Id = %q, want acme", got)
	}
	if out.Get("X-Other") != "" {
		t.Fatal("header absent from the allowlist must not be forwarded")
	}
	if out.Get("Authorization") != "" {
		t.Fatal("Authorization must never be passed through, even if allowlisted")
	}
	if out.Get("Connection") != "" {
		t.Fatal("hop-by-hop headers must never be forwarded")
	}
}

func TestSanitizePassthroughStripsCRLFAndTruncates(t *testing.T) {
	longValue := strings.Repeat("a", MaxPassthroughHeaderBytes+100)
	incoming := http.Header{"X-Tenant-Id": []string{"evil\r\nX-Injected: yes" + longValue}}
	out := SanitizePassthrough(incoming, []string{"X-Tenant-Id"})

	got := out.Get("X-Tenant-Id")
	if strings.ContainsAny(got, "\r\n") {
		t.Fatal("sanitized value must not contain CR or LF")
	}
	if len(got) > MaxPassthroughHeaderBytes {
		t.Fatalf("len(got) = %d, want <= %d", len(got), MaxPassthroughHeaderBytes)
	}
}

func TestSanitizePassthroughRejectsInvalidHeaderNames(t *testing.T) {
	incoming := http.Header{"X Bad Name!": []string{"v"}}
	out := SanitizePassthrough(incoming, []string{"X Bad Name!"})
	if len(out) != 0 {
		t.Fatalf("out = %v, want empty", out)
	}
}

func TestSecretNeverExposesValueViaStringOrMarshal(t *testing.T) {
	s := NewSecret("top-secret")
	if s.String() != "[REDACTED]" {
		t.Fatalf("String() = %q", s.String())
	}
	text, err := s.MarshalText()
	if err != nil || string(text) != "[REDACTED]" {
		t.Fatalf("MarshalText() = (%s, %v)", text, err)
	}
	data, err := s.MarshalJSON()
	if err != nil || string(data) != `"[REDACTED]"` {
		t.Fatalf("MarshalJSON() = (%s, %v)", data, err)
	}
	if s.Value() != "top-secret" {
		t.Fatal("Value() must still return the real credential")
	}
}

func TestSecretIsEmpty(t *testing.T) {
	if !NewSecret("").IsEmpty() {
		t.Fatal("empty secret must report IsEmpty")
	}
	if NewSecret("x").IsEmpty() {
		t.Fatal("non-empty secret must not report IsEmpty")
	}
}
