package dispatcher

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"mcpgateway/internal/config"
	"mcpgateway/internal/store"
	"mcpgateway/pkg/logging"
)

func TestBuildOutboundHeadersAppliesOneTimeAuthMapping(t *testing.T) {
	cfg := config.Default()
	cfg.EnableHeaderPassthrough = false
	d := &Dispatcher{cfg: &cfg}

	gw := &store.Gateway{OneTimeAuth: true}
	incoming := http.Header{UpstreamAuthorizationHeader: []string{"Bearer caller-supplied"}}

	got := d.buildOutboundHeaders(gw, incoming)
	if got["Authorization"] != "Bearer caller-supplied" {
		t.Errorf("Authorization = %q, want mapped from %s", got["Authorization"], UpstreamAuthorizationHeader)
	}
}

func TestBuildOutboundHeadersLogsDebugWhenPassthroughDisabled(t *testing.T) {
	var buf bytes.Buffer
	logging.InitForCLI(logging.LevelDebug, &buf)

	cfg := config.Default()
	cfg.EnableHeaderPassthrough = false
	d := &Dispatcher{cfg: &cfg}

	gw := &store.Gateway{PassthroughHeaders: []string{"X-Tenant-Id"}}
	incoming := http.Header{"X-Tenant-Id": []string{"acme"}}

	got := d.buildOutboundHeaders(gw, incoming)
	if _, ok := got["X-Tenant-Id"]; ok {
		t.Errorf("buildOutboundHeaders() forwarded X-Tenant-Id despite passthrough being disabled: %v", got)
	}
	if !strings.Contains(buf.String(), "Header passthrough is disabled") {
		t.Errorf("expected DEBUG log \"Header passthrough is disabled\", got %q", buf.String())
	}
}

func TestBuildOutboundHeadersForwardsSanitizedPassthroughWhenEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.EnableHeaderPassthrough = true
	d := &Dispatcher{cfg: &cfg}

	gw := &store.Gateway{PassthroughHeaders: []string{"X-Tenant-Id"}}
	incoming := http.Header{
		"X-Tenant-Id":   []string{"acme"},
		"Authorization": []string{"Bearer client-token"},
	}

	got := d.buildOutboundHeaders(gw, incoming)
	if got["X-Tenant-Id"] != "acme" {
		t.Errorf("X-Tenant-Id = %q, want acme", got["X-Tenant-Id"])
	}
	if _, ok := got["Authorization"]; ok {
		t.Error("buildOutboundHeaders() must never forward the client's own Authorization header upstream")
	}
}
