package plugin

import (
	"testing"

	"mcpgateway/internal/store"
)

func TestDenylistHookBlocksDestructiveToolNames(t *testing.T) {
	hook := NewDenylistHook(false)
	ctx := newTestContext()

	cases := []struct {
		tool    string
		blocked bool
	}{
		{"delete_namespace", true},
		{"cluster_delete", true},
		{"rollout_restart", true},
		{"time.get_system_time", false},
		{"list_pods", false},
	}

	for _, tc := range cases {
		res, err := hook.Invoke(ctx, ToolInvocation{Tool: store.Tool{Name: tc.tool}})
		if err != nil {
			t.Fatalf("Invoke(%q) error = %v", tc.tool, err)
		}
		gotBlocked := res.Violation != nil
		if gotBlocked != tc.blocked {
			t.Errorf("tool %q: blocked = %v, want %v", tc.tool, gotBlocked, tc.blocked)
		}
	}
}

func TestDenylistHookYoloAllowsEverything(t *testing.T) {
	hook := NewDenylistHook(true)
	res, err := hook.Invoke(newTestContext(), ToolInvocation{Tool: store.Tool{Name: "delete_namespace"}})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if res.Violation != nil || !res.Continue {
		t.Fatalf("yolo mode must allow destructive tools, got %+v", res)
	}
}
