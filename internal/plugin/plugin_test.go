package plugin

import (
	"context"
	"errors"
	"testing"
)

type intPayload struct{ n int }

func chainHook(name string, priority int, mode Mode, add int) Hook[intPayload] {
	return Hook[intPayload]{
		Name: name, Priority: priority, Mode: mode,
		Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
			p.n += add
			return PluginResult[intPayload]{Continue: true, Modified: p}, nil
		},
	}
}

func newTestContext() Context {
	return NewContext(context.Background(), "req-1", "alice", "tenant-1", "gw-1", "tool-1")
}

func TestChainOrdersByPriorityThenDeclaration(t *testing.T) {
	c := NewChain[intPayload]()
	var order []string
	record := func(name string, priority int) Hook[intPayload] {
		return Hook[intPayload]{
			Name: name, Priority: priority, Mode: ModeEnforce,
			Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
				order = append(order, name)
				return PluginResult[intPayload]{Continue: true, Modified: p}, nil
			},
		}
	}
	c.Register(record("b", 10))
	c.Register(record("a", 10))
	c.Register(record("first", 1))

	if _, _, err := c.Run(newTestContext(), intPayload{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{"first", "b", "a"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestChainPayloadChaining(t *testing.T) {
	c := NewChain[intPayload]()
	c.Register(chainHook("add1", 1, ModeEnforce, 1))
	c.Register(chainHook("add10", 2, ModeEnforce, 10))

	result, violation, err := c.Run(newTestContext(), intPayload{n: 0})
	if err != nil || violation != nil {
		t.Fatalf("Run() = (%v, %v, %v)", result, violation, err)
	}
	if result.n != 11 {
		t.Fatalf("result.n = %d, want 11", result.n)
	}
}

func TestChainEnforceShortCircuits(t *testing.T) {
	c := NewChain[intPayload]()
	called := false
	c.Register(Hook[intPayload]{
		Name: "blocker", Priority: 1, Mode: ModeEnforce,
		Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
			return PluginResult[intPayload]{Violation: &Violation{Plugin: "blocker", Code: "blocked"}}, nil
		},
	})
	c.Register(Hook[intPayload]{
		Name: "after", Priority: 2, Mode: ModeEnforce,
		Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
			called = true
			return PluginResult[intPayload]{Continue: true, Modified: p}, nil
		},
	})

	_, violation, err := c.Run(newTestContext(), intPayload{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if violation == nil || violation.Plugin != "blocker" {
		t.Fatalf("violation = %v, want blocker violation", violation)
	}
	if called {
		t.Fatal("plugin after the enforce violation must not run")
	}
}

func TestChainPermissiveDowngradesViolationToContinue(t *testing.T) {
	c := NewChain[intPayload]()
	called := false
	c.Register(Hook[intPayload]{
		Name: "warns", Priority: 1, Mode: ModePermissive,
		Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
			return PluginResult[intPayload]{Continue: true, Modified: p, Violation: &Violation{Plugin: "warns"}}, nil
		},
	})
	c.Register(Hook[intPayload]{
		Name: "after", Priority: 2, Mode: ModeEnforce,
		Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
			called = true
			return PluginResult[intPayload]{Continue: true, Modified: p}, nil
		},
	})

	_, _, err := c.Run(newTestContext(), intPayload{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !called {
		t.Fatal("permissive violation must not block the chain")
	}
}

// TestChainPermissiveIgnoresPluginContinueFalse covers the shape
// builtin.denylist actually returns: a violation with Continue left at its
// zero value (false). A permissive-mode plugin must still not block on it.
func TestChainPermissiveIgnoresPluginContinueFalse(t *testing.T) {
	c := NewChain[intPayload]()
	called := false
	c.Register(Hook[intPayload]{
		Name: "denylist", Priority: 1, Mode: ModePermissive,
		Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
			return PluginResult[intPayload]{Violation: &Violation{Plugin: "denylist"}}, nil
		},
	})
	c.Register(Hook[intPayload]{
		Name: "after", Priority: 2, Mode: ModeEnforce,
		Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
			called = true
			return PluginResult[intPayload]{Continue: true, Modified: p}, nil
		},
	})

	_, violation, err := c.Run(newTestContext(), intPayload{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if violation != nil {
		t.Fatalf("violation = %v, want nil (downgraded)", violation)
	}
	if !called {
		t.Fatal("permissive violation with Continue=false must not block the chain")
	}
}

func TestChainEnforceIgnoreErrorSkipsPluginRuntimeErrors(t *testing.T) {
	c := NewChain[intPayload]()
	called := false
	c.Register(Hook[intPayload]{
		Name: "errors", Priority: 1, Mode: ModeEnforceIgnoreError,
		Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
			return PluginResult[intPayload]{}, errors.New("boom")
		},
	})
	c.Register(Hook[intPayload]{
		Name: "after", Priority: 2, Mode: ModeEnforce,
		Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
			called = true
			return PluginResult[intPayload]{Continue: true, Modified: p}, nil
		},
	})

	_, violation, err := c.Run(newTestContext(), intPayload{})
	if err != nil || violation != nil {
		t.Fatalf("Run() = (violation=%v, err=%v), want nil/nil", violation, err)
	}
	if !called {
		t.Fatal("enforce_ignore_error must skip the erroring plugin and continue")
	}
}

func TestChainEnforceModePropagatesPluginRuntimeError(t *testing.T) {
	c := NewChain[intPayload]()
	c.Register(Hook[intPayload]{
		Name: "errors", Priority: 1, Mode: ModeEnforce,
		Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
			return PluginResult[intPayload]{}, errors.New("boom")
		},
	})

	_, _, err := c.Run(newTestContext(), intPayload{})
	if err == nil {
		t.Fatal("enforce mode must propagate a plugin runtime error")
	}
}

func TestChainDisabledHookIsSkipped(t *testing.T) {
	c := NewChain[intPayload]()
	c.Register(Hook[intPayload]{
		Name: "disabled", Priority: 1, Mode: ModeDisabled,
		Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
			t.Fatal("disabled hook must never run")
			return PluginResult[intPayload]{}, nil
		},
	})
	result, violation, err := c.Run(newTestContext(), intPayload{n: 5})
	if err != nil || violation != nil || result.n != 5 {
		t.Fatalf("Run() = (%v, %v, %v)", result, violation, err)
	}
}

func TestChainConditionsRestrictExecution(t *testing.T) {
	c := NewChain[intPayload]()
	c.Register(Hook[intPayload]{
		Name: "scoped", Priority: 1, Mode: ModeEnforce,
		Conditions: Conditions{ToolNames: []string{"other-tool"}},
		Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
			t.Fatal("hook scoped to another tool must not run")
			return PluginResult[intPayload]{}, nil
		},
	})
	result, _, err := c.Run(newTestContext(), intPayload{n: 1})
	if err != nil || result.n != 1 {
		t.Fatalf("Run() = (%v, %v)", result, err)
	}
}

func TestChainElicitationSuspendsAndResumes(t *testing.T) {
	c := NewChain[intPayload]()
	resumed := false
	c.Register(Hook[intPayload]{
		Name: "elicits", Priority: 1, Mode: ModeEnforce,
		Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
			if _, ok := ctx.State("elicits").Load("answered"); ok {
				resumed = true
				return PluginResult[intPayload]{Continue: true, Modified: p}, nil
			}
			return PluginResult[intPayload]{Elicitation: &ElicitationRequest{Message: "confirm?"}}, nil
		},
	})
	c.Register(chainHook("after", 2, ModeEnforce, 1))

	ctx := newTestContext()
	_, violation, elicit, resumeIndex, err := c.RunFrom(ctx, intPayload{}, 0)
	if err != nil {
		t.Fatalf("RunFrom() error = %v", err)
	}
	if elicit == nil || violation != nil {
		t.Fatalf("expected elicitation suspension, got elicit=%v violation=%v", elicit, violation)
	}

	ctx.State("elicits").Store("answered", true)
	result, violation, elicit, _, err := c.RunFrom(ctx, intPayload{}, resumeIndex)
	if err != nil || violation != nil || elicit != nil {
		t.Fatalf("resume RunFrom() = (%v, %v, %v, %v)", result, violation, elicit, err)
	}
	if !resumed {
		t.Fatal("plugin was not re-invoked on resume")
	}
	if result.n != 1 {
		t.Fatalf("result.n = %d, want 1", result.n)
	}
}

func TestChainRunTreatsElicitationAsBlockingViolation(t *testing.T) {
	c := NewChain[intPayload]()
	c.Register(Hook[intPayload]{
		Name: "elicits", Priority: 1, Mode: ModeEnforce,
		Invoke: func(ctx Context, p intPayload) (PluginResult[intPayload], error) {
			return PluginResult[intPayload]{Elicitation: &ElicitationRequest{Message: "confirm?"}}, nil
		},
	})
	_, violation, err := c.Run(newTestContext(), intPayload{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if violation == nil {
		t.Fatal("Run() (which cannot suspend) must surface the elicitation as a blocking violation")
	}
}

func TestConditionsMatchToolAllowlist(t *testing.T) {
	c := Conditions{}
	ctx := newTestContext()
	if !c.Match(ctx) {
		t.Fatal("empty conditions must match everything")
	}

	c2 := Conditions{ToolNames: []string{"tool-1"}}
	if !c2.Match(ctx) {
		t.Fatal("matching allowlist must match")
	}

	c3 := Conditions{ToolNames: []string{"different"}}
	if c3.Match(ctx) {
		t.Fatal("non-matching allowlist must not match")
	}
}
