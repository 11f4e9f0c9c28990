package transport

import (
	"context"
	"testing"
)

func TestOutboundPushDrainOrderingAndBackpressure(t *testing.T) {
	o := newOutbound()
	for i := 0; i < outboundQueueSize; i++ {
		if !o.push([]byte{byte(i)}) {
			t.Fatalf("push() failed before queue was full, at i=%d", i)
		}
	}
	if o.push([]byte("overflow")) {
		t.Fatal("push() must report false once the bounded queue is full")
	}

	frames := o.drain()
	if len(frames) != outboundQueueSize {
		t.Fatalf("len(drain()) = %d, want %d", len(frames), outboundQueueSize)
	}
	for i, f := range frames {
		if f[0] != byte(i) {
			t.Fatalf("frames[%d] = %v, want FIFO order", i, f)
		}
	}
}

func TestOutboundPushAfterCloseIsNoop(t *testing.T) {
	o := newOutbound()
	o.close()
	if !o.push([]byte("x")) {
		t.Fatal("push() on a closed outbound should report true (a drop, not a backpressure failure)")
	}
	if frames := o.drain(); len(frames) != 0 {
		t.Fatalf("drain() after close = %v, want empty (frame must not be enqueued)", frames)
	}
}

func TestRegistryNotifyRequiresLiveSession(t *testing.T) {
	r := NewRegistry()
	err := r.Notify(context.Background(), "unknown-session", "elicitation/create", nil)
	if err == nil {
		t.Fatal("Notify() on an unregistered session must return an error")
	}
}

func TestRegistryNotifyDeliversToRegisteredSession(t *testing.T) {
	r := NewRegistry()
	box := r.register("sess-1")
	defer r.unregister("sess-1")

	if err := r.Notify(context.Background(), "sess-1", "elicitation/create", map[string]string{"message": "confirm"}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	frames := box.drain()
	if len(frames) != 1 {
		t.Fatalf("len(frames) = %d, want 1", len(frames))
	}
}

func TestRegistryNotifyFailsAfterUnregister(t *testing.T) {
	r := NewRegistry()
	r.register("sess-2")
	r.unregister("sess-2")
	if err := r.Notify(context.Background(), "sess-2", "ping", nil); err == nil {
		t.Fatal("Notify() after unregister must fail")
	}
}

func TestHeartbeatTickerDefaultsOnNonPositiveInterval(t *testing.T) {
	ticker := heartbeatTicker(0)
	defer ticker.Stop()
	if ticker == nil {
		t.Fatal("heartbeatTicker(0) returned nil")
	}
}
