package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestIDRoundTripsNumberStringAndNull(t *testing.T) {
	cases := []string{`7`, `"abc"`, `null`, ``}
	for _, raw := range cases {
		var id ID
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &id); err != nil {
				t.Fatalf("Unmarshal(%q) error = %v", raw, err)
			}
		}
		out, err := id.MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON() error = %v", err)
		}
		want := raw
		if want == "" {
			want = "null"
		}
		if string(out) != want {
			t.Errorf("MarshalJSON() = %s, want %s", out, want)
		}
	}
}

func TestRequestIsNotification(t *testing.T) {
	var withID Request
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":7,"method":"ping"}`), &withID); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if withID.IsNotification() {
		t.Fatal("request carrying an id must not be a notification")
	}

	var notification Request
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"ping"}`), &notification); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !notification.IsNotification() {
		t.Fatal("request without an id must be a notification")
	}
}

func TestParseMessageSingle(t *testing.T) {
	reqs, batch, err := ParseMessage([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if batch {
		t.Fatal("single object must not be parsed as a batch")
	}
	if len(reqs) != 1 || reqs[0].Method != "tools/list" {
		t.Fatalf("reqs = %+v", reqs)
	}
}

func TestParseMessageBatch(t *testing.T) {
	reqs, batch, err := ParseMessage([]byte(`[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","method":"notify"}]`))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if !batch {
		t.Fatal("array must be parsed as a batch")
	}
	if len(reqs) != 2 {
		t.Fatalf("len(reqs) = %d, want 2", len(reqs))
	}
}

func TestParseMessageEmpty(t *testing.T) {
	reqs, batch, err := ParseMessage([]byte("   "))
	if err != nil || batch || reqs != nil {
		t.Fatalf("ParseMessage(whitespace) = (%v, %v, %v), want (nil, false, nil)", reqs, batch, err)
	}
}

func TestEncodeResponsesSkipsNotifications(t *testing.T) {
	id := ID{}
	_ = id
	resp, err := NewResult(NewID(json.RawMessage(`1`)), map[string]string{"ok": "yes"})
	if err != nil {
		t.Fatalf("NewResult() error = %v", err)
	}
	out, err := EncodeResponses([]Response{resp, {}}, false)
	if err != nil {
		t.Fatalf("EncodeResponses() error = %v", err)
	}
	var decoded Response
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.ID.String() != "1" {
		t.Fatalf("decoded.ID = %s, want 1", decoded.ID.String())
	}
}

func TestEncodeResponsesBatchProducesArray(t *testing.T) {
	r1, _ := NewResult(NewID(json.RawMessage(`1`)), "a")
	r2, _ := NewResult(NewID(json.RawMessage(`2`)), "b")
	out, err := EncodeResponses([]Response{r1, r2}, true)
	if err != nil {
		t.Fatalf("EncodeResponses() error = %v", err)
	}
	var decoded []Response
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("len(decoded) = %d, want 2", len(decoded))
	}
}

func TestEncodeResponsesEmptyBatchReturnsNil(t *testing.T) {
	out, err := EncodeResponses([]Response{{}}, true)
	if err != nil {
		t.Fatalf("EncodeResponses() error = %v", err)
	}
	if out != nil {
		t.Fatalf("EncodeResponses(all-notifications) = %s, want nil", out)
	}
}

func TestNewErrorPopulatesObject(t *testing.T) {
	resp := NewError(NewID(json.RawMessage(`5`)), -32601, "method not found", map[string]any{"detail": "x"})
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("resp.Error = %+v", resp.Error)
	}
	if resp.Result != nil {
		t.Fatal("error response must not carry a result")
	}
}
