package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMaskHeadersRedactsSensitiveNames(t *testing.T) {
	in := map[string][]string{
		"Authorization":   {"Bearer s3cret"},
		"Cookie":          {"session=abc"},
		"X-Api-Token":     {"tok"},
		"X-Client-Secret": {"sekret"},
		"X-Tenant-Id":     {"acme"},
	}
	out := MaskHeaders(in)

	for _, name := range []string{"Authorization", "Cookie", "X-Api-Token", "X-Client-Secret"} {
		if out[name][0] != redactedValue {
			t.Errorf("MaskHeaders()[%q] = %v, want redacted", name, out[name])
		}
	}
	if out["X-Tenant-Id"][0] != "acme" {
		t.Errorf("MaskHeaders() must not touch non-sensitive headers, got %v", out["X-Tenant-Id"])
	}
}

func TestRedactBodyWalksNestedStructures(t *testing.T) {
	in := map[string]any{
		"username": "alice",
		"password": "hunter2",
		"nested": map[string]any{
			"access_token": "abc123",
			"ok":           "fine",
		},
		"list": []any{
			map[string]any{"secret": "zzz"},
			"plain",
		},
	}
	out := RedactBody(in).(map[string]any)

	if out["password"] != redactedValue {
		t.Errorf("password = %v, want redacted", out["password"])
	}
	if out["username"] != "alice" {
		t.Errorf("username = %v, want unchanged", out["username"])
	}
	nested := out["nested"].(map[string]any)
	if nested["access_token"] != redactedValue {
		t.Errorf("nested.access_token = %v, want redacted", nested["access_token"])
	}
	if nested["ok"] != "fine" {
		t.Errorf("nested.ok = %v, want unchanged", nested["ok"])
	}
	list := out["list"].([]any)
	if list[0].(map[string]any)["secret"] != redactedValue {
		t.Errorf("list[0].secret = %v, want redacted", list[0])
	}
}

func TestTruncateBytes(t *testing.T) {
	small := []byte("hello")
	if got := TruncateBytes(small, 1); string(got) != "hello" {
		t.Errorf("TruncateBytes(small) = %s, want unchanged", got)
	}

	big := make([]byte, 2*1024*1024)
	for i := range big {
		big[i] = 'x'
	}
	out := TruncateBytes(big, 1)
	if len(out) != 1024*1024+len("...[truncated]") {
		t.Errorf("len(TruncateBytes(big,1)) = %d", len(out))
	}
}

func TestMaskLogLineRedactsCredentialPairs(t *testing.T) {
	cases := map[string]string{
		"user=alice password=hunter2":       "user=alice password=" + redactedValue,
		"Authorization: Bearer abc.def.ghi": "Authorization:" + redactedValue + " abc.def.ghi",
		"level=info msg=starting server":     "level=info msg=starting server",
		"token: sk-12345 other=unaffected":   "token:" + redactedValue + " other=unaffected",
	}
	for in, want := range cases {
		if got := MaskLogLine(in); got != want {
			t.Errorf("MaskLogLine(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCoreRecordDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	core := NewCore(reg)
	core.Record(nil, RequestRecord{
		RequestID: "r1", Method: "tools/call", Status: "ok",
	})
	core.Record(nil, RequestRecord{
		RequestID: "r2", Method: "tools/call", Status: "error", ErrorCode: "NOT_FOUND",
	})
}
