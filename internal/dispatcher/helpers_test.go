package dispatcher

import (
	"encoding/json"
	"testing"

	"mcpgateway/internal/jsonrpc"
)

func requestFor(t *testing.T, id int, method string, params map[string]any) jsonrpc.Request {
	t.Helper()
	idRaw, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal id: %v", err)
	}
	var paramsRaw json.RawMessage
	if params != nil {
		paramsRaw, err = json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
	}
	return jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		ID:      jsonrpc.NewID(idRaw),
		Method:  method,
		Params:  paramsRaw,
	}
}

func requestForNotification(t *testing.T, method string, params map[string]any) jsonrpc.Request {
	t.Helper()
	var paramsRaw json.RawMessage
	if params != nil {
		var err error
		paramsRaw, err = json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
	}
	return jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: method, Params: paramsRaw}
}
