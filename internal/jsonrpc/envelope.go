// Package jsonrpc defines the wire envelope used on every transport the
// gateway exposes to downstream clients. It sits directly on top of
// encoding/json rather than mark3labs/mcp-go's client-side types, because
// the gateway speaks JSON-RPC 2.0 as a server on four different transports
// (internal/transport) and needs a transport-agnostic request/response
// shape before a request is ever routed to an upstream.
package jsonrpc

import "encoding/json"

const Version = "2.0"

// ID is a JSON-RPC request id: a string, a number, or null. Clients are free
// to use either, so it is carried as raw JSON and echoed back verbatim.
type ID struct {
	raw json.RawMessage
}

func NewID(raw json.RawMessage) ID { return ID{raw: raw} }

func (id ID) IsZero() bool { return len(id.raw) == 0 }

func (id ID) MarshalJSON() ([]byte, error) {
	if len(id.raw) == 0 {
		return []byte("null"), nil
	}
	return id.raw, nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	id.raw = append(id.raw[:0], data...)
	return nil
}

func (id ID) String() string { return string(id.raw) }

// Request is an inbound JSON-RPC call or notification. Notifications omit
// ID entirely (IsZero() reports true) and never receive a Response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r Request) IsNotification() bool { return r.ID.IsZero() }

// Response is the envelope written back for a non-notification Request.
// Result and Error are mutually exclusive, matching JSON-RPC 2.0 §5.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the JSON-RPC error member; Code and Data are populated
// from pkg/gwerr via dispatcher.errorResponse.
type ErrorObject struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func NewResult(id ID, result any) (Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{}, err
	}
	return Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

func NewError(id ID, code int, message string, data map[string]any) Response {
	return Response{JSONRPC: Version, ID: id, Error: &ErrorObject{Code: code, Message: message, Data: data}}
}
