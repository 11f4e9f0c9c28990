package jsonrpc

import (
	"bytes"
	"encoding/json"
)

// ParseMessage distinguishes a single request from a batch, the same
// dispatch shape mark3labs/mcp-go's server package expects upstream;
// EncodeResponses returns the matching shape (single response for a single
// call, array for a batch, with notifications producing no entry at all).
// The transports in internal/transport do not call either: they decode each
// message as one request, so a batch array is answered with an
// invalid-request error.
func ParseMessage(data []byte) (reqs []Request, batch bool, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false, nil
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			return nil, true, err
		}
		return reqs, true, nil
	}
	var single Request
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, false, err
	}
	return []Request{single}, false, nil
}

// EncodeResponses writes either a bare object (single, non-batch request)
// or a JSON array (batch), skipping any zero-value Response left behind by
// a notification.
func EncodeResponses(responses []Response, batch bool) ([]byte, error) {
	nonEmpty := responses[:0:0]
	for _, r := range responses {
		if r.JSONRPC == "" {
			continue
		}
		nonEmpty = append(nonEmpty, r)
	}
	if !batch {
		if len(nonEmpty) == 0 {
			return nil, nil
		}
		return json.Marshal(nonEmpty[0])
	}
	if len(nonEmpty) == 0 {
		return nil, nil
	}
	return json.Marshal(nonEmpty)
}
