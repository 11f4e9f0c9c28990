package transport

import (
	"bufio"
	"context"
	"io"
	"sync"

	"mcpgateway/internal/dispatcher"
	"mcpgateway/internal/store"
	"mcpgateway/pkg/logging"
)

// ServeStdio implements spec.md §4.5's stdio bridge: newline-delimited
// JSON-RPC over an arbitrary reader/writer pair, the same framing the
// teacher's mark3labs/mcp-go server.ServeStdio uses over os.Stdin/Stdout,
// reused here in reverse (the gateway is the server end, a local AI
// assistant process is the client). One session is created for the
// lifetime of the connection; principal is resolved once up front since
// stdio has no per-message Authorization header.
func (h *Handler) ServeStdio(ctx context.Context, in io.Reader, out io.Writer, principal store.Principal, vid *store.ID) error {
	sid := store.NewID().String()
	box := h.registry.register(sid)
	defer h.registry.unregister(sid)

	var writeMu sync.Mutex
	writeLine := func(line []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := out.Write(line); err != nil {
			return err
		}
		_, err := out.Write([]byte("\n"))
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-box.closed:
				return
			case <-box.notify:
				for _, frame := range box.drain() {
					if err := writeLine(frame); err != nil {
						return
					}
				}
			}
		}
	}()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 8<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		body := append([]byte(nil), line...)
		reqCtx := dispatcher.WithRequestID(ctx, store.NewID().String())
		resp, hasResp := h.dispatchOne(reqCtx, sid, principal, vid, nil, body)
		if !hasResp {
			continue
		}
		if err := writeLine(resp); err != nil {
			logging.Warn(logSubsystem, "stdio write failed: %v", err)
			break
		}
	}

	box.close()
	<-done
	return scanner.Err()
}
