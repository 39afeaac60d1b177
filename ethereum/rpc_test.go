package ethereum_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// rpcServer is a minimal JSON-RPC node answering from a method table.
type rpcServer struct {
	mu       sync.Mutex
	handlers map[string]func(params []json.RawMessage) any
	calls    []string
}

func newRPCServer(t *testing.T, handlers map[string]func(params []json.RawMessage) any) (*rpcServer, *httptest.Server) {
	s := &rpcServer{handlers: handlers}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		s.mu.Lock()
		s.calls = append(s.calls, req.Method)
		handler, ok := s.handlers[req.Method]
		s.mu.Unlock()

		res := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if ok {
			res["result"] = handler(req.Params)
		} else {
			res["error"] = map[string]any{"code": -32601, "message": "method not found: " + req.Method}
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(res))
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *rpcServer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
