package jsonrpc

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/citahub/cita-sub003/rpc"
)

// NewServer builds the rpc.Server with every handler bound to b.
func NewServer(b Backend) *rpc.Server {
	srv := rpc.NewServer()
	registerAll(srv, b, NewFilterManager())
	return srv
}

// NewRouter wires srv behind a single POST endpoint, the same shape
// erigon's cmd/rpcdaemon exposes its namespaced JSON-RPC API through: one
// HTTP entry point, method dispatch happens inside the JSON-RPC envelope,
// not in the URL.
func NewRouter(srv *rpc.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Post("/", handleRPC(srv))
	return r
}

func handleRPC(srv *rpc.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var call rpc.Request
		if err := json.NewDecoder(req.Body).Decode(&call); err != nil {
			writeJSON(w, &rpc.Response{
				JSONRPC: "2.0",
				Error:   rpc.InvalidParams("malformed JSON-RPC request: " + err.Error()),
			})
			return
		}
		writeJSON(w, srv.Handle(&call))
	}
}

func writeJSON(w http.ResponseWriter, resp *rpc.Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
