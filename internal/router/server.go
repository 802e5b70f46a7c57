package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ringkv/ringkv/internal/wire"
)

// NewHandler returns the client-facing HTTP handler for a router.
//
// Routes:
//   - PUT  /put?key=&value=          -> Router.Put
//   - GET  /get?key=                 -> Router.Get
//   - DEL  /del?key=                 -> Router.Delete (nonstandard HTTP
//     method, preserved because it is the wire contract every client and
//     the wire package's own ShardClient already speak)
//   - POST /add_server               -> Controller.AddShard
//   - POST /remove_server?port=      -> Controller.RemoveShard
//   - POST /shutdown                 -> invokes shutdownFn, if non-nil,
//     after the response is written
//
// Every response is JSON; errors are reported as {"error": "..."} with a
// status code derived from wire.StatusFor, so a client-side wire.ShardClient
// style consumer can apply the same status-to-error mapping the shards
// themselves use.
//
// shutdownFn is invoked in its own goroutine so the /shutdown handler can
// return its response before whatever shutdownFn does (typically closing
// the listener) takes effect.
func NewHandler(rt *Router, ctrl *Controller, shutdownFn func()) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/put", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			writeError(w, http.StatusBadRequest, "expected PUT")
			return
		}
		key := r.URL.Query().Get("key")
		value := r.URL.Query().Get("value")
		if key == "" {
			writeError(w, http.StatusBadRequest, "missing key")
			return
		}
		if err := rt.Put(r.Context(), key, value); err != nil {
			writeError(w, wire.StatusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, wire.PutResponse{Message: wire.MsgPutOK})
	})

	mux.HandleFunc("/get", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusBadRequest, "expected GET")
			return
		}
		key := r.URL.Query().Get("key")
		if key == "" {
			writeError(w, http.StatusBadRequest, "missing key")
			return
		}
		v, err := rt.Get(r.Context(), key)
		if err != nil {
			status := wire.StatusFor(err)
			msg := err.Error()
			if status == http.StatusNotFound {
				msg = wire.MsgKeyNotFound
			}
			writeError(w, status, msg)
			return
		}
		writeJSON(w, http.StatusOK, wire.GetResponse{Value: v})
	})

	mux.HandleFunc("/del", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "DEL" {
			writeError(w, http.StatusBadRequest, "expected DEL")
			return
		}
		key := r.URL.Query().Get("key")
		if key == "" {
			writeError(w, http.StatusBadRequest, "missing key")
			return
		}
		if err := rt.Delete(r.Context(), key); err != nil {
			status := wire.StatusFor(err)
			msg := err.Error()
			if status == http.StatusNotFound {
				msg = wire.MsgKeyNotFound
			}
			writeError(w, status, msg)
			return
		}
		writeJSON(w, http.StatusOK, wire.DeleteResponse{Message: wire.MsgDeleteOK})
	})

	mux.HandleFunc("/add_server", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusBadRequest, "expected POST")
			return
		}
		if _, err := ctrl.AddShard(r.Context()); err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, wire.AddServerResponse{Message: "new server added to port"})
	})

	mux.HandleFunc("/remove_server", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusBadRequest, "expected POST")
			return
		}
		port := r.URL.Query().Get("port")
		if port == "" {
			writeError(w, http.StatusBadRequest, "missing port")
			return
		}
		err := ctrl.RemoveShard(r.Context(), port)
		switch {
		case errors.Is(err, wire.ErrBadRequest):
			writeJSON(w, http.StatusBadRequest, wire.RemoveServerResponse{
				Message: "server at port " + port + " doesn't exist",
			})
		case err != nil:
			// migration-failed: ring removal and shutdown already happened: the
			// shard is gone even though its in-flight data may be lost, so this
			// is still reported as a successful removal.
			writeJSON(w, http.StatusOK, wire.RemoveServerResponse{
				Message: "server at port " + port + " has been removed",
			})
		default:
			writeJSON(w, http.StatusOK, wire.RemoveServerResponse{
				Message: "server at port " + port + " has been removed",
			})
		}
	})

	mux.HandleFunc("/shutdown", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusBadRequest, "expected POST")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(wire.MsgShutdown)
		if shutdownFn != nil {
			go shutdownFn()
		}
	})

	return mux
}

// writeJSON writes body as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes a {"error": msg} JSON body with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, wire.ErrorResponse{Error: msg})
}
