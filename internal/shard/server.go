package shard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ringkv/ringkv/internal/wire"
)

// NewHandler returns the HTTP handler a shard process serves: put/get/del
// on the key-value contract, plus bulk_import, shutdown and health for the
// router's membership controller. shutdownFn is invoked once /shutdown is
// received and should stop the owning process's server after Shutdown
// returns.
func NewHandler(s *Shard, shutdownFn func()) http.Handler {
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
		if err := s.Put(key, value); err != nil {
			writeError(w, statusFor(err), err.Error())
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
		v, err := s.Get(key)
		if err != nil {
			writeError(w, http.StatusNotFound, wire.MsgKeyNotFound)
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
		if err := s.Delete(key); err != nil {
			if errors.Is(err, ErrDraining) {
				writeError(w, statusFor(err), err.Error())
				return
			}
			writeError(w, http.StatusNotFound, wire.MsgKeyNotFound)
			return
		}
		writeJSON(w, http.StatusOK, wire.DeleteResponse{Message: wire.MsgDeleteOK})
	})

	mux.HandleFunc("/bulk_import", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusBadRequest, "expected POST")
			return
		}
		var req wire.BulkImportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		if err := s.BulkImport(req.Data); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, wire.BulkImportResponse{Message: "ok"})
	})

	mux.HandleFunc("/shutdown", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusBadRequest, "expected POST")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			s.logger.Warn("shutdown error", zap.String("shard", s.ID), zap.Error(err))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(wire.MsgShutdown)
		if shutdownFn != nil {
			go shutdownFn()
		}
	})

	mux.HandleFunc("/drain", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusBadRequest, "expected POST")
			return
		}
		s.BeginDrain()
		if err := s.WaitDrain(r.Context()); err != nil {
			writeError(w, http.StatusGatewayTimeout, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, wire.DrainResponse{Message: "drained"})
	})

	mux.HandleFunc("/export", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusBadRequest, "expected GET")
			return
		}
		writeJSON(w, http.StatusOK, wire.ExportResponse{Data: s.ExportAll()})
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, wire.ErrorResponse{Error: msg})
}

// statusFor maps a Shard operation error to the status code a caller
// should treat as retryable-or-not. ErrDraining is 503: the client (the
// router) should re-resolve the key against the ring, which has already
// moved on by the time a shard starts rejecting writes, and retry there.
func statusFor(err error) int {
	if errors.Is(err, ErrDraining) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
