package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shashiranjanraj/patternbus/pkg/bus"
	"github.com/shashiranjanraj/patternbus/pkg/metrics"
)

// newAdminRouter exposes read-only views of b plus the Prometheus registry.
func newAdminRouter(b *bus.Bus) http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", metrics.Handler())
	r.Get("/bindings", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"bindings": b.Bindings(),
			"stats":    b.Stats(),
		})
	})
	r.Get("/cache/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		handles, ok := b.Cached(name)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "event has no cached listeners"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"event": name, "listeners": handles})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
