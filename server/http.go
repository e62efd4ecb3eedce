package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router returns the gateway's HTTP surface: the websocket endpoint plus
// health and metrics. The socket is also served on the root path, which
// is where the original deployment exposed it.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"sessions": s.registry.Len(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.ServeWS)
	r.Get("/", s.ServeWS)

	return r
}
