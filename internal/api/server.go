package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/scrollreel/internal/proxy"
	"github.com/shehryarbajwa/scrollreel/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes. stateHandler and proxyServer are
// optional; publicDir enables /videos when set.
func (h *Handler) SetupRoutes(stateHandler *StateHandler, proxyServer *proxy.Server, rateLimiter *ratelimit.Limiter, publicDir string) *mux.Router {
	r := mux.NewRouter()

	if publicDir != "" {
		r.PathPrefix("/videos/").Handler(http.StripPrefix("/videos/", http.FileServer(http.Dir(publicDir))))
	}

	api := r.PathPrefix("/api").Subrouter()

	// Generation is rate limited, polling is not
	limited := RateLimitMiddleware(rateLimiter)
	api.Handle("/generate-background", limited(http.HandlerFunc(h.GenerateBackground))).Methods("POST", "OPTIONS")

	api.HandleFunc("/captures", h.ListCaptures).Methods("GET")
	api.HandleFunc("/captures/{id}", h.GetCapture).Methods("GET")
	api.HandleFunc("/captures/{id}/debug", h.GetDebugURL).Methods("GET")

	if proxyServer != nil {
		api.HandleFunc("/captures/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
			proxyServer.HandleDebugConnection(w, r, mux.Vars(r)["id"])
		}).Methods("GET")
	}

	if stateHandler != nil {
		api.HandleFunc("/captures/{id}/state", stateHandler.GetState).Methods("GET")
		api.HandleFunc("/captures/{id}/state", stateHandler.DeleteState).Methods("DELETE")
	}

	r.Use(LoggingMiddleware(h.logger))
	r.Use(corsMiddleware)

	return r
}
