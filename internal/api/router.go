package api

import (
	"storysync/internal/middleware"
	"storysync/internal/relay"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// match on the escaped path so a%2Fb stays one session segment
	r.UseEncodedPath()

	// tracing first, then recovery, then CORS
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.Health).Methods("GET")
	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{"+relay.SessionVar+"}", h.GetSession).Methods("GET")

	// blank ids are routed too so the relay can refuse them with a close code
	r.HandleFunc("/ws/story/{"+relay.SessionVar+":[^/]*}", h.HandleStoryWebSocket)

	return r
}
