package routes

import (
	"net/http"

	"simple-bot/internal/handlers"

	"github.com/gorilla/mux"
)

// Handlers groups the handlers the router dispatches to
type Handlers struct {
	Health   *handlers.HealthHandler
	Sessions *handlers.SessionHandler
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(router *mux.Router, h *Handlers) {
	// Health endpoints
	router.HandleFunc("/health", h.Health.HealthCheckHandler).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Sessions
	api.HandleFunc("/sessions", h.Sessions.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.Sessions.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.Sessions.DeleteSession).Methods(http.MethodDelete)

	// Documents and chat within a session
	api.HandleFunc("/sessions/{id}/documents", h.Sessions.UploadDocument).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/messages", h.Sessions.PostMessage).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/messages", h.Sessions.ListMessages).Methods(http.MethodGet)
}
