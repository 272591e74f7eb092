// ABOUTME: HTTP API for widget backends and agent consoles
// ABOUTME: chi router with CORS; JSON handlers plus an SSE stream per conversation

package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/2389/coven-desk/internal/realtime"
	"github.com/2389/coven-desk/internal/routing"
	"github.com/2389/coven-desk/internal/store"
)

// Server serves the support desk API.
type Server struct {
	store     store.Store
	transport realtime.Transport
	router    *routing.Router
	logger    *slog.Logger
}

// New creates an API server. s should publish saved messages to transport
// (see realtime.PublishingStore) for streams to see them. Pass nil logger for default.
func New(s store.Store, transport realtime.Transport, router *routing.Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if router == nil {
		router = routing.NewRouter(nil)
	}
	return &Server{
		store:     s,
		transport: transport,
		router:    router,
		logger:    logger.With("component", "api"),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/classify", s.handleClassify)
		r.Post("/conversations", s.handleCreateConversation)
		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetConversation)
			r.Get("/messages", s.handleListMessages)
			r.Post("/messages", s.handlePostMessage)
			r.Get("/stream", s.handleStream)
			r.Post("/close", s.handleClose)
		})
	})

	return r
}

// writeJSON writes v as a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeSSEEvent writes a single SSE event to the response writer.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
