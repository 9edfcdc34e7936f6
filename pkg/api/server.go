package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier/pkg/agent"
	"github.com/atelierhq/atelier/pkg/broadcast"
	"github.com/atelierhq/atelier/pkg/canvas"
	"github.com/atelierhq/atelier/pkg/persona"
	"github.com/atelierhq/atelier/pkg/sharedcontext"
)

// Server is the HTTP and WebSocket surface
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger

	canvases  *canvas.Store
	sessions  *agent.SessionStore
	overrides *persona.OverrideStore
	shared    *sharedcontext.Store
	invoker   *agent.Invoker
	hub       *broadcast.Hub

	defaultModel   string
	defaultPersona string
	sharedSecret   string
}

// Config holds server dependencies
type Config struct {
	Host           string
	Port           int
	SharedSecret   string
	Canvases       *canvas.Store
	Sessions       *agent.SessionStore
	Overrides      *persona.OverrideStore
	Shared         *sharedcontext.Store
	Invoker        *agent.Invoker
	Hub            *broadcast.Hub
	DefaultModel   string
	DefaultPersona string
	Logger         zerolog.Logger
}

// NewServer creates the API server and mounts all routes
func NewServer(cfg Config) (*Server, error) {
	if cfg.Canvases == nil {
		return nil, fmt.Errorf("canvas store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	if cfg.Hub == nil {
		return nil, fmt.Errorf("broadcast hub is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 8711
	}
	if cfg.DefaultPersona == "" {
		cfg.DefaultPersona = "dreamer"
	}

	s := &Server{
		logger:         cfg.Logger.With().Str("component", "api").Logger(),
		canvases:       cfg.Canvases,
		sessions:       cfg.Sessions,
		overrides:      cfg.Overrides,
		shared:         cfg.Shared,
		invoker:        cfg.Invoker,
		hub:            cfg.Hub,
		defaultModel:   cfg.DefaultModel,
		defaultPersona: cfg.DefaultPersona,
		sharedSecret:   cfg.SharedSecret,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/health", s.handleHealth)

		r.Route("/canvases", func(r chi.Router) {
			r.Post("/", s.handleCreateCanvas)
			r.Get("/", s.handleListCanvases)
			r.Get("/{canvasID}", s.handleGetCanvas)
			r.Post("/{canvasID}/agent", s.handleInvokeAgent)
			r.Get("/{canvasID}/sessions", s.handleListSessions)
			r.Post("/{canvasID}/snapshots", s.handleSaveSnapshot)
			r.Get("/{canvasID}/snapshots", s.handleListSnapshots)
			r.Get("/{canvasID}/context", s.handleGetContext)
		})

		r.Get("/sessions/{sessionID}", s.handleGetSession)
		r.Post("/snapshots/{snapshotID}/restore", s.handleRestoreSnapshot)

		r.Route("/personas", func(r chi.Router) {
			r.Get("/", s.handleListPersonas)
			r.Put("/{personaKey}/prompts", s.handleUpdatePersonaPrompts)
			r.Delete("/{personaKey}/prompts", s.handleResetPersonaPrompts)
		})
	})

	r.Get("/ws/canvases/{canvasID}", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, nil
}

// Start begins serving. It blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// authMiddleware checks the shared-secret header when one is configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.sharedSecret != "" && r.Header.Get("X-Atelier-Secret") != s.sharedSecret {
			writeError(w, http.StatusUnauthorized, "invalid or missing secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
