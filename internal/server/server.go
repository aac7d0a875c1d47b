package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/IsaiahDupree/EverReach-sub008/internal/engine"
	"github.com/IsaiahDupree/EverReach-sub008/internal/store"
	"github.com/IsaiahDupree/EverReach-sub008/internal/warmth"
)

// Server is the warmth engine HTTP API server.
type Server struct {
	db          *store.DB
	engine      *engine.Engine
	weights     map[string]float64
	defaultMode warmth.Mode
	router      chi.Router
	version     string
	started     time.Time
}

// New creates a Server. weights maps interaction channels to boost
// weights for event callers that don't supply one explicitly;
// defaultMode seeds contacts created without an explicit mode.
func New(db *store.DB, eng *engine.Engine, weights map[string]float64, defaultMode warmth.Mode, version string) *Server {
	if defaultMode == "" {
		defaultMode = warmth.ModeMedium
	}
	s := &Server{
		db:          db,
		engine:      eng,
		weights:     weights,
		defaultMode: defaultMode,
		version:     version,
		started:     time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/v1", func(r chi.Router) {
			r.Post("/contacts", s.handleInitContact)
			r.Post("/contacts/{contactID}/warmth/recompute", s.handleRecomputeOne)
			r.Post("/contacts/{contactID}/warmth/events", s.handleEvent)
			r.Get("/contacts/{contactID}/warmth/mode", s.handleGetMode)
			r.Patch("/contacts/{contactID}/warmth/mode", s.handleSwitchMode)

			r.Post("/warmth/recompute", s.handleRecomputeBulk)
			r.Get("/warmth/summary", s.handleSummary)
			r.Get("/warmth/modes", s.handleModes)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
