// Package server exposes the turn pipeline and case views over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/ananthlk/Mobius-OS-sub002/internal/eventlog"
	"github.com/ananthlk/Mobius-OS-sub002/internal/pipeline"
	"github.com/ananthlk/Mobius-OS-sub002/internal/store"
	"github.com/ananthlk/Mobius-OS-sub002/internal/visuals"
)

// Config wires the server's collaborators.
type Config struct {
	Store    *store.Store
	Pipeline *pipeline.Pipeline
	Version  string

	// CORSOrigins lists the allowed origins; empty means same-origin only.
	CORSOrigins []string
}

// Server holds the HTTP surface. All state lives in the store and the
// pipeline; the server itself is stateless.
type Server struct {
	cfg    Config
	router chi.Router
}

func New(cfg Config) *Server {
	s := &Server{cfg: cfg}
	s.router = s.routes()
	return s
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Session-ID", "X-User-ID", "X-Patient-ID"},
			MaxAge:         300,
		}))
	}

	r.Post("/session/start", s.handleStartSession)
	r.Route("/cases/{caseID}", func(r chi.Router) {
		r.Post("/turn", s.handleTurn)
		r.Get("/view", s.handleView)
		r.Get("/process-events", s.handleProcessEvents)
	})
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	sess, err := s.cfg.Store.CreateSession(r.Context(), req.UserID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	respond(w, http.StatusOK, map[string]string{"session_id": sess.SessionID})
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")

	var req struct {
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
		Timestamp string         `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventType == "" {
		respondError(w, http.StatusBadRequest, "event_type is required")
		return
	}

	sessionID := r.Header.Get("X-Session-ID")
	if sessionID != "" {
		if _, err := s.cfg.Store.GetSession(r.Context(), sessionID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusBadRequest, "unknown session")
				return
			}
			log.Error().Err(err).Str("session_id", sessionID).Msg("Session lookup failed")
			respondError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
	}

	result, err := s.cfg.Pipeline.ProcessTurn(r.Context(), pipeline.TurnInput{
		CaseID:    caseID,
		SessionID: sessionID,
		UserID:    r.Header.Get("X-User-ID"),
		PatientID: r.Header.Get("X-Patient-ID"),
		Event: pipeline.UIEvent{
			EventType: req.EventType,
			Data:      req.Data,
			Timestamp: req.Timestamp,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("case_id", caseID).Msg("Turn failed")
		respondError(w, http.StatusInternalServerError, "turn failed: "+err.Error())
		return
	}
	respond(w, http.StatusOK, result)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")

	rec, err := s.cfg.Store.LoadCase(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "case not found")
			return
		}
		log.Error().Err(err).Str("case_id", caseID).Msg("Case lookup failed")
		respondError(w, http.StatusInternalServerError, "case lookup failed")
		return
	}

	view := map[string]any{
		"case":       rec.State,
		"score":      nil,
		"plan":       nil,
		"updated_at": rec.UpdatedAt,
	}
	if run, err := s.cfg.Store.LatestScoreRun(r.Context(), rec.PK); err == nil {
		view["score"] = run.ScoreState
		charts := map[string]string{}
		if c := visuals.GenerateStatePie(run.ScoreState); c != "" {
			charts["state_pie"] = c
		}
		if c := visuals.GenerateVisitChart(rec.State.Timing.RelatedVisits); c != "" {
			charts["visits"] = c
		}
		if c := visuals.GenerateRiskChart(run.ScoreState); c != "" {
			charts["risks"] = c
		}
		if len(charts) > 0 {
			view["charts"] = charts
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Error().Err(err).Str("case_id", caseID).Msg("Score run lookup failed")
		respondError(w, http.StatusInternalServerError, "score lookup failed")
		return
	}
	if turn, err := s.cfg.Store.LatestTurn(r.Context(), rec.PK); err == nil {
		view["plan"] = turn.PlanResponse
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Error().Err(err).Str("case_id", caseID).Msg("Turn lookup failed")
		respondError(w, http.StatusInternalServerError, "turn lookup failed")
		return
	}
	respond(w, http.StatusOK, view)
}

func (s *Server) handleProcessEvents(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")

	rec, err := s.cfg.Store.LoadCase(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "case not found")
			return
		}
		log.Error().Err(err).Str("case_id", caseID).Msg("Case lookup failed")
		respondError(w, http.StatusInternalServerError, "case lookup failed")
		return
	}

	grouped := []eventlog.ProcessEvent{}
	if rec.SessionID != "" {
		records, err := s.cfg.Store.EventsForSession(r.Context(), rec.SessionID)
		if err != nil {
			log.Error().Err(err).Str("case_id", caseID).Msg("Event lookup failed")
			respondError(w, http.StatusInternalServerError, "event lookup failed")
			return
		}
		if g := eventlog.GroupForDisplay(records); g != nil {
			grouped = g
		}
	}
	respond(w, http.StatusOK, map[string]any{"events": grouped})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok", "version": s.cfg.Version})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}
