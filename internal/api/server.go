// Package api serves the game controller to the browser front end as JSON
// over HTTP, with a websocket that pushes controller events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/tatianab/hustle/internal/engine"
	"github.com/tatianab/hustle/internal/game"
	"github.com/tatianab/hustle/internal/gemini"
	"github.com/tatianab/hustle/internal/market"
	"github.com/tatianab/hustle/internal/metrics"
	"github.com/tatianab/hustle/internal/models"
	"github.com/tatianab/hustle/internal/store"
)

const maxBodyBytes = 1 << 20

type Server struct {
	log  *slog.Logger
	ctrl *game.Controller
	hub  *Hub
	mux  *chi.Mux
}

// New builds the router. origins lists the allowed CORS origins; empty
// allows any.
func New(ctrl *game.Controller, hub *Hub, logger *slog.Logger, origins []string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:  logger,
		ctrl: ctrl,
		hub:  hub,
		mux:  chi.NewRouter(),
	}
	s.routes(origins)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": "hustle"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}
		r.Get("/presets", s.handlePresets)
		r.Get("/assets", s.handleAssets)

		// Narrator calls can take a while; keep the timeout off /ws.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(90 * time.Second))
			r.Get("/state", s.handleState)
			r.Post("/start", s.handleStart)
			r.Post("/resume", s.handleResume)
			r.Post("/restart", s.handleRestart)
			r.Post("/turn", s.handleTurn)
			r.Post("/retry", s.handleRetry)
			r.Post("/triggers", s.handleTrigger)
		})
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.View())
}

func (s *Server) handlePresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Presets())
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	filter := models.AssetType(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type"))))
	switch filter {
	case "", models.AssetEquity, models.AssetFund:
	default:
		writeError(w, http.StatusBadRequest, "type must be equity or fund")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": s.ctrl.Catalog().List(filter)})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var in game.Setup
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := s.ctrl.Start(r.Context(), in)
	if err != nil && v.Phase != models.PhasePlaying {
		writeDomainError(w, err)
		return
	}
	// A run whose first scenario failed is still started; the view carries
	// the scenario error and the client retries.
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	v, err := s.ctrl.Resume(r.Context())
	if err != nil && v.Phase == "" {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Restart(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.View())
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var in game.Turn
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.ctrl.Submit(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	v, err := s.ctrl.RetryScenario(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AssetID string             `json:"asset_id"`
		Kind    market.TriggerKind `json:"kind"`
		Level   *int64             `json:"level"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Kind != market.StopLoss && in.Kind != market.TakeProfit {
		writeError(w, http.StatusBadRequest, "kind must be stop-loss or take-profit")
		return
	}
	if in.Level != nil && *in.Level <= 0 {
		writeError(w, http.StatusBadRequest, "level must be > 0")
		return
	}
	if err := s.ctrl.SetTrigger(r.Context(), in.AssetID, in.Kind, in.Level); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.View())
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation), errors.Is(err, game.ErrSetup):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNoSnapshot),
		errors.Is(err, market.ErrNoHolding), errors.Is(err, market.ErrAssetNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrNotStarted), errors.Is(err, game.ErrAlreadyStarted),
		errors.Is(err, game.ErrRunOver), errors.Is(err, game.ErrTurnInFlight),
		errors.Is(err, game.ErrNoScenario):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gemini.ErrContentGeneration):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
