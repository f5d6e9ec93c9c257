// Package api provides the HTTP server for puntos.
// It exposes the gamification engine as JSON endpoints plus a websocket
// feed of profile snapshots.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/puntos-app/puntos/internal/app/gamification"
	"github.com/puntos-app/puntos/internal/app/store"
	"github.com/puntos-app/puntos/internal/domain"
	"github.com/puntos-app/puntos/internal/health"
)

// Subscriber delivers profile snapshots as they are stored.
// Implemented by store.Store.
type Subscriber interface {
	Subscribe(userID string, fn store.Listener) (unsubscribe func())
}

// Server is the puntos HTTP API server.
type Server struct {
	engine         *gamification.Engine
	feed           Subscriber
	checker        *health.Checker
	metricsEnabled bool
	version        string
	now            func() time.Time
}

// NewServer creates a new API server. feed may be nil, which disables the
// websocket endpoint.
func NewServer(engine *gamification.Engine, feed Subscriber) *Server {
	return &Server{
		engine:  engine,
		feed:    feed,
		version: "dev",
		now:     time.Now,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth sets the checker reported on /health.
func (s *Server) SetHealth(c *health.Checker) { s.checker = c }

// SetVersion sets the build version reported on /api/version.
func (s *Server) SetVersion(v string) { s.version = v }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Websocket connections outlive any request timeout.
		if s.feed != nil {
			r.Get("/profiles/{userID}/ws", s.handleFeed)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]string{
					"version": s.version,
				})
			})
			r.Get("/catalog", s.handleCatalog)
			r.Get("/achievements", s.handleAchievements)
			r.Get("/levels", s.handleLevels)

			r.Route("/profiles/{userID}", func(r chi.Router) {
				r.Post("/", s.handleRegister)
				r.Get("/", s.handleProfile)
				r.Patch("/", s.handleUpdateDetails)
				r.Post("/actions", s.handleRecord)
				r.Post("/streak", s.handleTouchStreak)
				r.Get("/history", s.handleHistory)
				r.Post("/challenges", s.handleAssignChallenge)
				r.Post("/challenges/{challengeID}/advance", s.handleAdvanceChallenge)
				r.Post("/challenges/{challengeID}/claim", s.handleClaimChallenge)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.checker.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.checker.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeEngineError maps an engine error to a status and includes the
// snapshot the engine returned, so the client can always render.
func writeEngineError(w http.ResponseWriter, err error, p domain.Profile) {
	code := domain.ErrorCode(err)
	body := map[string]any{
		"error": map[string]any{
			"message": err.Error(),
			"type":    "error",
			"code":    code,
		},
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		body["profile"] = p
	}
	writeJSON(w, statusFor(code), body)
}

func statusFor(code string) int {
	switch code {
	case "invalid_amount", "unknown_action", "missing_reference", "invalid_challenge", "future_date":
		return http.StatusBadRequest
	case "profile_not_found", "challenge_not_found":
		return http.StatusNotFound
	case "not_claimable", "insufficient_points", "version_conflict":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// corsMiddleware adds CORS headers for the web client.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
