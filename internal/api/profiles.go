package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/puntos-app/puntos/internal/app/gamification"
	"github.com/puntos-app/puntos/internal/domain"
)

// ─── Request Types ──────────────────────────────────────────────────────────

type recordRequest struct {
	Action      domain.ActionKind `json:"action"`
	Variant     domain.Variant    `json:"variant,omitempty"`
	ReferenceID string            `json:"referenceId,omitempty"`
	Amount      json.Number       `json:"amount,omitempty"`
}

type streakRequest struct {
	Date string `json:"date,omitempty"`
}

type advanceRequest struct {
	Amount json.Number `json:"amount,omitempty"`
}

type assignRequest struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Action    domain.ActionKind `json:"action,omitempty"`
	Target    json.Number       `json:"target"`
	Reward    json.Number       `json:"reward"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Duration  string            `json:"duration,omitempty"` // e.g. "168h"; used when expiresAt is unset
}

type historyResponse struct {
	UserID  string                      `json:"userId"`
	Filter  domain.HistoryFilter        `json:"filter"`
	Total   int64                       `json:"total"`
	Entries []domain.PointsHistoryEntry `json:"entries"`
}

type profileResponse struct {
	domain.Profile
	LevelInfo domain.LevelInfo `json:"levelInfo"`
}

func withLevel(p domain.Profile) profileResponse {
	return profileResponse{Profile: p, LevelInfo: gamification.LevelOf(p.Points)}
}

// decodeBody reads an optional JSON body into v. An empty body leaves v as is.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// ─── Reference Data ─────────────────────────────────────────────────────────

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": gamification.CatalogVersion,
		"rules":   s.engine.Catalog().Rules(),
	})
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	defs := s.engine.Achievements()
	out := make([]domain.Achievement, len(defs))
	for i, d := range defs {
		out[i] = d.Achievement
	}
	writeJSON(w, http.StatusOK, map[string]any{"achievements": out})
}

// handleLevels reports the tier table and, with ?points=N, the level of N.
// Unparseable or out-of-range input gets the lowest tier.
func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"tiers": gamification.Tiers()}
	if raw := r.URL.Query().Get("points"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			v = math.NaN()
		}
		resp["level"] = gamification.LevelOfValue(v)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── Profiles ───────────────────────────────────────────────────────────────

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Register(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeEngineError(w, err, p)
		return
	}
	writeJSON(w, http.StatusOK, withLevel(p))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Profile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeEngineError(w, err, p)
		return
	}
	writeJSON(w, http.StatusOK, withLevel(p))
}

func (s *Server) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	var req domain.ProfileDetails
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.engine.UpdateDetails(r.Context(), chi.URLParam(r, "userID"), req)
	if err != nil {
		writeEngineError(w, err, p)
		return
	}
	writeJSON(w, http.StatusOK, withLevel(p))
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}

	opts := gamification.RecordOptions{
		Variant:     req.Variant,
		ReferenceID: req.ReferenceID,
	}
	if req.Amount != "" {
		amount, err := gamification.AmountFromNumber(req.Amount)
		if err != nil {
			writeEngineError(w, err, s.currentOrEmpty(r))
			return
		}
		opts.Amount = amount
	}

	p, err := s.engine.Record(r.Context(), chi.URLParam(r, "userID"), req.Action, opts)
	if err != nil {
		writeEngineError(w, err, p)
		return
	}
	writeJSON(w, http.StatusOK, withLevel(p))
}

func (s *Server) handleTouchStreak(w http.ResponseWriter, r *http.Request) {
	var req streakRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var day domain.Date
	if req.Date != "" {
		d, err := domain.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		day = d
	}

	p, err := s.engine.TouchStreak(r.Context(), chi.URLParam(r, "userID"), day)
	if err != nil {
		writeEngineError(w, err, p)
		return
	}
	writeJSON(w, http.StatusOK, withLevel(p))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	filter := domain.HistoryFilter(r.URL.Query().Get("filter"))
	if filter == "" {
		filter = domain.HistoryAll
	}
	switch filter {
	case domain.HistoryAll, domain.HistoryEarned, domain.HistorySpent:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown filter %q (all, earned, spent)", filter))
		return
	}

	userID := chi.URLParam(r, "userID")
	seq, err := s.engine.History(r.Context(), userID, filter)
	if err != nil {
		writeEngineError(w, err, domain.NewProfile(userID, s.now()))
		return
	}

	entries := slices.Collect(seq)
	if entries == nil {
		entries = []domain.PointsHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{
		UserID:  userID,
		Filter:  filter,
		Total:   gamification.LedgerTotal(entries),
		Entries: entries,
	})
}

// ─── Challenges ─────────────────────────────────────────────────────────────

func (s *Server) handleAssignChallenge(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	def := domain.ChallengeDef{
		ID:        req.ID,
		Title:     req.Title,
		Action:    req.Action,
		ExpiresAt: req.ExpiresAt,
	}
	var err error
	if def.Target, err = numberOrZero(req.Target); err == nil {
		def.Reward, err = numberOrZero(req.Reward)
	}
	if err != nil {
		writeEngineError(w, err, s.currentOrEmpty(r))
		return
	}
	if def.ExpiresAt.IsZero() && req.Duration != "" {
		d, perr := time.ParseDuration(req.Duration)
		if perr != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid duration %q", req.Duration))
			return
		}
		def.ExpiresAt = s.now().Add(d).UTC()
	}

	p, err := s.engine.AssignChallenge(r.Context(), chi.URLParam(r, "userID"), def)
	if err != nil {
		writeEngineError(w, err, p)
		return
	}
	writeJSON(w, http.StatusOK, withLevel(p))
}

func (s *Server) handleAdvanceChallenge(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount := int64(1)
	if req.Amount != "" {
		a, err := gamification.AmountFromNumber(req.Amount)
		if err != nil {
			writeEngineError(w, err, s.currentOrEmpty(r))
			return
		}
		amount = a
	}

	p, err := s.engine.AdvanceChallenge(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "challengeID"), amount)
	if err != nil {
		writeEngineError(w, err, p)
		return
	}
	writeJSON(w, http.StatusOK, withLevel(p))
}

func (s *Server) handleClaimChallenge(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.ClaimChallenge(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "challengeID"))
	if err != nil {
		writeEngineError(w, err, p)
		return
	}
	writeJSON(w, http.StatusOK, withLevel(p))
}

// currentOrEmpty returns the stored snapshot for error bodies produced
// before the engine is called.
func (s *Server) currentOrEmpty(r *http.Request) domain.Profile {
	userID := chi.URLParam(r, "userID")
	p, err := s.engine.Profile(r.Context(), userID)
	if err != nil {
		return domain.NewProfile(userID, s.now())
	}
	return p
}

func numberOrZero(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	return gamification.AmountFromNumber(n)
}
