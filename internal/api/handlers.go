// Package api exposes the HTTP surface of the gymbros engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Chirraaa/gymbros/internal/auth"
	"github.com/Chirraaa/gymbros/internal/domain"
	"github.com/Chirraaa/gymbros/internal/persistence"
)

const (
	defaultLedgerLimit = 20
	maxLedgerLimit     = 100
	maxBodyBytes       = 1 << 20
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *log.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(log.Writer(), "[api] ", log.LstdFlags)
	}
	return &Handler{service: service, logger: logger}
}

// Router mounts every endpoint. authn guards the /v1 routes; health and metrics stay open.
func (h *Handler) Router(authn ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(authn...)

		r.Post("/workouts", h.submitWorkout)
		r.Get("/workouts/{workoutID}", h.workout)
		r.Post("/workouts/{workoutID}/hype", h.toggleHype)
		r.Get("/leaderboard", h.friendLeaderboard)
		r.Post("/leaderboard", h.cohortLeaderboard)
		r.Get("/users/{userID}/progress", h.progress)
		r.Get("/users/{userID}/ledger", h.ledger)
		r.Get("/exercises/{exerciseID}/history", h.exerciseHistory)
	})
	return r
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Printf("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Microsecond))
	})
}

func (h *Handler) submitWorkout(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	var req SubmitWorkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	input := req.toInput(claims.Subject)
	var result *domain.WorkoutResult
	err := domain.RetryOnConflict(r.Context(), func(ctx context.Context) error {
		var err error
		result, err = h.service.SubmitWorkout(ctx, input)
		return err
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkoutResponse(*result))
}

func (h *Handler) workout(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsRead)
	if !ok {
		return
	}

	detail, err := h.service.Workout(r.Context(), chi.URLParam(r, "workoutID"), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkoutDetailResponse(*detail))
}

func (h *Handler) toggleHype(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	result, err := h.service.ToggleHype(r.Context(), chi.URLParam(r, "workoutID"), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HypeResponse{Hyped: result.Hyped, XPAwarded: result.XPAwarded})
}

func (h *Handler) friendLeaderboard(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsRead)
	if !ok {
		return
	}

	now, err := parseOptionalTime(r.URL.Query().Get("now"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "now must be RFC3339")
		return
	}

	cohort, err := h.service.FriendCohort(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeLeaderboard(w, r, domain.LeaderboardQuery{CohortUserIDs: cohort, Now: now})
}

func (h *Handler) cohortLeaderboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeWorkoutsRead); !ok {
		return
	}

	var req LeaderboardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	query := domain.LeaderboardQuery{CohortUserIDs: req.CohortUserIDs}
	if req.Now != nil {
		query.Now = *req.Now
	}
	h.writeLeaderboard(w, r, query)
}

func (h *Handler) writeLeaderboard(w http.ResponseWriter, r *http.Request, query domain.LeaderboardQuery) {
	board, err := h.service.Leaderboard(r.Context(), query)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaderboardResponse(*board))
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeWorkoutsRead); !ok {
		return
	}

	snapshot, err := h.service.Progress(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(*snapshot))
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsRead)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	if userID != claims.Subject {
		writeError(w, http.StatusForbidden, "forbidden", "ledger is only visible to its owner")
		return
	}

	limit := defaultLedgerLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxLedgerLimit)
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	entries, next, err := h.service.Ledger(r.Context(), userID, cursor, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := LedgerResponse{
		Items:      make([]LedgerEntryView, 0, len(entries)),
		NextCursor: persistence.EncodeCursor(next),
	}
	for _, e := range entries {
		resp.Items = append(resp.Items, LedgerEntryView{
			EntryID:   e.ID,
			Amount:    e.Amount,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) exerciseHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsRead)
	if !ok {
		return
	}

	history, err := h.service.ExerciseHistory(r.Context(), claims.Subject, chi.URLParam(r, "exerciseID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryResponse(*history))
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	// write access implies read access
	if !claims.HasScope(scope) && !(scope == auth.ScopeWorkoutsRead && claims.HasScope(auth.ScopeWorkoutsWrite)) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

func parseOptionalTime(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		h.logger.Printf("invariant violation: %v", err)
		writeError(w, http.StatusInternalServerError, "invalid_state", "internal consistency check failed")
	default:
		h.logger.Printf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
