// internal/api/handler.go
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"seattle-source-ranker/internal/checkpoint"
	"seattle-source-ranker/internal/pool"
	"seattle-source-ranker/internal/scoring"
)

// Handler is the container for API dependencies.
type Handler struct {
	pool        *pool.Manager
	checkpoints *checkpoint.Store
	logger      *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(p *pool.Manager, cps *checkpoint.Store, logger *slog.Logger) http.Handler {
	h := &Handler{
		pool:        p,
		checkpoints: cps,
		logger:      logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/rankings", h.getRankings)
		r.Get("/status", h.getStatus)
		r.Get("/checkpoints", h.getCheckpoints)
		r.Get("/repos/{owner}/{name}", h.getRepository)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getRankings returns the pool scored and sorted by influence.
// GET /v1/rankings?limit=N
func (h *Handler) getRankings(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "50" // Default limit
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 1000 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 1000.")
		return
	}

	ranked := scoring.Rank(h.pool.Records())
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	respondWithJSON(w, http.StatusOK, ranked)
}

// getStatus reports pool size and basic star statistics.
// GET /v1/status
func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	records := h.pool.Records()

	totalStars := 0
	languages := map[string]int{}
	for _, rec := range records {
		totalStars += rec.Stars
		lang := "Unknown"
		if rec.Language != nil {
			lang = *rec.Language
		}
		languages[lang]++
	}

	status := map[string]any{
		"total_projects": len(records),
		"total_stars":    totalStars,
		"languages":      languages,
		"data_file":      h.pool.Path(),
	}
	if len(records) > 0 {
		status["top_project"] = records[0].NameWithOwner
		status["highest_stars"] = records[0].Stars
		status["lowest_stars"] = records[len(records)-1].Stars
	}
	respondWithJSON(w, http.StatusOK, status)
}

// getCheckpoints lists collection tasks that still have a live checkpoint.
// GET /v1/checkpoints
func (h *Handler) getCheckpoints(w http.ResponseWriter, r *http.Request) {
	ids, err := h.checkpoints.List()
	if err != nil {
		h.logger.Error("Failed to list checkpoints", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"task_ids": ids})
}

// getRepository returns a single pool record.
// GET /v1/repos/{owner}/{name}
func (h *Handler) getRepository(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")

	rec, ok := h.pool.Get(owner + "/" + name)
	if !ok {
		respondWithError(w, http.StatusNotFound, "Repository not found")
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
