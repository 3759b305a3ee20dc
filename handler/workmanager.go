package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/debtwatch/pgfn-scraper-service/common/config"
	"github.com/debtwatch/pgfn-scraper-service/common/db"
	"github.com/debtwatch/pgfn-scraper-service/common/models"
	"github.com/debtwatch/pgfn-scraper-service/common/utils"
	"github.com/debtwatch/pgfn-scraper-service/common/work"
	"github.com/debtwatch/pgfn-scraper-service/repository"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog/log"
)

type WorkManagerHandler struct {
	db          *db.DB
	router      *chi.Mux
	cfg         config.Config
	workManager *work.WorkManager
}

func NewWorkManagerHandler(db *db.DB, cfg config.Config) *WorkManagerHandler {
	router := chi.NewRouter()

	h := &WorkManagerHandler{
		db:          db,
		router:      router,
		cfg:         cfg,
		workManager: work.NewWorkManager(db),
	}

	router.Get("/", h.handleListJobs)
	router.Get("/{jobID}", h.handleGetJob)
	router.Get("/{jobID}/debtors", h.handleListJobDebtors)

	return h
}

func (h *WorkManagerHandler) Router() *chi.Mux {
	return h.router
}

func (h *WorkManagerHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 10
	}

	offset := (page - 1) * limit

	status := r.URL.Query().Get("status")
	search := r.URL.Query().Get("q")

	listParams := repository.ListScrapeJobsParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}
	if status != "" {
		listParams.Status = pgtype.Text{String: status, Valid: true}
	}
	if search != "" {
		listParams.Search = pgtype.Text{String: search, Valid: true}
	}

	jobs, err := h.db.Queries.ListScrapeJobs(r.Context(), listParams)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to get jobs")
		return
	}

	countParams := repository.CountScrapeJobsParams{
		Status: listParams.Status,
		Search: listParams.Search,
	}

	total, err := h.db.Queries.CountScrapeJobs(r.Context(), countParams)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to count jobs")
		return
	}
	utils.WritePagination(w, http.StatusOK, jobs, page, limit, total)
}

func (h *WorkManagerHandler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.db.Queries.GetScrapeJob(r.Context(), jobID)
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	running, err := h.workManager.IsRunning(r.Context(), jobID)
	if err != nil {
		log.Warn().Err(err).Str("jobID", jobID).Msg("Failed to read live run state")
	}

	logs, err := h.db.Queries.ListScraperLogsByJob(r.Context(), pgtype.Text{String: jobID, Valid: true})
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to get job logs")
		return
	}

	responseLogs := make([]models.ScraperLogResponse, len(logs))
	for i, entry := range logs {
		var details interface{}
		if err := json.Unmarshal(entry.Details, &details); err != nil {
			details = string(entry.Details)
		}

		responseLogs[i] = models.ScraperLogResponse{
			ID:        entry.ID,
			JobID:     entry.JobID,
			EventType: entry.EventType,
			Message:   entry.Message,
			Details:   details,
			CreatedAt: entry.CreatedAt,
		}
	}

	detail := models.JobDetailResponse{
		Job:     job,
		Running: running,
		Logs:    responseLogs,
	}

	utils.WriteJSON(w, http.StatusOK, detail)
}

func (h *WorkManagerHandler) handleListJobDebtors(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if _, err := h.db.Queries.GetScrapeJob(r.Context(), jobID); err != nil {
		utils.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	debtors, err := h.db.Queries.ListDebtorsByJob(r.Context(), jobID)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to get debtors")
		return
	}

	utils.WriteJSON(w, http.StatusOK, debtors)
}
