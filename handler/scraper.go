package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/debtwatch/pgfn-scraper-service/common"
	"github.com/debtwatch/pgfn-scraper-service/common/config"
	"github.com/debtwatch/pgfn-scraper-service/common/constants"
	"github.com/debtwatch/pgfn-scraper-service/common/db"
	"github.com/debtwatch/pgfn-scraper-service/common/messaging"
	"github.com/debtwatch/pgfn-scraper-service/common/models"
	"github.com/debtwatch/pgfn-scraper-service/common/utils"
	"github.com/debtwatch/pgfn-scraper-service/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ScraperHandler struct {
	db     *db.DB
	broker *messaging.NatsBroker
	router *chi.Mux
	cfg    config.Config
}

func NewScraperHandler(db *db.DB, broker *messaging.NatsBroker, cfg config.Config) *ScraperHandler {
	router := chi.NewRouter()

	h := &ScraperHandler{
		db:     db,
		broker: broker,
		router: router,
		cfg:    cfg,
	}

	router.Post("/run", h.handleRunScraper)
	return h
}

func (h *ScraperHandler) Router() *chi.Mux {
	return h.router
}

// portalRoute binds a portal name to its action, subject and job label.
type portalRoute struct {
	portal  common.PortalType
	action  constants.ActionType
	subject string
}

var portalRoutes = map[string]portalRoute{
	"pgfn": {
		portal:  common.PgfnDebtorList,
		action:  constants.ScrapeByQueryAction,
		subject: messaging.SubjectPgfnScrape,
	},
	"regularize": {
		portal:  common.RegularizeDarf,
		action:  constants.EmitDocumentAction,
		subject: messaging.SubjectRegularizeDoc,
	},
}

func (h *ScraperHandler) handleRunScraper(w http.ResponseWriter, r *http.Request) {
	var p ScraperRunParams

	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	validate := validator.New()
	if err := validate.Struct(p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	route, ok := portalRoutes[p.Portal]
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "Unknown portal")
		return
	}

	if msg := validateRunParams(route.action, p); msg != "" {
		utils.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	jobQuery := jobLabel(route.action, p)

	job, err := h.db.Queries.CreateScrapeJob(r.Context(), repository.CreateScrapeJobParams{
		ID:        uuid.NewString(),
		Portal:    string(route.portal),
		Query:     jobQuery,
		Status:    string(models.JobStatusPending),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create scrape job")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	req := messaging.ScrapeRequest{
		ID:   job.ID,
		Type: route.action,
		Payload: messaging.ScrapePayload{
			Query:             p.Query,
			Cnpj:              p.Cnpj,
			InscriptionNumber: p.InscriptionNumber,
		},
	}

	msg, err := json.Marshal(req)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to marshal message")
		return
	}

	if err := h.broker.PublishSync(r.Context(), route.subject, msg); err != nil {
		log.Error().Err(err).Msg("Failed to publish message")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to publish message")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "success", "job_id": job.ID})
}

// validateRunParams enforces the per-action required fields. A DARF
// emission only needs the cnpj; the inscription number is optional and
// merely narrows the portal query when present.
func validateRunParams(action constants.ActionType, p ScraperRunParams) string {
	switch action {
	case constants.ScrapeByQueryAction:
		if p.Query == "" {
			return "Query is required for a debtor search"
		}
	case constants.EmitDocumentAction:
		if p.Cnpj == "" {
			return "Cnpj is required for document emission"
		}
	}
	return ""
}

// jobLabel is the human-readable query column value of the job row.
func jobLabel(action constants.ActionType, p ScraperRunParams) string {
	if action != constants.EmitDocumentAction {
		return p.Query
	}
	if p.InscriptionNumber == "" {
		return p.Cnpj
	}
	return fmt.Sprintf("%s/%s", p.Cnpj, p.InscriptionNumber)
}

type ScraperRunParams struct {
	Portal            string `json:"portal" validate:"required"`
	Query             string `json:"query"`
	Cnpj              string `json:"cnpj"`
	InscriptionNumber string `json:"inscription_number"`
}
