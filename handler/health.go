package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/debtwatch/pgfn-scraper-service/common"
	"github.com/debtwatch/pgfn-scraper-service/common/db"
	"github.com/debtwatch/pgfn-scraper-service/common/messaging"
	"github.com/debtwatch/pgfn-scraper-service/common/utils"
	"github.com/go-chi/chi/v5"
)

type HealthHandler struct {
	db     *db.DB
	broker *messaging.NatsBroker
	router *chi.Mux
}

func NewHealthHandler(db *db.DB, broker *messaging.NatsBroker) *HealthHandler {
	h := &HealthHandler{
		db:     db,
		broker: broker,
	}

	r := chi.NewRouter()
	r.Get("/", h.handleHealthCheck)

	h.router = r
	return h
}

func (h *HealthHandler) Router() *chi.Mux {
	return h.router
}

func (h *HealthHandler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := map[string]string{
		"database": "healthy",
		"redis":    "healthy",
		"nats":     "healthy",
	}
	status := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		components["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	if h.db.Redis != nil {
		if err := h.db.Redis.Ping(ctx); err != nil {
			components["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	} else {
		components["redis"] = "not configured"
	}

	if h.broker == nil || !h.broker.Ping() {
		components["nats"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	response := map[string]interface{}{
		"status":     overall,
		"service":    common.AppName,
		"timestamp":  time.Now().UTC(),
		"components": components,
	}

	utils.WriteJSON(w, status, response)
}
