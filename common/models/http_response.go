package models

import (
	"time"

	"github.com/debtwatch/pgfn-scraper-service/repository"
	"github.com/jackc/pgx/v5/pgtype"
)

type BaseResponse struct {
	Data interface{} `json:"data"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Msg   string `json:"msg"`
}

type MetaResponse struct {
	CurrentPage int64 `json:"current_page"`
	LastPage    int64 `json:"last_page"`
	PerPage     int64 `json:"per_page"`
	Total       int64 `json:"total"`
}

type BasePaginationResponse struct {
	Data interface{}  `json:"data"`
	Meta MetaResponse `json:"meta"`
}

type ScraperLogResponse struct {
	ID        string      `json:"id"`
	JobID     pgtype.Text `json:"job_id"`
	EventType string      `json:"event_type"`
	Message   pgtype.Text `json:"message"`
	Details   interface{} `json:"details"`
	CreatedAt time.Time   `json:"created_at"`
}

// JobDetailResponse is the full view of one scrape job: the persisted
// row, its diagnostic log events and the live run state from redis.
type JobDetailResponse struct {
	Job     repository.ScrapeJob `json:"job"`
	Running bool                 `json:"running"`
	Logs    []ScraperLogResponse `json:"logs"`
}
