package repository

import (
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// ScrapeJob is one triggered run against a portal.
type ScrapeJob struct {
	ID         string             `json:"id"`
	Portal     string             `json:"portal"`
	Query      string             `json:"query"`
	Status     string             `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
	FinishedAt pgtype.Timestamptz `json:"finished_at"`
}

// Debtor is one normalized debtor record keyed by CNPJ.
type Debtor struct {
	Cnpj         string        `json:"cnpj"`
	Name         string        `json:"name"`
	TradeName    pgtype.Text   `json:"trade_name"`
	TotalDebt    pgtype.Float8 `json:"total_debt"`
	FirstSeenJob pgtype.Text   `json:"first_seen_job"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Inscription is one debt registration belonging to a debtor.
type Inscription struct {
	Cnpj              string        `json:"cnpj"`
	InscriptionNumber string        `json:"inscription_number"`
	Category          pgtype.Text   `json:"category"`
	Amount            pgtype.Float8 `json:"amount"`
	CreatedAt         time.Time     `json:"created_at"`
}

// DocumentArtifact is one DARF PDF acquired for an inscription.
type DocumentArtifact struct {
	ID                string      `json:"id"`
	Cnpj              string      `json:"cnpj"`
	InscriptionNumber pgtype.Text `json:"inscription_number"`
	FileName          string      `json:"file_name"`
	Size              int64       `json:"size"`
	ContentType       string      `json:"content_type"`
	StorageUrl        pgtype.Text `json:"storage_url"`
	LocalPath         pgtype.Text `json:"local_path"`
	CreatedAt         time.Time   `json:"created_at"`
}

// ScraperLog is one diagnostic event emitted during a run.
type ScraperLog struct {
	ID        string          `json:"id"`
	JobID     pgtype.Text     `json:"job_id"`
	EventType string          `json:"event_type"`
	Message   pgtype.Text     `json:"message"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}
