package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const createScrapeJob = `
INSERT INTO scrape_jobs (id, portal, query, status, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, portal, query, status, created_at, finished_at
`

// CreateScrapeJobParams holds the parameters for CreateScrapeJob.
type CreateScrapeJobParams struct {
	ID        string
	Portal    string
	Query     string
	Status    string
	CreatedAt time.Time
}

func (q *Queries) CreateScrapeJob(ctx context.Context, arg CreateScrapeJobParams) (ScrapeJob, error) {
	row := q.db.QueryRow(ctx, createScrapeJob, arg.ID, arg.Portal, arg.Query, arg.Status, arg.CreatedAt)
	var j ScrapeJob
	err := row.Scan(&j.ID, &j.Portal, &j.Query, &j.Status, &j.CreatedAt, &j.FinishedAt)
	return j, err
}

const updateScrapeJobStatus = `
UPDATE scrape_jobs
SET status = $2,
    finished_at = CASE WHEN $2 IN ('finished', 'failed') THEN now() ELSE finished_at END
WHERE id = $1
`

func (q *Queries) UpdateScrapeJobStatus(ctx context.Context, id string, status string) error {
	_, err := q.db.Exec(ctx, updateScrapeJobStatus, id, status)
	return err
}

const getScrapeJob = `
SELECT id, portal, query, status, created_at, finished_at
FROM scrape_jobs
WHERE id = $1
`

func (q *Queries) GetScrapeJob(ctx context.Context, id string) (ScrapeJob, error) {
	row := q.db.QueryRow(ctx, getScrapeJob, id)
	var j ScrapeJob
	err := row.Scan(&j.ID, &j.Portal, &j.Query, &j.Status, &j.CreatedAt, &j.FinishedAt)
	return j, err
}

const upsertDebtor = `
INSERT INTO debtors (cnpj, name, trade_name, total_debt, first_seen_job, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (cnpj) DO NOTHING
`

// UpsertDebtorParams holds the parameters for UpsertDebtor.
type UpsertDebtorParams struct {
	Cnpj         string
	Name         string
	TradeName    pgtype.Text
	TotalDebt    pgtype.Float8
	FirstSeenJob pgtype.Text
	CreatedAt    time.Time
}

func (q *Queries) UpsertDebtor(ctx context.Context, arg UpsertDebtorParams) error {
	_, err := q.db.Exec(ctx, upsertDebtor, arg.Cnpj, arg.Name, arg.TradeName, arg.TotalDebt, arg.FirstSeenJob, arg.CreatedAt)
	return err
}

const upsertInscription = `
INSERT INTO inscriptions (cnpj, inscription_number, category, amount, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (cnpj, inscription_number) DO NOTHING
`

// UpsertInscriptionParams holds the parameters for UpsertInscription.
type UpsertInscriptionParams struct {
	Cnpj              string
	InscriptionNumber string
	Category          pgtype.Text
	Amount            pgtype.Float8
	CreatedAt         time.Time
}

func (q *Queries) UpsertInscription(ctx context.Context, arg UpsertInscriptionParams) error {
	_, err := q.db.Exec(ctx, upsertInscription, arg.Cnpj, arg.InscriptionNumber, arg.Category, arg.Amount, arg.CreatedAt)
	return err
}

const createDocumentArtifact = `
INSERT INTO document_artifacts (id, cnpj, inscription_number, file_name, size, content_type, storage_url, local_path, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, cnpj, inscription_number, file_name, size, content_type, storage_url, local_path, created_at
`

// CreateDocumentArtifactParams holds the parameters for CreateDocumentArtifact.
type CreateDocumentArtifactParams struct {
	ID                string
	Cnpj              string
	InscriptionNumber pgtype.Text
	FileName          string
	Size              int64
	ContentType       string
	StorageUrl        pgtype.Text
	LocalPath         pgtype.Text
	CreatedAt         time.Time
}

func (q *Queries) CreateDocumentArtifact(ctx context.Context, arg CreateDocumentArtifactParams) (DocumentArtifact, error) {
	row := q.db.QueryRow(ctx, createDocumentArtifact,
		arg.ID, arg.Cnpj, arg.InscriptionNumber, arg.FileName, arg.Size, arg.ContentType, arg.StorageUrl, arg.LocalPath, arg.CreatedAt)
	var a DocumentArtifact
	err := row.Scan(&a.ID, &a.Cnpj, &a.InscriptionNumber, &a.FileName, &a.Size, &a.ContentType, &a.StorageUrl, &a.LocalPath, &a.CreatedAt)
	return a, err
}

const createScraperLog = `
INSERT INTO scraper_logs (id, job_id, event_type, message, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

// CreateScraperLogParams holds the parameters for CreateScraperLog.
type CreateScraperLogParams struct {
	ID        string
	JobID     pgtype.Text
	EventType string
	Message   pgtype.Text
	Details   json.RawMessage
	CreatedAt time.Time
}

func (q *Queries) CreateScraperLog(ctx context.Context, arg CreateScraperLogParams) error {
	_, err := q.db.Exec(ctx, createScraperLog, arg.ID, arg.JobID, arg.EventType, arg.Message, arg.Details, arg.CreatedAt)
	return err
}

const listDebtorsByJob = `
SELECT cnpj, name, trade_name, total_debt, first_seen_job, created_at
FROM debtors
WHERE first_seen_job = $1
ORDER BY created_at
`

func (q *Queries) ListDebtorsByJob(ctx context.Context, jobID string) ([]Debtor, error) {
	rows, err := q.db.Query(ctx, listDebtorsByJob, pgtype.Text{String: jobID, Valid: true})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Debtor
	for rows.Next() {
		var d Debtor
		if err := rows.Scan(&d.Cnpj, &d.Name, &d.TradeName, &d.TotalDebt, &d.FirstSeenJob, &d.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

const listScrapeJobs = `
SELECT id, portal, query, status, created_at, finished_at
FROM scrape_jobs
WHERE ($1::text IS NULL OR status = $1)
  AND ($2::text IS NULL OR query ILIKE '%' || $2 || '%')
ORDER BY created_at DESC
LIMIT $3 OFFSET $4
`

// ListScrapeJobsParams holds the parameters for ListScrapeJobs.
type ListScrapeJobsParams struct {
	Status pgtype.Text
	Search pgtype.Text
	Limit  int32
	Offset int32
}

func (q *Queries) ListScrapeJobs(ctx context.Context, arg ListScrapeJobsParams) ([]ScrapeJob, error) {
	rows, err := q.db.Query(ctx, listScrapeJobs, arg.Status, arg.Search, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ScrapeJob
	for rows.Next() {
		var j ScrapeJob
		if err := rows.Scan(&j.ID, &j.Portal, &j.Query, &j.Status, &j.CreatedAt, &j.FinishedAt); err != nil {
			return nil, err
		}
		items = append(items, j)
	}
	return items, rows.Err()
}

const countScrapeJobs = `
SELECT count(*)
FROM scrape_jobs
WHERE ($1::text IS NULL OR status = $1)
  AND ($2::text IS NULL OR query ILIKE '%' || $2 || '%')
`

// CountScrapeJobsParams holds the parameters for CountScrapeJobs.
type CountScrapeJobsParams struct {
	Status pgtype.Text
	Search pgtype.Text
}

func (q *Queries) CountScrapeJobs(ctx context.Context, arg CountScrapeJobsParams) (int64, error) {
	row := q.db.QueryRow(ctx, countScrapeJobs, arg.Status, arg.Search)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listScraperLogsByJob = `
SELECT id, job_id, event_type, message, details, created_at
FROM scraper_logs
WHERE job_id = $1
ORDER BY created_at
`

func (q *Queries) ListScraperLogsByJob(ctx context.Context, jobID pgtype.Text) ([]ScraperLog, error) {
	rows, err := q.db.Query(ctx, listScraperLogsByJob, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ScraperLog
	for rows.Next() {
		var l ScraperLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.EventType, &l.Message, &l.Details, &l.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}
