package work

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/debtwatch/pgfn-scraper-service/common/db"
	"github.com/debtwatch/pgfn-scraper-service/common/models"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	jobStateKeyPrefix = "job:state:"
	runningState      = "running"
	// jobTimeout sets how long a job is considered running before it is
	// treated as stale. This keeps jobs that died without cleanup from
	// being stuck in 'running' forever.
	jobTimeout = 24 * time.Hour
)

// WorkManager manages the state of scrape jobs in Redis, with the durable
// record kept in Postgres.
type WorkManager struct {
	db *db.DB
}

// NewWorkManager creates a new WorkManager.
func NewWorkManager(dbConn *db.DB) *WorkManager {
	return &WorkManager{
		db: dbConn,
	}
}

// getJobKey returns the Redis key for a given job ID.
func (wm *WorkManager) getJobKey(jobID string) string {
	return fmt.Sprintf("%s%s", jobStateKeyPrefix, jobID)
}

// Start marks a job as running. If the job is already running it returns an
// error, which prevents two sessions from sharing one logical run.
func (wm *WorkManager) Start(ctx context.Context, jobID string) error {
	key := wm.getJobKey(jobID)
	ok, err := wm.db.Redis.SetNX(ctx, key, runningState, jobTimeout)
	if err != nil {
		return fmt.Errorf("failed to start job %s: %w", jobID, err)
	}
	if !ok {
		return fmt.Errorf("job %s is already running", jobID)
	}

	if err := wm.updateJobStatus(ctx, jobID, models.JobStatusRunning); err != nil {
		log.Warn().Err(err).Str("jobID", jobID).Msg("failed to persist job status to DB")
	}

	return nil
}

// IsRunning checks if a job is currently marked as running.
func (wm *WorkManager) IsRunning(ctx context.Context, jobID string) (bool, error) {
	key := wm.getJobKey(jobID)
	state, err := wm.db.Redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redisv9.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get job state for %s: %w", jobID, err)
	}
	return state == runningState, nil
}

// removeJob removes a job's state from Redis.
func (wm *WorkManager) removeJob(ctx context.Context, jobID string) error {
	key := wm.getJobKey(jobID)
	err := wm.db.Redis.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to remove job %s: %w", jobID, err)
	}
	return nil
}

// Complete marks a job as completed. Partial results count as completion;
// only a failed session start marks a job failed.
func (wm *WorkManager) Complete(ctx context.Context, jobID string) error {
	if err := wm.removeJob(ctx, jobID); err != nil {
		return err
	}

	if err := wm.updateJobStatus(ctx, jobID, models.JobStatusFinished); err != nil {
		log.Warn().Err(err).Str("jobID", jobID).Msg("failed to persist job completion to DB")
	}

	return nil
}

// Fail marks a job as failed.
func (wm *WorkManager) Fail(ctx context.Context, jobID string) error {
	if err := wm.removeJob(ctx, jobID); err != nil {
		return err
	}

	if err := wm.updateJobStatus(ctx, jobID, models.JobStatusFailed); err != nil {
		log.Warn().Err(err).Str("jobID", jobID).Msg("failed to persist job failure to DB")
	}

	return nil
}

func (wm *WorkManager) updateJobStatus(ctx context.Context, jobID string, status models.JobStatus) error {
	if wm.db == nil || wm.db.Queries == nil {
		return nil
	}
	return wm.db.Queries.UpdateScrapeJobStatus(ctx, jobID, string(status))
}
