package logger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/debtwatch/pgfn-scraper-service/common/db"
	"github.com/debtwatch/pgfn-scraper-service/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ScraperLogHook implements zerolog.Hook and mirrors info-and-above events
// into the scraper_logs table.
type ScraperLogHook struct {
	db *db.DB
}

// NewScraperLogHook creates a new log hook
func NewScraperLogHook(db *db.DB) *ScraperLogHook {
	return &ScraperLogHook{
		db: db,
	}
}

// Run implements zerolog.Hook.Run
func (h *ScraperLogHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level < zerolog.InfoLevel {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	event := LogEvent{
		Message:   msg,
		EventType: level.String(),
	}

	// Done asynchronously so logging never blocks on the database.
	go func() {
		defer cancel()
		if err := h.logToDatabase(ctx, event); err != nil {
			// Plain console log here to avoid recursing through the hook.
			log.Error().Err(err).Msg("Failed to log to database via hook")
		}
	}()
}

// logToDatabase stores the log in the database
func (h *ScraperLogHook) logToDatabase(ctx context.Context, event LogEvent) error {
	var detailsJSON json.RawMessage
	if event.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal log details")
			detailsJSON = json.RawMessage("{}")
		}
	} else {
		detailsJSON = json.RawMessage("{}")
	}

	jobID := pgtype.Text{String: event.JobID, Valid: event.JobID != ""}
	message := pgtype.Text{String: event.Message, Valid: event.Message != ""}

	return h.db.Queries.CreateScraperLog(ctx, repository.CreateScraperLogParams{
		ID:        uuid.New().String(),
		JobID:     jobID,
		EventType: event.EventType,
		Message:   message,
		Details:   detailsJSON,
		CreatedAt: time.Now(),
	})
}

// LogEvent represents a log event
type LogEvent struct {
	JobID     string
	EventType string
	Message   string
	Details   interface{}
}

// InitializeLogging sets up global zerolog configuration with database hooks
func InitializeLogging(db *db.DB) {
	hook := NewScraperLogHook(db)
	log.Logger = log.Logger.Hook(hook)
}

// LogService provides structured run diagnostics persisted to the database.
type LogService struct {
	db *db.DB
}

// NewLogService creates a new log service
func NewLogService(db *db.DB) *LogService {
	return &LogService{
		db: db,
	}
}

// Log creates a log entry in the database
func (s *LogService) Log(ctx context.Context, event LogEvent) error {
	var detailsJSON json.RawMessage
	if event.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal log details")
			detailsJSON = json.RawMessage("{}")
		}
	} else {
		detailsJSON = json.RawMessage("{}")
	}

	jobID := pgtype.Text{String: event.JobID, Valid: event.JobID != ""}
	message := pgtype.Text{String: event.Message, Valid: event.Message != ""}

	if err := s.db.Queries.CreateScraperLog(ctx, repository.CreateScraperLogParams{
		ID:        uuid.New().String(),
		JobID:     jobID,
		EventType: event.EventType,
		Message:   message,
		Details:   detailsJSON,
		CreatedAt: time.Now(),
	}); err != nil {
		log.Error().Err(err).Msg("Failed to insert log into database")
		return err
	}

	logEntry := log.Info()
	if event.JobID != "" {
		logEntry = logEntry.Str("jobID", event.JobID)
	}
	logEntry.
		Str("eventType", event.EventType).
		Str("message", event.Message).
		Interface("details", event.Details).
		Msg("Scraper event")

	return nil
}

// Error logs an error event
func (s *LogService) Error(ctx context.Context, jobID, message string, err error, details interface{}) error {
	detailMap := map[string]interface{}{
		"error": err.Error(),
	}

	if details != nil {
		if detailsMap, ok := details.(map[string]interface{}); ok {
			for k, v := range detailsMap {
				detailMap[k] = v
			}
		} else {
			detailMap["additional"] = details
		}
	}

	return s.Log(ctx, LogEvent{
		JobID:     jobID,
		EventType: "error",
		Message:   message,
		Details:   detailMap,
	})
}

// RunStart logs the start of a scrape run
func (s *LogService) RunStart(ctx context.Context, jobID, portal, query string) error {
	return s.Log(ctx, LogEvent{
		JobID:     jobID,
		EventType: "run.started",
		Message:   "Scrape run started",
		Details: map[string]interface{}{
			"portal": portal,
			"query":  query,
		},
	})
}

// RunComplete logs the completion of a scrape run, including the counters a
// partial result leaves behind.
func (s *LogService) RunComplete(ctx context.Context, jobID string, debtors, inscriptions, documents, droppedRows int, failures []string) error {
	return s.Log(ctx, LogEvent{
		JobID:     jobID,
		EventType: "run.completed",
		Message:   "Scrape run completed",
		Details: map[string]interface{}{
			"debtors":      debtors,
			"inscriptions": inscriptions,
			"documents":    documents,
			"dropped_rows": droppedRows,
			"failures":     failures,
		},
	})
}

// ChallengeUnresolved logs a challenge that could not be resolved. The run
// proceeds; the next interaction decides whether the session is usable.
func (s *LogService) ChallengeUnresolved(ctx context.Context, jobID, reason string) error {
	return s.Log(ctx, LogEvent{
		JobID:     jobID,
		EventType: "challenge.unresolved",
		Message:   "Human-verification challenge unresolved",
		Details: map[string]interface{}{
			"reason": reason,
		},
	})
}
