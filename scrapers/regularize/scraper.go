package regularize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/debtwatch/pgfn-scraper-service/common"
	"github.com/debtwatch/pgfn-scraper-service/common/browser"
	"github.com/debtwatch/pgfn-scraper-service/common/config"
	"github.com/debtwatch/pgfn-scraper-service/common/constants"
	"github.com/debtwatch/pgfn-scraper-service/common/db"
	"github.com/debtwatch/pgfn-scraper-service/common/messaging"
	"github.com/debtwatch/pgfn-scraper-service/common/models"
	"github.com/debtwatch/pgfn-scraper-service/common/scraper"
	"github.com/debtwatch/pgfn-scraper-service/common/storage"
)

// emitterClient is the emission flow behind a swappable seam for tests.
type emitterClient interface {
	Open(ctx context.Context) error
	Emit(ctx context.Context, cnpj string, inscription string) (models.DocumentArtifact, []byte, error)
}

// RegularizeScraper serves on-demand DARF emission requests: one
// message asks for one (cnpj, inscription) document, acquired through
// a fresh emission session.
type RegularizeScraper struct {
	scraper.BaseScraper

	newEmitter func(ctx context.Context) (emitterClient, func(), error)
}

// NewRegularizeScraper creates the scraper with its production emitter factory.
func NewRegularizeScraper(cfg config.Config, dbConn *db.DB, broker *messaging.NatsBroker, storageService storage.StorageService) (*RegularizeScraper, error) {
	if cfg.Regularize.DocURL == "" {
		return nil, common.ErrInvalidConfig
	}

	s := &RegularizeScraper{
		BaseScraper: scraper.NewBaseScraper(cfg, dbConn, broker, storageService),
	}

	s.newEmitter = func(ctx context.Context) (emitterClient, func(), error) {
		session, err := browser.NewRodSession(ctx, cfg.Browser, nil)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := session.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing emission session")
			}
		}
		return NewEmitter(session, cfg.Regularize, cfg.Browser.DownloadDir), cleanup, nil
	}

	return s, nil
}

func (s *RegularizeScraper) Portal() common.PortalType { return common.RegularizeDarf }
func (s *RegularizeScraper) Stream() string            { return messaging.StreamRegularize }
func (s *RegularizeScraper) Subject() string           { return messaging.SubjectRegularizeDoc }

// Setup initializes the scraper
func (s *RegularizeScraper) Setup(ctx context.Context) error {
	log.Info().Msg("Setting up Regularize DARF scraper")
	return nil
}

// Teardown cleans up resources
func (s *RegularizeScraper) Teardown(ctx context.Context) error {
	log.Info().Msg("Tearing down Regularize DARF scraper")
	return nil
}

// Consume processes an emission request from the queue
func (s *RegularizeScraper) Consume(ctx context.Context, message []byte) error {
	var req messaging.ScrapeRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return fmt.Errorf("failed to decode emission request: %w", err)
	}

	switch req.Type {
	case constants.EmitDocumentAction:
		return s.EmitDocument(ctx, req.ID, req.Payload.Cnpj, req.Payload.InscriptionNumber)
	default:
		return fmt.Errorf("%w: %s", scraper.ErrUnknownAction, req.Type)
	}
}

// EmitDocument acquires one DARF and records it. A session that cannot
// be established fails the job; an acquisition failure is recorded as
// a failed run with diagnostics, not retried forever by the queue.
func (s *RegularizeScraper) EmitDocument(ctx context.Context, jobID string, cnpj string, inscription string) error {
	if strings.TrimSpace(cnpj) == "" {
		return fmt.Errorf("emission request has an empty cnpj")
	}

	label := cnpj
	if inscription != "" {
		label = cnpj + "/" + inscription
	}

	if err := s.WorkManager.Start(ctx, jobID); err != nil {
		return err
	}
	_ = s.LogService.RunStart(ctx, jobID, string(s.Portal()), label)

	emitter, cleanup, err := s.newEmitter(ctx)
	if err != nil {
		_ = s.WorkManager.Fail(ctx, jobID)
		return fmt.Errorf("%w: %v", common.ErrSessionNotEstablished, err)
	}
	defer cleanup()

	if err := emitter.Open(ctx); err != nil {
		_ = s.LogService.Error(ctx, jobID, "Failed to open emission page", err, nil)
		_ = s.WorkManager.Fail(ctx, jobID)
		return fmt.Errorf("%w: %v", common.ErrSessionNotEstablished, err)
	}

	documents := 0
	var failures []string

	artifact, data, err := emitter.Emit(ctx, cnpj, inscription)
	if err != nil {
		failures = append(failures, fmt.Sprintf("emit %s: %v", label, err))
	} else {
		objectName, uploadErr := s.UploadDocument(ctx, common.RegularizeDarf, artifact.FileName, data, artifact.ContentType)
		if uploadErr != nil {
			log.Warn().Err(uploadErr).Str("fileName", artifact.FileName).Msg("Document upload failed, keeping local copy only")
		} else {
			artifact.StorageURL = objectName
		}
		if _, saveErr := s.SaveArtifact(ctx, artifact); saveErr != nil {
			failures = append(failures, fmt.Sprintf("persist %s: %v", label, saveErr))
		} else {
			documents = 1
		}
	}

	_ = s.LogService.RunComplete(ctx, jobID, 0, 0, documents, 0, failures)
	return s.WorkManager.Complete(ctx, jobID)
}
