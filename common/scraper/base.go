package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog/log"

	"github.com/debtwatch/pgfn-scraper-service/common"
	"github.com/debtwatch/pgfn-scraper-service/common/config"
	"github.com/debtwatch/pgfn-scraper-service/common/db"
	"github.com/debtwatch/pgfn-scraper-service/common/logger"
	"github.com/debtwatch/pgfn-scraper-service/common/messaging"
	"github.com/debtwatch/pgfn-scraper-service/common/models"
	"github.com/debtwatch/pgfn-scraper-service/common/storage"
	"github.com/debtwatch/pgfn-scraper-service/common/work"
	"github.com/debtwatch/pgfn-scraper-service/repository"
)

// BaseScraper carries the services every portal scraper needs: the
// database, the message broker, document storage, run diagnostics and
// job state management.
type BaseScraper struct {
	Config         config.Config
	DB             *db.DB
	MessageBroker  *messaging.NatsBroker
	StorageService storage.StorageService
	LogService     *logger.LogService
	WorkManager    *work.WorkManager
}

// NewBaseScraper assembles the shared scraper services.
func NewBaseScraper(cfg config.Config, dbConn *db.DB, broker *messaging.NatsBroker, storageService storage.StorageService) BaseScraper {
	return BaseScraper{
		Config:         cfg,
		DB:             dbConn,
		MessageBroker:  broker,
		StorageService: storageService,
		LogService:     logger.NewLogService(dbConn),
		WorkManager:    work.NewWorkManager(dbConn),
	}
}

// SaveDebtors persists debtor rows, attributing first sight to jobID.
// Conflicting CNPJs are left untouched so the first-seen record wins.
func (s *BaseScraper) SaveDebtors(ctx context.Context, jobID string, records []models.DebtorRecord) (int, error) {
	if s.DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	saved := 0
	for _, record := range records {
		err := s.DB.Queries.UpsertDebtor(ctx, repository.UpsertDebtorParams{
			Cnpj:         record.Cnpj,
			Name:         record.Name,
			TradeName:    pgtype.Text{String: record.TradeName, Valid: record.TradeName != ""},
			TotalDebt:    optionalFloat(record.TotalDebt.Get()),
			FirstSeenJob: pgtype.Text{String: jobID, Valid: jobID != ""},
			CreatedAt:    time.Now(),
		})
		if err != nil {
			log.Error().Err(err).Str("cnpj", record.Cnpj).Msg("Failed to save debtor")
			return saved, err
		}
		saved++
	}

	log.Debug().Int("count", saved).Str("jobID", jobID).Msg("Saved debtors")
	return saved, nil
}

// SaveInscriptions persists inscription rows keyed by (cnpj, number).
func (s *BaseScraper) SaveInscriptions(ctx context.Context, records []models.InscriptionRecord) (int, error) {
	if s.DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	saved := 0
	for _, record := range records {
		err := s.DB.Queries.UpsertInscription(ctx, repository.UpsertInscriptionParams{
			Cnpj:              record.Cnpj,
			InscriptionNumber: record.InscriptionNumber,
			Category:          pgtype.Text{String: record.Category, Valid: record.Category != ""},
			Amount:            optionalFloat(record.Amount.Get()),
			CreatedAt:         time.Now(),
		})
		if err != nil {
			log.Error().Err(err).Str("cnpj", record.Cnpj).Str("inscription", record.InscriptionNumber).Msg("Failed to save inscription")
			return saved, err
		}
		saved++
	}

	log.Debug().Int("count", saved).Msg("Saved inscriptions")
	return saved, nil
}

// SaveArtifact records an acquired document in the database.
func (s *BaseScraper) SaveArtifact(ctx context.Context, artifact models.DocumentArtifact) (repository.DocumentArtifact, error) {
	if s.DB == nil {
		return repository.DocumentArtifact{}, fmt.Errorf("database not initialized")
	}

	saved, err := s.DB.Queries.CreateDocumentArtifact(ctx, repository.CreateDocumentArtifactParams{
		ID:                uuid.New().String(),
		Cnpj:              artifact.Cnpj,
		InscriptionNumber: pgtype.Text{String: artifact.InscriptionNumber, Valid: artifact.InscriptionNumber != ""},
		FileName:          artifact.FileName,
		Size:              artifact.Size,
		ContentType:       artifact.ContentType,
		StorageUrl:        pgtype.Text{String: artifact.StorageURL, Valid: artifact.StorageURL != ""},
		LocalPath:         pgtype.Text{String: artifact.LocalPath, Valid: artifact.LocalPath != ""},
		CreatedAt:         time.Now(),
	})
	if err != nil {
		log.Error().Err(err).Str("fileName", artifact.FileName).Msg("Failed to save document artifact")
		return repository.DocumentArtifact{}, err
	}

	log.Debug().Str("id", saved.ID).Str("fileName", saved.FileName).Msg("Saved document artifact")
	return saved, nil
}

// UploadDocument pushes document bytes to object storage under the
// portal's prefix and returns the object name.
func (s *BaseScraper) UploadDocument(ctx context.Context, portal common.PortalType, fileName string, content []byte, contentType string) (string, error) {
	if s.StorageService == nil {
		return "", fmt.Errorf("storage service not initialized")
	}

	bucket := s.Config.GCS.Bucket
	if bucket == "" {
		bucket = common.GCSBucketName
	}

	objectName := fmt.Sprintf("%s/%s", portal, fileName)
	objectName, err := s.StorageService.Upload(ctx, bucket, objectName, content, contentType)
	if err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("object", objectName).Msg("Failed to upload document to storage")
		return "", err
	}

	log.Debug().Str("object", objectName).Str("bucket", bucket).Msg("Uploaded document to storage")
	return objectName, nil
}

func optionalFloat(v float64, ok bool) pgtype.Float8 {
	return pgtype.Float8{Float64: v, Valid: ok}
}
