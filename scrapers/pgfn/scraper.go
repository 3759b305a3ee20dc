package pgfn

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/debtwatch/pgfn-scraper-service/common"
	"github.com/debtwatch/pgfn-scraper-service/common/browser"
	"github.com/debtwatch/pgfn-scraper-service/common/captcha"
	"github.com/debtwatch/pgfn-scraper-service/common/config"
	"github.com/debtwatch/pgfn-scraper-service/common/constants"
	"github.com/debtwatch/pgfn-scraper-service/common/db"
	"github.com/debtwatch/pgfn-scraper-service/common/messaging"
	"github.com/debtwatch/pgfn-scraper-service/common/models"
	"github.com/debtwatch/pgfn-scraper-service/common/scraper"
	"github.com/debtwatch/pgfn-scraper-service/common/storage"
	"github.com/debtwatch/pgfn-scraper-service/common/work"
	"github.com/debtwatch/pgfn-scraper-service/scrapers/regularize"
)

// documentEmitter is the slice of the Regularize flow the debtor run
// needs; narrowed to an interface so runs can be tested without a
// second browser session.
type documentEmitter interface {
	Open(ctx context.Context) error
	Emit(ctx context.Context, cnpj string, inscription string) (models.DocumentArtifact, []byte, error)
}

// PgfnScraper runs debtor searches against the "Lista de Devedores"
// portal and, for every inscription found, emits the matching DARF
// through the Regularize portal.
type PgfnScraper struct {
	scraper.BaseScraper

	challenge *captcha.Challenge

	// factories are swappable seams for tests
	newSession func(ctx context.Context) (browser.Session, error)
	newEmitter func(ctx context.Context) (documentEmitter, func(), error)
}

// NewPgfnScraper creates the scraper with its production session and
// emitter factories.
func NewPgfnScraper(cfg config.Config, dbConn *db.DB, broker *messaging.NatsBroker, storageService storage.StorageService) (*PgfnScraper, error) {
	if cfg.Pgfn.BaseURL == "" {
		return nil, common.ErrInvalidConfig
	}

	solver := captcha.NewHTTPSolver(cfg.Captcha.APIKey)

	s := &PgfnScraper{
		BaseScraper: scraper.NewBaseScraper(cfg, dbConn, broker, storageService),
		challenge:   captcha.NewChallenge(cfg.Captcha, solver),
	}

	s.newSession = func(ctx context.Context) (browser.Session, error) {
		hints := cfg.Pgfn.JSONHints
		return browser.NewRodSession(ctx, cfg.Browser, func(url string) bool {
			for _, hint := range hints {
				if strings.Contains(url, hint) {
					return true
				}
			}
			return false
		})
	}

	s.newEmitter = func(ctx context.Context) (documentEmitter, func(), error) {
		// document responses are recognized by content type, so the
		// emission session captures everything
		session, err := browser.NewRodSession(ctx, cfg.Browser, nil)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := session.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing emission session")
			}
		}
		return regularize.NewEmitter(session, cfg.Regularize, cfg.Browser.DownloadDir), cleanup, nil
	}

	return s, nil
}

func (s *PgfnScraper) Portal() common.PortalType { return common.PgfnDebtorList }
func (s *PgfnScraper) Stream() string            { return messaging.StreamPgfn }
func (s *PgfnScraper) Subject() string           { return messaging.SubjectPgfnScrape }

// Setup initializes the scraper
func (s *PgfnScraper) Setup(ctx context.Context) error {
	log.Info().Msg("Setting up PGFN debtor-list scraper")
	return nil
}

// Teardown cleans up resources
func (s *PgfnScraper) Teardown(ctx context.Context) error {
	log.Info().Msg("Tearing down PGFN debtor-list scraper")
	return nil
}

// Consume processes a scrape request from the queue
func (s *PgfnScraper) Consume(ctx context.Context, message []byte) error {
	var req messaging.ScrapeRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return fmt.Errorf("failed to decode scrape request: %w", err)
	}

	switch req.Type {
	case constants.ScrapeByQueryAction:
		return s.ScrapeByQuery(ctx, req.ID, req.Payload.Query)
	default:
		return fmt.Errorf("%w: %s", scraper.ErrUnknownAction, req.Type)
	}
}

// runCounters aggregates what one run produced and what failed along
// the way; partial results are valid results.
type runCounters struct {
	debtors      int
	inscriptions int
	documents    int
	droppedRows  int
	failures     []string
}

// ScrapeByQuery runs the full pipeline for one company-name query:
// session, challenge, search, extraction, persistence and document
// emission. Only a failure to establish the portal session aborts the
// run; everything else degrades to partial results.
func (s *PgfnScraper) ScrapeByQuery(ctx context.Context, jobID string, query string) error {
	if strings.TrimSpace(query) == "" {
		return scraper.ErrEmptyQuery
	}

	if err := s.WorkManager.Start(ctx, jobID); err != nil {
		return err
	}
	_ = s.LogService.RunStart(ctx, jobID, string(s.Portal()), query)

	session, err := s.newSession(ctx)
	if err != nil {
		_ = s.WorkManager.Fail(ctx, jobID)
		return fmt.Errorf("%w: %v", common.ErrSessionNotEstablished, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing search session")
		}
	}()

	if err := session.Navigate(ctx, s.Config.Pgfn.BaseURL); err != nil {
		_ = s.LogService.Error(ctx, jobID, "Failed to open entry page", err, nil)
		_ = s.WorkManager.Fail(ctx, jobID)
		return fmt.Errorf("%w: %v", common.ErrSessionNotEstablished, err)
	}

	counters := s.run(ctx, jobID, query, session)

	_ = s.LogService.RunComplete(ctx, jobID, counters.debtors, counters.inscriptions, counters.documents, counters.droppedRows, counters.failures)
	return s.WorkManager.Complete(ctx, jobID)
}

// run executes the post-session part of the pipeline. It never returns
// an error: every failure past session establishment is reflected in
// the counters instead.
func (s *PgfnScraper) run(ctx context.Context, jobID string, query string, session browser.Session) runCounters {
	counters := runCounters{}

	outcome, err := s.challenge.Resolve(ctx, session, s.Config.Pgfn.BaseURL)
	if err != nil || outcome == captcha.OutcomeUnresolved {
		reason := "challenge unresolved"
		if err != nil {
			reason = err.Error()
		}
		// non-fatal: the search cycle is the real arbiter of usability
		_ = s.LogService.ChallengeUnresolved(ctx, jobID, reason)
	}

	tokens := browser.NewTokenStore()
	searcher := NewSearcher(session, tokens, s.Config.Pgfn)

	ex, ok, err := searcher.Run(ctx, query)
	if err != nil {
		counters.failures = append(counters.failures, fmt.Sprintf("search: %v", err))
		return counters
	}
	if !ok {
		// attempts exhausted: an empty result set is a normal outcome
		return counters
	}

	extracted, err := ExtractDebtors(ex.Body)
	if err != nil {
		counters.failures = append(counters.failures, fmt.Sprintf("extract: %v", err))
		return counters
	}
	counters.droppedRows += extracted.DroppedRows

	saved, err := s.SaveDebtors(ctx, jobID, extracted.Debtors)
	counters.debtors = saved
	if err != nil {
		counters.failures = append(counters.failures, fmt.Sprintf("persist debtors: %v", err))
	}

	inscriptions := s.collectInscriptions(ctx, session, extracted.Debtors, &counters)

	savedInscriptions, err := s.SaveInscriptions(ctx, inscriptions)
	counters.inscriptions = savedInscriptions
	if err != nil {
		counters.failures = append(counters.failures, fmt.Sprintf("persist inscriptions: %v", err))
	}

	s.emitDocuments(ctx, jobID, inscriptions, &counters)
	return counters
}

// collectInscriptions walks the per-debtor detail endpoint through the
// browser session so cookies and headers stay aligned, and parses the
// captured detail payloads.
func (s *PgfnScraper) collectInscriptions(ctx context.Context, session browser.Session, debtors []models.DebtorRecord, counters *runCounters) []models.InscriptionRecord {
	var all []models.InscriptionRecord
	match := dataEndpointPredicate(s.Config.Pgfn.JSONHints)

	for _, debtor := range debtors {
		detailURL := fmt.Sprintf("%s/api/devedores/%s", s.Config.Pgfn.BaseURL, debtor.Cnpj)
		mark := session.Exchanges().Watermark()
		if err := session.Navigate(ctx, detailURL); err != nil {
			counters.failures = append(counters.failures, fmt.Sprintf("detail %s: %v", debtor.Cnpj, err))
			continue
		}

		cnpj := debtor.Cnpj
		ex, err := session.Exchanges().Wait(ctx, func(ex browser.Exchange) bool {
			return ex.Seq > mark && match(ex) && strings.Contains(ex.URL, cnpj)
		}, s.Config.Pgfn.WaitMed)
		if err != nil {
			counters.failures = append(counters.failures, fmt.Sprintf("detail %s: no payload", debtor.Cnpj))
			continue
		}

		records, dropped, err := ExtractInscriptions(debtor.Cnpj, ex.Body)
		if err != nil {
			counters.failures = append(counters.failures, fmt.Sprintf("detail %s: %v", debtor.Cnpj, err))
			continue
		}
		counters.droppedRows += dropped
		all = append(all, records...)
	}

	return all
}

// emitDocuments acquires one DARF per inscription on the Regularize
// portal. A single worker drives the emission session since one page
// has one coherent state; the pool bounds each item's time and
// isolates its failure from the rest.
func (s *PgfnScraper) emitDocuments(ctx context.Context, jobID string, inscriptions []models.InscriptionRecord, counters *runCounters) {
	if len(inscriptions) == 0 {
		return
	}

	emitter, cleanup, err := s.newEmitter(ctx)
	if err != nil {
		counters.failures = append(counters.failures, fmt.Sprintf("emission session: %v", err))
		return
	}
	defer cleanup()

	if err := emitter.Open(ctx); err != nil {
		counters.failures = append(counters.failures, fmt.Sprintf("emission session: %v", err))
		return
	}

	pool, err := work.NewWorkerPoolWithConfig[models.DocumentArtifact](work.PoolConfig{
		NumWorkers:      1,
		TaskChannelSize: len(inscriptions),
		ResultChanSize:  len(inscriptions),
		TaskTimeout:     s.Config.Regularize.DownloadTimeout + time.Minute,
	})
	if err != nil {
		counters.failures = append(counters.failures, fmt.Sprintf("emission pool: %v", err))
		return
	}

	pool.Start(ctx, fmt.Sprintf("darf-emission-%s", jobID))
	defer pool.Stop()

	for _, inscription := range inscriptions {
		item := inscription
		task, err := work.NewTask[models.DocumentArtifact](
			func(taskCtx context.Context) (models.DocumentArtifact, error) {
				return s.emitOne(taskCtx, emitter, item)
			},
			work.WithID[models.DocumentArtifact](fmt.Sprintf("%s/%s", item.Cnpj, item.InscriptionNumber)),
		)
		if err != nil {
			counters.failures = append(counters.failures, fmt.Sprintf("emit %s/%s: %v", item.Cnpj, item.InscriptionNumber, err))
			continue
		}
		if err := pool.AddTask(ctx, task); err != nil {
			counters.failures = append(counters.failures, fmt.Sprintf("emit %s/%s: %v", item.Cnpj, item.InscriptionNumber, err))
		}
	}

	for range inscriptions {
		select {
		case result := <-pool.Results():
			if result.IsSuccess() {
				counters.documents++
				continue
			}
			counters.failures = append(counters.failures, fmt.Sprintf("emit %s: %v", result.TaskID, result.Error))
		case <-ctx.Done():
			counters.failures = append(counters.failures, fmt.Sprintf("emission aborted: %v", ctx.Err()))
			return
		}
	}
}

// emitOne acquires, uploads and records a single document.
func (s *PgfnScraper) emitOne(ctx context.Context, emitter documentEmitter, inscription models.InscriptionRecord) (models.DocumentArtifact, error) {
	artifact, data, err := emitter.Emit(ctx, inscription.Cnpj, inscription.InscriptionNumber)
	if err != nil {
		return models.DocumentArtifact{}, err
	}

	objectName, err := s.UploadDocument(ctx, common.RegularizeDarf, artifact.FileName, data, artifact.ContentType)
	if err != nil {
		// the local copy exists; storage upload failure is recorded, not fatal
		log.Warn().Err(err).Str("fileName", artifact.FileName).Msg("Document upload failed, keeping local copy only")
	} else {
		artifact.StorageURL = objectName
	}

	if _, err := s.SaveArtifact(ctx, artifact); err != nil {
		return models.DocumentArtifact{}, err
	}
	return artifact, nil
}
