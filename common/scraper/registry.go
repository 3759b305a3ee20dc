package scraper

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/debtwatch/pgfn-scraper-service/common/config"
	"github.com/debtwatch/pgfn-scraper-service/common/db"
	"github.com/debtwatch/pgfn-scraper-service/common/messaging"
	"github.com/debtwatch/pgfn-scraper-service/common/storage"
)

// ScraperCreator builds a portal scraper from the shared services.
type ScraperCreator func(cfg config.Config, dbConn *db.DB, broker *messaging.NatsBroker, storageService storage.StorageService) (PortalScraper, error)

var (
	scraperRegistry     = make(map[string]ScraperCreator)
	scraperRegistryLock sync.RWMutex
)

// RegisterScraper registers a scraper creator under a portal name.
// Called from the portal packages' init functions.
func RegisterScraper(name string, creator ScraperCreator) {
	scraperRegistryLock.Lock()
	defer scraperRegistryLock.Unlock()
	scraperRegistry[name] = creator
}

// GetScraperRegistry returns the scraper registry
func GetScraperRegistry() map[string]ScraperCreator {
	scraperRegistryLock.RLock()
	defer scraperRegistryLock.RUnlock()

	// Create a copy to avoid race conditions
	registryCopy := make(map[string]ScraperCreator, len(scraperRegistry))
	maps.Copy(registryCopy, scraperRegistry)

	return registryCopy
}

// RegisterScrapers creates every registered scraper and binds it to a
// durable JetStream consumer on its stream. Failed messages are
// negatively acknowledged and redelivered.
func RegisterScrapers(ctx context.Context, cfg config.Config, natsClient *messaging.NatsBroker, dbConn *db.DB, storageService storage.StorageService) error {
	for name, creator := range GetScraperRegistry() {
		portalScraper, err := creator(cfg, dbConn, natsClient, storageService)
		if err != nil {
			return fmt.Errorf("failed to create scraper %s: %w", name, err)
		}

		if err := portalScraper.Setup(ctx); err != nil {
			return fmt.Errorf("failed to setup scraper %s: %w", name, err)
		}

		consumer, err := natsClient.CreateConsumer(ctx, portalScraper.Stream(), jetstream.ConsumerConfig{
			Durable:       fmt.Sprintf("%s-workers", name),
			FilterSubject: portalScraper.Subject(),
			AckPolicy:     jetstream.AckExplicitPolicy,
			// one scrape run owns the whole browser session, so requests
			// are worked one at a time
			MaxAckPending: 1,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer for %s: %w", name, err)
		}

		s := portalScraper
		_, err = natsClient.Consume(ctx, consumer, func(msg jetstream.Msg) {
			if err := s.Consume(ctx, msg.Data()); err != nil {
				log.Error().Err(err).Str("portal", string(s.Portal())).Msg("Scrape request failed")
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("Failed to nak message")
				}
				return
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("Failed to ack message")
			}
		})
		if err != nil {
			return fmt.Errorf("failed to consume for %s: %w", name, err)
		}

		log.Info().
			Str("portal", string(portalScraper.Portal())).
			Str("subject", portalScraper.Subject()).
			Msg("Registered portal scraper")
	}

	return nil
}
