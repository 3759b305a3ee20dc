package scraper

import (
	"context"

	"github.com/debtwatch/pgfn-scraper-service/common"
)

// PortalScraper defines the interface for portal scraping operations
type PortalScraper interface {
	// Portal identifies the portal this scraper targets
	Portal() common.PortalType

	// Stream is the JetStream stream the scraper consumes from
	Stream() string

	// Subject is the NATS subject carrying this scraper's requests
	Subject() string

	// Setup initializes the scraper, including browser configuration
	Setup(ctx context.Context) error

	// Teardown cleans up resources used by the scraper
	Teardown(ctx context.Context) error

	// Consume processes a scrape request from the queue
	Consume(ctx context.Context, message []byte) error
}
