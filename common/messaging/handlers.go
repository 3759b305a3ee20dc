package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// SetupGlobalSubscriptions ensures the JetStream streams backing the scrape
// subjects exist before any scraper registers its consumer.
func SetupGlobalSubscriptions(broker *NatsBroker) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	streams := []jetstream.StreamConfig{
		{
			Name:      StreamPgfn,
			Subjects:  []string{SubjectPgfnScrape},
			Retention: jetstream.WorkQueuePolicy,
		},
		{
			Name:      StreamRegularize,
			Subjects:  []string{SubjectRegularizeDoc},
			Retention: jetstream.WorkQueuePolicy,
		},
	}

	for _, cfg := range streams {
		if _, err := broker.CreateStream(ctx, cfg); err != nil {
			return fmt.Errorf("setting up stream %s: %w", cfg.Name, err)
		}
	}

	return nil
}
