package pgfn

import (
	"github.com/debtwatch/pgfn-scraper-service/common/config"
	"github.com/debtwatch/pgfn-scraper-service/common/constants"
	"github.com/debtwatch/pgfn-scraper-service/common/db"
	"github.com/debtwatch/pgfn-scraper-service/common/messaging"
	"github.com/debtwatch/pgfn-scraper-service/common/scraper"
	"github.com/debtwatch/pgfn-scraper-service/common/storage"
)

func init() {
	scraper.RegisterScraper(constants.PgfnScraperTopic, func(cfg config.Config, dbConn *db.DB, broker *messaging.NatsBroker, storageService storage.StorageService) (scraper.PortalScraper, error) {
		return NewPgfnScraper(cfg, dbConn, broker, storageService)
	})
}
