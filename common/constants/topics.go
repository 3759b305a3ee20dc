package constants

const (
	// PgfnScraperTopic is the topic for the PGFN debtor-list scraper.
	PgfnScraperTopic = "pgfn_scraper"
	// RegularizeScraperTopic is the topic for the Regularize DARF scraper.
	RegularizeScraperTopic = "regularize_scraper"
)
