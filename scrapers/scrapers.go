// Package scrapers pulls in every portal scraper so their init
// registration runs. Import it for side effects from main.
package scrapers

import (
	_ "github.com/debtwatch/pgfn-scraper-service/scrapers/pgfn"
	_ "github.com/debtwatch/pgfn-scraper-service/scrapers/regularize"
)
