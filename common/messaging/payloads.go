package messaging

import "github.com/debtwatch/pgfn-scraper-service/common/constants"

// ScrapeRequest asks a portal scraper to run a debtor search.
type ScrapeRequest struct {
	ID      string               `json:"id"`
	Type    constants.ActionType `json:"type"`
	Payload ScrapePayload        `json:"payload"`
}

// ScrapePayload carries the parameters of a scrape action.
type ScrapePayload struct {
	Query             string `json:"query,omitempty"`
	Cnpj              string `json:"cnpj,omitempty"`
	InscriptionNumber string `json:"inscription_number,omitempty"`
}
