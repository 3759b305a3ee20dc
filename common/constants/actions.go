package constants

// ActionType defines the type of action a message represents.
type ActionType string

const (
	// ScrapeByQueryAction triggers a debtor search run for a company-name query.
	ScrapeByQueryAction ActionType = "scrape:by_query"
	// EmitDocumentAction triggers DARF emission for one (cnpj, inscription) pair.
	EmitDocumentAction ActionType = "emit:document"
)
