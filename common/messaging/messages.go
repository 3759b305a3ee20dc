package messaging

// Constants for NATS subjects
const (
	SubjectPgfnScrape    = "pgfn.scrape"
	SubjectRegularizeDoc = "regularize.doc"
)

// Stream names backing the scrape subjects
const (
	StreamPgfn       = "PGFN_SCRAPE"
	StreamRegularize = "REGULARIZE_DOC"
)
