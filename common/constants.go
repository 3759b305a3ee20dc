package common

const (
	// AppName is the name of the application
	AppName = "pgfn-scraper"

	// GCS constants
	GCSBucketName = "debtwatch-darf-bucket"
)

// PortalType represents the type of portal a scraper targets
type PortalType string

const (
	// PgfnDebtorList represents the PGFN "Lista de Devedores" portal
	PgfnDebtorList PortalType = "pgfn-debtor-list"
	// RegularizeDarf represents the Regularize DARF emission portal
	RegularizeDarf PortalType = "regularize-darf"
)
