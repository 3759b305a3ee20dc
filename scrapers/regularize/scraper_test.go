package regularize

import (
	"context"
	"errors"
	"testing"

	"github.com/debtwatch/pgfn-scraper-service/common"
	"github.com/debtwatch/pgfn-scraper-service/common/config"
	"github.com/debtwatch/pgfn-scraper-service/common/scraper"
)

func TestNewRegularizeScraperRequiresDocURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Regularize.DocURL = ""

	_, err := NewRegularizeScraper(cfg, nil, nil, nil)
	if !errors.Is(err, common.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestConsumeRejectsUnknownAction(t *testing.T) {
	s, err := NewRegularizeScraper(config.DefaultConfig(), nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = s.Consume(context.Background(), []byte(`{"id":"job-1","type":"scrape:by_query"}`))
	if !errors.Is(err, scraper.ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestEmitDocumentRejectsEmptyCnpj(t *testing.T) {
	s, err := NewRegularizeScraper(config.DefaultConfig(), nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.EmitDocument(context.Background(), "job-2", "  ", "40 1 23"); err == nil {
		t.Error("expected an error for an empty cnpj")
	}
}
