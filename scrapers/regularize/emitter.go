package regularize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/debtwatch/pgfn-scraper-service/common/browser"
	"github.com/debtwatch/pgfn-scraper-service/common/config"
	"github.com/debtwatch/pgfn-scraper-service/common/models"
)

// ErrNoDocument is returned when neither acquisition strategy produced
// document bytes. Per-item failures are isolated; callers continue
// with the remaining items.
var ErrNoDocument = errors.New("no document bytes obtainable")

// Form selector candidates, in priority order. The portal's markup is
// not stable, so locators are data, not control flow.
var (
	cnpjSelectors        = []string{"input[name='cpfCnpj']", "input[id*='cpf']", "input[type='text']"}
	inscriptionSelectors = []string{"input[name='inscricao']", "input[id*='inscr']", "input[type='text']"}
	querySubmitButtons   = []string{"button[type='submit']"}
)

// Emitter drives DARF emission on the Regularize portal: fill the
// identifier form, submit the query, trigger emission, then acquire
// the PDF by download trap or, failing that, from a captured
// document-typed response.
type Emitter struct {
	session     browser.Session
	config      config.RegularizeConfig
	downloadDir string
}

func NewEmitter(session browser.Session, cfg config.RegularizeConfig, downloadDir string) *Emitter {
	return &Emitter{
		session:     session,
		config:      cfg,
		downloadDir: downloadDir,
	}
}

// Open navigates to the document emission page.
func (e *Emitter) Open(ctx context.Context) error {
	if err := e.session.Navigate(ctx, e.config.DocURL); err != nil {
		return fmt.Errorf("failed to open emission page: %w", err)
	}
	return nil
}

// pdfPredicate matches any document-typed response in the session.
func pdfPredicate(ex browser.Exchange) bool {
	return strings.Contains(strings.ToLower(ex.Header("content-type")), "application/pdf") && len(ex.Body) > 0
}

// DarfFileName is the deterministic artifact name for one emission.
// The inscription suffix is omitted when the portal did not surface one.
func DarfFileName(cnpj string, inscription string) string {
	if inscription == "" {
		return fmt.Sprintf("DARF_%s.pdf", models.OnlyDigits(cnpj))
	}
	cleaned := strings.ReplaceAll(strings.ReplaceAll(inscription, " ", "_"), "/", "-")
	return fmt.Sprintf("DARF_%s_%s.pdf", models.OnlyDigits(cnpj), cleaned)
}

// Emit runs the full emission flow for one (cnpj, inscription) pair
// and persists the acquired bytes under the download directory. The
// returned artifact carries the local path; storage upload is the
// caller's concern.
func (e *Emitter) Emit(ctx context.Context, cnpj string, inscription string) (models.DocumentArtifact, []byte, error) {
	cnpjDigits := models.OnlyDigits(cnpj)

	if err := e.fillForm(ctx, cnpjDigits, inscription); err != nil {
		return models.DocumentArtifact{}, nil, err
	}

	if err := e.submitQuery(ctx); err != nil {
		return models.DocumentArtifact{}, nil, err
	}
	// let the result panel render before looking for the emission button
	_ = e.session.WaitStable(ctx, 2*time.Second)

	if err := e.triggerEmission(ctx); err != nil {
		return models.DocumentArtifact{}, nil, err
	}

	data, err := e.acquire(ctx)
	if err != nil {
		return models.DocumentArtifact{}, nil, err
	}

	fileName := DarfFileName(cnpjDigits, inscription)
	localPath := filepath.Join(e.downloadDir, fileName)
	if err := os.MkdirAll(e.downloadDir, 0o755); err != nil {
		return models.DocumentArtifact{}, nil, fmt.Errorf("failed to create download dir: %w", err)
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return models.DocumentArtifact{}, nil, fmt.Errorf("failed to persist document: %w", err)
	}

	artifact := models.DocumentArtifact{
		Cnpj:              cnpjDigits,
		InscriptionNumber: inscription,
		FileName:          fileName,
		LocalPath:         localPath,
		Size:              int64(len(data)),
		ContentType:       "application/pdf",
	}

	log.Info().
		Str("cnpj", cnpjDigits).
		Str("inscription", inscription).
		Int64("size", artifact.Size).
		Msg("Acquired DARF document")

	return artifact, data, nil
}

// fillForm fills the identifier and inscription fields. When both
// fields resolve to the same generic selector, the inscription goes
// into the second matching input.
func (e *Emitter) fillForm(ctx context.Context, cnpjDigits string, inscription string) error {
	usedSelector := ""
	for _, selector := range cnpjSelectors {
		has, err := e.session.Has(ctx, selector)
		if err != nil || !has {
			continue
		}
		if err := e.session.Type(ctx, selector, cnpjDigits); err != nil {
			continue
		}
		usedSelector = selector
		break
	}
	if usedSelector == "" {
		return fmt.Errorf("no identifier input matched any known selector")
	}

	// An inscription-less query asks the portal for every open debt of
	// the cnpj, so the inscription field stays untouched.
	if inscription == "" {
		return nil
	}

	for _, selector := range inscriptionSelectors {
		has, err := e.session.Has(ctx, selector)
		if err != nil || !has {
			continue
		}
		if selector == usedSelector {
			if err := e.session.TypeAt(ctx, selector, 1, inscription); err != nil {
				continue
			}
			return nil
		}
		if err := e.session.Type(ctx, selector, inscription); err != nil {
			continue
		}
		return nil
	}
	return fmt.Errorf("no inscription input matched any known selector")
}

func (e *Emitter) submitQuery(ctx context.Context) error {
	if err := e.session.ClickText(ctx, "button", "Consultar"); err == nil {
		return nil
	}
	for _, selector := range querySubmitButtons {
		if err := e.session.Click(ctx, selector); err == nil {
			return nil
		}
	}
	return e.session.PressEnter(ctx)
}

func (e *Emitter) triggerEmission(ctx context.Context) error {
	if err := e.session.ClickText(ctx, "button", "Emitir DARF integral"); err == nil {
		return nil
	}
	if err := e.session.ClickText(ctx, "button, a", "Emitir"); err != nil {
		return fmt.Errorf("emission trigger not found: %w", err)
	}
	return nil
}

// acquire obtains the document bytes: the download trap armed around
// the print action first, then the most recent document-typed response
// captured anywhere in the session.
func (e *Emitter) acquire(ctx context.Context) ([]byte, error) {
	data, _, err := e.session.WaitDownload(ctx, func() error {
		return e.session.ClickText(ctx, "button, a", "Imprimir")
	}, e.config.DownloadTimeout)
	if err == nil && len(data) > 0 {
		return data, nil
	}
	log.Debug().Err(err).Msg("Download trap yielded nothing, trying captured responses")

	if ex, ok := e.session.Exchanges().Latest(pdfPredicate); ok {
		return ex.Body, nil
	}

	return nil, ErrNoDocument
}
