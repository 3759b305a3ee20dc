package regularize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/debtwatch/pgfn-scraper-service/common/browser"
	"github.com/debtwatch/pgfn-scraper-service/common/config"
)

// emitterSession scripts the Regularize portal interaction. Selector
// presence, typed values and the download trap are all configurable
// per test.
type emitterSession struct {
	buf       *browser.ExchangeBuffer
	selectors map[string]bool

	downloadData []byte
	downloadName string
	downloadErr  error

	typed   []typedInput
	clicked []string
}

type typedInput struct {
	selector string
	index    int
	text     string
}

func newEmitterSession(selectors ...string) *emitterSession {
	present := map[string]bool{}
	for _, s := range selectors {
		present[s] = true
	}
	return &emitterSession{
		buf:         browser.NewExchangeBuffer(),
		selectors:   present,
		downloadErr: errors.New("download trap never fired"),
	}
}

func (f *emitterSession) Navigate(ctx context.Context, url string) error        { return nil }
func (f *emitterSession) Reload(ctx context.Context) error                      { return nil }
func (f *emitterSession) WaitStable(ctx context.Context, t time.Duration) error { return nil }
func (f *emitterSession) Has(ctx context.Context, selector string) (bool, error) {
	return f.selectors[selector], nil
}
func (f *emitterSession) Type(ctx context.Context, selector, text string) error {
	f.typed = append(f.typed, typedInput{selector: selector, index: 0, text: text})
	return nil
}
func (f *emitterSession) TypeAt(ctx context.Context, selector string, index int, text string) error {
	f.typed = append(f.typed, typedInput{selector: selector, index: index, text: text})
	return nil
}
func (f *emitterSession) Click(ctx context.Context, selector string) error {
	f.clicked = append(f.clicked, selector)
	return nil
}
func (f *emitterSession) ClickText(ctx context.Context, selector, pattern string) error {
	f.clicked = append(f.clicked, pattern)
	return nil
}
func (f *emitterSession) PressEnter(ctx context.Context) error { return nil }
func (f *emitterSession) Eval(ctx context.Context, js string) (string, error) {
	return "", nil
}
func (f *emitterSession) HTML(ctx context.Context) (string, error) { return "<html></html>", nil }
func (f *emitterSession) LocalStorageItem(ctx context.Context, key string) (string, error) {
	return "", nil
}
func (f *emitterSession) WaitDownload(ctx context.Context, trigger func() error, timeout time.Duration) ([]byte, string, error) {
	if err := trigger(); err != nil {
		return nil, "", err
	}
	return f.downloadData, f.downloadName, f.downloadErr
}
func (f *emitterSession) Exchanges() *browser.ExchangeBuffer { return f.buf }
func (f *emitterSession) Close() error                       { return nil }

func emitterConfig() config.RegularizeConfig {
	return config.RegularizeConfig{
		DocURL:          "https://www.regularize.pgfn.gov.br/emissao",
		DownloadTimeout: time.Second,
	}
}

func TestDarfFileName(t *testing.T) {
	cases := []struct {
		cnpj        string
		inscription string
		want        string
	}{
		{"11.111.111/0001-00", "12 3 45 678901-23", "DARF_11111111000100_12_3_45_678901-23.pdf"},
		{"22222222000100", "40 1 23 456789-01", "DARF_22222222000100_40_1_23_456789-01.pdf"},
		{"33333333000100", "2023/0001", "DARF_33333333000100_2023-0001.pdf"},
		{"44444444000100", "", "DARF_44444444000100.pdf"},
	}
	for _, tc := range cases {
		if got := DarfFileName(tc.cnpj, tc.inscription); got != tc.want {
			t.Errorf("DarfFileName(%q, %q) = %q, want %q", tc.cnpj, tc.inscription, got, tc.want)
		}
	}
}

func TestEmitViaDownloadTrap(t *testing.T) {
	session := newEmitterSession("input[name='cpfCnpj']", "input[name='inscricao']")
	session.downloadData = []byte("%PDF-1.4 downloaded")
	session.downloadName = "darf.pdf"
	session.downloadErr = nil

	dir := t.TempDir()
	emitter := NewEmitter(session, emitterConfig(), dir)

	artifact, data, err := emitter.Emit(context.Background(), "11.111.111/0001-00", "12 3 45 678901-23")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "%PDF-1.4 downloaded" {
		t.Errorf("unexpected document bytes: %s", data)
	}
	if artifact.FileName != "DARF_11111111000100_12_3_45_678901-23.pdf" {
		t.Errorf("unexpected file name: %s", artifact.FileName)
	}
	if artifact.Size != int64(len(data)) {
		t.Errorf("artifact size %d does not match %d bytes", artifact.Size, len(data))
	}
	if artifact.ContentType != "application/pdf" {
		t.Errorf("unexpected content type: %s", artifact.ContentType)
	}

	persisted, err := os.ReadFile(filepath.Join(dir, artifact.FileName))
	if err != nil {
		t.Fatalf("local copy not persisted: %v", err)
	}
	if string(persisted) != string(data) {
		t.Error("local copy differs from returned bytes")
	}
}

func TestEmitFallsBackToCapturedResponse(t *testing.T) {
	// the download trap never fires, but a document-typed response was
	// captured in the session
	session := newEmitterSession("input[name='cpfCnpj']", "input[name='inscricao']")
	session.buf.Add(browser.Exchange{
		URL:     "https://www.regularize.pgfn.gov.br/darf/render",
		Status:  200,
		Headers: map[string]string{"content-type": "application/pdf"},
		Body:    []byte("%PDF-1.4 inline"),
	})

	dir := t.TempDir()
	emitter := NewEmitter(session, emitterConfig(), dir)

	artifact, data, err := emitter.Emit(context.Background(), "22222222000100", "40 1 23 456789-01")
	if err != nil {
		t.Fatalf("expected inline capture to produce the document, got: %v", err)
	}
	if string(data) != "%PDF-1.4 inline" {
		t.Errorf("unexpected document bytes: %s", data)
	}
	if artifact.LocalPath != filepath.Join(dir, artifact.FileName) {
		t.Errorf("unexpected local path: %s", artifact.LocalPath)
	}
}

func TestEmitNoDocumentObtainable(t *testing.T) {
	session := newEmitterSession("input[name='cpfCnpj']", "input[name='inscricao']")
	// no download, and the only captured response is not a document
	session.buf.Add(browser.Exchange{
		URL:     "https://www.regularize.pgfn.gov.br/api/consulta",
		Status:  200,
		Headers: map[string]string{"content-type": "application/json"},
		Body:    []byte(`{}`),
	})

	emitter := NewEmitter(session, emitterConfig(), t.TempDir())

	_, _, err := emitter.Emit(context.Background(), "11111111000100", "40 1 23 456789-01")
	if !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
}

func TestEmitIgnoresEmptyDocumentResponses(t *testing.T) {
	session := newEmitterSession("input[name='cpfCnpj']", "input[name='inscricao']")
	session.buf.Add(browser.Exchange{
		URL:     "https://www.regularize.pgfn.gov.br/darf/render",
		Status:  200,
		Headers: map[string]string{"content-type": "application/pdf"},
		Body:    nil,
	})

	emitter := NewEmitter(session, emitterConfig(), t.TempDir())

	_, _, err := emitter.Emit(context.Background(), "11111111000100", "40 1 23 456789-01")
	if !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument for an empty body, got %v", err)
	}
}

func TestFillFormDistinctSelectors(t *testing.T) {
	session := newEmitterSession("input[name='cpfCnpj']", "input[name='inscricao']")
	session.downloadData = []byte("%PDF-1.4")
	session.downloadErr = nil

	emitter := NewEmitter(session, emitterConfig(), t.TempDir())
	if _, _, err := emitter.Emit(context.Background(), "11111111000100", "40 1 23 456789-01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(session.typed) != 2 {
		t.Fatalf("expected 2 filled inputs, got %d", len(session.typed))
	}
	if session.typed[0].selector != "input[name='cpfCnpj']" || session.typed[0].text != "11111111000100" {
		t.Errorf("identifier fill wrong: %+v", session.typed[0])
	}
	if session.typed[1].selector != "input[name='inscricao']" || session.typed[1].index != 0 {
		t.Errorf("inscription fill wrong: %+v", session.typed[1])
	}
}

func TestFillFormSharedGenericSelector(t *testing.T) {
	// only the generic text-input selector exists; the inscription must
	// land in the second matching input
	session := newEmitterSession("input[type='text']")
	session.downloadData = []byte("%PDF-1.4")
	session.downloadErr = nil

	emitter := NewEmitter(session, emitterConfig(), t.TempDir())
	if _, _, err := emitter.Emit(context.Background(), "11111111000100", "40 1 23 456789-01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(session.typed) != 2 {
		t.Fatalf("expected 2 filled inputs, got %d", len(session.typed))
	}
	if session.typed[1].selector != "input[type='text']" || session.typed[1].index != 1 {
		t.Errorf("expected inscription in the second generic input, got %+v", session.typed[1])
	}
	if session.typed[1].text != "40 1 23 456789-01" {
		t.Errorf("unexpected inscription text: %q", session.typed[1].text)
	}
}

func TestFillFormWithoutInscription(t *testing.T) {
	// cnpj-only emission: the inscription field stays untouched and its
	// absence from the page is not an error
	session := newEmitterSession("input[name='cpfCnpj']")
	session.downloadData = []byte("%PDF-1.4")
	session.downloadErr = nil

	emitter := NewEmitter(session, emitterConfig(), t.TempDir())
	artifact, _, err := emitter.Emit(context.Background(), "11111111000100", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(session.typed) != 1 {
		t.Fatalf("expected only the identifier to be filled, got %d inputs", len(session.typed))
	}
	if artifact.FileName != "DARF_11111111000100.pdf" {
		t.Errorf("unexpected artifact name %q", artifact.FileName)
	}
}

func TestFillFormNoIdentifierInput(t *testing.T) {
	session := newEmitterSession() // nothing matches
	emitter := NewEmitter(session, emitterConfig(), t.TempDir())

	_, _, err := emitter.Emit(context.Background(), "11111111000100", "40 1 23 456789-01")
	if err == nil {
		t.Fatal("expected an error when no form input matches")
	}
}
