package pgfn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/debtwatch/pgfn-scraper-service/common/captcha"
	"github.com/debtwatch/pgfn-scraper-service/common/config"
	"github.com/debtwatch/pgfn-scraper-service/common/db"
	"github.com/debtwatch/pgfn-scraper-service/common/logger"
	"github.com/debtwatch/pgfn-scraper-service/common/models"
	"github.com/debtwatch/pgfn-scraper-service/common/scraper"
	"github.com/debtwatch/pgfn-scraper-service/common/work"
	"github.com/debtwatch/pgfn-scraper-service/repository"
	"github.com/debtwatch/pgfn-scraper-service/scrapers/regularize"
)

// fakeDBTX accepts every write so persistence calls succeed without a
// database.
type fakeDBTX struct {
	execs []string
}

func (f *fakeDBTX) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDBTX) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeDBTX) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return fakeRow{}
}

type fakeRow struct{}

func (fakeRow) Scan(dest ...any) error { return nil }

// fakeStorage keeps uploaded objects in memory.
type fakeStorage struct {
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) Upload(ctx context.Context, bucket, objectName string, content []byte, contentType string) (string, error) {
	f.objects[objectName] = content
	return objectName, nil
}

func (f *fakeStorage) Download(ctx context.Context, bucket, objectName string) ([]byte, error) {
	data, ok := f.objects[objectName]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f *fakeStorage) Delete(ctx context.Context, bucket, objectName string) error {
	delete(f.objects, objectName)
	return nil
}

func (f *fakeStorage) GetSignedURL(ctx context.Context, bucket, objectName string, expires int64) (string, error) {
	return "https://storage/" + objectName, nil
}

func (f *fakeStorage) StreamUpload(ctx context.Context, bucket, objectName string, reader io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return f.Upload(ctx, bucket, objectName, data, contentType)
}

// fakeEmitter succeeds or fails per inscription number.
type fakeEmitter struct {
	failing map[string]error
	emitted []string
}

func (f *fakeEmitter) Open(ctx context.Context) error { return nil }

func (f *fakeEmitter) Emit(ctx context.Context, cnpj string, inscription string) (models.DocumentArtifact, []byte, error) {
	f.emitted = append(f.emitted, inscription)
	if err, ok := f.failing[inscription]; ok {
		return models.DocumentArtifact{}, nil, err
	}
	data := []byte("%PDF-1.4 " + inscription)
	return models.DocumentArtifact{
		Cnpj:              models.OnlyDigits(cnpj),
		InscriptionNumber: inscription,
		FileName:          regularize.DarfFileName(cnpj, inscription),
		Size:              int64(len(data)),
		ContentType:       "application/pdf",
	}, data, nil
}

func newTestScraper(t *testing.T, emitter documentEmitter) (*PgfnScraper, *fakeStorage) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Pgfn = searchConfig()

	store := newFakeStorage()
	fakeDB := &db.DB{Queries: repository.New(&fakeDBTX{})}

	s := &PgfnScraper{
		BaseScraper: scraper.BaseScraper{
			Config:         cfg,
			DB:             fakeDB,
			StorageService: store,
			LogService:     logger.NewLogService(fakeDB),
			WorkManager:    work.NewWorkManager(fakeDB),
		},
		challenge: captcha.NewChallenge(cfg.Captcha, nil),
	}
	s.newEmitter = func(ctx context.Context) (documentEmitter, func(), error) {
		return emitter, func() {}, nil
	}
	return s, store
}

func TestRunFullPipeline(t *testing.T) {
	session := newFakeSession()

	searchBody := `{"devedores":[
		{"id":"11111111000100","nome":"ACME TRANSPORTES LTDA","totaldivida":"10.500,00"},
		{"id":"11111111000100","nome":"ACME TRANSPORTES LTDA (dup)"},
		{"id":"22222222000100","nome":"ACME LOGISTICA SA"}
	]}`
	session.onSubmit = func(attempt int64) {
		session.buf.Add(jsonExchange("https://portal/api/devedores/", 200, searchBody, nil))
	}
	session.onNavigate = func(url string) {
		for _, cnpj := range []string{"11111111000100", "22222222000100"} {
			if !strings.Contains(url, cnpj) {
				continue
			}
			body := fmt.Sprintf(`{"inscricoes":[{"inscricao":"40 1 %s","natureza":"DAU","valor":"1.000,00"}]}`, cnpj[:2])
			session.buf.Add(jsonExchange(url, 200, body, nil))
		}
	}

	emitter := &fakeEmitter{failing: map[string]error{
		"40 1 22": regularize.ErrNoDocument,
	}}
	s, store := newTestScraper(t, emitter)

	counters := s.run(context.Background(), "job-1", "ACME TRANSPORTES", session)

	if counters.debtors != 2 {
		t.Errorf("expected 2 debtors after dedup, got %d", counters.debtors)
	}
	if counters.inscriptions != 2 {
		t.Errorf("expected 2 inscriptions, got %d", counters.inscriptions)
	}
	if counters.documents != 1 {
		t.Errorf("expected 1 acquired document, got %d", counters.documents)
	}
	if len(emitter.emitted) != 2 {
		t.Fatalf("expected emission attempted for both inscriptions, got %v", emitter.emitted)
	}

	found := false
	for _, failure := range counters.failures {
		if strings.Contains(failure, "40 1 22") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the failed emission in the failure list, got %v", counters.failures)
	}

	if len(store.objects) != 1 {
		t.Errorf("expected 1 uploaded document, got %d", len(store.objects))
	}
}

func TestRunExhaustedSearchIsEmptyResult(t *testing.T) {
	session := newFakeSession()
	session.onSubmit = func(attempt int64) {
		session.buf.Add(jsonExchange("https://portal/api/devedores/", 401, ``, nil))
	}

	emitter := &fakeEmitter{}
	s, _ := newTestScraper(t, emitter)

	counters := s.run(context.Background(), "job-2", "ACME", session)

	if counters.debtors != 0 || counters.inscriptions != 0 || counters.documents != 0 {
		t.Errorf("expected an empty run, got %+v", counters)
	}
	if len(counters.failures) != 0 {
		t.Errorf("an exhausted search is not a failure, got %v", counters.failures)
	}
	if len(emitter.emitted) != 0 {
		t.Errorf("no emission expected, got %v", emitter.emitted)
	}
}

func TestRunDetailTimeoutIsIsolated(t *testing.T) {
	session := newFakeSession()
	session.onSubmit = func(attempt int64) {
		session.buf.Add(jsonExchange("https://portal/api/devedores/", 200,
			`{"devedores":[{"id":"11111111000100","nome":"ACME"},{"id":"22222222000100","nome":"BETA"}]}`, nil))
	}
	// detail payload only ever arrives for the first debtor
	session.onNavigate = func(url string) {
		if strings.Contains(url, "11111111000100") {
			session.buf.Add(jsonExchange(url, 200, `{"inscricoes":[{"inscricao":"40 1 11","natureza":"DAU"}]}`, nil))
		}
	}

	emitter := &fakeEmitter{}
	s, _ := newTestScraper(t, emitter)

	counters := s.run(context.Background(), "job-3", "ACME", session)

	if counters.debtors != 2 {
		t.Errorf("expected 2 debtors, got %d", counters.debtors)
	}
	if counters.inscriptions != 1 {
		t.Errorf("expected 1 inscription from the responsive debtor, got %d", counters.inscriptions)
	}

	found := false
	for _, failure := range counters.failures {
		if strings.Contains(failure, "22222222000100") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the silent debtor in the failure list, got %v", counters.failures)
	}
}

func TestConsumeRejectsUnknownAction(t *testing.T) {
	s, _ := newTestScraper(t, &fakeEmitter{})

	err := s.Consume(context.Background(), []byte(`{"id":"job-4","type":"crawl:everything"}`))
	if !errors.Is(err, scraper.ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestScrapeByQueryRejectsEmptyQuery(t *testing.T) {
	s, _ := newTestScraper(t, &fakeEmitter{})

	err := s.ScrapeByQuery(context.Background(), "job-5", "   ")
	if !errors.Is(err, scraper.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}
