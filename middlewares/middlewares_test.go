package middlewares

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAccessTime(t *testing.T) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	stale := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not-a-timestamp", http.StatusUnauthorized},
		{"stale", stale, http.StatusUnauthorized},
		{"current", now, http.StatusOK},
	}

	handler := AccessTime()(okHandler())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/works", nil)
			if tc.header != "" {
				req.Header.Set("X-ACCESS-TIME", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("got status %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestApiKey(t *testing.T) {
	const key = "backend-key"
	const salt = "salt"

	handler := ApiKey(key, salt)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/works", nil)
	req.Header.Set("X-API-KEY", hashKey(key, salt))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid key rejected with status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/works", nil)
	req.Header.Set("X-API-KEY", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid key accepted with status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/works", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key accepted with status %d", rec.Code)
	}
}

func TestApiKeyDisabledWithoutConfiguration(t *testing.T) {
	handler := ApiKey("", "salt")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/works", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected pass-through when no key configured, got %d", rec.Code)
	}
}

func TestRequestSignature(t *testing.T) {
	const salt = "server-salt"
	accessTime := strconv.FormatInt(time.Now().Unix(), 10)

	chain := AccessTime()(RequestSignature(salt)(okHandler()))

	req := httptest.NewRequest(http.MethodPost, "/v1/scrapers/run", nil)
	req.Header.Set("X-ACCESS-TIME", accessTime)
	req.Header.Set("X-REQUEST-SIGNATURE", Sign(salt, http.MethodPost, "/v1/scrapers/run", accessTime))
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid signature rejected with status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/scrapers/run", nil)
	req.Header.Set("X-ACCESS-TIME", accessTime)
	req.Header.Set("X-REQUEST-SIGNATURE", fmt.Sprintf("%x", "bogus"))
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid signature accepted with status %d", rec.Code)
	}

	// signatures are bound to the path they were computed for
	req = httptest.NewRequest(http.MethodPost, "/v1/works", nil)
	req.Header.Set("X-ACCESS-TIME", accessTime)
	req.Header.Set("X-REQUEST-SIGNATURE", Sign(salt, http.MethodPost, "/v1/scrapers/run", accessTime))
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("replayed signature accepted with status %d", rec.Code)
	}
}
