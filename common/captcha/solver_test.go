package captcha

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestSolver(t *testing.T, handler http.Handler) (*HTTPSolver, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	solver := NewHTTPSolver("test-key",
		WithEndpoints(server.URL+"/in.php", server.URL+"/res.php"),
		WithHTTPClient(server.Client()),
	)
	solver.processingDelay = time.Millisecond
	solver.pollInterval = time.Millisecond
	return solver, server
}

func TestHTTPSolverSolve(t *testing.T) {
	var polls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart submit: %v", err)
		}
		if got := r.FormValue("sitekey"); got != "site-1" {
			t.Errorf("unexpected sitekey %q", got)
		}
		fmt.Fprint(w, `{"status":1,"request":"task-42"}`)
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "task-42" {
			t.Errorf("unexpected task id %q", got)
		}
		// not ready on the first poll, token on the second
		if atomic.AddInt64(&polls, 1) == 1 {
			fmt.Fprint(w, `{"status":0,"request":"CAPCHA_NOT_READY"}`)
			return
		}
		fmt.Fprint(w, `{"status":1,"request":"the-token"}`)
	})

	solver, _ := newTestSolver(t, mux)
	token, err := solver.Solve(context.Background(), "site-1", "https://portal/consulta")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "the-token" {
		t.Errorf("expected the-token, got %q", token)
	}
	if atomic.LoadInt64(&polls) < 2 {
		t.Errorf("expected at least 2 polls, got %d", polls)
	}
}

func TestHTTPSolverLegacyTextResponses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK|task-7")
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK|legacy-token")
	})

	solver, _ := newTestSolver(t, mux)
	token, err := solver.Solve(context.Background(), "site-1", "https://portal/consulta")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "legacy-token" {
		t.Errorf("expected legacy-token, got %q", token)
	}
}

func TestHTTPSolverSubmitRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":-1,"request":"ERROR_WRONG_USER_KEY"}`)
	})

	solver, _ := newTestSolver(t, mux)
	_, err := solver.Solve(context.Background(), "site-1", "https://portal/consulta")
	if err == nil || !strings.Contains(err.Error(), "ERROR_WRONG_USER_KEY") {
		t.Errorf("expected submission rejection, got %v", err)
	}
}

func TestHTTPSolverUnsolvable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":1,"request":"task-9"}`)
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":-1,"request":"ERROR_CAPTCHA_UNSOLVABLE"}`)
	})

	solver, _ := newTestSolver(t, mux)
	_, err := solver.Solve(context.Background(), "site-1", "https://portal/consulta")
	if err == nil || !strings.Contains(err.Error(), "ERROR_CAPTCHA_UNSOLVABLE") {
		t.Errorf("expected unsolvable error, got %v", err)
	}
}

func TestHTTPSolverMissingConfig(t *testing.T) {
	solver := NewHTTPSolver("")
	if _, err := solver.Solve(context.Background(), "site-1", "https://portal"); err == nil {
		t.Error("expected error without API key")
	}

	solver = NewHTTPSolver("key")
	if _, err := solver.Solve(context.Background(), "", "https://portal"); err == nil {
		t.Error("expected error without sitekey")
	}
}
