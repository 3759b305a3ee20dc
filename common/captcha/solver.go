package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultSubmitURL = "https://2captcha.com/in.php"
	defaultResultURL = "https://2captcha.com/res.php"

	defaultProcessingDelay = 15 * time.Second
	defaultPollInterval    = 5 * time.Second

	statusOK    = 1
	statusError = -1
)

// Solver produces a challenge response token for a sitekey on a page.
type Solver interface {
	Solve(ctx context.Context, sitekey string, pageURL string) (string, error)
}

// HTTPSolver talks to a 2captcha-compatible solving API: multipart
// submit returning a task ID, then polling for the token.
type HTTPSolver struct {
	apiKey    string
	submitURL string
	resultURL string
	client    *http.Client

	// the API needs an initial processing window before polling makes sense
	processingDelay time.Duration
	pollInterval    time.Duration
}

type apiResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
	Error   string `json:"error_text"`
}

type SolverOption func(*HTTPSolver)

// WithEndpoints points the solver at a different 2captcha-compatible API.
func WithEndpoints(submitURL, resultURL string) SolverOption {
	return func(s *HTTPSolver) {
		s.submitURL = submitURL
		s.resultURL = resultURL
	}
}

func WithHTTPClient(client *http.Client) SolverOption {
	return func(s *HTTPSolver) {
		s.client = client
	}
}

func NewHTTPSolver(apiKey string, opts ...SolverOption) *HTTPSolver {
	s := &HTTPSolver{
		apiKey:          apiKey,
		submitURL:       defaultSubmitURL,
		resultURL:       defaultResultURL,
		client:          &http.Client{Timeout: 30 * time.Second},
		processingDelay: defaultProcessingDelay,
		pollInterval:    defaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Solve submits the challenge and polls until the API returns a token,
// the context is done, or the API reports the challenge unsolvable.
func (s *HTTPSolver) Solve(ctx context.Context, sitekey string, pageURL string) (string, error) {
	if s.apiKey == "" {
		return "", fmt.Errorf("solver API key is not configured")
	}
	if sitekey == "" {
		return "", fmt.Errorf("sitekey is empty")
	}

	taskID, err := s.submit(ctx, sitekey, pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to submit challenge: %w", err)
	}

	log.Debug().Str("taskID", taskID).Msg("Challenge submitted to solving API")

	// the API never has an answer before its initial processing window
	if err := sleepCtx(ctx, s.processingDelay); err != nil {
		return "", err
	}

	return s.poll(ctx, taskID)
}

func (s *HTTPSolver) submit(ctx context.Context, sitekey string, pageURL string) (string, error) {
	payload := &bytes.Buffer{}
	writer := multipart.NewWriter(payload)
	fields := map[string]string{
		"key":     s.apiKey,
		"method":  "hcaptcha",
		"sitekey": sitekey,
		"pageurl": pageURL,
		"json":    "1",
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.submitURL, payload)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	body, err := s.do(req)
	if err != nil {
		return "", err
	}

	resp, err := parseAPIResponse(body)
	if err != nil {
		return "", err
	}
	if resp.Status != statusOK {
		return "", fmt.Errorf("solving API rejected submission: %s", resp.Request)
	}
	return resp.Request, nil
}

func (s *HTTPSolver) poll(ctx context.Context, taskID string) (string, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			url := fmt.Sprintf("%s?key=%s&action=get&id=%s&json=1", s.resultURL, s.apiKey, taskID)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return "", err
			}

			body, err := s.do(req)
			if err != nil {
				return "", err
			}

			resp, err := parseAPIResponse(body)
			if err != nil {
				return "", err
			}

			switch {
			case resp.Status == statusOK && resp.Request != "":
				return resp.Request, nil
			case resp.Request == "CAPCHA_NOT_READY":
				continue
			case resp.Status == statusError || strings.HasPrefix(resp.Request, "ERROR_"):
				return "", fmt.Errorf("solving API error: %s", resp.Request)
			default:
				continue
			}
		}
	}
}

func (s *HTTPSolver) do(req *http.Request) ([]byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solving API returned HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// parseAPIResponse accepts both the JSON and the legacy "OK|token"
// plain-text forms the API emits.
func parseAPIResponse(body []byte) (*apiResponse, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response from solving API")
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		return &resp, nil
	}

	text := strings.TrimSpace(string(body))
	if after, found := strings.CutPrefix(text, "OK|"); found {
		return &apiResponse{Status: statusOK, Request: after}, nil
	}
	return &apiResponse{Status: statusError, Request: text}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
