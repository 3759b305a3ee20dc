package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/debtwatch/pgfn-scraper-service/common/config"
)

// RodSession drives a single rod page and mirrors every response whose
// URL the capture predicate accepts into an ExchangeBuffer.
type RodSession struct {
	browser     *rod.Browser
	page        *rod.Page
	exchanges   *ExchangeBuffer
	downloadDir string
}

// NewRodSession connects to the browser, opens one page with the
// configured user agent and starts response capture. With an empty
// ControlURL a local browser is launched; a non-empty one attaches to
// an already running devtools endpoint, which is how a hardened or
// pre-authenticated browser is plugged in.
func NewRodSession(ctx context.Context, cfg config.BrowserConfig, capture func(url string) bool) (*RodSession, error) {
	controlURL := cfg.ControlURL
	if controlURL == "" {
		u, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	if cfg.UserAgent != "" {
		err = (proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}).Call(page)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("failed to override user agent: %w", err)
		}
	}

	downloadDir := cfg.DownloadDir
	if downloadDir == "" {
		downloadDir = os.TempDir()
	}
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	s := &RodSession{
		browser:     b,
		page:        page,
		exchanges:   NewExchangeBuffer(),
		downloadDir: downloadDir,
	}
	if err := s.startCapture(capture); err != nil {
		_ = b.Close()
		return nil, err
	}
	return s, nil
}

// startCapture subscribes to devtools network events and copies every
// accepted response, headers and body, into the exchange buffer.
func (s *RodSession) startCapture(accept func(url string) bool) error {
	if err := (proto.NetworkEnable{}).Call(s.page); err != nil {
		return fmt.Errorf("failed to enable network capture: %w", err)
	}

	// Request methods arrive on a separate event, keyed by RequestID.
	var methodsMu sync.Mutex
	methods := make(map[proto.NetworkRequestID]string)

	// EachEvent returns a wait function that pumps events until the
	// page closes, which is how capture is stopped.
	wait := s.page.EachEvent(func(e *proto.NetworkRequestWillBeSent) {
		methodsMu.Lock()
		methods[e.RequestID] = e.Request.Method
		methodsMu.Unlock()
	}, func(e *proto.NetworkResponseReceived) {
		methodsMu.Lock()
		method := methods[e.RequestID]
		delete(methods, e.RequestID)
		methodsMu.Unlock()

		if accept != nil && !accept(e.Response.URL) {
			return
		}

		headers := make(map[string]string, len(e.Response.Headers))
		for k, v := range e.Response.Headers {
			headers[k] = v.Str()
		}

		// The body is only retrievable while the browser still holds
		// it, so fetch eagerly. A miss here is not fatal: redirects and
		// cached responses legitimately have no body.
		var body []byte
		reply, err := proto.NetworkGetResponseBody{RequestID: e.RequestID}.Call(s.page)
		if err != nil {
			log.Debug().Err(err).Str("url", e.Response.URL).Msg("Response body not retrievable")
		} else if reply.Base64Encoded {
			body, err = base64.StdEncoding.DecodeString(reply.Body)
			if err != nil {
				log.Debug().Err(err).Str("url", e.Response.URL).Msg("Response body not decodable")
				body = nil
			}
		} else {
			body = []byte(reply.Body)
		}

		s.exchanges.Add(Exchange{
			URL:        e.Response.URL,
			Method:     method,
			Status:     e.Response.Status,
			Headers:    headers,
			Body:       body,
			ReceivedAt: time.Now(),
		})
	})
	go wait()
	return nil
}

func (s *RodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return p.WaitLoad()
}

func (s *RodSession) Reload(ctx context.Context) error {
	p := s.page.Context(ctx)
	if err := p.Reload(); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	return p.WaitLoad()
}

func (s *RodSession) WaitStable(ctx context.Context, timeout time.Duration) error {
	return s.page.Context(ctx).Timeout(timeout).WaitStable(300 * time.Millisecond)
}

func (s *RodSession) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := s.page.Context(ctx).Has(selector)
	return has, err
}

func (s *RodSession) Type(ctx context.Context, selector string, text string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element %s not found: %w", selector, err)
	}
	return fillElement(el, text)
}

func (s *RodSession) TypeAt(ctx context.Context, selector string, index int, text string) error {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return fmt.Errorf("elements %s not found: %w", selector, err)
	}
	if index >= len(els) {
		return fmt.Errorf("selector %s matched %d elements, wanted index %d", selector, len(els), index)
	}
	return fillElement(els[index], text)
}

func fillElement(el *rod.Element, text string) error {
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}

// Click escalates through strategies until one activates the element.
// Government portals routinely put invisible overlays over buttons, so
// a plain click failing does not mean the action is unreachable.
func (s *RodSession) Click(ctx context.Context, selector string) error {
	p := s.page.Context(ctx)
	el, err := p.Element(selector)
	if err != nil {
		return fmt.Errorf("element %s not found: %w", selector, err)
	}
	return s.clickElement(p, el, selector)
}

func (s *RodSession) ClickText(ctx context.Context, selector string, pattern string) error {
	p := s.page.Context(ctx)
	el, err := p.ElementR(selector, pattern)
	if err != nil {
		return fmt.Errorf("element %s with text %q not found: %w", selector, pattern, err)
	}
	return s.clickElement(p, el, selector)
}

func (s *RodSession) clickElement(p *rod.Page, el *rod.Element, selector string) error {
	if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
		return nil
	}
	log.Debug().Str("selector", selector).Msg("Plain click intercepted, escalating")

	if _, err := el.Eval(`() => this.click()`); err == nil {
		return nil
	}

	if _, err := el.Eval(`() => this.dispatchEvent(new MouseEvent("click", {bubbles: true, cancelable: true}))`); err == nil {
		return nil
	}

	if err := el.Focus(); err != nil {
		return fmt.Errorf("failed to activate %s: %w", selector, err)
	}
	return p.Keyboard.Press(input.Enter)
}

func (s *RodSession) PressEnter(ctx context.Context) error {
	return s.page.Context(ctx).Keyboard.Press(input.Enter)
}

func (s *RodSession) Eval(ctx context.Context, js string) (string, error) {
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (s *RodSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *RodSession) LocalStorageItem(ctx context.Context, key string) (string, error) {
	res, err := s.page.Context(ctx).Eval(`(k) => window.localStorage.getItem(k) || ""`, key)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// WaitDownload arms the browser-level download trap, runs trigger and
// returns the downloaded bytes with the portal's suggested file name.
func (s *RodSession) WaitDownload(ctx context.Context, trigger func() error, timeout time.Duration) ([]byte, string, error) {
	wait := s.browser.Context(ctx).Timeout(timeout).WaitDownload(s.downloadDir)

	if err := trigger(); err != nil {
		return nil, "", err
	}

	info := wait()
	if info == nil {
		return nil, "", fmt.Errorf("download did not begin within %s", timeout)
	}

	path := filepath.Join(s.downloadDir, info.GUID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read downloaded file: %w", err)
	}
	_ = os.Remove(path)

	return data, info.SuggestedFilename, nil
}

func (s *RodSession) Exchanges() *ExchangeBuffer {
	return s.exchanges
}

func (s *RodSession) Close() error {
	if err := s.page.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing page")
	}
	return s.browser.Close()
}
