package pgfn

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/debtwatch/pgfn-scraper-service/common/browser"
	"github.com/debtwatch/pgfn-scraper-service/common/config"
)

// searchState is the per-attempt state of one query cycle.
type searchState string

const (
	stateInit         searchState = "init"
	stateFormFilled   searchState = "form_filled"
	stateSubmitted    searchState = "submitted"
	stateAwaiting     searchState = "awaiting_response"
	stateSuccess      searchState = "success"
	stateUnauthorized searchState = "unauthorized"
	stateTimeout      searchState = "timeout"
)

// query form selectors, in priority order
var queryInputSelectors = []string{
	"input#nome",
	"input[formcontrolname='nome']",
}

// response headers a fresh token has been observed in
var tokenHeaders = []string{"authorization", "x-token", "x-auth-token"}

// localStorage keys the portal app stashes its token under
var tokenStorageKeys = []string{"token", "access_token", "auth_token"}

// recoveryAction attempts to restore a usable session after an
// unauthorized or timed-out cycle. Actions run in order until one
// reports recovery; reload always recovers in the sense that the next
// attempt starts from a clean entry page.
type recoveryAction struct {
	name string
	run  func(ctx context.Context, s *Searcher, last *browser.Exchange) (bool, error)
}

var recoveryActions = []recoveryAction{
	{
		name: "token-from-response",
		run: func(ctx context.Context, s *Searcher, last *browser.Exchange) (bool, error) {
			if last == nil {
				return false, nil
			}
			for _, header := range tokenHeaders {
				if v := last.Header(header); v != "" {
					s.tokens.Set(v, "response-header")
					return true, nil
				}
			}
			return false, nil
		},
	},
	{
		name: "token-from-local-storage",
		run: func(ctx context.Context, s *Searcher, last *browser.Exchange) (bool, error) {
			for _, key := range tokenStorageKeys {
				v, err := s.session.LocalStorageItem(ctx, key)
				if err != nil {
					return false, err
				}
				if v != "" {
					s.tokens.Set(v, "local-storage")
					return true, nil
				}
			}
			return false, nil
		},
	},
	{
		name: "reload-entry-page",
		run: func(ctx context.Context, s *Searcher, last *browser.Exchange) (bool, error) {
			if err := s.session.Reload(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
	},
}

// Searcher drives the "query by name" interaction against the debtor
// list portal: fill the form, submit, block until the data endpoint
// answers, and recover from authorization failures within a bounded
// attempt budget. Exhausting the budget yields an empty result, which
// is a normal reportable outcome.
type Searcher struct {
	session browser.Session
	tokens  *browser.TokenStore
	config  config.PgfnConfig
}

func NewSearcher(session browser.Session, tokens *browser.TokenStore, cfg config.PgfnConfig) *Searcher {
	return &Searcher{
		session: session,
		tokens:  tokens,
		config:  cfg,
	}
}

// dataEndpointPredicate recognizes the portal's data responses among
// all captured traffic: a URL hint fragment plus a structured body.
func dataEndpointPredicate(hints []string) func(browser.Exchange) bool {
	return func(ex browser.Exchange) bool {
		hinted := false
		for _, hint := range hints {
			if strings.Contains(ex.URL, hint) {
				hinted = true
				break
			}
		}
		if !hinted {
			return false
		}
		contentType := strings.ToLower(ex.Header("content-type"))
		return strings.Contains(contentType, "application/json") || strings.HasSuffix(ex.URL, ".json")
	}
}

// Run performs one query with recovery. It returns the authoritative
// captured exchange and true, or false when the attempt budget is
// exhausted without a usable response. An error is returned only for
// context cancellation or an unusable session.
func (s *Searcher) Run(ctx context.Context, query string) (browser.Exchange, bool, error) {
	match := dataEndpointPredicate(s.config.JSONHints)

	maxAttempts := s.config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastFailure *browser.Exchange
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ex, state, err := s.attempt(ctx, query, match)
		if err != nil {
			return browser.Exchange{}, false, err
		}

		switch state {
		case stateSuccess:
			return ex, true, nil
		case stateUnauthorized:
			// The held token just bounced; drop it so recovery hunts
			// for a fresh one instead of re-propagating a dead token.
			s.tokens.Clear()
			lastFailure = &ex
		case stateTimeout:
			lastFailure = nil
		}

		log.Warn().
			Str("query", query).
			Int("attempt", attempt).
			Str("state", string(state)).
			Msg("Search cycle failed, recovering")

		if attempt < maxAttempts {
			if err := s.recover(ctx, lastFailure); err != nil {
				return browser.Exchange{}, false, err
			}
		}
	}

	log.Warn().
		Str("query", query).
		Int("attempts", maxAttempts).
		Int("captured", s.session.Exchanges().Len()).
		Strs("recent_traffic", describeExchanges(s.session.Exchanges().Snapshot())).
		Msg("Search attempts exhausted, returning empty result")
	return browser.Exchange{}, false, nil
}

// describeExchanges summarizes the newest buffered traffic for the
// exhaustion log, so a failed run records what the portal actually
// answered with.
func describeExchanges(exchanges []browser.Exchange) []string {
	const keep = 5
	if len(exchanges) > keep {
		exchanges = exchanges[len(exchanges)-keep:]
	}
	out := make([]string, 0, len(exchanges))
	for _, ex := range exchanges {
		out = append(out, fmt.Sprintf("%s %s -> %d", ex.Method, ex.URL, ex.Status))
	}
	return out
}

// attempt runs one INIT→AWAITING_RESPONSE cycle and reports the
// terminal state it reached.
func (s *Searcher) attempt(ctx context.Context, query string, match func(browser.Exchange) bool) (browser.Exchange, searchState, error) {
	state := stateInit

	if err := s.fillQuery(ctx, query); err != nil {
		return browser.Exchange{}, state, fmt.Errorf("failed to fill query form: %w", err)
	}
	state = stateFormFilled

	// Anything already buffered predates this submission; record the
	// watermark first so the wait below cannot be satisfied by a stale
	// response to an earlier cycle.
	mark := s.session.Exchanges().Watermark()

	if err := s.submit(ctx); err != nil {
		return browser.Exchange{}, state, fmt.Errorf("failed to submit query: %w", err)
	}
	state = stateSubmitted

	// Submission and response capture are independently scheduled; the
	// only synchronization is this bounded wait on the capture buffer.
	state = stateAwaiting
	fresh := func(ex browser.Exchange) bool {
		return ex.Seq > mark && match(ex)
	}
	ex, err := s.session.Exchanges().Wait(ctx, fresh, s.config.WaitLong)
	if err != nil {
		if ctx.Err() != nil {
			return browser.Exchange{}, state, ctx.Err()
		}
		return browser.Exchange{}, stateTimeout, nil
	}

	// When several matching responses raced in within one cycle, the
	// newest one is authoritative and Wait already returns it.
	if ex.Status == http.StatusUnauthorized || ex.Status == http.StatusForbidden {
		return ex, stateUnauthorized, nil
	}
	return ex, stateSuccess, nil
}

func (s *Searcher) fillQuery(ctx context.Context, query string) error {
	var lastErr error
	for _, selector := range queryInputSelectors {
		has, err := s.session.Has(ctx, selector)
		if err != nil || !has {
			lastErr = err
			continue
		}
		if err := s.session.Type(ctx, selector, query); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("no query input matched any known selector")
}

// submit clicks the search button, ending with a keyboard submit when
// every click strategy fails.
func (s *Searcher) submit(ctx context.Context) error {
	if err := s.session.ClickText(ctx, "button", "Consultar"); err == nil {
		return nil
	}
	if err := s.session.Click(ctx, "button.btn.btn-warning"); err == nil {
		return nil
	}
	return s.session.PressEnter(ctx)
}

// recover walks the recovery actions in order until one restores a
// usable session, then pushes any recovered token back into the page
// so the portal's own scripts attach it.
func (s *Searcher) recover(ctx context.Context, lastFailure *browser.Exchange) error {
	for _, action := range recoveryActions {
		recovered, err := action.run(ctx, s, lastFailure)
		if err != nil {
			log.Warn().Err(err).Str("action", action.name).Msg("Recovery action failed")
			continue
		}
		if recovered {
			log.Info().Str("action", action.name).Msg("Session recovery action succeeded")
			s.propagateToken(ctx)
			return nil
		}
	}
	return nil
}

func (s *Searcher) propagateToken(ctx context.Context) {
	token, ok := s.tokens.Get()
	if !ok {
		return
	}
	js := fmt.Sprintf(`() => { window.localStorage.setItem("token", %q); return ""; }`, token)
	if _, err := s.session.Eval(ctx, js); err != nil {
		log.Debug().Err(err).Msg("Failed to propagate token into page storage")
	}
}
