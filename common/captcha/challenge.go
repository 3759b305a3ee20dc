package captcha

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/debtwatch/pgfn-scraper-service/common/browser"
	"github.com/debtwatch/pgfn-scraper-service/common/config"
)

// Outcome is the terminal state of one challenge resolution pass.
type Outcome string

const (
	// OutcomeAbsent means no challenge widget was found on the page
	OutcomeAbsent Outcome = "absent"
	// OutcomeSolved means a token was injected and read back successfully
	OutcomeSolved Outcome = "solved"
	// OutcomeUnresolved means a challenge is present but could not be
	// cleared; the caller decides whether the session is still usable
	OutcomeUnresolved Outcome = "unresolved"
)

// challenge widget markers, checked in order
var challengeSelectors = []string{
	"iframe[src*='hcaptcha']",
	".h-captcha",
	"iframe[src*='recaptcha']",
	".g-recaptcha",
	"[data-sitekey]",
}

// Challenge resolves anti-bot widgets on a portal page: detect the
// widget, locate its sitekey, obtain a token from the solver, inject
// it into the response fields and verify the injection took.
//
// An unresolved challenge is reported, never returned as an error:
// portals frequently render a dormant widget that does not block the
// actual data flow, so the caller probes the page afterwards instead
// of giving up here.
type Challenge struct {
	config config.CaptchaConfig
	solver Solver
}

func NewChallenge(cfg config.CaptchaConfig, solver Solver) *Challenge {
	return &Challenge{config: cfg, solver: solver}
}

// Resolve runs the full detection/solve/inject pass against the session.
func (c *Challenge) Resolve(ctx context.Context, session browser.Session, pageURL string) (Outcome, error) {
	present, err := c.detect(ctx, session)
	if err != nil {
		return OutcomeUnresolved, err
	}
	if !present {
		return OutcomeAbsent, nil
	}

	log.Info().Str("url", pageURL).Msg("Challenge widget detected")

	sitekey, err := c.extractSitekey(ctx, session)
	if err != nil || sitekey == "" {
		if c.config.AbortOnMissingKey {
			return OutcomeUnresolved, fmt.Errorf("challenge present but sitekey not found: %w", err)
		}
		log.Warn().Err(err).Msg("Sitekey not found, proceeding without solving")
		return OutcomeUnresolved, nil
	}

	attempts := 1 + c.config.ExtraAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		token, err := c.solveOnce(ctx, sitekey, pageURL)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Challenge solve attempt failed")
			continue
		}

		if err := c.inject(ctx, session, token); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Token injection failed")
			continue
		}

		verified, err := c.verify(ctx, session, token)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Token read-back failed")
			continue
		}
		if verified {
			log.Info().Int("attempt", attempt).Msg("Challenge solved and token injected")
			return OutcomeSolved, nil
		}
	}

	log.Warn().Int("attempts", attempts).Msg("Challenge left unresolved")
	return OutcomeUnresolved, nil
}

func (c *Challenge) detect(ctx context.Context, session browser.Session) (bool, error) {
	for _, selector := range challengeSelectors {
		has, err := session.Has(ctx, selector)
		if err != nil {
			return false, fmt.Errorf("failed to probe for %s: %w", selector, err)
		}
		if has {
			return true, nil
		}
	}
	return false, nil
}

// extractSitekey pulls the sitekey out of the page: a data-sitekey
// attribute anywhere first, then the sitekey query parameter of the
// widget iframe's src.
func (c *Challenge) extractSitekey(ctx context.Context, session browser.Session) (string, error) {
	html, err := session.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse page HTML: %w", err)
	}

	if key, ok := doc.Find("[data-sitekey]").First().Attr("data-sitekey"); ok && key != "" {
		return key, nil
	}

	var fromIframe string
	doc.Find("iframe[src*='hcaptcha'], iframe[src*='recaptcha']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, ok := sel.Attr("src")
		if !ok {
			return true
		}
		u, err := url.Parse(src)
		if err != nil {
			return true
		}
		// hcaptcha encodes parameters in the fragment, recaptcha in the query
		for _, raw := range []string{u.RawQuery, u.Fragment} {
			values, err := url.ParseQuery(raw)
			if err != nil {
				continue
			}
			for _, param := range []string{"sitekey", "k"} {
				if v := values.Get(param); v != "" {
					fromIframe = v
					return false
				}
			}
		}
		return true
	})
	if fromIframe != "" {
		return fromIframe, nil
	}

	return "", fmt.Errorf("no sitekey attribute or widget iframe parameter found")
}

func (c *Challenge) solveOnce(ctx context.Context, sitekey string, pageURL string) (string, error) {
	timeout := c.config.SolveTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	solveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	token, err := c.solver.Solve(solveCtx, sitekey, pageURL)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", fmt.Errorf("solver returned an empty token")
	}
	return token, nil
}

// inject writes the token into both response fields and fires the
// events frameworks listen on. Both field names are filled since the
// portal has switched widget vendors before without notice.
const injectScript = `(token) => {
	const names = ["h-captcha-response", "g-recaptcha-response"];
	let filled = 0;
	for (const name of names) {
		const fields = document.querySelectorAll(
			'textarea[name="' + name + '"], input[name="' + name + '"], #' + name);
		for (const field of fields) {
			field.value = token;
			field.dispatchEvent(new Event("input", {bubbles: true}));
			field.dispatchEvent(new Event("change", {bubbles: true}));
			filled++;
		}
	}
	return String(filled);
}`

func (c *Challenge) inject(ctx context.Context, session browser.Session, token string) error {
	filled, err := session.Eval(ctx, fmt.Sprintf(`() => (%s)(%q)`, injectScript, token))
	if err != nil {
		return fmt.Errorf("failed to inject token: %w", err)
	}
	if filled == "0" {
		return fmt.Errorf("no challenge response field found on the page")
	}
	return nil
}

const readBackScript = `() => {
	const field = document.querySelector(
		'textarea[name="h-captcha-response"], input[name="h-captcha-response"],' +
		'textarea[name="g-recaptcha-response"], input[name="g-recaptcha-response"]');
	return field ? field.value : "";
}`

func (c *Challenge) verify(ctx context.Context, session browser.Session, token string) (bool, error) {
	value, err := session.Eval(ctx, readBackScript)
	if err != nil {
		return false, err
	}
	return value == token, nil
}
