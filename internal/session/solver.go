package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/matval/catalog-crawler/internal/browser"
)

// BrowserSolver obtains the credential triple by loading a real category page
// in headless Chromium: the anti-automation layer drops its challenge token
// as a cookie, and the storefront's own batch request carries the CSRF token
// in a header we can sniff.
type BrowserSolver struct {
	browser *browser.Browser
	logger  *slog.Logger

	// BootstrapURL is a category page that triggers both the challenge and
	// the batch product request.
	BootstrapURL string
	// ChallengeCookie is the cookie name the anti-automation layer sets.
	ChallengeCookie string
	// CSRFHeader is the request header carrying the CSRF token.
	CSRFHeader string
	// CSRFURLHint selects which outgoing requests to sniff the header from.
	CSRFURLHint string
}

func NewBrowserSolver(b *browser.Browser, bootstrapURL string, logger *slog.Logger) *BrowserSolver {
	return &BrowserSolver{
		browser:         b,
		logger:          logger.With("component", "solver"),
		BootstrapURL:    bootstrapURL,
		ChallengeCookie: "aws-waf-token",
		CSRFHeader:      "x-csrf-token",
		CSRFURLHint:     "webproductpagews",
	}
}

// Solve navigates the bootstrap page, waits for the challenge cookie and
// scrolls to provoke the batch request that carries the CSRF token. A missing
// CSRF token is not fatal: batch enrichment is simply disabled until the next
// refresh picks one up.
func (s *BrowserSolver) Solve(ctx context.Context) (Token, error) {
	page, err := s.browser.NewPage()
	if err != nil {
		return Token{}, fmt.Errorf("failed to open solver page: %w", err)
	}
	defer page.Close()

	var (
		csrfMu sync.Mutex
		csrf   string
	)
	page.OnRequest(func(req playwright.Request) {
		if !strings.Contains(req.URL(), s.CSRFURLHint) {
			return
		}
		if v := req.Headers()[s.CSRFHeader]; v != "" {
			csrfMu.Lock()
			if csrf == "" {
				csrf = v
			}
			csrfMu.Unlock()
		}
	})

	if _, err := page.Goto(s.BootstrapURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		return Token{}, fmt.Errorf("failed to load bootstrap page: %w", err)
	}

	challenge, err := s.waitForChallengeCookie(ctx, page)
	if err != nil {
		return Token{}, err
	}

	// The batch request only fires once the product grid scrolls into view.
	csrfMu.Lock()
	have := csrf != ""
	csrfMu.Unlock()
	if !have {
		page.WaitForTimeout(1000)
		page.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`)
		page.WaitForTimeout(2000)
	}

	cookies, err := s.browser.Context().Cookies()
	if err != nil {
		return Token{}, fmt.Errorf("failed to read cookies: %w", err)
	}

	sessionCookies := make(map[string]string, len(cookies))
	for _, c := range cookies {
		if c.Name == s.ChallengeCookie {
			continue
		}
		sessionCookies[c.Name] = c.Value
	}

	csrfMu.Lock()
	tokenCSRF := csrf
	csrfMu.Unlock()

	if tokenCSRF == "" {
		s.logger.Warn("no CSRF token captured; batch enrichment disabled until next refresh")
	}

	return Token{
		Challenge: challenge,
		CSRF:      tokenCSRF,
		Cookies:   sessionCookies,
		IssuedAt:  time.Now(),
	}, nil
}

func (s *BrowserSolver) waitForChallengeCookie(ctx context.Context, page playwright.Page) (string, error) {
	for i := 0; i < 20; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		cookies, err := s.browser.Context().Cookies()
		if err != nil {
			return "", fmt.Errorf("failed to read cookies: %w", err)
		}
		for _, c := range cookies {
			if c.Name == s.ChallengeCookie && c.Value != "" {
				return c.Value, nil
			}
		}

		page.WaitForTimeout(500)
	}

	return "", fmt.Errorf("challenge cookie %q never appeared", s.ChallengeCookie)
}
