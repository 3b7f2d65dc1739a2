// Package fetch issues the crawl's HTTP requests and classifies responses
// into the retry policy's taxonomy before anyone tries to parse them.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/matval/catalog-crawler/internal/session"
)

// Request is a fully described HTTP call, independent of session state. The
// client merges the current token into it at send time.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	// WriteShaped marks endpoints that require the CSRF token.
	WriteShaped bool
}

// Client wraps http.Client with the per-request timeout and the header and
// cookie conventions of the anti-automation layer.
type Client struct {
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger

	// ChallengeCookie carries the challenge token on every request.
	ChallengeCookie string
	// CSRFHeader carries the CSRF token on write-shaped requests.
	CSRFHeader string
	// BlockStatus is the status code the anti-automation layer answers with
	// while a challenge is pending.
	BlockStatus int
	// AuthFailStatus is the status code returned for a missing or stale CSRF
	// token.
	AuthFailStatus int
}

func NewClient(timeout time.Duration, userAgent string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent:       userAgent,
		logger:          logger.With("component", "fetch"),
		ChallengeCookie: "aws-waf-token",
		CSRFHeader:      "x-csrf-token",
		BlockStatus:     http.StatusAccepted,
		AuthFailStatus:  http.StatusForbidden,
	}
}

// Do sends req with tok's credentials attached and returns the body, or an
// error from the crawl taxonomy. Success plus an unreadable body is reported
// as transient; payload decoding is the caller's concern.
func (c *Client) Do(ctx context.Context, req *Request, tok session.Token) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	for name, value := range tok.Cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if tok.Challenge != "" {
		httpReq.AddCookie(&http.Cookie{Name: c.ChallengeCookie, Value: tok.Challenge})
	}
	if req.WriteShaped && tok.CSRF != "" {
		httpReq.Header.Set(c.CSRFHeader, tok.CSRF)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == c.BlockStatus:
		c.logger.Debug("soft block", "url", req.URL, "status", resp.StatusCode)
		return nil, ErrChallengeRequired
	case resp.StatusCode == c.AuthFailStatus:
		c.logger.Debug("auth rejected", "url", req.URL, "status", resp.StatusCode)
		return nil, ErrAuthRejected
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusRequestTimeout:
		return nil, &TransientError{Err: fmt.Errorf("status %d from %s", resp.StatusCode, req.URL)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to read body: %w", err)}
	}

	return body, nil
}
