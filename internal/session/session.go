// Package session owns the anti-automation credentials shared by every
// network call in a crawl: the challenge token, the CSRF token and the
// session cookies, refreshed together through an opaque solver.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Token is the credential triple required by protected endpoints. The zero
// value is unusable; IssuedAt tracks staleness.
type Token struct {
	Challenge string
	CSRF      string
	Cookies   map[string]string
	IssuedAt  time.Time
}

// Valid reports whether the token exists and is younger than ttl.
func (t Token) Valid(ttl time.Duration) bool {
	return t.Challenge != "" && time.Since(t.IssuedAt) <= ttl
}

// Solver obtains a fresh credential triple. Implementations may drive a
// headless browser or any other automation technique; the manager only
// depends on this contract and on the solve timeout.
type Solver interface {
	Solve(ctx context.Context) (Token, error)
}

// Manager serializes refreshes of the single shared token. Concurrent
// callers that observe a stale token wait for the one in-flight refresh
// instead of each triggering their own.
type Manager struct {
	solver       Solver
	ttl          time.Duration
	solveTimeout time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	token    Token
	inFlight chan struct{} // non-nil while a refresh is running
	solves   int64
}

func NewManager(solver Solver, ttl, solveTimeout time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		solver:       solver,
		ttl:          ttl,
		solveTimeout: solveTimeout,
		logger:       logger.With("component", "session"),
	}
}

// Current returns the token as-is, without freshness checks.
func (m *Manager) Current() Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Solves returns how many solver invocations have completed.
func (m *Manager) Solves() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.solves
}

// EnsureFresh returns a token younger than the TTL, refreshing first if
// needed. This is the proactive path taken before building a request.
func (m *Manager) EnsureFresh(ctx context.Context) (Token, error) {
	m.mu.Lock()
	if m.token.Valid(m.ttl) {
		tok := m.token
		m.mu.Unlock()
		return tok, nil
	}
	stale := m.token
	m.mu.Unlock()

	return m.Refresh(ctx, stale)
}

// Refresh obtains a new token, replacing the one the caller observed. If
// another refresh already replaced it, the newer token is returned without
// solving again; if a refresh is in flight, the caller waits for it. At most
// one solve runs at a time.
func (m *Manager) Refresh(ctx context.Context, observed Token) (Token, error) {
	m.mu.Lock()

	// Someone else refreshed since the caller last looked.
	if m.token.IssuedAt.After(observed.IssuedAt) && m.token.Challenge != "" {
		tok := m.token
		m.mu.Unlock()
		return tok, nil
	}

	if m.inFlight != nil {
		done := m.inFlight
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return Token{}, ctx.Err()
		case <-done:
		}

		m.mu.Lock()
		tok := m.token
		m.mu.Unlock()
		if tok.Challenge == "" {
			return Token{}, fmt.Errorf("refresh by concurrent caller failed")
		}
		return tok, nil
	}

	done := make(chan struct{})
	m.inFlight = done
	m.mu.Unlock()

	tok, err := m.solve(ctx)

	m.mu.Lock()
	if err == nil {
		m.token = tok
	}
	m.solves++
	m.inFlight = nil
	close(done)
	m.mu.Unlock()

	if err != nil {
		return Token{}, fmt.Errorf("session refresh failed: %w", err)
	}
	return tok, nil
}

func (m *Manager) solve(ctx context.Context) (Token, error) {
	solveCtx, cancel := context.WithTimeout(ctx, m.solveTimeout)
	defer cancel()

	start := time.Now()
	tok, err := m.solver.Solve(solveCtx)
	if err != nil {
		m.logger.Error("challenge solve failed", "error", err, "elapsed", time.Since(start))
		return Token{}, err
	}

	if tok.IssuedAt.IsZero() {
		tok.IssuedAt = time.Now()
	}

	m.logger.Info("session refreshed",
		"elapsed", time.Since(start),
		"has_csrf", tok.CSRF != "",
		"cookies", len(tok.Cookies))

	return tok, nil
}
