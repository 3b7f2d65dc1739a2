package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/matval/catalog-crawler/internal/fetch"
	"github.com/matval/catalog-crawler/internal/ratelimit"
	"github.com/matval/catalog-crawler/internal/session"
)

// recorder is implemented by rate limiters that adapt to outcomes.
type recorder interface {
	RecordSuccess()
	RecordError()
}

// Policy runs one logical operation against the target, retrying through the
// crawl's error taxonomy. Soft blocks and auth rejections trigger a session
// refresh before the retry; transient failures retry on the same token; parse
// failures never retry. Each failure class gets its own retry counter so a
// soft block does not eat the budget reserved for network flakiness.
type Policy struct {
	MaxRetries int
	Session    *session.Manager
	Limiter    ratelimit.RateLimiter
	Logger     *slog.Logger
}

func NewPolicy(maxRetries int, mgr *session.Manager, limiter ratelimit.RateLimiter, logger *slog.Logger) *Policy {
	return &Policy{
		MaxRetries: maxRetries,
		Session:    mgr,
		Limiter:    limiter,
		Logger:     logger.With("component", "policy"),
	}
}

// Execute runs op until it succeeds or a retry counter is exhausted. The op
// receives the freshest available token; on ErrChallengeRequired or
// ErrAuthRejected the policy refreshes the session and hands the next attempt
// the replacement token. An exhausted counter wraps ErrRetriesExhausted so
// callers can drop the task without aborting the run.
func (p *Policy) Execute(ctx context.Context, label string, op func(ctx context.Context, tok session.Token) error) error {
	tok, err := p.Session.EnsureFresh(ctx)
	if err != nil {
		// A failed proactive solve is not fatal; the target may still accept
		// whatever credentials we hold, and a block will force a refresh.
		p.Logger.Warn("proceeding without fresh session", "op", label, "error", err)
		tok = p.Session.Current()
	}

	var blockRetries, authRetries, transientRetries int

	for {
		if err := p.Limiter.Wait(ctx); err != nil {
			return err
		}

		err := op(ctx, tok)
		if err == nil {
			if rec, ok := p.Limiter.(recorder); ok {
				rec.RecordSuccess()
			}
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			// The payload shape is wrong, not the credentials. Retrying the
			// same bytes cannot help.
			return err
		}

		switch {
		case errors.Is(err, fetch.ErrChallengeRequired):
			blockRetries++
			if blockRetries > p.MaxRetries {
				return fmt.Errorf("%s: soft-blocked %d times: %w", label, blockRetries, ErrRetriesExhausted)
			}
			p.Logger.Info("soft block, refreshing session",
				"op", label, "attempt", blockRetries, "max", p.MaxRetries)
			if rec, ok := p.Limiter.(recorder); ok {
				rec.RecordError()
			}
			tok = p.refreshed(ctx, tok)

		case errors.Is(err, fetch.ErrAuthRejected):
			authRetries++
			if authRetries > p.MaxRetries {
				return fmt.Errorf("%s: auth rejected %d times: %w", label, authRetries, ErrRetriesExhausted)
			}
			p.Logger.Info("auth rejected, refreshing session",
				"op", label, "attempt", authRetries, "max", p.MaxRetries)
			tok = p.refreshed(ctx, tok)

		case fetch.IsTransient(err):
			transientRetries++
			if transientRetries > p.MaxRetries {
				return fmt.Errorf("%s: %d transient failures: %w", label, transientRetries, ErrRetriesExhausted)
			}
			p.Logger.Warn("transient failure, retrying",
				"op", label, "attempt", transientRetries, "max", p.MaxRetries, "error", err)
			if rec, ok := p.Limiter.(recorder); ok {
				rec.RecordError()
			}

		default:
			return err
		}
	}
}

// refreshed swaps the observed token for a new one, tolerating solver
// failure: the retry then runs on whatever token is current, and if the
// target keeps blocking the counter eventually drops the task.
func (p *Policy) refreshed(ctx context.Context, observed session.Token) session.Token {
	tok, err := p.Session.Refresh(ctx, observed)
	if err != nil {
		p.Logger.Error("session refresh failed", "error", err)
		return p.Session.Current()
	}
	return tok
}
