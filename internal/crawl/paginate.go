package crawl

import (
	"context"
	"log/slog"

	"github.com/matval/catalog-crawler/internal/fetch"
	"github.com/matval/catalog-crawler/internal/session"
	"github.com/matval/catalog-crawler/internal/site"
)

// Paginator fetches and parses one listing page per call, running each fetch
// under the retry policy. Continuation is the scheduler's job; the paginator
// only reports whether the parsed page carries a next state.
type Paginator struct {
	site   site.Site
	client *fetch.Client
	policy *Policy
	logger *slog.Logger
}

func NewPaginator(st site.Site, client *fetch.Client, policy *Policy, logger *slog.Logger) *Paginator {
	return &Paginator{
		site:   st,
		client: client,
		policy: policy,
		logger: logger.With("component", "paginator", "site", st.Name()),
	}
}

// FetchPage retrieves and parses the listing page described by task. A parse
// failure surfaces as *ParseError and is never retried; fetch failures go
// through the policy.
func (p *Paginator) FetchPage(ctx context.Context, task *Task) (*site.ListingPage, error) {
	req, err := p.site.ListingRequest(task.Category, task.Page)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	var page *site.ListingPage
	err = p.policy.Execute(ctx, task.String(), func(ctx context.Context, tok session.Token) error {
		body, err := p.client.Do(ctx, req, tok)
		if err != nil {
			return err
		}

		parsed, err := p.site.ParseListing(body, task.Path, task.Page)
		if err != nil {
			return &ParseError{Err: err}
		}

		page = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug("page fetched",
		"category", task.Category.ID,
		"page", task.Page.String(),
		"products", len(page.Products),
		"referenced", len(page.ReferencedIDs),
		"children", len(page.Children),
		"has_next", page.Next != nil)

	return page, nil
}
