package crawl

import (
	"context"
	"log/slog"

	"github.com/matval/catalog-crawler/internal/fetch"
	"github.com/matval/catalog-crawler/internal/models"
	"github.com/matval/catalog-crawler/internal/session"
	"github.com/matval/catalog-crawler/internal/site"
)

// Chunk partitions ids into slices of at most size, preserving order. Every
// id lands in exactly one chunk; a failed chunk loses only its own ids.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}

	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// BatchFetcher resolves chunks of referenced product ids into full records
// through the site's enrichment endpoint.
type BatchFetcher struct {
	site   site.Site
	client *fetch.Client
	policy *Policy
	logger *slog.Logger
}

func NewBatchFetcher(st site.Site, client *fetch.Client, policy *Policy, logger *slog.Logger) *BatchFetcher {
	return &BatchFetcher{
		site:   st,
		client: client,
		policy: policy,
		logger: logger.With("component", "batch", "site", st.Name()),
	}
}

// FetchBatch retrieves the records for one chunk. The endpoint may answer
// with fewer records than ids requested; missing ids are simply absent from
// the result, not an error.
func (b *BatchFetcher) FetchBatch(ctx context.Context, task *Task) ([]models.ProductRecord, error) {
	req, err := b.site.EnrichmentRequest(task.IDs)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	var records []models.ProductRecord
	err = b.policy.Execute(ctx, task.String(), func(ctx context.Context, tok session.Token) error {
		body, err := b.client.Do(ctx, req, tok)
		if err != nil {
			return err
		}

		parsed, err := b.site.ParseEnrichment(body, task.Path)
		if err != nil {
			return &ParseError{Err: err}
		}

		records = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug("batch fetched", "requested", len(task.IDs), "returned", len(records))
	return records, nil
}
