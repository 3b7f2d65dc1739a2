package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matval/catalog-crawler/internal/fetch"
	"github.com/matval/catalog-crawler/internal/models"
	"github.com/matval/catalog-crawler/internal/ratelimit"
	"github.com/matval/catalog-crawler/internal/session"
	"github.com/matval/catalog-crawler/internal/site"
)

// fakeListing is the payload shape the test storefront serves.
type fakeListing struct {
	Products   []fakeProduct        `json:"products"`
	Referenced []string             `json:"referenced"`
	Children   []models.CategoryRef `json:"children"`
	TotalPages int                  `json:"total_pages"`
	NextCursor string               `json:"next_cursor"`
}

type fakeProduct struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// fakeSite adapts the test storefront to the site contract.
type fakeSite struct {
	base       string
	seeds      []models.CategoryRef
	cursorMode bool
	enrich     bool
}

func (f *fakeSite) Name() string { return "fake" }

func (f *fakeSite) Seeds(ctx context.Context) ([]models.CategoryRef, error) {
	return f.seeds, nil
}

func (f *fakeSite) BootstrapURL() string { return f.base }

func (f *fakeSite) FirstPage() site.PageState {
	if f.cursorMode {
		return site.PageState{Mode: site.ModeCursor}
	}
	return site.PageState{Mode: site.ModeOffset}
}

func (f *fakeSite) SupportsEnrichment() bool { return f.enrich }

func (f *fakeSite) ListingRequest(cat models.CategoryRef, page site.PageState) (*fetch.Request, error) {
	u := fmt.Sprintf("%s/listing?cat=%s&page=%d&cursor=%s",
		f.base, cat.ID, page.Page, url.QueryEscape(page.Cursor))
	return &fetch.Request{Method: http.MethodGet, URL: u}, nil
}

func (f *fakeSite) ParseListing(body []byte, path models.CategoryPath, page site.PageState) (*site.ListingPage, error) {
	var payload fakeListing
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	out := &site.ListingPage{
		ReferencedIDs: payload.Referenced,
		Children:      payload.Children,
	}
	for _, p := range payload.Products {
		out.Products = append(out.Products, models.ProductRecord{
			ID: p.ID, Name: p.Name, Path: path, Site: f.Name(), ScrapedAt: time.Now(),
		})
	}

	if f.cursorMode {
		if payload.NextCursor != "" {
			out.Next = &site.PageState{Mode: site.ModeCursor, Cursor: payload.NextCursor}
		}
	} else if payload.TotalPages > 0 && page.Page+1 < payload.TotalPages {
		out.Next = &site.PageState{Mode: site.ModeOffset, Page: page.Page + 1, TotalPages: payload.TotalPages}
	}

	return out, nil
}

func (f *fakeSite) EnrichmentRequest(ids []string) (*fetch.Request, error) {
	body, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return &fetch.Request{
		Method:      http.MethodPut,
		URL:         f.base + "/batch",
		Body:        body,
		WriteShaped: true,
	}, nil
}

func (f *fakeSite) ParseEnrichment(body []byte, path models.CategoryPath) ([]models.ProductRecord, error) {
	var products []fakeProduct
	if err := json.Unmarshal(body, &products); err != nil {
		return nil, err
	}

	records := make([]models.ProductRecord, 0, len(products))
	for _, p := range products {
		records = append(records, models.ProductRecord{
			ID: p.ID, Name: p.Name, Path: path, Site: f.Name(), ScrapedAt: time.Now(),
		})
	}
	return records, nil
}

// collectSink gathers emitted records for assertions.
type collectSink struct {
	mu      sync.Mutex
	records []*models.ProductRecord
}

func (c *collectSink) Emit(ctx context.Context, rec *models.ProductRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

func (c *collectSink) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r.ID)
	}
	return out
}

func newTestScheduler(st site.Site, sink RecordSink, workers, batchSize, maxRetries int) (*Scheduler, *CrawlState) {
	logger := testLogger()
	mgr := session.NewManager(&stubSolver{}, 240*time.Second, time.Second, logger)
	client := fetch.NewClient(5*time.Second, "test-agent", logger)
	limiter := ratelimit.NewSimpleRateLimiter(0, 0)
	policy := NewPolicy(maxRetries, mgr, limiter, logger)

	state := NewCrawlState(st.Name())
	scheduler := NewScheduler(
		st,
		NewPaginator(st, client, policy, logger),
		NewBatchFetcher(st, client, policy, logger),
		sink,
		state,
		batchSize,
		workers,
		logger,
	)
	return scheduler, state
}

func serveListings(t *testing.T, listings map[string]fakeListing, requests *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		key := r.URL.Query().Get("cat") + "|" + r.URL.Query().Get("page") + "|" + r.URL.Query().Get("cursor")
		listing, ok := listings[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(listing)
	}))
}

func TestScheduler_OffsetPaginationFetchesEveryPageOnce(t *testing.T) {
	listings := make(map[string]fakeListing)
	for page := 0; page < 5; page++ {
		listings[fmt.Sprintf("cat-a|%d|", page)] = fakeListing{
			Products:   []fakeProduct{{ID: fmt.Sprintf("p%d", page), Name: fmt.Sprintf("Product %d", page)}},
			TotalPages: 5,
		}
	}

	var requests atomic.Int64
	server := serveListings(t, listings, &requests)
	defer server.Close()

	st := &fakeSite{
		base:  server.URL,
		seeds: []models.CategoryRef{{ID: "cat-a", Name: "A"}},
	}
	sink := &collectSink{}
	scheduler, state := newTestScheduler(st, sink, 2, 50, 3)

	require.NoError(t, scheduler.Run(context.Background()))

	assert.Equal(t, int64(5), requests.Load())
	assert.Equal(t, int64(5), state.PagesFetched.Load())
	assert.ElementsMatch(t, []string{"p0", "p1", "p2", "p3", "p4"}, sink.ids())
}

func TestScheduler_CursorPaginationStopsWhenExhausted(t *testing.T) {
	listings := map[string]fakeListing{
		"cat-a|0|": {
			Products:   []fakeProduct{{ID: "p1", Name: "One"}},
			NextCursor: "c2",
		},
		"cat-a|0|c2": {
			Products:   []fakeProduct{{ID: "p2", Name: "Two"}},
			NextCursor: "c3",
		},
		"cat-a|0|c3": {
			Products: []fakeProduct{{ID: "p3", Name: "Three"}},
		},
	}

	var requests atomic.Int64
	server := serveListings(t, listings, &requests)
	defer server.Close()

	st := &fakeSite{
		base:       server.URL,
		seeds:      []models.CategoryRef{{ID: "cat-a", Name: "A"}},
		cursorMode: true,
	}
	sink := &collectSink{}
	scheduler, state := newTestScheduler(st, sink, 2, 50, 3)

	require.NoError(t, scheduler.Run(context.Background()))

	assert.Equal(t, int64(3), requests.Load())
	assert.Equal(t, int64(3), state.PagesFetched.Load())
	assert.ElementsMatch(t, []string{"p1", "p2", "p3"}, sink.ids())
}

func TestScheduler_EndToEndDedup(t *testing.T) {
	// Category A inlines two products and links subcategory A1. A1 inlines
	// p3. Category B references p3 and p4 through the batch endpoint. Every
	// product must come out exactly once no matter which path wins.
	listings := map[string]fakeListing{
		"cat-a|0|": {
			Products: []fakeProduct{{ID: "p1", Name: "One"}, {ID: "p2", Name: "Two"}},
			Children: []models.CategoryRef{{ID: "cat-a1", Name: "A1"}},
		},
		"cat-a1|0|": {
			Products: []fakeProduct{{ID: "p3", Name: "Three"}},
		},
		"cat-b|0|": {
			Referenced: []string{"p3", "p4"},
		},
	}

	mux := http.NewServeMux()
	var requests atomic.Int64
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		key := r.URL.Query().Get("cat") + "|" + r.URL.Query().Get("page") + "|" + r.URL.Query().Get("cursor")
		listing, ok := listings[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(listing)
	})
	mux.HandleFunc("/batch", func(w http.ResponseWriter, r *http.Request) {
		var ids []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ids))

		products := make([]fakeProduct, 0, len(ids))
		for _, id := range ids {
			products = append(products, fakeProduct{ID: id, Name: "Batch " + id})
		}
		json.NewEncoder(w).Encode(products)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	st := &fakeSite{
		base:   server.URL,
		seeds:  []models.CategoryRef{{ID: "cat-a", Name: "A"}, {ID: "cat-b", Name: "B"}},
		enrich: true,
	}
	sink := &collectSink{}
	scheduler, state := newTestScheduler(st, sink, 4, 50, 3)

	require.NoError(t, scheduler.Run(context.Background()))

	ids := sink.ids()
	assert.ElementsMatch(t, []string{"p1", "p2", "p3", "p4"}, ids)
	assert.Equal(t, int64(4), state.ProductsEmitted.Load())
	assert.Equal(t, 3, state.Visited.Visited())
}

func TestScheduler_BlockedCategoryDroppedRunContinues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cat") == "blocked" {
			// Permanent soft block, whatever token arrives.
			w.WriteHeader(http.StatusAccepted)
			return
		}
		json.NewEncoder(w).Encode(fakeListing{
			Products: []fakeProduct{{ID: "p1", Name: "One"}},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	st := &fakeSite{
		base: server.URL,
		seeds: []models.CategoryRef{
			{ID: "blocked", Name: "Blocked"},
			{ID: "open", Name: "Open"},
		},
	}
	sink := &collectSink{}
	scheduler, state := newTestScheduler(st, sink, 2, 50, 1)

	require.NoError(t, scheduler.Run(context.Background()))

	assert.Equal(t, []string{"p1"}, sink.ids())
	assert.Equal(t, int64(1), state.TasksDropped.Load())
	assert.Equal(t, int64(1), state.PagesFetched.Load())
}

func TestScheduler_ParseFailureCountedAndDropped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cat") == "garbled" {
			w.Write([]byte("not json at all"))
			return
		}
		json.NewEncoder(w).Encode(fakeListing{
			Products: []fakeProduct{{ID: "p1", Name: "One"}},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	st := &fakeSite{
		base: server.URL,
		seeds: []models.CategoryRef{
			{ID: "garbled", Name: "Garbled"},
			{ID: "open", Name: "Open"},
		},
	}
	sink := &collectSink{}
	scheduler, state := newTestScheduler(st, sink, 2, 50, 3)

	require.NoError(t, scheduler.Run(context.Background()))

	assert.Equal(t, []string{"p1"}, sink.ids())
	assert.Equal(t, int64(1), state.ParseFailures.Load())
	assert.Equal(t, int64(1), state.TasksDropped.Load())
}

func TestScheduler_BatchChunking(t *testing.T) {
	// 127 referenced ids with a batch size of 50 must arrive as 50+50+27.
	referenced := make([]string, 127)
	for i := range referenced {
		referenced[i] = fmt.Sprintf("ref%03d", i)
	}

	mux := http.NewServeMux()
	var batchSizes []int
	var batchMu sync.Mutex
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fakeListing{Referenced: referenced})
	})
	mux.HandleFunc("/batch", func(w http.ResponseWriter, r *http.Request) {
		var ids []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ids))

		batchMu.Lock()
		batchSizes = append(batchSizes, len(ids))
		batchMu.Unlock()

		products := make([]fakeProduct, 0, len(ids))
		for _, id := range ids {
			products = append(products, fakeProduct{ID: id, Name: id})
		}
		json.NewEncoder(w).Encode(products)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	st := &fakeSite{
		base:   server.URL,
		seeds:  []models.CategoryRef{{ID: "cat-a", Name: "A"}},
		enrich: true,
	}
	sink := &collectSink{}
	scheduler, state := newTestScheduler(st, sink, 2, 50, 3)

	require.NoError(t, scheduler.Run(context.Background()))

	batchMu.Lock()
	defer batchMu.Unlock()
	assert.ElementsMatch(t, []int{50, 50, 27}, batchSizes)
	assert.Equal(t, int64(127), state.ProductsEmitted.Load())
	assert.Equal(t, int64(3), state.BatchesFetched.Load())
}
