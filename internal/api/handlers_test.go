package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matval/catalog-crawler/internal/crawl"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandlers_Health(t *testing.T) {
	h := NewHandlers(testLogger())

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandlers_Stats(t *testing.T) {
	h := NewHandlers(testLogger())

	state := crawl.NewCrawlState("ica")
	state.PagesFetched.Add(7)
	state.ProductsEmitted.Add(120)
	state.DuplicatesSuppressed.Add(3)
	h.Track(state, func() int64 { return 2 })

	other := crawl.NewCrawlState("mathem")
	h.Track(other, nil)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Runs []crawl.StateSnapshot `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Runs, 2)

	assert.Equal(t, "ica", resp.Runs[0].Site)
	assert.Equal(t, int64(7), resp.Runs[0].PagesFetched)
	assert.Equal(t, int64(120), resp.Runs[0].ProductsEmitted)
	assert.Equal(t, int64(3), resp.Runs[0].DuplicatesSuppressed)
	assert.Equal(t, int64(2), resp.Runs[0].SessionRefreshes)
	assert.NotEmpty(t, resp.Runs[0].RunID)
	assert.Equal(t, "mathem", resp.Runs[1].Site)
}

func TestHandlers_StatsEmpty(t *testing.T) {
	h := NewHandlers(testLogger())

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}
