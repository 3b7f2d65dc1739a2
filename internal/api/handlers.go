package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/matval/catalog-crawler/internal/crawl"
)

// Handlers serves the operational endpoints of a running crawler: liveness
// and per-run progress counters.
type Handlers struct {
	logger *slog.Logger

	mu   sync.Mutex
	runs []trackedRun
}

type trackedRun struct {
	state *crawl.CrawlState
	// solves reports how many session refreshes the run's manager has done.
	solves func() int64
}

func NewHandlers(logger *slog.Logger) *Handlers {
	return &Handlers{logger: logger}
}

// Track registers a run's state for reporting. Runs for different sites are
// tracked side by side. solves may be nil for runs without a session manager.
func (h *Handlers) Track(state *crawl.CrawlState, solves func() int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, trackedRun{state: state, solves: solves})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	snapshots := make([]crawl.StateSnapshot, 0, len(h.runs))
	for _, run := range h.runs {
		snap := run.state.Snapshot()
		if run.solves != nil {
			snap.SessionRefreshes = run.solves()
		}
		snapshots = append(snapshots, snap)
	}
	h.mu.Unlock()

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs": snapshots,
	})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
