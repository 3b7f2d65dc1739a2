package crawl

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// CrawlState aggregates the counters and identity sets of a single run. The
// counters are written from every worker, so they are atomics; the snapshot
// is what the ops API serves.
type CrawlState struct {
	RunID     string
	Site      string
	StartedAt time.Time

	Visited *Traversal
	Seen    *SeenSet

	PagesFetched         atomic.Int64
	ProductsEmitted      atomic.Int64
	DuplicatesSuppressed atomic.Int64
	BatchesFetched       atomic.Int64
	TasksDropped         atomic.Int64
	ParseFailures        atomic.Int64
}

func NewCrawlState(siteName string) *CrawlState {
	return &CrawlState{
		RunID:     uuid.New().String(),
		Site:      siteName,
		StartedAt: time.Now(),
		Visited:   NewTraversal(),
		Seen:      NewSeenSet(),
	}
}

// StateSnapshot is a consistent-enough copy of the counters for reporting.
type StateSnapshot struct {
	RunID                string    `json:"run_id"`
	Site                 string    `json:"site"`
	StartedAt            time.Time `json:"started_at"`
	UptimeSeconds        float64   `json:"uptime_seconds"`
	CategoriesVisited    int       `json:"categories_visited"`
	PagesFetched         int64     `json:"pages_fetched"`
	ProductsEmitted      int64     `json:"products_emitted"`
	DuplicatesSuppressed int64     `json:"duplicates_suppressed"`
	BatchesFetched       int64     `json:"batches_fetched"`
	TasksDropped         int64     `json:"tasks_dropped"`
	ParseFailures        int64     `json:"parse_failures"`
	// SessionRefreshes is filled in by the reporting layer from the run's
	// session manager; the crawl state itself does not track it.
	SessionRefreshes int64 `json:"session_refreshes"`
}

func (s *CrawlState) Snapshot() StateSnapshot {
	return StateSnapshot{
		RunID:                s.RunID,
		Site:                 s.Site,
		StartedAt:            s.StartedAt,
		UptimeSeconds:        time.Since(s.StartedAt).Seconds(),
		CategoriesVisited:    s.Visited.Visited(),
		PagesFetched:         s.PagesFetched.Load(),
		ProductsEmitted:      s.ProductsEmitted.Load(),
		DuplicatesSuppressed: s.DuplicatesSuppressed.Load(),
		BatchesFetched:       s.BatchesFetched.Load(),
		TasksDropped:         s.TasksDropped.Load(),
		ParseFailures:        s.ParseFailures.Load(),
	}
}
