package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/matval/catalog-crawler/internal/models"
	"github.com/matval/catalog-crawler/internal/site"
)

// RecordSink receives every deduplicated product record the crawl emits.
type RecordSink interface {
	Emit(ctx context.Context, rec *models.ProductRecord) error
}

// Scheduler drives one crawl run: it seeds the frontier, fans tasks out to a
// worker pool and folds discovered work back in. The run ends when the
// pending-task count hits zero; a run with failing tasks still terminates
// because failed tasks are dropped, never requeued.
type Scheduler struct {
	site      site.Site
	paginator *Paginator
	batcher   *BatchFetcher
	sink      RecordSink
	state     *CrawlState
	frontier  *Frontier
	batchSize int
	workers   int
	logger    *slog.Logger

	// pending counts tasks pushed but not yet fully processed. The last
	// completion closes the frontier.
	pending atomic.Int64
}

func NewScheduler(st site.Site, paginator *Paginator, batcher *BatchFetcher, sink RecordSink, state *CrawlState, batchSize, workers int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		site:      st,
		paginator: paginator,
		batcher:   batcher,
		sink:      sink,
		state:     state,
		frontier:  NewFrontier(),
		batchSize: batchSize,
		workers:   workers,
		logger:    logger.With("component", "scheduler", "site", st.Name()),
	}
}

// Run crawls from the site's seeds until the frontier drains or ctx is
// cancelled. It returns an error only for failures that prevent the run from
// starting; mid-run task failures are logged and counted instead.
func (s *Scheduler) Run(ctx context.Context) error {
	seeds, err := s.site.Seeds(ctx)
	if err != nil {
		return fmt.Errorf("failed to load seeds: %w", err)
	}

	admitted := 0
	for _, seed := range seeds {
		if !s.state.Visited.Admit(seed) {
			continue
		}
		s.push(SeedTask(seed, s.site.FirstPage()))
		admitted++
	}
	if admitted == 0 {
		return fmt.Errorf("no seed categories to crawl")
	}

	s.logger.Info("crawl started",
		"run_id", s.state.RunID,
		"seeds", admitted,
		"workers", s.workers)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.worker(ctx, id)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		s.logger.Info("crawl cancelled", "run_id", s.state.RunID)
		return err
	}

	snap := s.state.Snapshot()
	s.logger.Info("crawl finished",
		"run_id", snap.RunID,
		"categories", snap.CategoriesVisited,
		"pages", snap.PagesFetched,
		"products", snap.ProductsEmitted,
		"duplicates", snap.DuplicatesSuppressed,
		"dropped", snap.TasksDropped)

	return nil
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	for {
		task, err := s.frontier.Pop(ctx)
		if err != nil {
			if !errors.Is(err, ErrFrontierClosed) && !errors.Is(err, context.Canceled) {
				s.logger.Error("worker stopping", "worker", id, "error", err)
			}
			return
		}

		s.process(ctx, task)
		s.finish()
	}
}

func (s *Scheduler) process(ctx context.Context, task *Task) {
	switch task.Kind {
	case TaskListing:
		s.processListing(ctx, task)
	case TaskBatch:
		s.processBatch(ctx, task)
	}
}

func (s *Scheduler) processListing(ctx context.Context, task *Task) {
	page, err := s.paginator.FetchPage(ctx, task)
	if err != nil {
		s.drop(task, err)
		return
	}
	s.state.PagesFetched.Add(1)

	for i := range page.Products {
		s.emit(ctx, &page.Products[i])
	}

	for _, child := range page.Children {
		if s.state.Visited.Admit(child) {
			s.push(ChildTask(child, task.Path, s.site.FirstPage()))
		}
	}

	if s.site.SupportsEnrichment() && len(page.ReferencedIDs) > 0 {
		unseen := s.state.Seen.FilterUnseen(page.ReferencedIDs)
		for _, chunk := range Chunk(unseen, s.batchSize) {
			s.push(BatchTask(chunk, task.Path))
		}
	}

	if page.Next != nil {
		s.push(ContinuationTask(task, *page.Next))
	}
}

func (s *Scheduler) processBatch(ctx context.Context, task *Task) {
	records, err := s.batcher.FetchBatch(ctx, task)
	if err != nil {
		s.drop(task, err)
		return
	}
	s.state.BatchesFetched.Add(1)

	for i := range records {
		s.emit(ctx, &records[i])
	}
}

// emit hands the record to the sink exactly once per identity key. A sink
// failure does not un-see the record; downstream loss is the sink's problem
// to report, not a reason to re-crawl.
func (s *Scheduler) emit(ctx context.Context, rec *models.ProductRecord) {
	if !s.state.Seen.Offer(rec.Key()) {
		s.state.DuplicatesSuppressed.Add(1)
		return
	}

	if err := s.sink.Emit(ctx, rec); err != nil {
		s.logger.Error("failed to emit record", "product_id", rec.ID, "error", err)
	}
	s.state.ProductsEmitted.Add(1)
}

func (s *Scheduler) push(task *Task) {
	s.pending.Add(1)
	if err := s.frontier.Push(task); err != nil {
		s.pending.Add(-1)
		s.logger.Error("failed to enqueue task", "task", task.String(), "error", err)
	}
}

// finish retires one task. The worker that retires the last pending task
// closes the frontier, which releases every blocked Pop.
func (s *Scheduler) finish() {
	if s.pending.Add(-1) == 0 {
		_ = s.frontier.Close()
	}
}

func (s *Scheduler) drop(task *Task, err error) {
	s.state.TasksDropped.Add(1)
	if IsParse(err) {
		s.state.ParseFailures.Add(1)
	}
	s.logger.Warn("task dropped", "task", task.String(), "error", err)
}
