package crawl

import (
	"context"
	"errors"
	"sync"
)

var ErrFrontierClosed = errors.New("frontier is closed")

// Frontier is the FIFO task queue the scheduler drains. Discovered category
// tasks, pagination continuations and enrichment batches all share it.
type Frontier struct {
	tasks  []*Task
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
}

func NewFrontier() *Frontier {
	f := &Frontier{
		tasks: make([]*Task, 0),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Frontier) Push(task *Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrFrontierClosed
	}

	f.tasks = append(f.tasks, task)
	f.cond.Signal()

	return nil
}

// Pop blocks until a task is available, the frontier closes, or ctx is done.
// The condition wait runs on the calling goroutine; cancellation wakes every
// waiter via broadcast, so lock ownership never changes hands mid-return.
func (f *Frontier) Pop(ctx context.Context) (*Task, error) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.tasks) == 0 && !f.closed && ctx.Err() == nil {
		f.cond.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.tasks) == 0 {
		return nil, ErrFrontierClosed
	}

	task := f.tasks[0]
	f.tasks = f.tasks[1:]

	return task, nil
}

func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

// Close wakes every blocked Pop. Queued tasks are still drained; only new
// pushes are refused.
func (f *Frontier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	f.cond.Broadcast()

	return nil
}
