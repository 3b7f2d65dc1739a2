package crawl

import (
	"sync"

	"github.com/matval/catalog-crawler/internal/models"
	"github.com/matval/catalog-crawler/internal/site"
)

// Traversal tracks which categories a run has already admitted. Category
// graphs contain cycles and diamonds; admitting each id once keeps the
// frontier finite and makes traversal order irrelevant to termination.
type Traversal struct {
	mu      sync.Mutex
	visited map[string]struct{}
}

func NewTraversal() *Traversal {
	return &Traversal{visited: make(map[string]struct{})}
}

// Admit marks the category visited and reports whether this caller was the
// first. Only the first admission produces a listing task.
func (t *Traversal) Admit(ref models.CategoryRef) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.visited[ref.ID]; ok {
		return false
	}
	t.visited[ref.ID] = struct{}{}
	return true
}

func (t *Traversal) Visited() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.visited)
}

// SeedTask builds the first listing task for a root category.
func SeedTask(ref models.CategoryRef, first site.PageState) *Task {
	return &Task{
		Kind:     TaskListing,
		Category: ref,
		Path:     models.CategoryPath{ref},
		Page:     first,
	}
}

// ChildTask builds the first listing task for a subcategory discovered under
// parent's path.
func ChildTask(ref models.CategoryRef, parentPath models.CategoryPath, first site.PageState) *Task {
	return &Task{
		Kind:     TaskListing,
		Category: ref,
		Path:     parentPath.Append(ref),
		Page:     first,
	}
}

// ContinuationTask builds the task for the next page of the same category.
func ContinuationTask(prev *Task, next site.PageState) *Task {
	return &Task{
		Kind:     TaskListing,
		Category: prev.Category,
		Path:     prev.Path,
		Page:     next,
	}
}

// BatchTask builds an enrichment task for one chunk of referenced ids,
// attributed to the path of the page that referenced them.
func BatchTask(ids []string, path models.CategoryPath) *Task {
	return &Task{
		Kind: TaskBatch,
		Path: path,
		IDs:  ids,
	}
}
