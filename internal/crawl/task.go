package crawl

import (
	"fmt"

	"github.com/matval/catalog-crawler/internal/models"
	"github.com/matval/catalog-crawler/internal/site"
)

type TaskKind int

const (
	// TaskListing fetches one page of a category listing.
	TaskListing TaskKind = iota
	// TaskBatch fetches one enrichment chunk of referenced product ids.
	TaskBatch
)

// Task is one unit of pending work. It carries everything its continuation
// needs (category path, page state, pending ids) so no task depends on
// shared mutable context beyond the session token.
type Task struct {
	Kind     TaskKind
	Category models.CategoryRef
	Path     models.CategoryPath
	Page     site.PageState
	IDs      []string
}

func (t *Task) String() string {
	if t.Kind == TaskBatch {
		return fmt.Sprintf("batch[%d ids] under %s", len(t.IDs), pathLabel(t.Path))
	}
	return fmt.Sprintf("listing %s %s", t.Category.ID, t.Page.String())
}

func pathLabel(path models.CategoryPath) string {
	if leaf := path.Leaf(); leaf != nil {
		return leaf.Name
	}
	return "(root)"
}
