package models

import (
	"encoding/json"
	"time"
)

// CategoryRef identifies one node in a site's category graph. Identity is the
// site-assigned ID; names and slugs are display data and may collide.
type CategoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// CategoryPath is the chain of ancestors from a root category down to the
// category a product was discovered under.
type CategoryPath []CategoryRef

// Top returns the root category of the path, if any.
func (p CategoryPath) Top() *CategoryRef {
	if len(p) == 0 {
		return nil
	}
	return &p[0]
}

// Leaf returns the deepest category of the path, if any.
func (p CategoryPath) Leaf() *CategoryRef {
	if len(p) == 0 {
		return nil
	}
	return &p[len(p)-1]
}

// Append returns a new path with ref added. The receiver is never modified,
// so a path can be shared between tasks without copying.
func (p CategoryPath) Append(ref CategoryRef) CategoryPath {
	out := make(CategoryPath, len(p), len(p)+1)
	copy(out, p)
	return append(out, ref)
}

// ProductRecord is the canonical output of a crawl run. The identity key is
// the site-specific product ID, never the name: names collide across variants.
type ProductRecord struct {
	ID           string          `json:"id"`
	EAN          string          `json:"ean,omitempty"`
	Name         string          `json:"name"`
	URL          string          `json:"url,omitempty"`
	Path         CategoryPath    `json:"category_path"`
	Price        *float64        `json:"price,omitempty"`
	UnitPrice    *float64        `json:"unit_price,omitempty"`
	UnitName     string          `json:"unit_name,omitempty"`
	UnitAbbrev   string          `json:"unit_abbrev,omitempty"`
	Currency     string          `json:"currency,omitempty"`
	QuantityType string          `json:"quantity_type,omitempty"`
	Available    *bool           `json:"available,omitempty"`
	Nutrition    json.RawMessage `json:"nutrition,omitempty"`
	Promotions   json.RawMessage `json:"promotions,omitempty"`
	Site         string          `json:"site"`
	ScrapedAt    time.Time       `json:"scraped_at"`
}

// Key returns the per-run identity key used by the deduplicator.
func (r *ProductRecord) Key() string {
	return r.ID
}
