// Package site is the per-site boundary of the crawl core: endpoint
// templates, request builders and the mapping from site-specific payloads
// into the common listing intermediate the pagination engine consumes.
package site

import (
	"context"
	"fmt"

	"github.com/matval/catalog-crawler/internal/fetch"
	"github.com/matval/catalog-crawler/internal/models"
)

// PageMode selects which pagination shape a listing endpoint speaks.
type PageMode int

const (
	// ModeOffset pages by item offset with a known total.
	ModeOffset PageMode = iota
	// ModeCursor pages by opaque server-issued cursor.
	ModeCursor
)

// PageState describes which page of a listing to fetch next. A listing task
// carries one of these; the parser for the response produces the next one,
// or none when the listing is exhausted.
type PageState struct {
	Mode PageMode

	// Offset model.
	Page       int // zero-based index of the page to fetch
	Offset     int // absolute item offset of the page to fetch
	TotalPages int // 0 until the first response reports it

	// Cursor model. Empty cursor means the first page.
	Cursor string
}

func (p PageState) String() string {
	if p.Mode == ModeCursor {
		if p.Cursor == "" {
			return "cursor:first"
		}
		return fmt.Sprintf("cursor:%s", p.Cursor)
	}
	return fmt.Sprintf("page:%d", p.Page)
}

// ListingPage is the common intermediate every payload shape parses into.
type ListingPage struct {
	// Products found inline in the listing, full data included.
	Products []models.ProductRecord
	// ReferencedIDs are product ids named by the listing but not inlined;
	// they need a separate enrichment fetch.
	ReferencedIDs []string
	// Children are the subcategories discovered on this page.
	Children []models.CategoryRef
	// Next is the follow-up page state, nil when the listing is exhausted.
	Next *PageState
}

// Site is the contract a storefront backend must satisfy to be crawled.
// Exact JSON field names and URL layouts are the implementation's business;
// the crawl core only sees this interface.
type Site interface {
	Name() string

	// Seeds returns the root categories the traversal starts from.
	Seeds(ctx context.Context) ([]models.CategoryRef, error)

	// BootstrapURL is a storefront page whose load solves the
	// anti-automation challenge and exposes the CSRF token.
	BootstrapURL() string

	// FirstPage returns the page state for a category's first listing fetch.
	FirstPage() PageState

	// ListingRequest builds the fetch for one page of a category listing.
	ListingRequest(cat models.CategoryRef, page PageState) (*fetch.Request, error)

	// ParseListing maps a listing payload into the common intermediate.
	// page is the state the request was built from.
	ParseListing(body []byte, path models.CategoryPath, page PageState) (*ListingPage, error)

	// SupportsEnrichment reports whether the site has a batch detail
	// endpoint. Sites that inline everything return false and never see
	// referenced ids.
	SupportsEnrichment() bool

	// EnrichmentRequest builds the batched detail fetch for ids.
	EnrichmentRequest(ids []string) (*fetch.Request, error)

	// ParseEnrichment maps an enrichment payload to one record per id found.
	ParseEnrichment(body []byte, path models.CategoryPath) ([]models.ProductRecord, error)
}

// Options carries the per-deployment knobs a Site implementation may need.
// Fields a site does not use are ignored.
type Options struct {
	// StoreID selects the physical store whose assortment ICA serves.
	StoreID string
	// SeedFile overrides seed discovery with a static JSON category list.
	SeedFile string
	// MathemBuildID pins Mathem's page-data endpoints to one storefront
	// build instead of the "latest" alias.
	MathemBuildID string
}

// New returns the Site implementation registered under name.
func New(name string, opts Options) (Site, error) {
	switch name {
	case "ica":
		return NewICA(opts.StoreID, opts.SeedFile), nil
	case "mathem":
		m := NewMathem(opts.SeedFile)
		m.SetBuildID(opts.MathemBuildID)
		return m, nil
	default:
		return nil, fmt.Errorf("unknown site %q", name)
	}
}
