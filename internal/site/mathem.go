package site

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matval/catalog-crawler/internal/fetch"
	"github.com/matval/catalog-crawler/internal/models"
	"github.com/matval/catalog-crawler/internal/slug"
)

// Mathem crawls the Mathem storefront's page-data JSON. Listings come in two
// generations: cursor-paged "pages" with a hasMore flag, and legacy "blocks"
// where a product grid carries a load-more target. Both parse into the same
// intermediate; everything is inlined, so there is no enrichment endpoint.
type Mathem struct {
	seedFile   string
	baseURL    string
	buildID    string
	httpClient *http.Client
}

func NewMathem(seedFile string) *Mathem {
	return &Mathem{
		seedFile:   seedFile,
		baseURL:    "https://www.mathem.se",
		buildID:    "latest",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *Mathem) Name() string { return "mathem" }

// SetBuildID points the page-data endpoints at a specific storefront build.
// The build id rotates with deploys; it is discovered at bootstrap.
func (s *Mathem) SetBuildID(id string) {
	if id != "" {
		s.buildID = id
	}
}

// Seeds prefers an explicit seed file, then the category links on the
// storefront landing page, then the static default list. Discovery keeps the
// roots current when Mathem reshuffles its tree between deploys.
func (s *Mathem) Seeds(ctx context.Context) ([]models.CategoryRef, error) {
	if s.seedFile != "" {
		return LoadSeedFile(s.seedFile)
	}
	if seeds, err := s.discoverSeeds(ctx); err == nil {
		return seeds, nil
	}
	return mathemDefaultSeeds(), nil
}

func (s *Mathem) discoverSeeds(ctx context.Context) ([]models.CategoryRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BootstrapURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build landing page request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch landing page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("landing page returned status %d", resp.StatusCode)
	}

	return DiscoverSeeds(resp.Body, "/se/categories/")
}

func (s *Mathem) BootstrapURL() string {
	return s.baseURL + "/se/products/"
}

func (s *Mathem) FirstPage() PageState {
	return PageState{Mode: ModeCursor}
}

func (s *Mathem) SupportsEnrichment() bool { return false }

func (s *Mathem) ListingRequest(cat models.CategoryRef, page PageState) (*fetch.Request, error) {
	u := fmt.Sprintf("%s/_next/data/%s/se/categories/%s.json", s.baseURL, s.buildID, cat.ID)
	if page.Cursor != "" {
		u += "?cursor=" + url.QueryEscape(page.Cursor)
	}

	return &fetch.Request{
		Method: http.MethodGet,
		URL:    u,
		Headers: map[string]string{
			"Accept": "application/json",
		},
	}, nil
}

func (s *Mathem) EnrichmentRequest(ids []string) (*fetch.Request, error) {
	return nil, fmt.Errorf("mathem inlines all products; no enrichment endpoint")
}

func (s *Mathem) ParseEnrichment(body []byte, path models.CategoryPath) ([]models.ProductRecord, error) {
	return nil, fmt.Errorf("mathem inlines all products; no enrichment endpoint")
}

type mathemPayload struct {
	PageProps struct {
		DehydratedState struct {
			Queries []struct {
				State struct {
					Data mathemData `json:"data"`
				} `json:"state"`
			} `json:"queries"`
		} `json:"dehydratedState"`
	} `json:"pageProps"`
}

type mathemData struct {
	Pages []struct {
		Title string `json:"title"`
		Items []struct {
			Type       string        `json:"type"`
			Attributes mathemProduct `json:"attributes"`
		} `json:"items"`
		HasMore    bool   `json:"hasMore"`
		NextCursor string `json:"nextCursor"`
	} `json:"pages"`
	Blocks []struct {
		Component string          `json:"component"`
		Products  []mathemProduct `json:"products"`
		Button    *struct {
			Target struct {
				URI string `json:"uri"`
			} `json:"target"`
		} `json:"button"`
	} `json:"blocks"`
	Sections []mathemSection `json:"sections"`
}

type mathemSection struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type mathemProduct struct {
	ID             string          `json:"id"`
	FullName       string          `json:"fullName"`
	AbsoluteURL    string          `json:"absoluteUrl"`
	GrossPrice     string          `json:"grossPrice"`
	GrossUnitPrice string          `json:"grossUnitPrice"`
	UnitName       string          `json:"unitPriceQuantityName"`
	UnitAbbrev     string          `json:"unitPriceQuantityAbbreviation"`
	Currency       string          `json:"currency"`
	Availability   *bool           `json:"availability"`
	NutritionFacts json.RawMessage `json:"nutritionFacts"`
}

func (s *Mathem) ParseListing(body []byte, path models.CategoryPath, page PageState) (*ListingPage, error) {
	var payload mathemPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}

	queries := payload.PageProps.DehydratedState.Queries
	if len(queries) == 0 {
		return nil, fmt.Errorf("listing payload has no queries")
	}
	data := queries[0].State.Data

	out := &ListingPage{}

	// Modern shape: cursor-paged item lists.
	if len(data.Pages) > 0 {
		for _, pg := range data.Pages {
			for _, item := range pg.Items {
				if item.Type != "product" {
					continue
				}
				if rec := s.buildRecord(&item.Attributes, path); rec != nil {
					out.Products = append(out.Products, *rec)
				}
			}
			if pg.HasMore && pg.NextCursor != "" {
				out.Next = &PageState{Mode: ModeCursor, Cursor: pg.NextCursor}
			}
		}
		return out, nil
	}

	// Legacy shape: product grids with a load-more button.
	if len(data.Blocks) > 0 {
		for _, block := range data.Blocks {
			if block.Component != "product-grid" {
				continue
			}
			for i := range block.Products {
				if rec := s.buildRecord(&block.Products[i], path); rec != nil {
					out.Products = append(out.Products, *rec)
				}
			}
			if block.Button != nil && block.Button.Target.URI != "" {
				out.Next = &PageState{Mode: ModeCursor, Cursor: cursorFromURI(block.Button.Target.URI)}
			}
		}
		return out, nil
	}

	// Section index pages carry only subcategory links.
	for _, section := range data.Sections {
		child := s.sectionToChild(section)
		if child != nil {
			out.Children = append(out.Children, *child)
		}
	}

	return out, nil
}

func (s *Mathem) buildRecord(p *mathemProduct, path models.CategoryPath) *models.ProductRecord {
	if p.ID == "" || p.FullName == "" {
		return nil
	}

	return &models.ProductRecord{
		ID:         p.ID,
		Name:       p.FullName,
		URL:        s.baseURL + p.AbsoluteURL,
		Path:       path,
		Price:      parseAmount(p.GrossPrice),
		UnitPrice:  parseAmount(p.GrossUnitPrice),
		UnitName:   p.UnitName,
		UnitAbbrev: p.UnitAbbrev,
		Currency:   p.Currency,
		Available:  p.Availability,
		Nutrition:  p.NutritionFacts,
		Site:       s.Name(),
		ScrapedAt:  time.Now(),
	}
}

func (s *Mathem) sectionToChild(section mathemSection) *models.CategoryRef {
	const prefix = "/se/categories/"
	if !strings.HasPrefix(section.URI, prefix) {
		return nil
	}

	path := strings.Trim(strings.TrimPrefix(strings.SplitN(section.URI, "?", 2)[0], prefix), "/")
	if path == "" {
		return nil
	}

	name := section.Title
	if name == "" {
		name = path
	}

	return &models.CategoryRef{
		ID:   path, // mathem categories are addressed by slug path
		Name: name,
		Slug: slug.Make(path),
	}
}

// cursorFromURI lifts the cursor query parameter out of a load-more target.
func cursorFromURI(uri string) string {
	_, query, ok := strings.Cut(uri, "?")
	if !ok {
		return uri
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return uri
	}
	if c := values.Get("cursor"); c != "" {
		return c
	}
	return uri
}

func mathemDefaultSeeds() []models.CategoryRef {
	slugs := []string{
		"1-frukt-gront",
		"78-mejeri-ost-juice",
		"155-brod-bageri",
		"199-kott-chark-fagel",
		"264-dryck",
		"329-skafferi",
		"420-fisk-skaldjur",
		"575-fardigmat-mellanmal",
		"630-glass-godis-snacks",
		"1259-fryst",
	}

	seeds := make([]models.CategoryRef, 0, len(slugs))
	for _, sl := range slugs {
		name := sl
		if _, rest, ok := strings.Cut(sl, "-"); ok {
			name = strings.ReplaceAll(rest, "-", " ")
		}
		seeds = append(seeds, models.CategoryRef{ID: sl, Name: name, Slug: sl})
	}
	return seeds
}
