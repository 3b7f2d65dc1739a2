package site

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/matval/catalog-crawler/internal/fetch"
	"github.com/matval/catalog-crawler/internal/models"
	"github.com/matval/catalog-crawler/internal/slug"
)

// ICA crawls the ICA online store API: offset-paged category listings where a
// page inlines the first chunk of products and references the rest by id in
// product groups, fetched through a CSRF-protected batch endpoint.
type ICA struct {
	storeID  string
	seedFile string
	baseURL  string
}

func NewICA(storeID, seedFile string) *ICA {
	return &ICA{
		storeID:  storeID,
		seedFile: seedFile,
		baseURL:  "https://handlaprivatkund.ica.se",
	}
}

func (s *ICA) Name() string { return "ica" }

func (s *ICA) Seeds(ctx context.Context) ([]models.CategoryRef, error) {
	if s.seedFile != "" {
		return LoadSeedFile(s.seedFile)
	}
	return icaDefaultSeeds(), nil
}

func (s *ICA) BootstrapURL() string {
	seeds := icaDefaultSeeds()
	first := seeds[0]
	return fmt.Sprintf("%s/stores/%s/categories/%s/%s", s.baseURL, s.storeID, first.Slug, first.ID)
}

func (s *ICA) FirstPage() PageState {
	return PageState{Mode: ModeOffset, Page: 0}
}

func (s *ICA) SupportsEnrichment() bool { return true }

func (s *ICA) ListingRequest(cat models.CategoryRef, page PageState) (*fetch.Request, error) {
	url := fmt.Sprintf("%s/stores/%s/api/v6/products?category=%s&page=%d",
		s.baseURL, s.storeID, cat.ID, page.Page)

	return &fetch.Request{
		Method: http.MethodGet,
		URL:    url,
		Headers: map[string]string{
			"Accept":                      "application/json, text/plain, */*",
			"Origin":                      s.baseURL,
			"Referer":                     fmt.Sprintf("%s/stores/%s/categories/%s/%s", s.baseURL, s.storeID, cat.Slug, cat.ID),
			"Ecom-Request-Source":         "web",
			"Ecom-Request-Source-Version": "1",
		},
	}, nil
}

func (s *ICA) EnrichmentRequest(ids []string) (*fetch.Request, error) {
	body, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch ids: %w", err)
	}

	return &fetch.Request{
		Method: http.MethodPut,
		URL:    fmt.Sprintf("%s/stores/%s/api/webproductpagews/v6/products", s.baseURL, s.storeID),
		Headers: map[string]string{
			"Accept":                      "application/json; charset=utf-8",
			"Content-Type":                "application/json; charset=utf-8",
			"Origin":                      s.baseURL,
			"Referer":                     s.baseURL + "/",
			"Ecom-Request-Source":         "web",
			"Ecom-Request-Source-Version": "1",
		},
		Body:        body,
		WriteShaped: true,
	}, nil
}

type icaListingPayload struct {
	Result struct {
		Categories []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			FullURLPath string `json:"fullURLPath"`
		} `json:"categories"`
		ProductGroups []struct {
			Products []string `json:"products"`
		} `json:"productGroups"`
		Pagination struct {
			CurrentPage   int `json:"currentPage"`
			NumberOfPages int `json:"numberOfPages"`
		} `json:"pagination"`
	} `json:"result"`
	Entities struct {
		Product map[string]icaProduct `json:"product"`
	} `json:"entities"`
}

type icaEnrichmentPayload struct {
	Products []icaProduct `json:"products"`
}

type icaProduct struct {
	ProductID           string          `json:"productId"`
	RetailerProductID   string          `json:"retailerProductId"`
	Name                string          `json:"name"`
	EAN                 string          `json:"ean"`
	CategoryPath        []string        `json:"categoryPath"`
	Available           *bool           `json:"available"`
	PackSizeDescription string          `json:"packSizeDescription"`
	Size                *icaSize        `json:"size"`
	Price               *icaPrice       `json:"price"`
	UnitPrice           *icaAmountLabel `json:"unitPrice"`
	Offers              json.RawMessage `json:"offers"`
	Nutrition           json.RawMessage `json:"nutrientInformation"`
}

type icaSize struct {
	UOM   string `json:"uom"`
	Value string `json:"value"`
}

// icaPrice tolerates both payload shapes: the listing endpoint nests amounts
// under "current", the batch endpoint flattens them.
type icaPrice struct {
	Amount   string          `json:"amount"`
	Currency string          `json:"currency"`
	Current  *icaAmountLabel `json:"current"`
	Unit     *icaUnitPrice   `json:"unit"`
}

type icaUnitPrice struct {
	Label   string          `json:"label"`
	Amount  string          `json:"amount"`
	Current *icaAmountLabel `json:"current"`
}

type icaAmountLabel struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Label    string `json:"label"`
}

func (s *ICA) ParseListing(body []byte, path models.CategoryPath, page PageState) (*ListingPage, error) {
	var payload icaListingPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}

	out := &ListingPage{}

	for _, sub := range payload.Result.Categories {
		if sub.ID == "" {
			continue
		}
		name := sub.Name
		slugSource := sub.FullURLPath
		if slugSource == "" {
			slugSource = name
		}
		out.Children = append(out.Children, models.CategoryRef{
			ID:   sub.ID,
			Name: name,
			Slug: slug.Make(slugSource),
		})
	}

	inline := make(map[string]struct{}, len(payload.Entities.Product))
	for _, p := range payload.Entities.Product {
		rec := s.buildRecord(&p, path)
		if rec == nil {
			continue
		}
		inline[rec.ID] = struct{}{}
		out.Products = append(out.Products, *rec)
	}

	// Ids referenced by groups but not inlined need the batch endpoint. An id
	// can sit in several groups on the same page; reference it once.
	referenced := make(map[string]struct{})
	for _, group := range payload.Result.ProductGroups {
		for _, pid := range group.Products {
			if _, ok := inline[pid]; ok {
				continue
			}
			if _, ok := referenced[pid]; ok {
				continue
			}
			referenced[pid] = struct{}{}
			out.ReferencedIDs = append(out.ReferencedIDs, pid)
		}
	}

	if pg := payload.Result.Pagination; pg.NumberOfPages > 0 && pg.CurrentPage+1 < pg.NumberOfPages {
		out.Next = &PageState{
			Mode:       ModeOffset,
			Page:       pg.CurrentPage + 1,
			TotalPages: pg.NumberOfPages,
		}
	}

	return out, nil
}

func (s *ICA) ParseEnrichment(body []byte, path models.CategoryPath) ([]models.ProductRecord, error) {
	var payload icaEnrichmentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}

	records := make([]models.ProductRecord, 0, len(payload.Products))
	for _, p := range payload.Products {
		rec := s.buildRecord(&p, path)
		if rec == nil {
			continue
		}
		records = append(records, *rec)
	}

	return records, nil
}

func (s *ICA) buildRecord(p *icaProduct, path models.CategoryPath) *models.ProductRecord {
	// Products without an id or name cannot be keyed or compared; skip.
	if p.ProductID == "" || p.Name == "" {
		return nil
	}

	rec := &models.ProductRecord{
		ID:           p.ProductID,
		EAN:          p.EAN,
		Name:         p.Name,
		Path:         path,
		QuantityType: p.PackSizeDescription,
		Available:    p.Available,
		Nutrition:    p.Nutrition,
		Promotions:   p.Offers,
		Site:         s.Name(),
		ScrapedAt:    time.Now(),
	}

	if p.RetailerProductID != "" {
		rec.URL = fmt.Sprintf("%s/stores/%s/products/%s/%s",
			s.baseURL, s.storeID, slug.Make(p.Name), p.RetailerProductID)
	}

	if p.Size != nil {
		rec.UnitAbbrev = p.Size.UOM
		if rec.QuantityType == "" {
			rec.QuantityType = p.Size.Value
		}
	}

	if p.Price != nil {
		if p.Price.Current != nil {
			rec.Price = parseAmount(p.Price.Current.Amount)
			rec.Currency = p.Price.Current.Currency
		} else {
			rec.Price = parseAmount(p.Price.Amount)
			rec.Currency = p.Price.Currency
		}

		if u := p.Price.Unit; u != nil {
			rec.UnitName = u.Label
			if u.Current != nil {
				rec.UnitPrice = parseAmount(u.Current.Amount)
			} else {
				rec.UnitPrice = parseAmount(u.Amount)
			}
		}
	}

	// The batch endpoint hoists unit price to the product root.
	if rec.UnitPrice == nil && p.UnitPrice != nil {
		rec.UnitPrice = parseAmount(p.UnitPrice.Amount)
		rec.UnitName = p.UnitPrice.Label
	}

	return rec
}

func icaDefaultSeeds() []models.CategoryRef {
	return []models.CategoryRef{
		{ID: "03968fc5-dadb-4e2b-8983-6abbf641df3c", Name: "Frukt & Grönt", Slug: "frukt-gront"},
		{ID: "4d07744d-fd8d-47ea-89e6-38c49ca44652", Name: "Kött, Chark & Fågel", Slug: "kott-chark-fagel"},
		{ID: "3bfbe616-f05c-4fdf-823a-f55ed6eed6c2", Name: "Fisk & Skaldjur", Slug: "fisk-skaldjur"},
		{ID: "03d68f50-5a8c-4b9c-95a1-f0f017cacab0", Name: "Mejeri & Ost", Slug: "mejeri-ost"},
		{ID: "c7739997-6b40-45c9-9042-a6102ae9779c", Name: "Bröd & Kakor", Slug: "brod-kakor"},
		{ID: "67062250-87a0-4b75-be6c-21413a477e79", Name: "Färdigmat", Slug: "fardigmat"},
		{ID: "0053d478-6e25-4982-aa2c-ea5e5770a071", Name: "Glass, Godis & Snacks", Slug: "glass-godis-snacks"},
		{ID: "7a765e3c-d8a5-4f1d-afa3-93761d10f3c1", Name: "Dryck", Slug: "dryck"},
		{ID: "31c18410-0856-4908-8834-1eea8808c498", Name: "Skafferi", Slug: "skafferi"},
		{ID: "3937612b-efec-4ede-91ae-57904b8473aa", Name: "Fryst", Slug: "fryst"},
	}
}
