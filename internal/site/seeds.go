package site

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/matval/catalog-crawler/internal/models"
	"github.com/matval/catalog-crawler/internal/slug"
)

// LoadSeedFile reads a JSON array of root category descriptors. A missing or
// malformed file is a startup failure; the crawl has nothing to start from.
func LoadSeedFile(path string) ([]models.CategoryRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	return DecodeSeeds(f)
}

// DecodeSeeds parses seed descriptors from r.
func DecodeSeeds(r io.Reader) ([]models.CategoryRef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read seeds: %w", err)
	}

	var seeds []models.CategoryRef
	if err := json.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("failed to decode seeds: %w", err)
	}

	if len(seeds) == 0 {
		return nil, fmt.Errorf("seed file contains no categories")
	}

	for i := range seeds {
		if seeds[i].ID == "" {
			return nil, fmt.Errorf("seed %d has no id", i)
		}
		if seeds[i].Slug == "" {
			seeds[i].Slug = slug.Make(seeds[i].Name)
		}
	}

	return seeds, nil
}

// DiscoverSeeds extracts category links from a storefront landing page, for
// sites that expose their category tree only in rendered navigation. The
// prefix selects which hrefs count as category links, e.g. "/se/categories/".
func DiscoverSeeds(r io.Reader, prefix string) ([]models.CategoryRef, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse landing page: %w", err)
	}

	seen := make(map[string]struct{})
	var seeds []models.CategoryRef

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !strings.HasPrefix(href, prefix) {
			return
		}

		rest := strings.Trim(strings.TrimPrefix(href, prefix), "/")
		if rest == "" || strings.Contains(rest, "/") {
			return // nested paths are subcategories, not roots
		}

		if _, ok := seen[rest]; ok {
			return
		}
		seen[rest] = struct{}{}

		name := strings.TrimSpace(sel.Text())
		if name == "" {
			name = rest
		}
		seeds = append(seeds, models.CategoryRef{
			ID:   rest,
			Name: name,
			Slug: slug.Make(rest),
		})
	})

	if len(seeds) == 0 {
		return nil, fmt.Errorf("no category links found under %q", prefix)
	}

	return seeds, nil
}

// parseAmount converts a price string to a float, tolerating the decimal
// comma the payloads sometimes use. Unparseable values become nil rather
// than zero so "no price" and "free" stay distinguishable.
func parseAmount(raw string) *float64 {
	if raw == "" {
		return nil
	}

	normalized := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	normalized = strings.ReplaceAll(normalized, " ", "")

	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return nil
	}
	return &v
}
