package site

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSeeds(t *testing.T) {
	seeds, err := DecodeSeeds(strings.NewReader(`[
		{"id": "cat-1", "name": "Frukt & Grönt", "slug": "frukt-gront"},
		{"id": "cat-2", "name": "Mejeri & Ost"}
	]`))
	require.NoError(t, err)
	require.Len(t, seeds, 2)

	assert.Equal(t, "frukt-gront", seeds[0].Slug)
	// A missing slug is derived from the name.
	assert.Equal(t, "mejeri-ost", seeds[1].Slug)
}

func TestDecodeSeeds_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty array", input: `[]`},
		{name: "missing id", input: `[{"name": "No id"}]`},
		{name: "not json", input: `category one, category two`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSeeds(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestDiscoverSeeds(t *testing.T) {
	html := `<html><body>
		<nav>
			<a href="/se/categories/1-frukt-gront">Frukt &amp; Grönt</a>
			<a href="/se/categories/78-mejeri">Mejeri</a>
			<a href="/se/categories/78-mejeri">Mejeri igen</a>
			<a href="/se/categories/78-mejeri/ost">Ost</a>
			<a href="/se/recipes/veckans">Recept</a>
		</nav>
	</body></html>`

	seeds, err := DiscoverSeeds(strings.NewReader(html), "/se/categories/")
	require.NoError(t, err)

	// Duplicates collapse, nested paths and foreign links are ignored.
	require.Len(t, seeds, 2)
	assert.Equal(t, "1-frukt-gront", seeds[0].ID)
	assert.Equal(t, "Frukt & Grönt", seeds[0].Name)
	assert.Equal(t, "78-mejeri", seeds[1].ID)
}

func TestDiscoverSeeds_NoLinks(t *testing.T) {
	_, err := DiscoverSeeds(strings.NewReader(`<html><body><p>nothing</p></body></html>`), "/se/categories/")
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected *float64
	}{
		{name: "decimal point", raw: "24.95", expected: float64Ptr(24.95)},
		{name: "decimal comma", raw: "24,95", expected: float64Ptr(24.95)},
		{name: "thousands with space", raw: "1 024,95", expected: float64Ptr(1024.95)},
		{name: "zero is a price", raw: "0", expected: float64Ptr(0)},
		{name: "empty is no price", raw: "", expected: nil},
		{name: "garbage is no price", raw: "n/a", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAmount(tt.raw)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.expected, *got, 0.001)
		})
	}
}

func float64Ptr(v float64) *float64 { return &v }
