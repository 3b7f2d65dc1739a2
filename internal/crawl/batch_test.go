package crawl

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		size      int
		wantSizes []int
	}{
		{name: "127 ids in chunks of 50", total: 127, size: 50, wantSizes: []int{50, 50, 27}},
		{name: "exact multiple", total: 100, size: 50, wantSizes: []int{50, 50}},
		{name: "fewer ids than one chunk", total: 3, size: 50, wantSizes: []int{3}},
		{name: "single id", total: 1, size: 50, wantSizes: []int{1}},
		{name: "empty input", total: 0, size: 50, wantSizes: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := make([]string, tt.total)
			for i := range ids {
				ids[i] = fmt.Sprintf("p%d", i)
			}

			chunks := Chunk(ids, tt.size)

			assert.Len(t, chunks, len(tt.wantSizes))
			for i, want := range tt.wantSizes {
				assert.Len(t, chunks[i], want)
			}

			// Every id appears in exactly one chunk, in order.
			flat := make([]string, 0, tt.total)
			for _, chunk := range chunks {
				flat = append(flat, chunk...)
			}
			assert.Equal(t, ids, flat)
		})
	}
}

func TestChunk_InvalidSize(t *testing.T) {
	assert.Nil(t, Chunk([]string{"a", "b"}, 0))
	assert.Nil(t, Chunk([]string{"a", "b"}, -1))
}
