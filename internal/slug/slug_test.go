package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "swedish diacritics", input: "Frukt & Grönt", expected: "frukt-gront"},
		{name: "kott chark fagel", input: "Kött, Chark & Fågel", expected: "kott-chark-fagel"},
		{name: "already clean", input: "dryck", expected: "dryck"},
		{name: "path separators", input: "frukt-gront/applen-paron", expected: "frukt-gront-applen-paron"},
		{name: "digits kept", input: "Coca-Cola 1,5 l", expected: "coca-cola-1-5-l"},
		{name: "leading and trailing junk", input: "  --Äpple--  ", expected: "apple"},
		{name: "empty", input: "", expected: ""},
		{name: "only junk", input: "&&&", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Make(tt.input))
		})
	}
}
