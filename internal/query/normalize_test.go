package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase", "Chef Knife", "chef knife"},
		{"trims edges", "  chef knife  ", "chef knife"},
		{"collapses interior whitespace", "chef \t  knife", "chef knife"},
		{"tabs and newlines", "cast\niron\tskillet", "cast iron skillet"},
		{"already normalized", "chef knife", "chef knife"},
		{"empty", "", ""},
		{"whitespace only", "   \t\n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Chef Knife", "  CAST   iron  Skillet ", "blender"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestCacheKeyEquivalentQueries(t *testing.T) {
	key := CacheKey("chef knife")
	assert.Equal(t, key, CacheKey("Chef Knife"))
	assert.Equal(t, key, CacheKey("  chef   KNIFE "))
	assert.NotEqual(t, key, CacheKey("paring knife"))
}
