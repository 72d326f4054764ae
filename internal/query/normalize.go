package query

import (
	"strings"

	"github.com/gemfinder/backend/pkg/utils"
)

// Normalize canonicalizes a user query for cache keying: lowercase,
// trimmed, with interior whitespace collapsed to single spaces.
// Normalize is idempotent.
func Normalize(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(q))), " ")
}

// CacheKey derives the cache key for a query. Filters such as max_price
// are deliberately excluded; the cached catalog is filter-agnostic.
func CacheKey(q string) string {
	return utils.HashString(Normalize(q))
}
