package search

import (
	"context"

	"github.com/gemfinder/backend/internal/research"
)

// Provider is the web-search capability: return ranked documents for a query
// string. Implementations are expected to fail with an error rather than
// fabricate results; the executor owns failure tolerance.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, numResults int) ([]research.Document, error)
}
