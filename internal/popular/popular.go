package popular

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/gemfinder/backend/internal/storage/models"
	"github.com/gemfinder/backend/pkg/logger"
)

const (
	listCacheTTL = time.Hour
	defaultLimit = 10
)

// TermStore persists popular-term counters.
type TermStore interface {
	TrackPopularTerm(ctx context.Context, term, category string) error
	ListPopularTerms(ctx context.Context, limit int) ([]models.PopularTermRow, error)
}

// PopularTerm is a trending search suggestion.
type PopularTerm struct {
	Term        string `json:"term"`
	Category    string `json:"category"`
	SearchCount int    `json:"search_count"`
}

// Tracker records searched terms and serves the trending dropdown from
// an hourly refreshed in-memory list.
type Tracker struct {
	store TermStore
	log   *zap.Logger

	mu        sync.Mutex
	cached    []PopularTerm
	refreshed time.Time
}

func NewTracker(store TermStore) *Tracker {
	return &Tracker{
		store: store,
		log:   logger.GetLogger().With(zap.String("component", "popular")),
	}
}

// Track records one search of term. Best effort.
func (t *Tracker) Track(ctx context.Context, term string) {
	term = strings.TrimSpace(term)
	if term == "" {
		return
	}
	if err := t.store.TrackPopularTerm(ctx, term, Classify(term)); err != nil {
		t.log.Warn("failed to track popular term", zap.String("term", term), zap.Error(err))
	}
	t.mu.Lock()
	t.refreshed = time.Time{} // invalidate the dropdown list
	t.mu.Unlock()
}

// List returns the most searched terms, served from memory for up to
// an hour between refreshes.
func (t *Tracker) List(ctx context.Context, limit int) ([]PopularTerm, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if time.Since(t.refreshed) < listCacheTTL && len(t.cached) >= limit {
		return t.cached[:limit], nil
	}

	rows, err := t.store.ListPopularTerms(ctx, limit)
	if err != nil {
		return nil, err
	}
	terms := make([]PopularTerm, 0, len(rows))
	for _, row := range rows {
		terms = append(terms, PopularTerm{
			Term:        row.Term,
			Category:    row.Category,
			SearchCount: row.SearchCount,
		})
	}
	t.cached = terms
	t.refreshed = time.Now()
	return terms, nil
}

var categoryKeywords = map[string][]string{
	"cookware":   {"pan", "pot", "skillet", "dutch oven", "wok", "saucepan", "griddle", "stockpot"},
	"knives":     {"knife", "knives", "cleaver", "santoku", "paring", "chef"},
	"bakeware":   {"baking", "sheet pan", "loaf", "cake pan", "muffin", "pie dish", "bakeware"},
	"tools":      {"spatula", "whisk", "tongs", "peeler", "grater", "thermometer", "scale", "opener"},
	"storage":    {"container", "storage", "jar", "canister", "wrap"},
	"appliances": {"blender", "mixer", "toaster", "kettle", "processor", "grinder", "machine", "maker"},
}

// Categories lists every category the classifier can assign.
func Categories() []string {
	return []string{"cookware", "knives", "bakeware", "tools", "storage", "appliances", "general"}
}

// Classify assigns a search term to a product category. Keyword
// matching runs first; when a multi-word term has no keyword hit, the
// head noun of the phrase is tried as well.
func Classify(term string) string {
	lower := strings.ToLower(term)
	if cat := matchKeywords(lower); cat != "" {
		return cat
	}

	doc, err := prose.NewDocument(lower)
	if err != nil {
		return "general"
	}
	var lastNoun string
	for _, tok := range doc.Tokens() {
		if strings.HasPrefix(tok.Tag, "NN") {
			lastNoun = tok.Text
		}
	}
	if lastNoun != "" {
		if cat := matchKeywords(lastNoun); cat != "" {
			return cat
		}
	}
	return "general"
}

// bakeware runs before cookware so "sheet pan" style terms are not
// claimed by the generic "pan" keyword
var categoryOrder = []string{"knives", "bakeware", "cookware", "appliances", "tools", "storage"}

func matchKeywords(s string) string {
	words := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		words[w] = true
	}
	for _, category := range categoryOrder {
		for _, kw := range categoryKeywords[category] {
			if strings.Contains(kw, " ") {
				if strings.Contains(s, kw) {
					return category
				}
			} else if words[kw] || words[kw+"s"] {
				return category
			}
		}
	}
	return ""
}
