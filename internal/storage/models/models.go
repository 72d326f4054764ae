package models

import "time"

// ProductRow is a product as persisted in sqlite. Structured fields
// are stored as JSON columns.
type ProductRow struct {
	ID            int64     `db:"id"`
	Name          string    `db:"name"`
	Brand         string    `db:"brand"`
	Category      string    `db:"category"`
	Tier          string    `db:"tier"`
	PayloadJSON   string    `db:"payload_json"`
	ImageURL      string    `db:"image_url"`
	UpfrontPrice  float64   `db:"upfront_price"`
	LifespanYears float64   `db:"lifespan_years"`
	CreatedAt     time.Time `db:"created_at"`
}

// SearchQueryRow is one cached research run keyed by the normalized
// query hash.
type SearchQueryRow struct {
	ID                 int64      `db:"id"`
	NormalizedKey      string     `db:"normalized_key"`
	OriginalQuery      string     `db:"original_query"`
	Category           string     `db:"category"`
	MetricsJSON        string     `db:"metrics_json"`
	SearchQueriesJSON  string     `db:"search_queries_json"`
	SourcesByPhaseJSON string     `db:"sources_by_phase_json"`
	InsightsJSON       string     `db:"insights_json"`
	AccessCount        int        `db:"access_count"`
	CreatedAt          time.Time  `db:"created_at"`
	LastAccessedAt     *time.Time `db:"last_accessed_at"`
}

// PopularTermRow tracks how often a normalized term has been searched.
type PopularTermRow struct {
	Term         string    `db:"term"`
	Category     string    `db:"category"`
	SearchCount  int       `db:"search_count"`
	LastSearched time.Time `db:"last_searched"`
}
