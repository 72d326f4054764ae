package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/gemfinder/backend/internal/catalog"
	"github.com/gemfinder/backend/internal/storage/models"
	"github.com/gemfinder/backend/pkg/logger"
)

// Client is the durable store for research results and popular-term
// counters.
type Client struct {
	db  *sql.DB
	log *zap.Logger
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	// sqlite handles one writer at a time
	db.SetMaxOpenConns(1)

	return &Client{
		db:  db,
		log: logger.GetLogger().With(zap.String("component", "sqlite")),
	}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS search_queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	normalized_key TEXT NOT NULL UNIQUE,
	original_query TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	metrics_json TEXT NOT NULL,
	search_queries_json TEXT NOT NULL DEFAULT '[]',
	sources_by_phase_json TEXT NOT NULL DEFAULT '{}',
	insights_json TEXT NOT NULL DEFAULT '{}',
	access_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_accessed_at DATETIME
);

CREATE TABLE IF NOT EXISTS products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	brand TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	tier TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	image_url TEXT NOT NULL DEFAULT '',
	upfront_price REAL NOT NULL,
	lifespan_years REAL NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(name, brand, category)
);

CREATE TABLE IF NOT EXISTS search_query_products (
	search_query_id INTEGER NOT NULL REFERENCES search_queries(id) ON DELETE CASCADE,
	product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	tier TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (search_query_id, product_id)
);

CREATE TABLE IF NOT EXISTS popular_search_terms (
	term TEXT PRIMARY KEY,
	category TEXT NOT NULL DEFAULT '',
	search_count INTEGER NOT NULL DEFAULT 1,
	last_searched DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_search_queries_key ON search_queries(normalized_key);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
CREATE INDEX IF NOT EXISTS idx_popular_terms_count ON popular_search_terms(search_count DESC);
`

func (c *Client) InitSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	c.log.Info("sqlite schema initialized")
	return nil
}

type insightsPayload struct {
	KeyInsights []string `json:"key_insights,omitempty"`
	WhatToAvoid []string `json:"what_to_avoid,omitempty"`
}

// StoreResult persists a complete research run in one transaction: the
// query row, the product rows and the query-product links. A rerun for
// the same key replaces the previous catalog.
func (c *Client) StoreResult(ctx context.Context, originalQuery, category string, result *catalog.CachedResult) error {
	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	queriesJSON, err := json.Marshal(result.SearchQueries)
	if err != nil {
		return fmt.Errorf("failed to marshal search queries: %w", err)
	}
	phasesJSON, err := json.Marshal(result.SourcesByPhase)
	if err != nil {
		return fmt.Errorf("failed to marshal phase counts: %w", err)
	}
	insightsJSON, err := json.Marshal(insightsPayload{
		KeyInsights: result.KeyInsights,
		WhatToAvoid: result.WhatToAvoid,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal insights: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var queryID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO search_queries
			(normalized_key, original_query, category, metrics_json,
			 search_queries_json, sources_by_phase_json, insights_json,
			 access_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(normalized_key) DO UPDATE SET
			original_query = excluded.original_query,
			category = excluded.category,
			metrics_json = excluded.metrics_json,
			search_queries_json = excluded.search_queries_json,
			sources_by_phase_json = excluded.sources_by_phase_json,
			insights_json = excluded.insights_json,
			access_count = 0,
			created_at = excluded.created_at,
			last_accessed_at = NULL
		RETURNING id`,
		result.NormalizedKey, originalQuery, category, string(metricsJSON),
		string(queriesJSON), string(phasesJSON), string(insightsJSON),
		result.CreatedAt.UTC(),
	).Scan(&queryID)
	if err != nil {
		return fmt.Errorf("failed to upsert search query: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM search_query_products WHERE search_query_id = ?`, queryID); err != nil {
		return fmt.Errorf("failed to clear product links: %w", err)
	}

	position := 0
	for _, product := range result.Catalog.All() {
		payload, err := json.Marshal(product)
		if err != nil {
			return fmt.Errorf("failed to marshal product %q: %w", product.Name, err)
		}

		var productID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO products
				(name, brand, category, tier, payload_json, image_url,
				 upfront_price, lifespan_years)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name, brand, category) DO UPDATE SET
				tier = excluded.tier,
				payload_json = excluded.payload_json,
				image_url = excluded.image_url,
				upfront_price = excluded.upfront_price,
				lifespan_years = excluded.lifespan_years
			RETURNING id`,
			product.Name, product.Brand, product.Category, string(product.Tier),
			string(payload), product.ImageURL,
			product.ValueMetrics.UpfrontPrice, product.ValueMetrics.ExpectedLifespanYears,
		).Scan(&productID)
		if err != nil {
			return fmt.Errorf("failed to upsert product %q: %w", product.Name, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO search_query_products (search_query_id, product_id, tier, position)
			VALUES (?, ?, ?, ?)`,
			queryID, productID, string(product.Tier), position); err != nil {
			return fmt.Errorf("failed to link product %q: %w", product.Name, err)
		}
		position++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}

	c.log.Info("research result stored",
		zap.String("key", result.NormalizedKey),
		zap.Int("products", position))
	return nil
}

// GetCachedResult loads a full research run by normalized key. A miss
// returns (nil, nil).
func (c *Client) GetCachedResult(ctx context.Context, key string) (*catalog.CachedResult, error) {
	var row models.SearchQueryRow
	var lastAccessed sql.NullTime
	err := c.db.QueryRowContext(ctx, `
		SELECT id, metrics_json, search_queries_json, sources_by_phase_json,
		       insights_json, access_count, created_at, last_accessed_at
		FROM search_queries WHERE normalized_key = ?`, key).Scan(
		&row.ID, &row.MetricsJSON, &row.SearchQueriesJSON, &row.SourcesByPhaseJSON,
		&row.InsightsJSON, &row.AccessCount, &row.CreatedAt, &lastAccessed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cached result: %w", err)
	}

	result := &catalog.CachedResult{
		NormalizedKey: key,
		AccessCount:   row.AccessCount,
		CreatedAt:     row.CreatedAt,
	}
	if lastAccessed.Valid {
		result.LastAccessedAt = lastAccessed.Time
	}
	if err := json.Unmarshal([]byte(row.MetricsJSON), &result.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(row.SearchQueriesJSON), &result.SearchQueries); err != nil {
		return nil, fmt.Errorf("failed to decode search queries: %w", err)
	}
	if err := json.Unmarshal([]byte(row.SourcesByPhaseJSON), &result.SourcesByPhase); err != nil {
		return nil, fmt.Errorf("failed to decode phase counts: %w", err)
	}
	var insights insightsPayload
	if err := json.Unmarshal([]byte(row.InsightsJSON), &insights); err != nil {
		return nil, fmt.Errorf("failed to decode insights: %w", err)
	}
	result.KeyInsights = insights.KeyInsights
	result.WhatToAvoid = insights.WhatToAvoid

	rows, err := c.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.brand, p.category, p.tier, p.payload_json,
			p.image_url, p.upfront_price, p.lifespan_years, p.created_at
		FROM search_query_products sqp
		JOIN products p ON p.id = sqp.product_id
		WHERE sqp.search_query_id = ?
		ORDER BY sqp.position`, row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query linked products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pr models.ProductRow
		if err := rows.Scan(&pr.ID, &pr.Name, &pr.Brand, &pr.Category, &pr.Tier,
			&pr.PayloadJSON, &pr.ImageURL, &pr.UpfrontPrice, &pr.LifespanYears, &pr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		var product catalog.Product
		if err := json.Unmarshal([]byte(pr.PayloadJSON), &product); err != nil {
			return nil, fmt.Errorf("failed to decode product: %w", err)
		}
		switch product.Tier {
		case catalog.TierGood:
			result.Catalog.Good = append(result.Catalog.Good, product)
		case catalog.TierBetter:
			result.Catalog.Better = append(result.Catalog.Better, product)
		case catalog.TierBest:
			result.Catalog.Best = append(result.Catalog.Best, product)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product rows: %w", err)
	}
	return result, nil
}

// RecordHit bumps the access counter and hit timestamp for a cached key.
func (c *Client) RecordHit(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE search_queries
		SET access_count = access_count + 1, last_accessed_at = ?
		WHERE normalized_key = ?`, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("failed to record cache hit: %w", err)
	}
	return nil
}

// TrackPopularTerm increments the search counter for a normalized term.
func (c *Client) TrackPopularTerm(ctx context.Context, term, category string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO popular_search_terms (term, category, search_count, last_searched)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(term) DO UPDATE SET
			search_count = search_count + 1,
			category = excluded.category,
			last_searched = excluded.last_searched`,
		term, category, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to track popular term: %w", err)
	}
	return nil
}

// ListPopularTerms returns the most searched terms, busiest first.
func (c *Client) ListPopularTerms(ctx context.Context, limit int) ([]models.PopularTermRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT term, category, search_count, last_searched
		FROM popular_search_terms
		ORDER BY search_count DESC, last_searched DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list popular terms: %w", err)
	}
	defer rows.Close()

	var terms []models.PopularTermRow
	for rows.Next() {
		var t models.PopularTermRow
		if err := rows.Scan(&t.Term, &t.Category, &t.SearchCount, &t.LastSearched); err != nil {
			return nil, fmt.Errorf("failed to scan popular term: %w", err)
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}
