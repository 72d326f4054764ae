package catalog

import (
	"fmt"
	"math"
	"time"
)

// Tier is a percentile-relative price/quality band within a category.
type Tier string

const (
	TierGood   Tier = "good"
	TierBetter Tier = "better"
	TierBest   Tier = "best"
)

var Tiers = []Tier{TierGood, TierBetter, TierBest}

func (t Tier) Valid() bool {
	return t == TierGood || t == TierBetter || t == TierBest
}

// ValueMetrics is the cost-of-ownership breakdown for a product.
// CostPerYear and CostPerDay are always derived from price and lifespan,
// never taken from model output.
type ValueMetrics struct {
	UpfrontPrice          float64 `json:"upfront_price"`
	ExpectedLifespanYears float64 `json:"expected_lifespan_years"`
	CostPerYear           float64 `json:"cost_per_year"`
	CostPerDay            float64 `json:"cost_per_day"`
}

// CalculateValueMetrics derives value metrics from price and lifespan.
func CalculateValueMetrics(price, lifespanYears float64) (ValueMetrics, error) {
	if price <= 0 {
		return ValueMetrics{}, fmt.Errorf("price must be greater than 0, got %v", price)
	}
	if lifespanYears <= 0 {
		return ValueMetrics{}, fmt.Errorf("lifespan must be greater than 0, got %v", lifespanYears)
	}

	costPerYear := price / lifespanYears
	return ValueMetrics{
		UpfrontPrice:          round2(price),
		ExpectedLifespanYears: round1(lifespanYears),
		CostPerYear:           round2(costPerYear),
		CostPerDay:            round2(costPerYear / 365),
	}, nil
}

// DurabilityData is the evidence-backed durability breakdown for a product.
// Score is 0-100: longevity 40, failure rate 25, repairability 20, materials 15.
type DurabilityData struct {
	Score                int      `json:"score"`
	Grade                string   `json:"grade"`
	AverageLifespanYears float64  `json:"average_lifespan_years"`
	RepairabilityScore   int      `json:"repairability_score"`
	FailurePoints        []string `json:"failure_points,omitempty"`
	DataSources          []string `json:"data_sources,omitempty"`
}

// PracticalMetrics captures day-to-day ownership characteristics.
type PracticalMetrics struct {
	CleaningTime  string `json:"cleaning_time,omitempty"`
	SetupTime     string `json:"setup_time,omitempty"`
	LearningCurve string `json:"learning_curve,omitempty"`
	Weight        string `json:"weight,omitempty"`
}

// WebSource is a research document cited as evidence for a product claim.
type WebSource struct {
	URL            string  `json:"url"`
	Title          string  `json:"title"`
	Snippet        string  `json:"snippet"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// PurchaseLink points at a retailer listing.
type PurchaseLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Product is a tier-scoped recommendation. Immutable once created; a later
// research run for the same key replaces the whole catalog.
type Product struct {
	Name             string            `json:"name"`
	Brand            string            `json:"brand"`
	Tier             Tier              `json:"tier"`
	Category         string            `json:"category"`
	Materials        []string          `json:"materials"`
	Characteristics  []string          `json:"characteristics"`
	KeyFeatures      []string          `json:"key_features"`
	TradeOffs        []string          `json:"trade_offs,omitempty"`
	BestFor          string            `json:"best_for"`
	WhyItsAGem       string            `json:"why_its_a_gem,omitempty"`
	MaintenanceLevel string            `json:"maintenance_level"`
	ImageURL         string            `json:"image_url,omitempty"`
	ValueMetrics     ValueMetrics      `json:"value_metrics"`
	Durability       *DurabilityData   `json:"durability,omitempty"`
	Practical        *PracticalMetrics `json:"practical_metrics,omitempty"`
	WebSources       []WebSource       `json:"web_sources,omitempty"`
	PurchaseLinks    []PurchaseLink    `json:"purchase_links,omitempty"`
}

// TierCatalog is a complete set of tiered recommendations for one category.
type TierCatalog struct {
	Good   []Product `json:"good"`
	Better []Product `json:"better"`
	Best   []Product `json:"best"`
}

// All returns every product across tiers, good first.
func (tc *TierCatalog) All() []Product {
	out := make([]Product, 0, len(tc.Good)+len(tc.Better)+len(tc.Best))
	out = append(out, tc.Good...)
	out = append(out, tc.Better...)
	out = append(out, tc.Best...)
	return out
}

// Empty reports whether no tier has any products.
func (tc *TierCatalog) Empty() bool {
	return len(tc.Good) == 0 && len(tc.Better) == 0 && len(tc.Best) == 0
}

// PhaseQueryEcho is a planned query replayed to the caller for transparency.
type PhaseQueryEcho struct {
	Phase string `json:"phase"`
	Query string `json:"query"`
}

// RealSearchMetrics is the provenance of the original research run. It is
// computed exactly once at synthesis time and replayed verbatim on every
// cache hit.
type RealSearchMetrics struct {
	TotalSourcesAnalyzed  int      `json:"total_sources_analyzed"`
	RedditThreads         int      `json:"reddit_threads"`
	ExpertReviews         int      `json:"expert_reviews"`
	SearchQueriesExecuted int      `json:"search_queries_executed"`
	SearchQueries         []string `json:"search_queries"`
	UniqueSources         int      `json:"unique_sources"`
}

// CharacteristicCount aggregates how many products share a characteristic,
// used by the UI for cross-product filtering.
type CharacteristicCount struct {
	Label        string   `json:"label"`
	Count        int      `json:"count"`
	ProductNames []string `json:"product_names"`
}

// CachedResult is the persisted outcome of one research run. AccessCount
// grows monotonically with hits and drives the freshness window. The cache
// key deliberately ignores max_price and user context; the stored catalog is
// filter-agnostic and filters apply on read.
type CachedResult struct {
	NormalizedKey  string            `json:"normalized_key"`
	Catalog        TierCatalog       `json:"catalog"`
	Metrics        RealSearchMetrics `json:"metrics"`
	SearchQueries  []PhaseQueryEcho  `json:"search_queries"`
	SourcesByPhase map[string]int    `json:"sources_by_phase"`
	KeyInsights    []string          `json:"key_insights,omitempty"`
	WhatToAvoid    []string          `json:"what_to_avoid,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	AccessCount    int               `json:"access_count"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
