package query

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gemfinder/backend/internal/catalog"
	"github.com/gemfinder/backend/internal/planner"
	"github.com/gemfinder/backend/internal/research"
	"github.com/gemfinder/backend/internal/search"
	"github.com/gemfinder/backend/internal/synthesis"
	"github.com/gemfinder/backend/pkg/config"
	"github.com/gemfinder/backend/pkg/logger"
)

// Planner produces a phased research plan for a category.
type Planner interface {
	Plan(ctx context.Context, category string, userCtx *planner.UserContext) (*research.Plan, error)
}

// Searcher runs a plan's queries against the web.
type Searcher interface {
	Execute(ctx context.Context, plan *research.Plan, progress search.ProgressFunc) *research.Corpus
}

// Synthesizer turns a corpus into tiered recommendations.
type Synthesizer interface {
	Synthesize(ctx context.Context, category string, corpus *research.Corpus) (*synthesis.Result, error)
}

// ResultCache is the two-layer cache in front of the pipeline.
type ResultCache interface {
	Lookup(ctx context.Context, key string) *catalog.CachedResult
	RecordHit(ctx context.Context, key string)
	Store(ctx context.Context, originalQuery, category string, result *catalog.CachedResult)
}

// PopularityTracker records searched terms for the trending dropdown.
type PopularityTracker interface {
	Track(ctx context.Context, term string)
}

// Observer receives pipeline telemetry. All methods must be cheap.
type Observer interface {
	ObserveSearch(duration time.Duration, fromCache bool)
	RecordCacheLookup(hit bool)
	RecordSynthesisFailure()
}

// Request is one product research request.
type Request struct {
	Query           string  `json:"query"`
	MaxPrice        float64 `json:"max_price,omitempty"`
	ValuePreference string  `json:"value_preference,omitempty"`
}

// Response is the complete research payload returned to clients.
type Response struct {
	Query                 string                        `json:"query"`
	NormalizedQuery       string                        `json:"normalized_query"`
	RunID                 string                        `json:"run_id"`
	Results               catalog.TierCatalog           `json:"results"`
	KeyInsights           []string                      `json:"key_insights,omitempty"`
	WhatToAvoid           []string                      `json:"what_to_avoid,omitempty"`
	RealSearchMetrics     catalog.RealSearchMetrics     `json:"real_search_metrics"`
	SearchQueries         []catalog.PhaseQueryEcho      `json:"search_queries"`
	TotalSourcesAnalyzed  int                           `json:"total_sources_analyzed"`
	SourcesByPhase        map[string]int                `json:"sources_by_phase"`
	Characteristics       []catalog.CharacteristicCount `json:"characteristics,omitempty"`
	ProcessingTimeSeconds float64                       `json:"processing_time_seconds"`
	FromCache             bool                          `json:"from_cache"`
}

// synthesisGrace bounds the synthesis call made after the pipeline
// deadline already expired with a partial corpus in hand.
const synthesisGrace = 90 * time.Second

// Engine orchestrates the research pipeline: normalize, cache lookup,
// plan, search, synthesize, store.
type Engine struct {
	planner    Planner
	searcher   Searcher
	synthesis  Synthesizer
	cache      ResultCache
	classifier *DomainClassifier
	popular    PopularityTracker
	observer   Observer
	cfg        *config.Config
	log        *zap.Logger
}

func NewEngine(p Planner, s Searcher, syn Synthesizer, c ResultCache, dc *DomainClassifier, cfg *config.Config) *Engine {
	return &Engine{
		planner:    p,
		searcher:   s,
		synthesis:  syn,
		cache:      c,
		classifier: dc,
		cfg:        cfg,
		log:        logger.GetLogger().With(zap.String("component", "query_engine")),
	}
}

// WithPopularity attaches a popularity tracker.
func (e *Engine) WithPopularity(t PopularityTracker) *Engine {
	e.popular = t
	return e
}

// WithObserver attaches pipeline telemetry.
func (e *Engine) WithObserver(o Observer) *Engine {
	e.observer = o
	return e
}

// Search answers a research request, from cache when possible. Only a
// synthesis failure surfaces as an error; search and cache trouble
// degrade silently.
func (e *Engine) Search(ctx context.Context, req Request, progress search.ProgressFunc) (*Response, error) {
	start := time.Now()
	runID := uuid.New().String()
	normalized := Normalize(req.Query)
	key := CacheKey(req.Query)

	log := e.log.With(
		zap.String("run_id", runID),
		zap.String("query", normalized),
		zap.String("cache_key", key))

	ctx, cancel := context.WithTimeout(ctx, e.cfg.PipelineDeadline())
	defer cancel()

	if e.popular != nil {
		e.popular.Track(ctx, normalized)
	}

	if cached := e.cache.Lookup(ctx, key); cached != nil {
		log.Info("cache hit", zap.Int("access_count", cached.AccessCount))
		e.cache.RecordHit(ctx, key)
		if e.observer != nil {
			e.observer.RecordCacheLookup(true)
			e.observer.ObserveSearch(time.Since(start), true)
		}
		emit(progress, "cache_hit", "Found recent research for this query", nil)
		return e.respond(req, normalized, runID, cached, true, start), nil
	}
	if e.observer != nil {
		e.observer.RecordCacheLookup(false)
	}
	log.Info("cache miss, starting research")

	emit(progress, "planning", "Building research plan", map[string]interface{}{"query": normalized})
	plan, err := e.planner.Plan(ctx, normalized, &planner.UserContext{
		ValuePreference: req.ValuePreference,
		MaxPrice:        req.MaxPrice,
	})
	if err != nil {
		// planner falls back internally; an error here means the
		// context is gone
		return nil, fmt.Errorf("research planning: %w", err)
	}
	emit(progress, "plan_ready", fmt.Sprintf("Researching across %d searches", len(plan.Queries)),
		map[string]interface{}{"query_count": len(plan.Queries)})

	corpus := e.searcher.Execute(ctx, plan, progress)
	log.Info("search executed",
		zap.Int("documents", corpus.TotalDocuments()),
		zap.Int("queries", len(corpus.Executed)))

	emit(progress, "synthesizing", "Analyzing findings", map[string]interface{}{
		"total_sources": corpus.TotalDocuments(),
	})
	// if the deadline expired mid-search, the partial corpus is still
	// worth synthesizing; give that one call a grace window
	synthCtx := ctx
	if ctx.Err() != nil && !corpus.Empty() {
		var cancelSynth context.CancelFunc
		synthCtx, cancelSynth = context.WithTimeout(context.WithoutCancel(ctx), synthesisGrace)
		defer cancelSynth()
	}
	synthResult, err := e.synthesis.Synthesize(synthCtx, normalized, corpus)
	if err != nil {
		if e.observer != nil {
			e.observer.RecordSynthesisFailure()
		}
		log.Error("synthesis failed", zap.Error(err))
		return nil, err
	}

	cached := &catalog.CachedResult{
		NormalizedKey:  key,
		Catalog:        synthResult.Catalog,
		Metrics:        e.classifier.ComputeMetrics(corpus),
		SearchQueries:  echoQueries(corpus.Executed),
		SourcesByPhase: phaseCounts(corpus),
		KeyInsights:    synthResult.KeyInsights,
		WhatToAvoid:    synthResult.WhatToAvoid,
		CreatedAt:      time.Now().UTC(),
		AccessCount:    0,
	}
	// persist even when the pipeline deadline has just expired
	storeCtx, cancelStore := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancelStore()
	e.cache.Store(storeCtx, req.Query, normalized, cached)

	if e.observer != nil {
		e.observer.ObserveSearch(time.Since(start), false)
	}
	resp := e.respond(req, normalized, runID, cached, false, start)
	emit(progress, "complete", "Research complete", map[string]interface{}{
		"total_sources": resp.TotalSourcesAnalyzed,
	})
	return resp, nil
}

func (e *Engine) respond(req Request, normalized, runID string, cached *catalog.CachedResult, fromCache bool, start time.Time) *Response {
	results := cached.Catalog
	if req.MaxPrice > 0 {
		results = filterByPrice(results, req.MaxPrice)
	}

	return &Response{
		Query:                 req.Query,
		NormalizedQuery:       normalized,
		RunID:                 runID,
		Results:               results,
		KeyInsights:           cached.KeyInsights,
		WhatToAvoid:           cached.WhatToAvoid,
		RealSearchMetrics:     cached.Metrics,
		SearchQueries:         cached.SearchQueries,
		TotalSourcesAnalyzed:  cached.Metrics.TotalSourcesAnalyzed,
		SourcesByPhase:        cached.SourcesByPhase,
		Characteristics:       AggregateCharacteristics(results.All()),
		ProcessingTimeSeconds: math.Round(time.Since(start).Seconds()*100) / 100,
		FromCache:             fromCache,
	}
}

func emit(progress search.ProgressFunc, event, message string, data map[string]interface{}) {
	if progress != nil {
		progress(event, message, data)
	}
}

func echoQueries(executed []research.PhaseQuery) []catalog.PhaseQueryEcho {
	echoes := make([]catalog.PhaseQueryEcho, 0, len(executed))
	for _, pq := range executed {
		echoes = append(echoes, catalog.PhaseQueryEcho{
			Phase: string(pq.Phase),
			Query: pq.Query,
		})
	}
	return echoes
}

func phaseCounts(corpus *research.Corpus) map[string]int {
	counts := make(map[string]int, len(research.Phases))
	for _, phase := range research.Phases {
		counts[string(phase)] = len(corpus.ByPhase[phase])
	}
	return counts
}

// filterByPrice drops products above the caller's budget. The filter is
// applied to the response only; the cached catalog stays complete.
func filterByPrice(tc catalog.TierCatalog, maxPrice float64) catalog.TierCatalog {
	keep := func(products []catalog.Product) []catalog.Product {
		var out []catalog.Product
		for _, p := range products {
			if p.ValueMetrics.UpfrontPrice <= maxPrice {
				out = append(out, p)
			}
		}
		return out
	}
	return catalog.TierCatalog{
		Good:   keep(tc.Good),
		Better: keep(tc.Better),
		Best:   keep(tc.Best),
	}
}

// AggregateCharacteristics counts shared characteristics across
// products for cross-product filtering in the UI.
func AggregateCharacteristics(products []catalog.Product) []catalog.CharacteristicCount {
	type bucket struct {
		label string
		names []string
	}
	buckets := make(map[string]*bucket)
	for _, p := range products {
		for _, c := range p.Characteristics {
			norm := strings.ToLower(strings.TrimSpace(c))
			if norm == "" {
				continue
			}
			b, ok := buckets[norm]
			if !ok {
				b = &bucket{label: strings.TrimSpace(c)}
				buckets[norm] = b
			}
			b.names = append(b.names, p.Name)
		}
	}

	counts := make([]catalog.CharacteristicCount, 0, len(buckets))
	for _, b := range buckets {
		counts = append(counts, catalog.CharacteristicCount{
			Label:        b.label,
			Count:        len(b.names),
			ProductNames: b.names,
		})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Label < counts[j].Label
	})
	return counts
}
