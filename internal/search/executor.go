package search

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gemfinder/backend/internal/research"
	"github.com/gemfinder/backend/pkg/logger"
)

// ProgressFunc receives research progress events for streaming to clients.
type ProgressFunc func(event, message string, data map[string]interface{})

// Observer receives per-call search telemetry. Methods must be cheap;
// they run on the fan-out goroutines.
type Observer interface {
	RecordSearchQuery(provider string)
	RecordProviderFailure(provider string)
}

type ExecutorConfig struct {
	ResultsPerQuery int
	MaxInFlight     int
	QueryTimeout    time.Duration
	// FailoverAfter is the number of primary-provider failures tolerated in
	// one run before remaining calls switch to the fallback provider.
	FailoverAfter int
}

// Executor fans a research plan out across the web-search capability. Every
// planned query runs concurrently under a bounded in-flight limit; failed or
// timed-out queries contribute zero documents and never fail the run.
type Executor struct {
	primary  Provider
	fallback Provider
	cfg      ExecutorConfig
	observer Observer
}

func NewExecutor(primary, fallback Provider, cfg ExecutorConfig) *Executor {
	if cfg.ResultsPerQuery == 0 {
		cfg.ResultsPerQuery = 6
	}
	if cfg.MaxInFlight == 0 {
		cfg.MaxInFlight = 8
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if cfg.FailoverAfter == 0 {
		cfg.FailoverAfter = 2
	}
	return &Executor{primary: primary, fallback: fallback, cfg: cfg}
}

// WithObserver attaches search telemetry. Must be called before Execute.
func (e *Executor) WithObserver(o Observer) *Executor {
	e.observer = o
	return e
}

type queryResult struct {
	query research.PhaseQuery
	docs  []research.Document
}

// Execute runs every planned query and returns the collected corpus. Each
// task writes only its own result slot; the corpus is assembled after fan-in,
// preserving single-call document order within a phase.
func (e *Executor) Execute(ctx context.Context, plan *research.Plan, progress ProgressFunc) *research.Corpus {
	results := make([]queryResult, len(plan.Queries))

	var primaryFailures atomic.Int32
	var failedOver atomic.Bool

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxInFlight)

	start := time.Now()
	logger.Info("Executing research plan",
		zap.String("category", plan.Category),
		zap.Int("queries", len(plan.Queries)),
	)

	for i, pq := range plan.Queries {
		i, pq := i, pq
		g.Go(func() error {
			results[i] = queryResult{
				query: pq,
				docs:  e.runQuery(ctx, pq, &primaryFailures, &failedOver, progress),
			}
			// search failures are tolerated, never propagated
			return nil
		})
	}

	g.Wait()

	corpus := research.NewCorpus()
	for _, r := range results {
		corpus.Executed = append(corpus.Executed, r.query)
		if len(r.docs) > 0 {
			corpus.ByPhase[r.query.Phase] = append(corpus.ByPhase[r.query.Phase], r.docs...)
		}
	}

	logger.Info("Research plan executed",
		zap.String("category", plan.Category),
		zap.Int("documents", corpus.TotalDocuments()),
		zap.Int("unique_sources", corpus.UniqueURLs()),
		zap.Duration("elapsed", time.Since(start)),
	)

	return corpus
}

func (e *Executor) runQuery(ctx context.Context, pq research.PhaseQuery, primaryFailures *atomic.Int32, failedOver *atomic.Bool, progress ProgressFunc) []research.Document {
	if ctx.Err() != nil {
		return nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	if progress != nil {
		progress("search_query", pq.Query, map[string]interface{}{
			"phase": string(pq.Phase),
			"query": pq.Query,
		})
	}

	provider := e.pickProvider(failedOver)
	docs, err := e.searchWith(queryCtx, provider, pq.Query)
	if err == nil {
		return docs
	}

	logger.Warn("Search query failed",
		zap.String("provider", provider.Name()),
		zap.String("phase", string(pq.Phase)),
		zap.String("query", pq.Query),
		zap.Error(err),
	)

	if provider == e.primary {
		if primaryFailures.Add(1) >= int32(e.cfg.FailoverAfter) && e.fallback != nil && failedOver.CompareAndSwap(false, true) {
			logger.Warn("Primary search provider failing over",
				zap.String("from", e.primary.Name()),
				zap.String("to", e.fallback.Name()),
			)
		}

		// give this query one shot on the fallback before zero-filling
		if e.fallback != nil && queryCtx.Err() == nil {
			docs, err = e.searchWith(queryCtx, e.fallback, pq.Query)
			if err == nil {
				return docs
			}
			logger.Warn("Fallback search failed",
				zap.String("provider", e.fallback.Name()),
				zap.String("query", pq.Query),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (e *Executor) searchWith(ctx context.Context, provider Provider, q string) ([]research.Document, error) {
	if e.observer != nil {
		e.observer.RecordSearchQuery(provider.Name())
	}
	docs, err := provider.Search(ctx, q, e.cfg.ResultsPerQuery)
	if err != nil && e.observer != nil {
		e.observer.RecordProviderFailure(provider.Name())
	}
	return docs, err
}

func (e *Executor) pickProvider(failedOver *atomic.Bool) Provider {
	if failedOver.Load() && e.fallback != nil {
		return e.fallback
	}
	return e.primary
}
