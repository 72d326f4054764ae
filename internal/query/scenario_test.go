package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemfinder/backend/internal/catalog"
	"github.com/gemfinder/backend/internal/planner"
	"github.com/gemfinder/backend/internal/research"
	"github.com/gemfinder/backend/internal/search"
	"github.com/gemfinder/backend/internal/synthesis"
	"github.com/gemfinder/backend/pkg/config"
)

// scenarioPlanner emits an 11-query plan: 2 queries per phase plus an
// extra value_synthesis durability query.
type scenarioPlanner struct{ calls int }

func (p *scenarioPlanner) Plan(ctx context.Context, category string, userCtx *planner.UserContext) (*research.Plan, error) {
	p.calls++
	plan := &research.Plan{Category: category}
	for _, phase := range research.Phases {
		for i := 0; i < 2; i++ {
			plan.Queries = append(plan.Queries, research.PhaseQuery{
				Phase: phase,
				Query: fmt.Sprintf("%s %s %d", category, phase, i),
			})
		}
	}
	plan.Queries = append(plan.Queries, research.PhaseQuery{
		Phase: research.PhaseValueSynthesis,
		Query: category + " durability how many years",
	})
	return plan, nil
}

// scenarioSearcher yields 4 docs for the first 5 queries and 3 for
// each of the remaining 6, 38 documents in total.
type scenarioSearcher struct{ calls int }

func (s *scenarioSearcher) Execute(ctx context.Context, plan *research.Plan, progress search.ProgressFunc) *research.Corpus {
	s.calls++
	corpus := research.NewCorpus()
	for qi, pq := range plan.Queries {
		corpus.Executed = append(corpus.Executed, pq)
		perQuery := 3
		if qi < 5 {
			perQuery = 4
		}
		for d := 0; d < perQuery; d++ {
			host := "www.wirecutter.com"
			if d%2 == 0 {
				host = "www.reddit.com"
			}
			corpus.ByPhase[pq.Phase] = append(corpus.ByPhase[pq.Phase], research.Document{
				URL:   fmt.Sprintf("https://%s/%d/%d", host, qi, d),
				Title: pq.Query,
			})
		}
	}
	return corpus
}

type scenarioSynthesizer struct{ calls int }

func (s *scenarioSynthesizer) Synthesize(ctx context.Context, category string, corpus *research.Corpus) (*synthesis.Result, error) {
	s.calls++
	mk := func(name string, tier catalog.Tier, price float64) catalog.Product {
		m, _ := catalog.CalculateValueMetrics(price, 12)
		return catalog.Product{Name: name, Tier: tier, Category: category, ValueMetrics: m}
	}
	return &synthesis.Result{
		Catalog: catalog.TierCatalog{
			Good:   []catalog.Product{mk("g1", catalog.TierGood, 40), mk("g2", catalog.TierGood, 45), mk("g3", catalog.TierGood, 50)},
			Better: []catalog.Product{mk("b1", catalog.TierBetter, 120), mk("b2", catalog.TierBetter, 140), mk("b3", catalog.TierBetter, 160)},
			Best:   []catalog.Product{mk("p1", catalog.TierBest, 240), mk("p2", catalog.TierBest, 260), mk("p3", catalog.TierBest, 300)},
		},
	}, nil
}

// Full research run for "chef knife": an 11-query plan collects 38
// documents, synthesis yields a 3/3/3 catalog, and a repeat query
// replays the provenance from cache without touching the pipeline.
func TestChefKnifeResearchScenario(t *testing.T) {
	p := &scenarioPlanner{}
	s := &scenarioSearcher{}
	syn := &scenarioSynthesizer{}
	mc := newMemoryCache()
	dc := NewDomainClassifier([]string{"reddit.com"}, []string{"wirecutter.com"})
	cfg := &config.Config{Pipeline: config.PipelineConfig{DeadlineSec: 60}}

	engine := NewEngine(p, s, syn, mc, dc, cfg)

	resp, err := engine.Search(context.Background(), Request{Query: "Chef Knife"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "chef knife", resp.NormalizedQuery)
	assert.False(t, resp.FromCache)

	assert.Equal(t, 38, resp.TotalSourcesAnalyzed)
	assert.Equal(t, 11, resp.RealSearchMetrics.SearchQueriesExecuted)
	assert.Equal(t, 38, resp.RealSearchMetrics.UniqueSources)
	assert.Len(t, resp.SearchQueries, 11)

	assert.Len(t, resp.Results.Good, 3)
	assert.Len(t, resp.Results.Better, 3)
	assert.Len(t, resp.Results.Best, 3)

	// tier prices are ordered
	assert.Less(t, resp.Results.Good[2].ValueMetrics.UpfrontPrice,
		resp.Results.Better[0].ValueMetrics.UpfrontPrice)
	assert.Less(t, resp.Results.Better[2].ValueMetrics.UpfrontPrice,
		resp.Results.Best[0].ValueMetrics.UpfrontPrice)

	phaseTotal := 0
	for _, phase := range research.Phases {
		phaseTotal += resp.SourcesByPhase[string(phase)]
	}
	assert.Equal(t, 38, phaseTotal)

	// replay from cache
	replay, err := engine.Search(context.Background(), Request{Query: "chef knife"}, nil)
	require.NoError(t, err)

	assert.True(t, replay.FromCache)
	assert.Equal(t, 38, replay.RealSearchMetrics.TotalSourcesAnalyzed)
	assert.Equal(t, 11, replay.RealSearchMetrics.SearchQueriesExecuted)
	assert.Equal(t, resp.RealSearchMetrics, replay.RealSearchMetrics)

	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 1, s.calls)
	assert.Equal(t, 1, syn.calls)
}
