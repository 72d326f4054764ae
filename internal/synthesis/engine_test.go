package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemfinder/backend/internal/catalog"
	"github.com/gemfinder/backend/internal/llm"
	"github.com/gemfinder/backend/internal/research"
)

type fakeGenerator struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeGenerator) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	content := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return &llm.CompletionResponse{Content: content}, nil
}

func testCorpus() *research.Corpus {
	corpus := research.NewCorpus()
	corpus.ByPhase[research.PhaseProductIdentification] = []research.Document{
		{URL: "https://www.reddit.com/r/BIFL/1", Title: "Victorinox thread", Snippet: "still sharp after a decade", ImageURL: "https://img.example.com/v.jpg"},
		{URL: "https://www.seriouseats.com/knives", Title: "Knife review", Snippet: "the Mac held its edge"},
	}
	corpus.ByPhase[research.PhaseValueSynthesis] = []research.Document{
		{URL: "https://www.reddit.com/r/Cooking/2", Title: "Lifespan thread", Snippet: "mine lasted 20 years"},
	}
	corpus.Executed = []research.PhaseQuery{
		{Phase: research.PhaseProductIdentification, Query: "best chef knife reddit"},
	}
	return corpus
}

func synthesisFixture() string {
	payload := map[string]interface{}{
		"good_tier": []map[string]interface{}{{
			"name": "Victorinox Fibrox 8\"", "brand": "Victorinox",
			"price": 45.0, "lifespan_years": 10,
			"materials":         []string{"stainless steel"},
			"characteristics":   []string{"lightweight", "low maintenance"},
			"key_features":      []string{"grippy handle"},
			"best_for":          "everyday home cooking",
			"why_its_a_gem":     "professional kitchens buy these by the box",
			"maintenance_level": "low",
			"source_urls":       []string{"https://www.reddit.com/r/BIFL/1"},
		}},
		"better_tier": []map[string]interface{}{{
			"name": "Mac MTH-80", "brand": "Mac",
			"price": 145.0, "lifespan_years": "15-25 years",
			"materials":         []string{"high-carbon stainless"},
			"characteristics":   []string{"lightweight", "razor sharp"},
			"maintenance_level": "medium",
			"source_urls":       []string{"https://www.seriouseats.com/knives"},
		}},
		"best_tier": []map[string]interface{}{{
			"name": "Takamura R2", "brand": "Takamura",
			"price": 250.0, "lifespan_years": "30+",
			"materials":         []string{"carbon steel"},
			"characteristics":   []string{"razor sharp"},
			"maintenance_level": "high",
			"source_urls":       []string{"https://www.reddit.com/r/Cooking/2"},
		}},
		"key_insights": []string{"edge retention matters more than brand"},
		"what_to_avoid": []string{"knife block sets"},
	}
	out, _ := json.Marshal(payload)
	return string(out)
}

func TestSynthesizeBuildsCatalog(t *testing.T) {
	gen := &fakeGenerator{responses: []string{synthesisFixture()}}
	engine := New(gen, Config{})

	result, err := engine.Synthesize(context.Background(), "chef knife", testCorpus())
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)

	require.Len(t, result.Catalog.Good, 1)
	require.Len(t, result.Catalog.Better, 1)
	require.Len(t, result.Catalog.Best, 1)

	good := result.Catalog.Good[0]
	assert.Equal(t, "Victorinox Fibrox 8\"", good.Name)
	assert.Equal(t, catalog.TierGood, good.Tier)
	assert.Equal(t, "chef knife", good.Category)

	// value metrics are always recomputed from price and lifespan
	assert.InDelta(t, 4.5, good.ValueMetrics.CostPerYear, 0.005)
	assert.InDelta(t, 0.01, good.ValueMetrics.CostPerDay, 0.005)

	assert.Equal(t, []string{"edge retention matters more than brand"}, result.KeyInsights)
}

func TestSynthesizeConservativeLifespanParsing(t *testing.T) {
	gen := &fakeGenerator{responses: []string{synthesisFixture()}}
	engine := New(gen, Config{})

	result, err := engine.Synthesize(context.Background(), "chef knife", testCorpus())
	require.NoError(t, err)

	// "15-25 years" resolves to the low end, "30+" to 30
	assert.InDelta(t, 15, result.Catalog.Better[0].ValueMetrics.ExpectedLifespanYears, 0.01)
	assert.InDelta(t, 30, result.Catalog.Best[0].ValueMetrics.ExpectedLifespanYears, 0.01)
}

func TestSynthesizeMatchesSourcesAndImages(t *testing.T) {
	gen := &fakeGenerator{responses: []string{synthesisFixture()}}
	engine := New(gen, Config{})

	result, err := engine.Synthesize(context.Background(), "chef knife", testCorpus())
	require.NoError(t, err)

	good := result.Catalog.Good[0]
	require.Len(t, good.WebSources, 1)
	assert.Equal(t, "Victorinox thread", good.WebSources[0].Title)
	// image inherited from the cited research document
	assert.Equal(t, "https://img.example.com/v.jpg", good.ImageURL)
}

func TestSynthesizeScoresDurability(t *testing.T) {
	gen := &fakeGenerator{responses: []string{synthesisFixture()}}
	engine := New(gen, Config{})

	result, err := engine.Synthesize(context.Background(), "chef knife", testCorpus())
	require.NoError(t, err)

	best := result.Catalog.Best[0]
	require.NotNil(t, best.Durability)
	assert.GreaterOrEqual(t, best.Durability.Score, 60)
	assert.LessOrEqual(t, best.Durability.Score, 100)
	assert.NotEmpty(t, best.Durability.Grade)
	assert.InDelta(t, 30, best.Durability.AverageLifespanYears, 0.01)
}

func TestSynthesizeEmptyCorpusFailsFast(t *testing.T) {
	gen := &fakeGenerator{responses: []string{synthesisFixture()}}
	engine := New(gen, Config{})

	_, err := engine.Synthesize(context.Background(), "chef knife", research.NewCorpus())
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.Equal(t, 0, gen.calls)
}

func TestSynthesizeRetriesOnceThenSucceeds(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"sorry, here are my thoughts...", synthesisFixture()}}
	engine := New(gen, Config{})

	result, err := engine.Synthesize(context.Background(), "chef knife", testCorpus())
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)
	assert.False(t, result.Catalog.Empty())
}

func TestSynthesizeFailsAfterRetry(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"not json"}}
	engine := New(gen, Config{})

	_, err := engine.Synthesize(context.Background(), "chef knife", testCorpus())
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.Equal(t, 2, gen.calls)
}

func TestSynthesizeRejectsInvalidProducts(t *testing.T) {
	invalid := func(mutate func(m map[string]interface{})) string {
		product := map[string]interface{}{
			"name": "Some Knife", "price": 50.0, "lifespan_years": 10,
			"source_urls": []string{"https://example.com"},
		}
		mutate(product)
		out, _ := json.Marshal(map[string]interface{}{
			"good_tier": []map[string]interface{}{product},
		})
		return string(out)
	}

	tests := []struct {
		name   string
		mutate func(m map[string]interface{})
	}{
		{"empty name", func(m map[string]interface{}) { m["name"] = "  " }},
		{"zero price", func(m map[string]interface{}) { m["price"] = 0.0 }},
		{"negative price", func(m map[string]interface{}) { m["price"] = -10.0 }},
		{"zero lifespan", func(m map[string]interface{}) { m["lifespan_years"] = 0 }},
		{"garbage lifespan", func(m map[string]interface{}) { m["lifespan_years"] = "unknown" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{responses: []string{invalid(tt.mutate)}}
			engine := New(gen, Config{})

			_, err := engine.Synthesize(context.Background(), "chef knife", testCorpus())
			assert.ErrorIs(t, err, ErrSynthesisFailed)
		})
	}
}

func TestSynthesizeGeneratorError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("provider down")}
	engine := New(gen, Config{})

	_, err := engine.Synthesize(context.Background(), "chef knife", testCorpus())
	assert.ErrorIs(t, err, ErrSynthesisFailed)
}

func TestEnforceTierOrderingRebandsByPrice(t *testing.T) {
	mk := func(name string, tier catalog.Tier, price float64) catalog.Product {
		return catalog.Product{
			Name: name, Tier: tier,
			ValueMetrics: catalog.ValueMetrics{UpfrontPrice: price},
		}
	}

	// model put the expensive product in good and the cheap one in best
	products := []catalog.Product{
		mk("expensive", catalog.TierGood, 300),
		mk("mid", catalog.TierBetter, 150),
		mk("cheap", catalog.TierBest, 40),
	}

	rebanded := enforceTierOrdering(products)

	byName := map[string]catalog.Tier{}
	for _, p := range rebanded {
		byName[p.Name] = p.Tier
	}
	assert.Equal(t, catalog.TierGood, byName["cheap"])
	assert.Equal(t, catalog.TierBetter, byName["mid"])
	assert.Equal(t, catalog.TierBest, byName["expensive"])
}

func TestEnforceTierOrderingKeepsConsistentTiers(t *testing.T) {
	products := []catalog.Product{
		{Name: "a", Tier: catalog.TierGood, ValueMetrics: catalog.ValueMetrics{UpfrontPrice: 40}},
		{Name: "b", Tier: catalog.TierBetter, ValueMetrics: catalog.ValueMetrics{UpfrontPrice: 150}},
		{Name: "c", Tier: catalog.TierBest, ValueMetrics: catalog.ValueMetrics{UpfrontPrice: 300}},
	}

	out := enforceTierOrdering(products)
	for i := range products {
		assert.Equal(t, products[i].Tier, out[i].Tier)
	}
}

func TestParseLifespanForms(t *testing.T) {
	tests := []struct {
		raw      string
		expected float64
	}{
		{`12`, 12},
		{`12.5`, 12.5},
		{`"15"`, 15},
		{`"15 years"`, 15},
		{`"15-25 years"`, 15},
		{`"30+"`, 30},
		{`"30+ years"`, 30},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			val, err := parseLifespan(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, val, 0.001)
		})
	}

	_, err := parseLifespan(json.RawMessage(`"a while"`))
	assert.Error(t, err)
	_, err = parseLifespan(nil)
	assert.Error(t, err)
}

func TestTruncateSnippetKeepsValidUTF8(t *testing.T) {
	ascii := strings.Repeat("a", 400)
	got := truncateSnippet(ascii, 300)
	assert.Equal(t, strings.Repeat("a", 300)+"...", got)

	// place a three-byte rune straddling the cut point
	straddling := strings.Repeat("a", 299) + "世界と道具の話"
	got = truncateSnippet(straddling, 300)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 299)+"...", got)

	assert.Equal(t, "short", truncateSnippet("short", 300))
}
