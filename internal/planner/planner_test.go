package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

const validPlanJSON = `{
	"context_discovery": ["how people use chef knives daily reddit", "chef knife home cook vs professional"],
	"material_science": ["chef knife steel types comparison", "carbon steel vs stainless chef knife"],
	"product_identification": ["best chef knife buy it for life", "chef knife recommendations reddit"],
	"frustration_research": ["chef knife complaints problems", "chef knife handle cracking"],
	"value_synthesis": ["chef knife lifespan how many years", "chef knife worth the money long term"]
}`

func TestPlanParsesModelOutput(t *testing.T) {
	gen := &fakeGenerator{responses: []string{validPlanJSON}}
	p := New(gen, Config{})

	plan, err := p.Plan(context.Background(), "chef knife", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, "chef knife", plan.Category)
	assert.Len(t, plan.Queries, 10)

	for _, phase := range research.Phases {
		assert.NotEmpty(t, plan.QueriesForPhase(phase), "phase %s should have queries", phase)
	}
}

func TestPlanWrappedInMarkdownFences(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"```json\n" + validPlanJSON + "\n```"}}
	p := New(gen, Config{})

	plan, err := p.Plan(context.Background(), "chef knife", nil)
	require.NoError(t, err)
	assert.Len(t, plan.Queries, 10)
}

func TestPlanRetriesThenSucceeds(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"I think you should search for...", validPlanJSON}}
	p := New(gen, Config{})

	plan, err := p.Plan(context.Background(), "chef knife", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)
	assert.Len(t, plan.Queries, 10)
}

func TestPlanFallsBackOnPersistentGarbage(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"not json"}}
	p := New(gen, Config{})

	plan, err := p.Plan(context.Background(), "cast iron skillet", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)

	// templated fallback: one query per phase, category embedded
	assert.Len(t, plan.Queries, len(research.Phases))
	for _, q := range plan.Queries {
		assert.Contains(t, q.Query, "cast iron skillet")
	}
}

func TestPlanFallsBackOnGeneratorError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("provider down")}
	p := New(gen, Config{})

	plan, err := p.Plan(context.Background(), "dutch oven", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Queries)
}

func TestPlanInjectsDurabilityQuery(t *testing.T) {
	// value_synthesis present but with no durability-style query
	noDurability := `{
		"context_discovery": ["q1"],
		"material_science": ["q2"],
		"product_identification": ["q3"],
		"frustration_research": ["q4"],
		"value_synthesis": ["is it worth the price"]
	}`
	gen := &fakeGenerator{responses: []string{noDurability}}
	p := New(gen, Config{})

	plan, err := p.Plan(context.Background(), "stand mixer", nil)
	require.NoError(t, err)

	found := false
	for _, q := range plan.QueriesForPhase(research.PhaseValueSynthesis) {
		if q.Query == "stand mixer durability how many years does it last" {
			found = true
		}
	}
	assert.True(t, found, "expected an injected durability query")
}

func TestPlanCapsQueriesPerPhase(t *testing.T) {
	overstuffed := `{
		"context_discovery": ["a", "b", "c", "d", "e"],
		"material_science": ["a", "b", "c", "d"],
		"product_identification": ["a"],
		"frustration_research": ["a"],
		"value_synthesis": ["lifespan years"]
	}`
	gen := &fakeGenerator{responses: []string{overstuffed}}
	p := New(gen, Config{})

	plan, err := p.Plan(context.Background(), "blender", nil)
	require.NoError(t, err)

	assert.Len(t, plan.QueriesForPhase(research.PhaseContextDiscovery), 3)
	assert.Len(t, plan.QueriesForPhase(research.PhaseMaterialScience), 3)
}

func TestPlanRejectsMissingPhase(t *testing.T) {
	missingPhase := `{
		"context_discovery": ["a", "b"],
		"material_science": ["a", "b"],
		"product_identification": ["a", "b"],
		"frustration_research": ["a", "b"]
	}`
	gen := &fakeGenerator{responses: []string{missingPhase}}
	p := New(gen, Config{})

	plan, err := p.Plan(context.Background(), "kettle", nil)
	require.NoError(t, err)

	// invalid plans fall through to the template
	assert.Len(t, plan.Queries, len(research.Phases))
}

func TestFallbackPlanCoversEveryPhase(t *testing.T) {
	plan := FallbackPlan("wok")
	assert.Len(t, plan.Queries, len(research.Phases))
	for i, phase := range research.Phases {
		assert.Equal(t, phase, plan.Queries[i].Phase)
	}
}

func TestPlanInjectedDurabilityQuerySurvivesQueryCap(t *testing.T) {
	// a plan exactly at the query cap with no durability-style query
	// must trade one value_synthesis query for the injected one
	planJSON := `{
		"context_discovery": ["how people use stand mixers reddit", "stand mixer counter space"],
		"material_science": ["stand mixer metal vs plastic gears", "stand mixer motor quality"],
		"product_identification": ["best stand mixer buy it for life", "stand mixer recommendations reddit"],
		"frustration_research": ["stand mixer complaints problems", "stand mixer gimmick attachments"],
		"value_synthesis": ["stand mixer worth the money", "stand mixer true cost of ownership"]
	}`
	gen := &fakeGenerator{responses: []string{planJSON}}
	p := New(gen, Config{MinQueries: 5, MaxQueries: 10})

	plan, err := p.Plan(context.Background(), "stand mixer", nil)
	require.NoError(t, err)

	assert.Len(t, plan.Queries, 10)
	found := false
	for _, q := range plan.QueriesForPhase(research.PhaseValueSynthesis) {
		if q.Query == "stand mixer durability how many years does it last" {
			found = true
		}
	}
	assert.True(t, found, "expected the injected durability query to survive the cap")
	for _, phase := range research.Phases {
		assert.NotEmpty(t, plan.QueriesForPhase(phase))
	}
}
