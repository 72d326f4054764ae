package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gemfinder/backend/internal/llm"
	"github.com/gemfinder/backend/internal/research"
	"github.com/gemfinder/backend/pkg/logger"
)

// UserContext carries optional request hints into query generation.
type UserContext struct {
	ValuePreference string
	Locale          string
	MaxPrice        float64
}

type Config struct {
	MinQueries int
	MaxQueries int
}

// Planner turns a product category into a phase-organized search plan. It can
// always produce a plan: malformed model output falls back to a templated one.
type Planner struct {
	generator llm.Generator
	cfg       Config
}

func New(generator llm.Generator, cfg Config) *Planner {
	if cfg.MinQueries == 0 {
		cfg.MinQueries = 5
	}
	if cfg.MaxQueries == 0 {
		cfg.MaxQueries = 19
	}
	return &Planner{generator: generator, cfg: cfg}
}

const planSystemPrompt = `You are a product research strategist. Generate targeted web search queries organized into a five-phase research framework:

1. context_discovery: how people actually use this product (living constraints, usage patterns, compatibility)
2. material_science: which materials work best and why (durability characteristics, material trade-offs)
3. product_identification: specific well-built products (professional recommendations, buy-it-for-life picks)
4. frustration_research: real pain points (common failures, marketing gimmicks, unnecessary features)
5. value_synthesis: long-term value (ownership experience over years, repair reality, true cost; at least one query must target durability or lifespan)

Generate 2-3 queries per phase. Include "reddit" where real user experience matters.

Return ONLY a JSON object:
{"context_discovery": ["..."], "material_science": ["..."], "product_identification": ["..."], "frustration_research": ["..."], "value_synthesis": ["..."]}`

const planStrictPrompt = planSystemPrompt + `

Your previous output could not be parsed. Return ONLY the JSON object, with no markdown fences, no commentary, and every value a plain string array.`

// Plan generates a research plan for the given category. It retries once with
// a stricter instruction on unparsable output, then falls back to a fixed
// template so the pipeline always has something to execute.
func (p *Planner) Plan(ctx context.Context, category string, userCtx *UserContext) (*research.Plan, error) {
	userPrompt := buildUserPrompt(category, userCtx)

	plan, err := p.generate(ctx, planSystemPrompt, userPrompt, category)
	if err == nil {
		return plan, nil
	}

	logger.Warn("Plan generation failed, retrying with strict instruction",
		zap.String("category", category),
		zap.Error(err),
	)

	plan, err = p.generate(ctx, planStrictPrompt, userPrompt, category)
	if err == nil {
		return plan, nil
	}

	logger.Warn("Plan generation failed twice, using fallback template",
		zap.String("category", category),
		zap.Error(err),
	)

	return FallbackPlan(category), nil
}

func (p *Planner) generate(ctx context.Context, systemPrompt, userPrompt, category string) (*research.Plan, error) {
	resp, err := p.generator.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.4,
		MaxTokens:    800,
	})
	if err != nil {
		return nil, fmt.Errorf("plan completion failed: %w", err)
	}

	plan, err := parsePlan(resp.Content, category)
	if err != nil {
		return nil, err
	}

	if err := p.validate(plan); err != nil {
		return nil, err
	}

	logger.Info("Research plan generated",
		zap.String("category", category),
		zap.Int("queries", len(plan.Queries)),
	)

	return plan, nil
}

func buildUserPrompt(category string, userCtx *UserContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate research queries for: %s\n", category)
	if userCtx != nil {
		if userCtx.ValuePreference != "" {
			fmt.Fprintf(&sb, "Value preference: %s\n", userCtx.ValuePreference)
		}
		if userCtx.Locale != "" {
			fmt.Fprintf(&sb, "Locale: %s\n", userCtx.Locale)
		}
		if userCtx.MaxPrice > 0 {
			fmt.Fprintf(&sb, "Budget cap: $%.0f\n", userCtx.MaxPrice)
		}
	}
	return sb.String()
}

func parsePlan(content, category string) (*research.Plan, error) {
	var raw map[string][]string
	if err := json.Unmarshal([]byte(llm.ExtractJSON(content)), &raw); err != nil {
		return nil, fmt.Errorf("plan output is not valid JSON: %w", err)
	}

	plan := &research.Plan{Category: category}
	for _, phase := range research.Phases {
		queries := raw[string(phase)]
		// each phase carries at most 3 queries
		if len(queries) > 3 {
			queries = queries[:3]
		}
		for _, q := range queries {
			q = strings.TrimSpace(q)
			if q == "" {
				continue
			}
			plan.Queries = append(plan.Queries, research.PhaseQuery{Phase: phase, Query: q})
		}
	}

	return plan, nil
}

func (p *Planner) validate(plan *research.Plan) error {
	if len(plan.Queries) < p.cfg.MinQueries || len(plan.Queries) > p.cfg.MaxQueries {
		return fmt.Errorf("plan has %d queries, want %d-%d", len(plan.Queries), p.cfg.MinQueries, p.cfg.MaxQueries)
	}

	counts := make(map[research.Phase]int)
	for _, q := range plan.Queries {
		counts[q.Phase]++
	}
	for _, phase := range research.Phases {
		if counts[phase] == 0 {
			return fmt.Errorf("plan is missing phase %s", phase)
		}
	}

	if !hasDurabilityQuery(plan) {
		// required by contract; inject rather than reject
		dq := research.PhaseQuery{
			Phase: research.PhaseValueSynthesis,
			Query: fmt.Sprintf("%s durability how many years does it last", plan.Category),
		}
		if len(plan.Queries) < p.cfg.MaxQueries {
			plan.Queries = append(plan.Queries, dq)
		} else {
			// plan is at capacity; swap the durability query in for an
			// existing value_synthesis one so it survives the limit
			for i := len(plan.Queries) - 1; i >= 0; i-- {
				if plan.Queries[i].Phase == research.PhaseValueSynthesis {
					plan.Queries[i] = dq
					break
				}
			}
		}
	}

	return nil
}

func hasDurabilityQuery(plan *research.Plan) bool {
	for _, q := range plan.QueriesForPhase(research.PhaseValueSynthesis) {
		lower := strings.ToLower(q.Query)
		if strings.Contains(lower, "durab") || strings.Contains(lower, "lifespan") ||
			strings.Contains(lower, "last") || strings.Contains(lower, "years") {
			return true
		}
	}
	return false
}

// FallbackPlan builds the minimal templated plan used when the model cannot
// produce a usable one: one query per phase, derived from the category string.
func FallbackPlan(category string) *research.Plan {
	return &research.Plan{
		Category: category,
		Queries: []research.PhaseQuery{
			{Phase: research.PhaseContextDiscovery, Query: fmt.Sprintf("how do people use %s daily reddit", category)},
			{Phase: research.PhaseMaterialScience, Query: fmt.Sprintf("best material for %s durability comparison", category)},
			{Phase: research.PhaseProductIdentification, Query: fmt.Sprintf("best %s buy it for life recommendation", category)},
			{Phase: research.PhaseFrustrationResearch, Query: fmt.Sprintf("%s common problems complaints reddit", category)},
			{Phase: research.PhaseValueSynthesis, Query: fmt.Sprintf("%s lifespan years long term review", category)},
		},
	}
}
