package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/gemfinder/backend/internal/catalog"
	"github.com/gemfinder/backend/internal/llm"
	"github.com/gemfinder/backend/internal/research"
	"github.com/gemfinder/backend/pkg/logger"
)

// ErrSynthesisFailed is returned when the model cannot produce a valid
// recommendation set from the research corpus, including after retry.
var ErrSynthesisFailed = errors.New("synthesis failed")

const (
	defaultMaxDocsPerPhase = 12
	retryMaxDocsPerPhase   = 6
	maxSnippetLen          = 300
)

// Config controls how much of the research corpus is embedded in the
// synthesis prompt.
type Config struct {
	MaxDocsPerPhase int
}

// Engine turns a research corpus into tiered product recommendations.
type Engine struct {
	generator llm.Generator
	cfg       Config
	log       *zap.Logger
}

func New(generator llm.Generator, cfg Config) *Engine {
	if cfg.MaxDocsPerPhase <= 0 {
		cfg.MaxDocsPerPhase = defaultMaxDocsPerPhase
	}
	return &Engine{
		generator: generator,
		cfg:       cfg,
		log:       logger.GetLogger().With(zap.String("component", "synthesis")),
	}
}

// Result is the synthesis output before metrics and cache bookkeeping
// are attached.
type Result struct {
	Catalog     catalog.TierCatalog
	KeyInsights []string
	WhatToAvoid []string
}

// Synthesize builds the good/better/best catalog from the corpus. An
// empty corpus fails immediately; an invalid model response is retried
// once against a smaller corpus before giving up.
func (e *Engine) Synthesize(ctx context.Context, category string, corpus *research.Corpus) (*Result, error) {
	if corpus == nil || corpus.Empty() {
		return nil, fmt.Errorf("%w: no research documents collected", ErrSynthesisFailed)
	}

	result, err := e.attempt(ctx, category, corpus, e.cfg.MaxDocsPerPhase, false)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	e.log.Warn("synthesis attempt failed, retrying with reduced corpus",
		zap.String("category", category),
		zap.Error(err))

	result, err = e.attempt(ctx, category, corpus, retryMaxDocsPerPhase, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	return result, nil
}

func (e *Engine) attempt(ctx context.Context, category string, corpus *research.Corpus, maxDocs int, strict bool) (*Result, error) {
	system := synthesisSystemPrompt
	if strict {
		system += synthesisStrictSuffix
	}

	resp, err := e.generator.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		UserPrompt:   buildSynthesisPrompt(category, corpus, maxDocs),
	})
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}

	var raw rawSynthesis
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), &raw); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return e.assemble(category, corpus, &raw)
}

const synthesisSystemPrompt = `You are a product research analyst. You are given research findings gathered from the web about a product category, organized by research phase. Synthesize them into good/better/best recommendations.

Tier definitions are price percentiles across the gems you identify:
- "good": bottom 25% of the price range. Exceptional value, entry-level gems.
- "better": middle 50%. The sweet spot of price and quality.
- "best": top 25%. Buy-it-for-life quality.

Rules:
- Recommend up to 3 products per tier, drawn only from products the research findings actually mention.
- Prefer "hidden gems": products praised in community discussions over heavily marketed brands.
- Lifespan estimates must be conservative. When sources give a range ("15-25 years"), report the low end. Never exceed what a source claims.
- Every product needs at least one source URL from the findings.

Respond with a JSON object:
{
  "good_tier": [<product>], "better_tier": [<product>], "best_tier": [<product>],
  "key_insights": ["..."], "what_to_avoid": ["..."]
}
Each <product>:
{
  "name": "...", "brand": "...", "price": 49.95, "lifespan_years": 15,
  "materials": ["..."], "characteristics": ["..."], "key_features": ["..."],
  "trade_offs": ["..."], "best_for": "...", "why_its_a_gem": "...",
  "maintenance_level": "low|medium|high", "repairability": "...",
  "failure_points": ["..."], "image_url": "", "source_urls": ["..."],
  "purchase_links": [{"name": "...", "url": "..."}]
}
Respond with JSON only, no prose outside the object.`

const synthesisStrictSuffix = `

Your previous response could not be parsed or validated. Respond with ONLY the JSON object described above. Every product must have a non-empty name, a price greater than zero and a lifespan greater than zero.`

var phaseHeadings = map[research.Phase]string{
	research.PhaseContextDiscovery:      "CONTEXT: how people actually use and choose these products",
	research.PhaseMaterialScience:       "MATERIALS: construction quality and durability evidence",
	research.PhaseProductIdentification: "PRODUCTS: specific models praised by communities and experts",
	research.PhaseFrustrationResearch:   "FRUSTRATIONS: common failures, regrets and complaints",
	research.PhaseValueSynthesis:        "VALUE: lifespan, cost-over-time and buy-it-for-life evidence",
}

func buildSynthesisPrompt(category string, corpus *research.Corpus, maxDocs int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product category: %s\n\nResearch findings:\n", category)

	for _, phase := range research.Phases {
		docs := corpus.ByPhase[phase]
		if len(docs) == 0 {
			continue
		}
		if len(docs) > maxDocs {
			docs = docs[:maxDocs]
		}
		fmt.Fprintf(&b, "\n## %s\n", phaseHeadings[phase])
		for _, doc := range docs {
			fmt.Fprintf(&b, "- %s (%s): %s\n", doc.Title, doc.URL,
				truncateSnippet(doc.Snippet, maxSnippetLen))
		}
	}

	b.WriteString("\nSynthesize these findings into good/better/best recommendations.")
	return b.String()
}

// truncateSnippet shortens s to at most max bytes, backing up to a rune
// boundary so multibyte text is never split mid-sequence.
func truncateSnippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

type rawSynthesis struct {
	GoodTier    []rawProduct `json:"good_tier"`
	BetterTier  []rawProduct `json:"better_tier"`
	BestTier    []rawProduct `json:"best_tier"`
	KeyInsights []string     `json:"key_insights"`
	WhatToAvoid []string     `json:"what_to_avoid"`
}

type rawProduct struct {
	Name             string          `json:"name"`
	Brand            string          `json:"brand"`
	Price            float64         `json:"price"`
	LifespanYears    json.RawMessage `json:"lifespan_years"`
	Materials        []string        `json:"materials"`
	Characteristics  []string        `json:"characteristics"`
	KeyFeatures      []string        `json:"key_features"`
	TradeOffs        []string        `json:"trade_offs"`
	BestFor          string          `json:"best_for"`
	WhyItsAGem       string          `json:"why_its_a_gem"`
	MaintenanceLevel string          `json:"maintenance_level"`
	Repairability    string          `json:"repairability"`
	FailurePoints    []string        `json:"failure_points"`
	ImageURL         string          `json:"image_url"`
	SourceURLs       []string        `json:"source_urls"`
	PurchaseLinks    []rawLink       `json:"purchase_links"`
}

type rawLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// parseLifespan accepts a bare number, a numeric string, or a range
// like "15-25 years". Ranges resolve to the low end, "30+" to 30.
func parseLifespan(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, errors.New("missing lifespan")
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unparseable lifespan %s", raw)
	}

	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSuffix(s, "years")
	s = strings.TrimSuffix(s, "year")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "+")
	if i := strings.IndexAny(s, "-–"); i > 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)

	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable lifespan %q", s)
	}
	return val, nil
}

func (e *Engine) assemble(category string, corpus *research.Corpus, raw *rawSynthesis) (*Result, error) {
	if len(raw.GoodTier)+len(raw.BetterTier)+len(raw.BestTier) == 0 {
		return nil, errors.New("no products in any tier")
	}

	docsByURL := make(map[string]research.Document)
	for _, docs := range corpus.ByPhase {
		for _, doc := range docs {
			docsByURL[doc.URL] = doc
		}
	}
	communityEvidence := len(corpus.ByPhase[research.PhaseFrustrationResearch]) +
		len(corpus.ByPhase[research.PhaseContextDiscovery])

	result := &Result{
		KeyInsights: raw.KeyInsights,
		WhatToAvoid: raw.WhatToAvoid,
	}

	var all []catalog.Product
	for _, tv := range []struct {
		tier catalog.Tier
		raw  []rawProduct
	}{
		{catalog.TierGood, raw.GoodTier},
		{catalog.TierBetter, raw.BetterTier},
		{catalog.TierBest, raw.BestTier},
	} {
		for _, rp := range tv.raw {
			product, err := e.buildProduct(category, tv.tier, rp, docsByURL, communityEvidence)
			if err != nil {
				return nil, fmt.Errorf("product %q: %w", rp.Name, err)
			}
			all = append(all, *product)
		}
	}

	all = enforceTierOrdering(all)
	for _, p := range all {
		switch p.Tier {
		case catalog.TierGood:
			result.Catalog.Good = append(result.Catalog.Good, p)
		case catalog.TierBetter:
			result.Catalog.Better = append(result.Catalog.Better, p)
		case catalog.TierBest:
			result.Catalog.Best = append(result.Catalog.Best, p)
		}
	}
	return result, nil
}

func (e *Engine) buildProduct(category string, tier catalog.Tier, rp rawProduct, docsByURL map[string]research.Document, communityEvidence int) (*catalog.Product, error) {
	if strings.TrimSpace(rp.Name) == "" {
		return nil, errors.New("empty product name")
	}
	if rp.Price <= 0 {
		return nil, fmt.Errorf("invalid price %.2f", rp.Price)
	}
	lifespan, err := parseLifespan(rp.LifespanYears)
	if err != nil {
		return nil, err
	}

	metrics, err := catalog.CalculateValueMetrics(rp.Price, lifespan)
	if err != nil {
		return nil, err
	}

	var sources []catalog.WebSource
	var sourceURLs []string
	for _, u := range rp.SourceURLs {
		source := catalog.WebSource{URL: u}
		if doc, ok := docsByURL[u]; ok {
			source.Title = doc.Title
			source.Snippet = doc.Snippet
			source.RelevanceScore = doc.RelevanceScore
		}
		sources = append(sources, source)
		sourceURLs = append(sourceURLs, u)
	}

	imageURL := rp.ImageURL
	if imageURL == "" {
		for _, u := range rp.SourceURLs {
			if doc, ok := docsByURL[u]; ok && doc.ImageURL != "" {
				imageURL = doc.ImageURL
				break
			}
		}
	}

	links := make([]catalog.PurchaseLink, 0, len(rp.PurchaseLinks))
	for _, l := range rp.PurchaseLinks {
		if l.URL != "" {
			links = append(links, catalog.PurchaseLink{Name: l.Name, URL: l.URL})
		}
	}

	return &catalog.Product{
		Name:             rp.Name,
		Brand:            rp.Brand,
		Tier:             tier,
		Category:         category,
		Materials:        rp.Materials,
		Characteristics:  rp.Characteristics,
		KeyFeatures:      rp.KeyFeatures,
		TradeOffs:        rp.TradeOffs,
		BestFor:          rp.BestFor,
		WhyItsAGem:       rp.WhyItsAGem,
		MaintenanceLevel: rp.MaintenanceLevel,
		ImageURL:         imageURL,
		ValueMetrics:     metrics,
		Durability: scoreDurability(durabilityInput{
			LifespanYears:     lifespan,
			Materials:         rp.Materials,
			MaintenanceLevel:  rp.MaintenanceLevel,
			Repairability:     rp.Repairability,
			FailurePoints:     rp.FailurePoints,
			Tier:              tier,
			WhyGem:            rp.WhyItsAGem,
			CommunityEvidence: communityEvidence,
			DataSources:       sourceURLs,
		}),
		WebSources:    sources,
		PurchaseLinks: links,
	}, nil
}

// enforceTierOrdering keeps the model's tier labels when the tiers are
// price-consistent, and re-bands by price percentile when they are not.
// Bands: bottom 25% of the observed range is good, top 25% is best.
func enforceTierOrdering(products []catalog.Product) []catalog.Product {
	if len(products) < 2 {
		return products
	}

	if tierAverage(products, catalog.TierGood) <= tierAverage(products, catalog.TierBetter) &&
		tierAverage(products, catalog.TierBetter) <= tierAverage(products, catalog.TierBest) {
		return products
	}

	minPrice, maxPrice := products[0].ValueMetrics.UpfrontPrice, products[0].ValueMetrics.UpfrontPrice
	for _, p := range products[1:] {
		price := p.ValueMetrics.UpfrontPrice
		if price < minPrice {
			minPrice = price
		}
		if price > maxPrice {
			maxPrice = price
		}
	}
	priceRange := maxPrice - minPrice

	rebanded := make([]catalog.Product, len(products))
	copy(rebanded, products)
	for i := range rebanded {
		price := rebanded[i].ValueMetrics.UpfrontPrice
		switch {
		case priceRange == 0:
			rebanded[i].Tier = catalog.TierBetter
		case price <= minPrice+0.25*priceRange:
			rebanded[i].Tier = catalog.TierGood
		case price >= minPrice+0.75*priceRange:
			rebanded[i].Tier = catalog.TierBest
		default:
			rebanded[i].Tier = catalog.TierBetter
		}
	}
	sort.SliceStable(rebanded, func(i, j int) bool {
		return rebanded[i].ValueMetrics.UpfrontPrice < rebanded[j].ValueMetrics.UpfrontPrice
	})
	return rebanded
}

func tierAverage(products []catalog.Product, tier catalog.Tier) float64 {
	var sum float64
	var n int
	for _, p := range products {
		if p.Tier == tier {
			sum += p.ValueMetrics.UpfrontPrice
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
