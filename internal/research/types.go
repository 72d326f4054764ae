package research

// Phase identifies one of the five fixed research stages.
type Phase string

const (
	PhaseContextDiscovery      Phase = "context_discovery"
	PhaseMaterialScience       Phase = "material_science"
	PhaseProductIdentification Phase = "product_identification"
	PhaseFrustrationResearch   Phase = "frustration_research"
	PhaseValueSynthesis        Phase = "value_synthesis"
)

// Phases lists every research phase in pipeline order.
var Phases = []Phase{
	PhaseContextDiscovery,
	PhaseMaterialScience,
	PhaseProductIdentification,
	PhaseFrustrationResearch,
	PhaseValueSynthesis,
}

func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// PhaseQuery is a single planned web search tagged with its phase.
type PhaseQuery struct {
	Phase Phase  `json:"phase"`
	Query string `json:"query"`
}

// Plan is the ordered set of searches produced for one cache miss.
// It is discarded after execution; only its effects are persisted.
type Plan struct {
	Category string       `json:"category"`
	Queries  []PhaseQuery `json:"queries"`
}

// QueriesForPhase returns the planned queries for one phase, in plan order.
func (p *Plan) QueriesForPhase(phase Phase) []PhaseQuery {
	var out []PhaseQuery
	for _, q := range p.Queries {
		if q.Phase == phase {
			out = append(out, q)
		}
	}
	return out
}

// Document is one web search result collected during research.
type Document struct {
	URL            string  `json:"url"`
	Title          string  `json:"title"`
	Snippet        string  `json:"snippet"`
	ImageURL       string  `json:"image_url,omitempty"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// Corpus maps each phase to the documents collected for it, preserving
// discovery order within a phase. Duplicate URLs across phases are allowed;
// dedup happens only when counting unique sources.
type Corpus struct {
	ByPhase  map[Phase][]Document `json:"by_phase"`
	Executed []PhaseQuery         `json:"executed"`
}

func NewCorpus() *Corpus {
	byPhase := make(map[Phase][]Document, len(Phases))
	for _, p := range Phases {
		byPhase[p] = nil
	}
	return &Corpus{ByPhase: byPhase}
}

// TotalDocuments counts every collected document, duplicates included.
func (c *Corpus) TotalDocuments() int {
	total := 0
	for _, docs := range c.ByPhase {
		total += len(docs)
	}
	return total
}

// UniqueURLs counts distinct document URLs across all phases.
func (c *Corpus) UniqueURLs() int {
	seen := make(map[string]struct{})
	for _, docs := range c.ByPhase {
		for _, d := range docs {
			if d.URL != "" {
				seen[d.URL] = struct{}{}
			}
		}
	}
	return len(seen)
}

// Empty reports whether no phase collected any documents.
func (c *Corpus) Empty() bool {
	return c.TotalDocuments() == 0
}
