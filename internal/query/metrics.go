package query

import (
	"net/url"
	"strings"

	"github.com/gemfinder/backend/internal/catalog"
	"github.com/gemfinder/backend/internal/research"
)

// DomainClassifier buckets research sources into community discussion
// and expert review counts for the provenance metrics.
type DomainClassifier struct {
	community []string
	review    []string
}

func NewDomainClassifier(communityDomains, reviewDomains []string) *DomainClassifier {
	return &DomainClassifier{community: communityDomains, review: reviewDomains}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Host)
}

func matchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func (dc *DomainClassifier) IsCommunity(rawURL string) bool {
	return matchesDomain(hostOf(rawURL), dc.community)
}

func (dc *DomainClassifier) IsReview(rawURL string) bool {
	return matchesDomain(hostOf(rawURL), dc.review)
}

// ComputeMetrics derives the real search metrics from an executed
// corpus. This runs exactly once per research run; cache hits replay
// the stored value verbatim.
func (dc *DomainClassifier) ComputeMetrics(corpus *research.Corpus) catalog.RealSearchMetrics {
	metrics := catalog.RealSearchMetrics{
		TotalSourcesAnalyzed:  corpus.TotalDocuments(),
		SearchQueriesExecuted: len(corpus.Executed),
		UniqueSources:         corpus.UniqueURLs(),
	}

	for _, pq := range corpus.Executed {
		metrics.SearchQueries = append(metrics.SearchQueries, pq.Query)
	}

	seen := make(map[string]bool)
	for _, docs := range corpus.ByPhase {
		for _, doc := range docs {
			if seen[doc.URL] {
				continue
			}
			seen[doc.URL] = true
			switch {
			case dc.IsCommunity(doc.URL):
				metrics.RedditThreads++
			case dc.IsReview(doc.URL):
				metrics.ExpertReviews++
			}
		}
	}
	return metrics
}
