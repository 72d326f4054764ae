package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemfinder/backend/internal/research"
)

func testClassifier() *DomainClassifier {
	return NewDomainClassifier(
		[]string{"reddit.com", "kitchenknifeforums.com"},
		[]string{"wirecutter.com", "seriouseats.com"},
	)
}

func TestDomainClassification(t *testing.T) {
	dc := testClassifier()

	assert.True(t, dc.IsCommunity("https://www.reddit.com/r/BuyItForLife/comments/abc"))
	assert.True(t, dc.IsCommunity("https://old.reddit.com/r/Cooking"))
	assert.False(t, dc.IsCommunity("https://notreddit.com/thread"))

	assert.True(t, dc.IsReview("https://www.wirecutter.com/reviews/best-chef-knife/"))
	assert.False(t, dc.IsReview("https://example.com/wirecutter.com"))
}

func TestComputeMetrics(t *testing.T) {
	dc := testClassifier()

	corpus := research.NewCorpus()
	corpus.ByPhase[research.PhaseContextDiscovery] = []research.Document{
		{URL: "https://www.reddit.com/r/Cooking/1"},
		{URL: "https://www.seriouseats.com/review"},
	}
	corpus.ByPhase[research.PhaseFrustrationResearch] = []research.Document{
		{URL: "https://www.reddit.com/r/Cooking/1"}, // duplicate across phases
		{URL: "https://www.reddit.com/r/BuyItForLife/2"},
		{URL: "https://blog.example.com/post"},
	}
	corpus.Executed = []research.PhaseQuery{
		{Phase: research.PhaseContextDiscovery, Query: "chef knife daily use reddit"},
		{Phase: research.PhaseFrustrationResearch, Query: "chef knife complaints"},
	}

	m := dc.ComputeMetrics(corpus)

	assert.Equal(t, 5, m.TotalSourcesAnalyzed)
	assert.Equal(t, 4, m.UniqueSources)
	assert.Equal(t, 2, m.SearchQueriesExecuted)
	require.Len(t, m.SearchQueries, 2)
	assert.Equal(t, "chef knife daily use reddit", m.SearchQueries[0])

	// duplicates count once toward classification
	assert.Equal(t, 2, m.RedditThreads)
	assert.Equal(t, 1, m.ExpertReviews)
}
