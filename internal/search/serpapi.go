package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/gemfinder/backend/internal/research"
	"github.com/gemfinder/backend/pkg/logger"
)

const serpEndpoint = "https://serpapi.com/search"

// SerpProvider is the secondary provider used when Google Custom Search is
// unavailable or rate-limited. SerpAPI results carry no pagemap, so product
// images are recovered by fetching the page and reading its og:image tag.
type SerpProvider struct {
	apiKey       string
	endpoint     string
	scrapeImages bool
	httpClient   *http.Client
}

func NewSerpProvider(apiKey string, scrapeImages bool) *SerpProvider {
	return &SerpProvider{
		apiKey:       apiKey,
		endpoint:     serpEndpoint,
		scrapeImages: scrapeImages,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (p *SerpProvider) Name() string {
	return "serpapi"
}

type serpResponse struct {
	OrganicResults []struct {
		Title     string `json:"title"`
		Link      string `json:"link"`
		Snippet   string `json:"snippet"`
		Thumbnail string `json:"thumbnail"`
	} `json:"organic_results"`
}

func (p *SerpProvider) Search(ctx context.Context, query string, numResults int) ([]research.Document, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("serpapi is not configured")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", p.apiKey)
	params.Set("num", fmt.Sprintf("%d", numResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?%s", p.endpoint, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed serpResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	docs := make([]research.Document, 0, len(parsed.OrganicResults))
	for _, r := range parsed.OrganicResults {
		if len(docs) >= numResults {
			break
		}

		image := r.Thumbnail
		if image == "" && p.scrapeImages {
			image = p.scrapePreviewImage(ctx, r.Link)
		}

		docs = append(docs, research.Document{
			URL:      r.Link,
			Title:    r.Title,
			Snippet:  r.Snippet,
			ImageURL: image,
		})
	}

	logger.Debug("SerpAPI search completed",
		zap.String("query", query),
		zap.Int("results", len(docs)),
	)

	return docs, nil
}

// scrapePreviewImage fetches a result page and reads its social-preview image.
// Best effort: any failure means no image.
func (p *SerpProvider) scrapePreviewImage(ctx context.Context, pageURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return ""
	}

	if img, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && img != "" {
		return img
	}
	if img, ok := doc.Find(`meta[name="twitter:image"]`).Attr("content"); ok && img != "" {
		return img
	}
	if img, ok := doc.Find("article img, main img").First().Attr("src"); ok {
		return img
	}

	return ""
}
