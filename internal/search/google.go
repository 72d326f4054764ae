package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/gemfinder/backend/internal/research"
	"github.com/gemfinder/backend/pkg/logger"
)

const googleEndpoint = "https://www.googleapis.com/customsearch/v1"

// GoogleProvider queries the Google Custom Search REST API. Each result
// carries pagemap metadata from which a product image is extracted in fixed
// priority order: og:image, then cse_image, then cse_thumbnail.
type GoogleProvider struct {
	apiKey     string
	engineID   string
	endpoint   string
	httpClient *http.Client
}

func NewGoogleProvider(apiKey, engineID string) *GoogleProvider {
	return &GoogleProvider{
		apiKey:   apiKey,
		engineID: engineID,
		endpoint: googleEndpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (p *GoogleProvider) Name() string {
	return "google"
}

type googleResponse struct {
	Items []googleItem `json:"items"`
}

type googleItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Pagemap struct {
		Metatags []map[string]string `json:"metatags"`
		CSEImage []struct {
			Src string `json:"src"`
		} `json:"cse_image"`
		CSEThumbnail []struct {
			Src string `json:"src"`
		} `json:"cse_thumbnail"`
	} `json:"pagemap"`
}

func (p *GoogleProvider) Search(ctx context.Context, query string, numResults int) ([]research.Document, error) {
	if p.apiKey == "" || p.engineID == "" {
		return nil, fmt.Errorf("google search is not configured")
	}

	// the API caps a single request at 10 results
	if numResults > 10 {
		numResults = 10
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("key", p.apiKey)
	params.Set("cx", p.engineID)
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
		return nil, fmt.Errorf("google search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed googleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	docs := make([]research.Document, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		docs = append(docs, research.Document{
			URL:      item.Link,
			Title:    item.Title,
			Snippet:  item.Snippet,
			ImageURL: extractImage(item),
		})
	}

	logger.Debug("Google search completed",
		zap.String("query", query),
		zap.Int("results", len(docs)),
	)

	return docs, nil
}

func extractImage(item googleItem) string {
	if len(item.Pagemap.Metatags) > 0 {
		tags := item.Pagemap.Metatags[0]
		if img := tags["og:image"]; img != "" {
			return img
		}
		if img := tags["twitter:image"]; img != "" {
			return img
		}
	}
	if len(item.Pagemap.CSEImage) > 0 && item.Pagemap.CSEImage[0].Src != "" {
		return item.Pagemap.CSEImage[0].Src
	}
	if len(item.Pagemap.CSEThumbnail) > 0 {
		return item.Pagemap.CSEThumbnail[0].Src
	}
	return ""
}
