package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func googleFixture(items ...map[string]interface{}) string {
	payload, _ := json.Marshal(map[string]interface{}{"items": items})
	return string(payload)
}

func newTestGoogleProvider(t *testing.T, handler http.HandlerFunc) *GoogleProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p := NewGoogleProvider("test-key", "test-engine")
	p.endpoint = server.URL
	return p
}

func TestGoogleSearchParsesResults(t *testing.T) {
	p := newTestGoogleProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "chef knife reddit", r.URL.Query().Get("q"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "test-engine", r.URL.Query().Get("cx"))

		w.Write([]byte(googleFixture(
			map[string]interface{}{
				"title":   "Best chef knife?",
				"link":    "https://www.reddit.com/r/Cooking/1",
				"snippet": "I have used mine for 12 years",
			},
			map[string]interface{}{
				"title":   "Chef knife review",
				"link":    "https://www.seriouseats.com/knife",
				"snippet": "Tested over six months",
			},
		)))
	})

	docs, err := p.Search(context.Background(), "chef knife reddit", 6)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "https://www.reddit.com/r/Cooking/1", docs[0].URL)
	assert.Equal(t, "Best chef knife?", docs[0].Title)
}

func TestGoogleSearchImagePriority(t *testing.T) {
	tests := []struct {
		name     string
		pagemap  map[string]interface{}
		expected string
	}{
		{
			name: "og:image wins over cse_image",
			pagemap: map[string]interface{}{
				"metatags":  []map[string]string{{"og:image": "https://img.example.com/og.jpg"}},
				"cse_image": []map[string]string{{"src": "https://img.example.com/cse.jpg"}},
			},
			expected: "https://img.example.com/og.jpg",
		},
		{
			name: "cse_image wins over thumbnail",
			pagemap: map[string]interface{}{
				"cse_image":     []map[string]string{{"src": "https://img.example.com/cse.jpg"}},
				"cse_thumbnail": []map[string]string{{"src": "https://img.example.com/thumb.jpg"}},
			},
			expected: "https://img.example.com/cse.jpg",
		},
		{
			name: "thumbnail as last resort",
			pagemap: map[string]interface{}{
				"cse_thumbnail": []map[string]string{{"src": "https://img.example.com/thumb.jpg"}},
			},
			expected: "https://img.example.com/thumb.jpg",
		},
		{
			name:     "no pagemap means no image",
			pagemap:  nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := map[string]interface{}{
				"title":   "result",
				"link":    "https://example.com",
				"snippet": "snippet",
			}
			if tt.pagemap != nil {
				item["pagemap"] = tt.pagemap
			}

			p := newTestGoogleProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(googleFixture(item)))
			})

			docs, err := p.Search(context.Background(), "q", 6)
			require.NoError(t, err)
			require.Len(t, docs, 1)
			assert.Equal(t, tt.expected, docs[0].ImageURL)
		})
	}
}

func TestGoogleSearchCapsResultCount(t *testing.T) {
	p := newTestGoogleProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("num"))
		w.Write([]byte(googleFixture()))
	})

	_, err := p.Search(context.Background(), "q", 25)
	require.NoError(t, err)
}

func TestGoogleSearchUnconfigured(t *testing.T) {
	p := NewGoogleProvider("", "")
	_, err := p.Search(context.Background(), "q", 6)
	assert.Error(t, err)
}

func TestGoogleSearchNonOKStatus(t *testing.T) {
	p := newTestGoogleProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := p.Search(context.Background(), "q", 6)
	assert.Error(t, err)
}
