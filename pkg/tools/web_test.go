// Copyright 2025 Neogenesis Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neogenesis/neoflow/pkg/config"
)

func stubTavily(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	old := tavilyEndpoint
	tavilyEndpoint = server.URL
	t.Cleanup(func() { tavilyEndpoint = old })
	t.Setenv(config.EnvTavilyAPIKey, "tv-test")
	t.Setenv(config.EnvFirecrawlAPIKey, "")
}

func TestWebSearch_TavilyResults(t *testing.T) {
	stubTavily(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "tv-test", payload["api_key"])

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "B Title", "url": "https://b.example", "content": "second"},
				{"title": "A Title", "url": "https://a.example", "content": "first"},
				{"title": "a title", "url": "HTTPS://A.EXAMPLE", "content": "duplicate"},
			},
		})
	})

	bridge := NewBridge()
	result := bridge.CallTool(context.Background(), "web_search",
		map[string]any{"query": "golang concurrency"})
	require.True(t, result.Success, result.Error)

	assert.Contains(t, result.Output, "[Attempt 1] query: golang concurrency")
	assert.Contains(t, result.Output, "1. A Title")
	assert.Contains(t, result.Output, "2. B Title")
	assert.NotContains(t, result.Output, "3.", "case-insensitive (url, title) duplicates are dropped")
}

func TestWebSearch_ZeroResultsIsSuccess(t *testing.T) {
	stubTavily(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	})

	bridge := NewBridge()
	result := bridge.CallTool(context.Background(), "web_search",
		map[string]any{"query": "xyzzy nonsense"})
	require.True(t, result.Success)
	assert.Contains(t, result.Output, "Zero Results")
}

func TestWebSearch_FallbackQueries(t *testing.T) {
	stubTavily(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		if payload["query"] == "broad terms" {
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"title": "Found", "url": "https://found.example", "content": "match"},
				},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	})

	bridge := NewBridge()
	result := bridge.CallTool(context.Background(), "web_search", map[string]any{
		"query":            "narrow terms",
		"fallback_queries": []string{"broad terms"},
	})
	require.True(t, result.Success, result.Error)

	assert.Contains(t, result.Output, "[Attempt 1] query: narrow terms")
	assert.Contains(t, result.Output, "[Attempt 2] query: broad terms")
	assert.Contains(t, result.Output, "Found")
}

func TestWebSearch_MissingKeyIsConfigurationError(t *testing.T) {
	t.Setenv(config.EnvTavilyAPIKey, "")
	t.Setenv(config.EnvFirecrawlAPIKey, "")

	bridge := NewBridge()
	result := bridge.CallTool(context.Background(), "web_search",
		map[string]any{"query": "anything"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "TAVILY_API_KEY")
}

func TestWebSearch_MissingQuery(t *testing.T) {
	bridge := NewBridge()
	result := bridge.CallTool(context.Background(), "web_search", map[string]any{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "missing query")
}

func TestWebScrape_DirectExtraction(t *testing.T) {
	t.Setenv(config.EnvFirecrawlAPIKey, "")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Test Page</title></head><body>
<h1>Heading</h1>
<script>ignored()</script>
<p>Paragraph text.</p>
<li>bullet</li>
</body></html>`)
	}))
	defer server.Close()

	bridge := NewBridge()
	result := bridge.CallTool(context.Background(), "web_scrape",
		map[string]any{"url": server.URL})
	require.True(t, result.Success, result.Error)

	assert.Contains(t, result.Output, "Title: Test Page")
	assert.Contains(t, result.Output, "# Heading")
	assert.Contains(t, result.Output, "Paragraph text.")
	assert.Contains(t, result.Output, "- bullet")
	assert.NotContains(t, result.Output, "ignored()")
}

func TestWebScrape_EmptyContent(t *testing.T) {
	t.Setenv(config.EnvFirecrawlAPIKey, "")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><img src="only.png"/></body></html>`)
	}))
	defer server.Close()

	bridge := NewBridge()
	result := bridge.CallTool(context.Background(), "web_scrape",
		map[string]any{"url": server.URL})
	require.True(t, result.Success)
	assert.Contains(t, result.Output, "[Empty Content]")
}

func TestWebScrape_TruncatesTo5000(t *testing.T) {
	t.Setenv(config.EnvFirecrawlAPIKey, "")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>")
		for i := 0; i < 2000; i++ {
			fmt.Fprint(w, "abcdef ")
		}
		fmt.Fprint(w, "</p></body></html>")
	}))
	defer server.Close()

	bridge := NewBridge()
	result := bridge.CallTool(context.Background(), "web_scrape",
		map[string]any{"url": server.URL})
	require.True(t, result.Success)
	assert.LessOrEqual(t, len(result.Output), scrapeOutputLimit)
}

func TestWebScrape_MissingURL(t *testing.T) {
	bridge := NewBridge()
	result := bridge.CallTool(context.Background(), "web_scrape", map[string]any{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "missing url")
}

func TestFormatSearchResults_TruncatesDescriptions(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	result := formatSearchResults("Tavily", "q", []searchResult{
		{Title: "T", URL: "https://x.example", Description: string(long)},
	})
	require.True(t, result.Success)
	assert.NotContains(t, result.Output, string(long))
}
