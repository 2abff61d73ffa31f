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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/neogenesis/neoflow/pkg/config"
)

var (
	tavilyEndpoint    = "https://api.tavily.com/search"
	firecrawlEndpoint = "https://api.firecrawl.dev/v1/search"
)

type searchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// webSearch runs the primary query and the ordered fallback queries until
// one attempt yields at least min_results non-empty lines. Attempts run
// concurrently but are reported in query order and the earliest satisfying
// attempt wins. Zero results everywhere is still success, with a
// diagnostic the model can react to.
func webSearch(ctx context.Context, bridge *Bridge, args map[string]any) ToolResult {
	params := webSearchArgs{MaxResults: 5, Provider: "auto", MinResults: 1}
	if err := decodeArgs(args, &params); err != nil {
		return errorResult("web_search: %v", err)
	}
	if strings.TrimSpace(params.Query) == "" {
		return errorResult("web_search: missing query")
	}

	provider := strings.ToLower(params.Provider)
	if provider == "auto" || provider == "" {
		if os.Getenv(config.EnvFirecrawlAPIKey) != "" {
			provider = "firecrawl"
		} else {
			provider = "tavily"
		}
	}

	queries := append([]string{params.Query}, params.FallbackQueries...)
	results := make([]ToolResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for idx, query := range queries {
		idx, query := idx, query
		g.Go(func() error {
			switch provider {
			case "firecrawl":
				results[idx] = bridge.searchFirecrawl(gctx, query, params.MaxResults)
			default:
				results[idx] = bridge.searchTavily(gctx, query, params.MaxResults)
			}
			return nil
		})
	}
	g.Wait()

	minLines := params.MinResults
	if minLines < 1 {
		minLines = 1
	}

	var attempts []string
	for idx, res := range results {
		if !res.Success {
			return res
		}
		attempts = append(attempts, fmt.Sprintf("[Attempt %d] query: %s\n%s", idx+1, queries[idx], res.Output))

		if countNonEmptyLines(res.Output) >= minLines && !strings.Contains(res.Output, "[Zero Results]") {
			return successResult(strings.Join(attempts, "\n\n"))
		}
	}

	return successResult(strings.Join(attempts, "\n\n"))
}

func (b *Bridge) searchTavily(ctx context.Context, query string, maxResults int) ToolResult {
	apiKey := os.Getenv(config.EnvTavilyAPIKey)
	if apiKey == "" {
		return errorResult("Tavily not available. Check TAVILY_API_KEY.")
	}

	payload := map[string]any{
		"api_key":     apiKey,
		"query":       query,
		"max_results": maxResults,
	}

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := b.postJSON(ctx, tavilyEndpoint, "", payload, &response); err != nil {
		return errorResult("Tavily API Error: %v", err)
	}

	items := make([]searchResult, 0, len(response.Results))
	for _, r := range response.Results {
		items = append(items, searchResult{Title: r.Title, URL: r.URL, Description: r.Content})
	}
	return formatSearchResults("Tavily", query, items)
}

func (b *Bridge) searchFirecrawl(ctx context.Context, query string, maxResults int) ToolResult {
	apiKey := os.Getenv(config.EnvFirecrawlAPIKey)
	if apiKey == "" {
		return errorResult("Firecrawl config error: FIRECRAWL_API_KEY is not set")
	}

	payload := map[string]any{
		"query": query,
		"limit": maxResults,
	}

	var response struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Data    []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			Markdown    string `json:"markdown"`
		} `json:"data"`
	}
	if err := b.postJSON(ctx, firecrawlEndpoint, apiKey, payload, &response); err != nil {
		return errorResult("Firecrawl API Error: %v", err)
	}
	if !response.Success && response.Error != "" {
		return errorResult("Firecrawl API returned error: %s", response.Error)
	}

	items := make([]searchResult, 0, len(response.Data))
	for _, r := range response.Data {
		description := r.Description
		if description == "" {
			description = r.Markdown
		}
		items = append(items, searchResult{Title: r.Title, URL: r.URL, Description: description})
	}
	return formatSearchResults("Firecrawl", query, items)
}

// formatSearchResults sorts by URL, dedups by lowercased (url, title) and
// renders a numbered report.
func formatSearchResults(provider, query string, items []searchResult) ToolResult {
	if len(items) == 0 {
		return successResult(fmt.Sprintf(
			"[Zero Results] %s API responded successfully but returned no results for query: '%s'\n"+
				"Possible reasons: query too specific, topic too niche, or no indexed content matches.\n"+
				"Suggestions: try broader keywords, different phrasing, or alternative search terms.",
			provider, query))
	}

	sort.Slice(items, func(i, j int) bool { return items[i].URL < items[j].URL })

	seen := make(map[[2]string]bool)
	var lines []string
	idx := 0
	for _, item := range items {
		key := [2]string{
			strings.ToLower(strings.TrimSpace(item.URL)),
			strings.ToLower(strings.TrimSpace(item.Title)),
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		idx++

		title := item.Title
		if title == "" {
			title = "No title"
		}
		description := item.Description
		if len(description) > 200 {
			description = description[:200]
		}
		lines = append(lines,
			fmt.Sprintf("%d. %s", idx, title),
			fmt.Sprintf("   URL: %s", item.URL),
			fmt.Sprintf("   %s", description))
	}

	return successResult(strings.Join(lines, "\n"))
}

func (b *Bridge) postJSON(ctx context.Context, url, bearer string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func countNonEmptyLines(text string) int {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}
