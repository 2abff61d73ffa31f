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
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/neogenesis/neoflow/pkg/config"
)

var firecrawlScrapeEndpoint = "https://api.firecrawl.dev/v1/scrape"

const scrapeOutputLimit = 5000

// webScrape extracts a single page as markdown. With a Firecrawl key it
// uses the scrape API; otherwise it fetches the page directly and
// extracts text with goquery. Empty content is distinguished from
// transport errors.
func webScrape(ctx context.Context, bridge *Bridge, args map[string]any) ToolResult {
	params := webScrapeArgs{Format: "markdown"}
	if err := decodeArgs(args, &params); err != nil {
		return errorResult("web_scrape: %v", err)
	}
	if strings.TrimSpace(params.URL) == "" {
		return errorResult("web_scrape: missing url")
	}

	if os.Getenv(config.EnvFirecrawlAPIKey) != "" {
		return bridge.scrapeFirecrawl(ctx, params.URL)
	}
	return bridge.scrapeDirect(ctx, params.URL)
}

func (b *Bridge) scrapeFirecrawl(ctx context.Context, url string) ToolResult {
	apiKey := os.Getenv(config.EnvFirecrawlAPIKey)

	payload := map[string]any{
		"url":     url,
		"formats": []string{"markdown"},
	}

	var response struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Data    struct {
			Markdown string `json:"markdown"`
			Content  string `json:"content"`
			Metadata struct {
				Title string `json:"title"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := b.postJSON(ctx, firecrawlScrapeEndpoint, apiKey, payload, &response); err != nil {
		return errorResult("Firecrawl scrape error: %v", err)
	}
	if !response.Success && response.Error != "" {
		return errorResult("Firecrawl scrape returned error: %s", response.Error)
	}

	content := response.Data.Markdown
	if content == "" {
		content = response.Data.Content
	}
	return renderScrapedPage(url, response.Data.Metadata.Title, content)
}

func (b *Bridge) scrapeDirect(ctx context.Context, url string) ToolResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errorResult("web_scrape: failed to create request: %v", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return errorResult("web_scrape transport error for '%s': %v", url, err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return errorResult("web_scrape: failed to parse '%s': %v", url, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript").Remove()

	var sb strings.Builder
	doc.Find("h1, h2, h3, h4, p, li, pre, td").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(sel) {
		case "h1":
			sb.WriteString("# " + text + "\n\n")
		case "h2":
			sb.WriteString("## " + text + "\n\n")
		case "h3", "h4":
			sb.WriteString("### " + text + "\n\n")
		case "li":
			sb.WriteString("- " + text + "\n")
		default:
			sb.WriteString(text + "\n\n")
		}
	})

	return renderScrapedPage(url, title, sb.String())
}

func renderScrapedPage(url, title, content string) ToolResult {
	if strings.TrimSpace(content) == "" {
		return successResult(fmt.Sprintf(
			"[Empty Content] Successfully accessed '%s' but extracted no text content.\n"+
				"Possible reasons: page requires JavaScript rendering, content behind login, "+
				"anti-scraping protection, or page is mostly images/media.\n"+
				"Suggestions: try a different URL, or use web_search to find alternative sources.",
			url))
	}

	output := content
	if title != "" {
		output = fmt.Sprintf("Title: %s\n\n%s", title, content)
	}
	if len(output) > scrapeOutputLimit {
		output = output[:scrapeOutputLimit]
	}
	return successResult(output)
}
