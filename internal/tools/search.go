package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/izaki/koto-agent/internal/httpkit"
)

const defaultSearchResults = 5

// RegisterWebSearch adds the web search tool backed by a
// SearXNG-compatible JSON endpoint.
func RegisterWebSearch(r *Registry, endpoint string) {
	client := httpkit.NewClient(httpkit.WithTimeout(15 * time.Second))
	r.Register(&Tool{
		Name:        "web_search",
		Description: "Web検索を実行し、上位の検索結果を取得します。「調べて」「検索して」と言われたらこれを使います。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "検索キーワード",
				},
				"num_results": map[string]any{
					"type":        "integer",
					"description": "取得件数（デフォルト5）",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, userID string, args map[string]any) (map[string]any, error) {
			return handleWebSearch(ctx, client, endpoint, args)
		},
	})
}

type searxResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func handleWebSearch(ctx context.Context, client *http.Client, endpoint string, args map[string]any) (map[string]any, error) {
	query := stringArg(args, "query", "")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	limit := intArg(args, "num_results", defaultSearchResults)
	if limit <= 0 || limit > 10 {
		limit = defaultSearchResults
	}

	u := fmt.Sprintf("%s?q=%s&format=json", endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search backend returned status %d", resp.StatusCode)
	}

	var parsed searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}

	results := make([]map[string]any, 0, limit)
	for _, r := range parsed.Results {
		if len(results) == limit {
			break
		}
		results = append(results, map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"snippet": r.Content,
		})
	}

	return map[string]any{
		"query":   query,
		"results": results,
	}, nil
}
