package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/izaki/koto-agent/internal/httpkit"
)

const (
	fetchBodyLimit    = 512 * 1024 // Bytes read from the remote page.
	fetchContentLimit = 4000       // Characters of extracted text returned.
)

// RegisterFetchURL adds the web page reader tool.
func RegisterFetchURL(r *Registry) {
	client := httpkit.NewClient(httpkit.WithTimeout(20 * time.Second))
	r.Register(&Tool{
		Name:        "fetch_url",
		Description: "WebページのURLから内容を取得します",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "取得するURL",
				},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, userID string, args map[string]any) (map[string]any, error) {
			return handleFetchURL(ctx, client, args)
		},
	})
}

func handleFetchURL(ctx context.Context, client *http.Client, args map[string]any) (map[string]any, error) {
	rawURL := stringArg(args, "url", "")
	if rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid URL %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var title, content string
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") || contentType == "" {
		title, content = extractReadable(string(body))
	} else if strings.HasPrefix(contentType, "text/") || strings.Contains(contentType, "json") {
		content = string(body)
	} else {
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}

	if runes := []rune(content); len(runes) > fetchContentLimit {
		content = string(runes[:fetchContentLimit]) + "..."
	}

	return map[string]any{
		"url":     rawURL,
		"title":   title,
		"content": content,
	}, nil
}
