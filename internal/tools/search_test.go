package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/izaki/koto-agent/internal/httpkit"
)

func TestHandleWebSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "天気" {
			t.Errorf("q = %q", r.URL.Query().Get("q"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "site one", "url": "https://one.example", "content": "snippet one"},
				{"title": "site two", "url": "https://two.example", "content": "snippet two"},
				{"title": "site three", "url": "https://three.example", "content": "snippet three"},
			},
		})
	}))
	t.Cleanup(srv.Close)

	client := httpkit.NewClient(httpkit.WithTimeout(5 * time.Second))
	got, err := handleWebSearch(context.Background(), client, srv.URL, map[string]any{
		"query":       "天気",
		"num_results": float64(2),
	})
	if err != nil {
		t.Fatalf("handleWebSearch: %v", err)
	}

	results := got["results"].([]map[string]any)
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2", len(results))
	}
	if results[0]["title"] != "site one" {
		t.Errorf("first result = %v", results[0])
	}
}

func TestHandleWebSearchMissingQuery(t *testing.T) {
	client := httpkit.NewClient()
	if _, err := handleWebSearch(context.Background(), client, "http://unused", map[string]any{}); err == nil {
		t.Error("expected error for missing query")
	}
}
