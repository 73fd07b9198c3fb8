package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/izaki/koto-agent/internal/config"
	"github.com/izaki/koto-agent/internal/httpkit"
)

// GeminiClient talks to the Gemini generateContent API.
type GeminiClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
	client      *http.Client
}

// GeminiConfig configures the client.
type GeminiConfig struct {
	BaseURL     string // e.g. "https://generativelanguage.googleapis.com"
	APIKey      string
	Model       string // e.g. "gemini-2.0-flash"
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration // Per-call timeout (default 60s)
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(logger *slog.Logger, cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &GeminiClient{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
		client: httpkit.NewClient(
			httpkit.WithTimeout(cfg.Timeout),
		),
	}
}

// generateRequest is the generateContent API request body.
type generateRequest struct {
	Contents         []Content         `json:"contents"`
	Tools            []toolSet         `json:"tools,omitempty"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type toolSet struct {
	FunctionDeclarations []Declaration `json:"function_declarations"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// generateResponse is the generateContent API response body.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []Part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Generate sends one generateContent request. A function-call part in the
// response wins over text parts: the returned Response carries the first
// function call and the text is ignored for that round-trip.
func (c *GeminiClient) Generate(ctx context.Context, contents []Content, tools []Declaration) (*Response, error) {
	req := generateRequest{
		Contents: contents,
		GenerationConfig: &generationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxTokens,
		},
	}
	if len(tools) > 0 {
		req.Tools = []toolSet{{FunctionDeclarations: tools}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, config.LevelTrace, "gemini request", "payload", string(body))

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, errBody)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(genResp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	out := &Response{
		InputTokens:  genResp.UsageMetadata.PromptTokenCount,
		OutputTokens: genResp.UsageMetadata.CandidatesTokenCount,
	}

	var text strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil && out.FunctionCall == nil {
			out.FunctionCall = part.FunctionCall
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	out.Text = text.String()

	c.logger.Debug("gemini response",
		"has_call", out.FunctionCall != nil,
		"text_len", len(out.Text),
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
	)

	return out, nil
}
