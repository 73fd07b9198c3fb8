// Package line talks to the LINE Messaging API: reply/push delivery,
// webhook signature verification, and content download.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/izaki/koto-agent/internal/httpkit"
)

const (
	apiBase     = "https://api.line.me"
	apiDataBase = "https://api-data.line.me"

	// maxMessageRunes bounds one outgoing message, under the
	// platform's 5000-character limit with headroom for the ellipsis.
	maxMessageRunes = 4500
)

// Client is a LINE Messaging API client for one channel.
type Client struct {
	token    string
	logger   *slog.Logger
	http     *http.Client
	base     string
	dataBase string
}

// NewClient creates a client with the channel access token.
func NewClient(token string, logger *slog.Logger) *Client {
	return &Client{
		token:    token,
		logger:   logger,
		http:     httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
		base:     apiBase,
		dataBase: apiDataBase,
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Reply sends a message against a webhook reply token. Reply tokens are
// single-use and short-lived; on failure the caller falls back to Push.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	payload := map[string]any{
		"replyToken": replyToken,
		"messages":   []textMessage{{Type: "text", Text: Truncate(text)}},
	}
	return c.post(ctx, c.base+"/v2/bot/message/reply", payload)
}

// Push sends a message directly to a user.
func (c *Client) Push(ctx context.Context, userID, text string) error {
	payload := map[string]any{
		"to":       userID,
		"messages": []textMessage{{Type: "text", Text: Truncate(text)}},
	}
	return c.post(ctx, c.base+"/v2/bot/message/push", payload)
}

func (c *Client) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("LINE API request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		return fmt.Errorf("LINE API returned status %d: %s", resp.StatusCode, errBody)
	}
	return nil
}

// GetContent downloads a message attachment (image, audio, file) and
// returns the bytes with their MIME type.
func (c *Client) GetContent(ctx context.Context, messageID string) ([]byte, string, error) {
	url := fmt.Sprintf("%s/v2/bot/message/%s/content", c.dataBase, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("content download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, "", fmt.Errorf("read content: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Truncate caps a message at the platform limit, rune-safe.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= maxMessageRunes {
		return text
	}
	return string(runes[:maxMessageRunes]) + "…"
}

// PushDeliverer adapts the client to the scheduler's delivery
// interface, formatting markdown to plain text on the way out.
type PushDeliverer struct {
	Client *Client
}

func (p *PushDeliverer) Deliver(ctx context.Context, userID, text string) error {
	return p.Client.Push(ctx, userID, ToPlainText(text))
}
