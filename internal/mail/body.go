package mail

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
)

// snippetLimit caps how much body text ReadBody returns.
const snippetLimit = 1000

// ReadBody fetches one message and returns its plain-text body, capped
// to a snippet. HTML-only messages yield an empty string.
func (c *Client) ReadBody(ctx context.Context, uid uint32) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnectedLocked(); err != nil {
		return "", err
	}
	if _, err := c.client.Select(c.cfg.Mailbox, nil).Wait(); err != nil {
		return "", fmt.Errorf("select %s: %w", c.cfg.Mailbox, err)
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(imap.UID(uid))

	bodySection := &imap.FetchItemBodySection{}
	fetchCmd := c.client.Fetch(uidSet, &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})

	var raw []byte
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			if data, ok := item.(imapclient.FetchItemDataBodySection); ok {
				raw, _ = io.ReadAll(data.Literal)
			}
		}
	}
	if err := fetchCmd.Close(); err != nil {
		return "", fmt.Errorf("fetch message UID %d: %w", uid, err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("message UID %d has no body", uid)
	}

	return extractPlainText(strings.NewReader(string(raw)))
}

// extractPlainText walks the MIME structure and returns the first
// text/plain part. go-message may return a usable reader together with
// an unknown-charset error; that is non-fatal, the content is merely
// garbled.
func extractPlainText(r io.Reader) (string, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return "", fmt.Errorf("create mail reader: %w", err)
	}
	if mr == nil {
		return "", fmt.Errorf("create mail reader: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return "", fmt.Errorf("next part: %w", err)
		}
		if part == nil {
			continue
		}

		header, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()
		if contentType != "text/plain" {
			continue
		}

		body, err := io.ReadAll(io.LimitReader(part.Body, snippetLimit*4))
		if err != nil {
			continue
		}
		text := strings.TrimSpace(string(body))
		if runes := []rune(text); len(runes) > snippetLimit {
			text = string(runes[:snippetLimit]) + "..."
		}
		return text, nil
	}
	return "", nil
}
