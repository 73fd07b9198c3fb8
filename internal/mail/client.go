// Package mail provides the IMAP access behind the list_mail tool.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// Config holds the IMAP account settings.
type Config struct {
	Host     string // host:port, e.g. imap.example.com:993
	Username string
	Password string
	Mailbox  string // Default: INBOX
}

// Summary is one listed message.
type Summary struct {
	UID     uint32
	From    string
	Subject string
	Date    time.Time
	Snippet string
}

// Client wraps go-imap/v2 for one account. Connections are lazy and
// mutex-serialized; a stale connection is replaced on the next call.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	client *imapclient.Client
}

// NewClient creates an IMAP client. No connection is made until the
// first listing.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Client{cfg: cfg, logger: logger}
}

// Close shuts down the connection if one is open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// connectLocked dials and authenticates. Caller must hold c.mu.
func (c *Client) connectLocked() error {
	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}

	client, err := imapclient.DialTLS(c.cfg.Host, &imapclient.Options{
		TLSConfig: &tls.Config{},
	})
	if err != nil {
		return fmt.Errorf("dial IMAP %s: %w", c.cfg.Host, err)
	}
	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return fmt.Errorf("login as %s: %w", c.cfg.Username, err)
	}

	c.client = client
	c.logger.Debug("IMAP connected", "host", c.cfg.Host, "user", c.cfg.Username)
	return nil
}

// ensureConnectedLocked reuses a live connection or reconnects.
func (c *Client) ensureConnectedLocked() error {
	if c.client != nil {
		if err := c.client.Noop().Wait(); err == nil {
			return nil
		}
		c.logger.Debug("IMAP connection stale, reconnecting", "host", c.cfg.Host)
	}
	return c.connectLocked()
}

// ListRecent returns up to limit messages from the configured mailbox,
// newest first. When unseenOnly is set, read messages are excluded.
func (c *Client) ListRecent(ctx context.Context, unseenOnly bool, limit int) ([]Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 {
		limit = 5
	}
	if err := c.ensureConnectedLocked(); err != nil {
		return nil, err
	}

	if _, err := c.client.Select(c.cfg.Mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("select %s: %w", c.cfg.Mailbox, err)
	}

	criteria := &imap.SearchCriteria{}
	if unseenOnly {
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
	}
	searchData, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.cfg.Mailbox, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(uid)
	}

	fetchCmd := c.client.Fetch(uidSet, &imap.FetchOptions{
		UID:      true,
		Envelope: true,
	})

	var out []Summary
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		sum, err := parseSummary(msg)
		if err != nil {
			c.logger.Debug("skipping message", "error", err)
			continue
		}
		out = append(out, sum)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch envelopes: %w", err)
	}

	// Newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func parseSummary(msg *imapclient.FetchMessageData) (Summary, error) {
	var sum Summary
	for {
		item := msg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			sum.UID = uint32(data.UID)
		case imapclient.FetchItemDataEnvelope:
			if data.Envelope != nil {
				sum.Date = data.Envelope.Date
				sum.Subject = data.Envelope.Subject
				if len(data.Envelope.From) > 0 {
					sum.From = formatAddress(data.Envelope.From[0])
				}
			}
		}
	}
	if sum.UID == 0 {
		return sum, fmt.Errorf("message missing UID")
	}
	return sum, nil
}

// formatAddress renders "Name <user@host>", or just the address when no
// display name is set.
func formatAddress(addr imap.Address) string {
	email := addr.Addr()
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, email)
	}
	return email
}
