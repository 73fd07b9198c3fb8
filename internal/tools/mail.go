package tools

import (
	"context"
	"fmt"

	"github.com/izaki/koto-agent/internal/mail"
)

// MailLister is the subset of [*mail.Client] the list_mail tool needs.
type MailLister interface {
	ListRecent(ctx context.Context, unseenOnly bool, limit int) ([]mail.Summary, error)
}

// RegisterListMail adds the mailbox listing tool.
func RegisterListMail(r *Registry, client MailLister) {
	r.Register(&Tool{
		Name:        "list_mail",
		Description: "メールを確認します。未読のみの絞り込みもできます。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"unread_only": map[string]any{
					"type":        "boolean",
					"description": "未読メールのみ取得する（デフォルト: true）",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "取得件数（デフォルト5）",
				},
			},
		},
		Handler: func(ctx context.Context, userID string, args map[string]any) (map[string]any, error) {
			return handleListMail(ctx, client, args)
		},
	})
}

func handleListMail(ctx context.Context, client MailLister, args map[string]any) (map[string]any, error) {
	unseenOnly := true
	if v, ok := args["unread_only"].(bool); ok {
		unseenOnly = v
	}
	limit := intArg(args, "max_results", 5)

	summaries, err := client.ListRecent(ctx, unseenOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list mail: %w", err)
	}

	emails := make([]map[string]any, 0, len(summaries))
	for _, s := range summaries {
		emails = append(emails, map[string]any{
			"from":    s.From,
			"subject": s.Subject,
			"date":    s.Date.Format("2006-01-02 15:04"),
		})
	}
	return map[string]any{
		"count":  len(emails),
		"emails": emails,
	}, nil
}
