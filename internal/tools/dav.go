package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/izaki/koto-agent/internal/dav"
)

// CalendarSource is the subset of [*dav.Client] the list_events tool
// needs.
type CalendarSource interface {
	ListEvents(ctx context.Context, start, end time.Time) ([]dav.Event, error)
}

// ContactSource is the subset of [*dav.Client] the find_contact tool
// needs.
type ContactSource interface {
	FindContacts(ctx context.Context, name string) ([]dav.Contact, error)
}

// RegisterListEvents adds the calendar tool. nowFunc is injectable for
// tests.
func RegisterListEvents(r *Registry, source CalendarSource, nowFunc func() time.Time) {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	r.Register(&Tool{
		Name:        "list_events",
		Description: "カレンダーの予定を確認します。今日または指定した日数分の予定を取得します。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"days": map[string]any{
					"type":        "integer",
					"description": "今日から何日分取得するか（デフォルト1 = 今日のみ）",
				},
			},
		},
		Handler: func(ctx context.Context, userID string, args map[string]any) (map[string]any, error) {
			return handleListEvents(ctx, source, nowFunc(), args)
		},
	})
}

func handleListEvents(ctx context.Context, source CalendarSource, now time.Time, args map[string]any) (map[string]any, error) {
	days := intArg(args, "days", 1)
	if days <= 0 || days > 31 {
		days = 1
	}

	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, days)

	events, err := source.ListEvents(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	rendered := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		entry := map[string]any{
			"summary": ev.Summary,
			"date":    ev.Start.Format("2006-01-02"),
		}
		if ev.AllDay {
			entry["all_day"] = true
		} else {
			entry["start"] = ev.Start.Format("15:04")
			if !ev.End.IsZero() {
				entry["end"] = ev.End.Format("15:04")
			}
		}
		if ev.Location != "" {
			entry["location"] = ev.Location
		}
		rendered = append(rendered, entry)
	}

	return map[string]any{
		"count":  len(rendered),
		"events": rendered,
	}, nil
}

// RegisterFindContact adds the address book search tool.
func RegisterFindContact(r *Registry, source ContactSource) {
	r.Register(&Tool{
		Name:        "find_contact",
		Description: "連絡先（アドレス帳）から名前で人を探します。電話番号やメールアドレスを返します。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "探す人の名前（部分一致）",
				},
			},
			"required": []string{"name"},
		},
		Handler: func(ctx context.Context, userID string, args map[string]any) (map[string]any, error) {
			name := stringArg(args, "name", "")
			if name == "" {
				return nil, fmt.Errorf("name is required")
			}
			contacts, err := source.FindContacts(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("find contact: %w", err)
			}
			rendered := make([]map[string]any, 0, len(contacts))
			for _, c := range contacts {
				rendered = append(rendered, map[string]any{
					"name":  c.Name,
					"phone": c.Phone,
					"email": c.Email,
				})
			}
			return map[string]any{
				"count":    len(rendered),
				"contacts": rendered,
			}, nil
		},
	})
}
