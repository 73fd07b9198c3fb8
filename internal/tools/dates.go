package tools

import (
	"context"
	"fmt"
	"time"
)

var jaWeekdays = [...]string{"日曜日", "月曜日", "火曜日", "水曜日", "木曜日", "金曜日", "土曜日"}

// RegisterCalculateDate adds the date arithmetic tool. nowFunc is
// injectable so tests can pin the clock.
func RegisterCalculateDate(r *Registry, nowFunc func() time.Time) {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	r.Register(&Tool{
		Name:        "calculate_date",
		Description: "日付の計算をします。今日の日付、N日後/前、曜日など。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{
					"type":        "string",
					"description": "today, add_days, subtract_days, days_until",
				},
				"days": map[string]any{
					"type":        "integer",
					"description": "日数",
				},
				"date_str": map[string]any{
					"type":        "string",
					"description": "日付 (YYYY-MM-DD形式)",
				},
			},
			"required": []string{"operation"},
		},
		Handler: func(ctx context.Context, userID string, args map[string]any) (map[string]any, error) {
			return handleCalculateDate(nowFunc(), args)
		},
	})
}

func handleCalculateDate(now time.Time, args map[string]any) (map[string]any, error) {
	op := stringArg(args, "operation", "today")
	days := intArg(args, "days", 0)

	describe := func(t time.Time) map[string]any {
		return map[string]any{
			"date":    t.Format("2006-01-02"),
			"weekday": jaWeekdays[t.Weekday()],
		}
	}

	switch op {
	case "today":
		out := describe(now)
		out["time"] = now.Format("15:04")
		return out, nil

	case "add_days":
		return describe(now.AddDate(0, 0, days)), nil

	case "subtract_days":
		return describe(now.AddDate(0, 0, -days)), nil

	case "days_until":
		dateStr := stringArg(args, "date_str", "")
		if dateStr == "" {
			return nil, fmt.Errorf("date_str is required for days_until")
		}
		target, err := time.ParseInLocation("2006-01-02", dateStr, now.Location())
		if err != nil {
			return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", dateStr)
		}
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		diff := int(target.Sub(today).Hours() / 24)
		return map[string]any{
			"target": dateStr,
			"days":   diff,
		}, nil

	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}
