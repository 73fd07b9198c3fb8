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

// LocationStore persists each user's home location for weather lookups
// and scheduled notifications.
type LocationStore interface {
	Location(ctx context.Context, userID string) (string, error)
	SetLocation(ctx context.Context, userID, location string) error
}

// RegisterLocation adds the tool that saves a user's home location.
func RegisterLocation(r *Registry, store LocationStore) {
	r.Register(&Tool{
		Name:        "register_location",
		Description: "ユーザーの居住地・活動拠点を登録します。天気の確認などに使われます。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "地名（例: 東京, Osaka）",
				},
			},
			"required": []string{"location"},
		},
		Handler: func(ctx context.Context, userID string, args map[string]any) (map[string]any, error) {
			location := stringArg(args, "location", "")
			if location == "" {
				return nil, fmt.Errorf("location is required")
			}
			if err := store.SetLocation(ctx, userID, location); err != nil {
				return nil, fmt.Errorf("save location: %w", err)
			}
			return map[string]any{"location": location, "saved": true}, nil
		},
	})
}

// weatherCodes maps Open-Meteo WMO codes to Japanese descriptions.
var weatherCodes = map[int]string{
	0: "快晴", 1: "晴れ", 2: "一部曇り", 3: "曇り",
	45: "霧", 48: "霧氷", 51: "霧雨", 53: "霧雨", 55: "霧雨",
	61: "小雨", 63: "雨", 65: "大雨", 66: "氷雨", 67: "氷雨",
	71: "小雪", 73: "雪", 75: "大雪", 77: "霧雪",
	80: "にわか雨", 81: "にわか雨", 82: "激しいにわか雨",
	85: "にわか雪", 86: "にわか雪",
	95: "雷雨", 96: "雷雨（ひょう）", 99: "雷雨（ひょう）",
}

// RegisterWeather adds the weather forecast tool backed by the
// Open-Meteo geocoding and forecast APIs (no API key required). When no
// location argument is given the user's registered location is used.
func RegisterWeather(r *Registry, store LocationStore) {
	client := httpkit.NewClient(httpkit.WithTimeout(15 * time.Second))
	r.Register(&Tool{
		Name:        "get_weather",
		Description: "指定した地名（省略時は登録済みの居住地）の現在の天気と今日の予報を取得します。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "地名（省略可）",
				},
			},
		},
		Handler: func(ctx context.Context, userID string, args map[string]any) (map[string]any, error) {
			return handleWeather(ctx, client, store, userID, args)
		},
	})
}

func handleWeather(ctx context.Context, client *http.Client, store LocationStore, userID string, args map[string]any) (map[string]any, error) {
	location := stringArg(args, "location", "")
	if location == "" && store != nil {
		saved, err := store.Location(ctx, userID)
		if err == nil {
			location = saved
		}
	}
	if location == "" {
		return nil, fmt.Errorf("location is required (none registered for this user)")
	}

	lat, lon, resolved, err := geocode(ctx, client, location)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("https://api.open-meteo.com/v1/forecast?latitude=%.4f&longitude=%.4f&current=temperature_2m,weather_code&daily=temperature_2m_max,temperature_2m_min,precipitation_probability_max&timezone=auto&forecast_days=1", lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather backend returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Current struct {
			Temperature float64 `json:"temperature_2m"`
			WeatherCode int     `json:"weather_code"`
		} `json:"current"`
		Daily struct {
			TempMax      []float64 `json:"temperature_2m_max"`
			TempMin      []float64 `json:"temperature_2m_min"`
			PrecipChance []float64 `json:"precipitation_probability_max"`
		} `json:"daily"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode weather: %w", err)
	}

	desc := weatherCodes[parsed.Current.WeatherCode]
	if desc == "" {
		desc = "不明"
	}

	out := map[string]any{
		"location":    resolved,
		"weather":     desc,
		"temperature": parsed.Current.Temperature,
	}
	if len(parsed.Daily.TempMax) > 0 {
		out["temp_max"] = parsed.Daily.TempMax[0]
	}
	if len(parsed.Daily.TempMin) > 0 {
		out["temp_min"] = parsed.Daily.TempMin[0]
	}
	if len(parsed.Daily.PrecipChance) > 0 {
		out["precipitation_chance"] = parsed.Daily.PrecipChance[0]
	}
	return out, nil
}

func geocode(ctx context.Context, client *http.Client, location string) (lat, lon float64, name string, err error) {
	u := fmt.Sprintf("https://geocoding-api.open-meteo.com/v1/search?name=%s&count=1&language=ja", url.QueryEscape(location))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, 0, "", fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, "", fmt.Errorf("geocode failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Results []struct {
			Name      string  `json:"name"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, 0, "", fmt.Errorf("decode geocode: %w", err)
	}
	if len(parsed.Results) == 0 {
		return 0, 0, "", fmt.Errorf("unknown location %q", location)
	}
	r := parsed.Results[0]
	return r.Latitude, r.Longitude, r.Name, nil
}
