package tools

import (
	"context"
	"testing"
)

type fakeLocations struct {
	locations map[string]string
}

func (f *fakeLocations) Location(_ context.Context, userID string) (string, error) {
	return f.locations[userID], nil
}

func (f *fakeLocations) SetLocation(_ context.Context, userID, location string) error {
	if f.locations == nil {
		f.locations = make(map[string]string)
	}
	f.locations[userID] = location
	return nil
}

func TestRegisterLocationTool(t *testing.T) {
	r := NewRegistry(testLogger())
	store := &fakeLocations{}
	RegisterLocation(r, store)

	got, err := r.tools["register_location"].Handler(context.Background(), "u1", map[string]any{"location": "東京"})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if got["saved"] != true {
		t.Errorf("result = %v", got)
	}
	if store.locations["u1"] != "東京" {
		t.Errorf("stored = %v", store.locations)
	}
}

func TestRegisterLocationRequiresArg(t *testing.T) {
	r := NewRegistry(testLogger())
	RegisterLocation(r, &fakeLocations{})

	if _, err := r.tools["register_location"].Handler(context.Background(), "u1", map[string]any{}); err == nil {
		t.Error("expected error for missing location")
	}
}

func TestHandleWeatherNoLocation(t *testing.T) {
	if _, err := handleWeather(context.Background(), nil, &fakeLocations{}, "u1", map[string]any{}); err == nil {
		t.Error("expected error when no location is known")
	}
}
