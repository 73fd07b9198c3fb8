package tools

import (
	"context"
	"testing"
	"time"

	"github.com/izaki/koto-agent/internal/dav"
)

type fakeCalendar struct {
	events   []dav.Event
	gotStart time.Time
	gotEnd   time.Time
}

func (f *fakeCalendar) ListEvents(_ context.Context, start, end time.Time) ([]dav.Event, error) {
	f.gotStart, f.gotEnd = start, end
	return f.events, nil
}

func TestHandleListEventsWindow(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	f := &fakeCalendar{events: []dav.Event{
		{
			Summary: "打ち合わせ",
			Start:   time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
			End:     time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC),
		},
		{Summary: "誕生日", Start: now, AllDay: true},
	}}

	got, err := handleListEvents(context.Background(), f, now, map[string]any{})
	if err != nil {
		t.Fatalf("handleListEvents: %v", err)
	}

	if f.gotStart.Hour() != 0 || !f.gotEnd.Equal(f.gotStart.AddDate(0, 0, 1)) {
		t.Errorf("window = %v .. %v", f.gotStart, f.gotEnd)
	}

	events := got["events"].([]map[string]any)
	if len(events) != 2 {
		t.Fatalf("len = %d", len(events))
	}
	if events[0]["start"] != "10:00" || events[0]["end"] != "11:00" {
		t.Errorf("timed event = %v", events[0])
	}
	if events[1]["all_day"] != true {
		t.Errorf("all-day event = %v", events[1])
	}
}

type fakeContacts struct {
	contacts []dav.Contact
	gotName  string
}

func (f *fakeContacts) FindContacts(_ context.Context, name string) ([]dav.Contact, error) {
	f.gotName = name
	return f.contacts, nil
}

func TestFindContactTool(t *testing.T) {
	r := NewRegistry(testLogger())
	f := &fakeContacts{contacts: []dav.Contact{
		{Name: "山田太郎", Phone: "090-0000-0000", Email: "taro@example.com"},
	}}
	RegisterFindContact(r, f)

	tool := r.tools["find_contact"]
	got, err := tool.Handler(context.Background(), "u1", map[string]any{"name": "山田"})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if f.gotName != "山田" {
		t.Errorf("query = %q", f.gotName)
	}
	contacts := got["contacts"].([]map[string]any)
	if contacts[0]["phone"] != "090-0000-0000" {
		t.Errorf("contacts = %v", contacts)
	}
}

func TestFindContactRequiresName(t *testing.T) {
	r := NewRegistry(testLogger())
	RegisterFindContact(r, &fakeContacts{})

	if _, err := r.tools["find_contact"].Handler(context.Background(), "u1", map[string]any{}); err == nil {
		t.Error("expected error for missing name")
	}
}
