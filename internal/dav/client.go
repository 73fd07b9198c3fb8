// Package dav provides CalDAV calendar and CardDAV contact lookups for
// the list_events and find_contact tools.
package dav

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/emersion/go-webdav/carddav"
)

// Config holds the DAV endpoints and shared credentials.
type Config struct {
	CalendarURL    string
	AddressBookURL string
	Username       string
	Password       string
}

// Event is one calendar entry in the queried window.
type Event struct {
	Summary  string
	Location string
	Start    time.Time
	End      time.Time
	AllDay   bool
}

// Contact is one address book match.
type Contact struct {
	Name  string
	Phone string
	Email string
}

// Client wraps CalDAV and CardDAV access to one account.
type Client struct {
	cfg    Config
	logger *slog.Logger
	http   webdav.HTTPClient
}

// NewClient creates a DAV client with basic-auth credentials.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger,
		http:   webdav.HTTPClientWithBasicAuth(nil, cfg.Username, cfg.Password),
	}
}

// ListEvents returns events between start and end, sorted by start time
// as the server returns them.
func (c *Client) ListEvents(ctx context.Context, start, end time.Time) ([]Event, error) {
	if c.cfg.CalendarURL == "" {
		return nil, fmt.Errorf("no calendar configured")
	}

	client, err := caldav.NewClient(c.http, c.cfg.CalendarURL)
	if err != nil {
		return nil, fmt.Errorf("caldav client: %w", err)
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{
				Name:     ical.CompEvent,
				AllProps: true,
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: start,
				End:   end,
			}},
		},
	}

	objects, err := client.QueryCalendar(ctx, c.cfg.CalendarURL, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	var events []Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			parsed, err := parseEvent(ev)
			if err != nil {
				c.logger.Debug("skipping calendar event", "path", obj.Path, "error", err)
				continue
			}
			events = append(events, parsed)
		}
	}
	return events, nil
}

func parseEvent(ev ical.Event) (Event, error) {
	var out Event
	if prop := ev.Props.Get(ical.PropSummary); prop != nil {
		out.Summary = prop.Value
	}
	if prop := ev.Props.Get(ical.PropLocation); prop != nil {
		out.Location = prop.Value
	}

	start, err := ev.DateTimeStart(time.Local)
	if err != nil {
		return out, fmt.Errorf("event start: %w", err)
	}
	out.Start = start
	if end, err := ev.DateTimeEnd(time.Local); err == nil {
		out.End = end
	}

	if prop := ev.Props.Get(ical.PropDateTimeStart); prop != nil {
		out.AllDay = prop.ValueType() == ical.ValueDate
	}
	return out, nil
}

// FindContacts searches the address book by display name.
func (c *Client) FindContacts(ctx context.Context, name string) ([]Contact, error) {
	if c.cfg.AddressBookURL == "" {
		return nil, fmt.Errorf("no address book configured")
	}

	client, err := carddav.NewClient(c.http, c.cfg.AddressBookURL)
	if err != nil {
		return nil, fmt.Errorf("carddav client: %w", err)
	}

	query := &carddav.AddressBookQuery{
		DataRequest: carddav.AddressDataRequest{
			Props: []string{
				vcard.FieldFormattedName,
				vcard.FieldTelephone,
				vcard.FieldEmail,
			},
		},
		PropFilters: []carddav.PropFilter{{
			Name: vcard.FieldFormattedName,
			TextMatches: []carddav.TextMatch{{
				Text:      name,
				MatchType: carddav.MatchContains,
			}},
		}},
	}

	objects, err := client.QueryAddressBook(ctx, c.cfg.AddressBookURL, query)
	if err != nil {
		return nil, fmt.Errorf("query address book: %w", err)
	}

	var contacts []Contact
	for _, obj := range objects {
		contacts = append(contacts, Contact{
			Name:  obj.Card.PreferredValue(vcard.FieldFormattedName),
			Phone: obj.Card.PreferredValue(vcard.FieldTelephone),
			Email: obj.Card.PreferredValue(vcard.FieldEmail),
		})
	}
	return contacts, nil
}
