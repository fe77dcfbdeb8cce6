package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/harun/notemate/pkg/calendar"
	"github.com/harun/notemate/pkg/users"
	"github.com/rs/zerolog"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

const primaryCalendar = "primary"

// CalendarProvider resolves a principal's primary Google Calendar from the
// OAuth token stored on their user record.
type CalendarProvider struct {
	client *Client
	users  users.Store
	logger zerolog.Logger
}

var _ calendar.Provider = (*CalendarProvider)(nil)

// NewCalendarProvider creates a CalendarProvider.
func NewCalendarProvider(client *Client, store users.Store, logger zerolog.Logger) *CalendarProvider {
	return &CalendarProvider{
		client: client,
		users:  store,
		logger: logger.With().Str("component", "google_calendar").Logger(),
	}
}

func (p *CalendarProvider) ForPrincipal(ctx context.Context, principalID string) (calendar.Store, error) {
	ts, err := p.client.tokenSourceFor(ctx, p.users, principalID, p.logger)
	if errors.Is(err, users.ErrNotFound) {
		return nil, calendar.ErrNotLinked
	}
	if err != nil {
		return nil, err
	}

	svc, err := gcal.NewService(ctx, p.client.serviceOptions(ts)...)
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}
	return &calendarStore{svc: svc}, nil
}

// calendarStore is one user's primary calendar.
type calendarStore struct {
	svc *gcal.Service
}

func (s *calendarStore) CreateEvent(ctx context.Context, in calendar.EventInput) (*calendar.Event, error) {
	if in.End.Before(in.Start) {
		return nil, calendar.ErrInvalidRange
	}

	ev := &gcal.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Start:       eventTime(in.Start, in.TimeZone),
		End:         eventTime(in.End, in.TimeZone),
	}
	created, err := s.svc.Events.Insert(primaryCalendar, ev).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}
	return fromAPIEvent(created), nil
}

func (s *calendarStore) ListEvents(ctx context.Context, timeMin, timeMax time.Time, max int) ([]*calendar.Event, error) {
	res, err := s.svc.Events.List(primaryCalendar).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	out := make([]*calendar.Event, 0, len(res.Items))
	for _, item := range res.Items {
		out = append(out, fromAPIEvent(item))
	}
	return out, nil
}

func (s *calendarStore) UpdateEvent(ctx context.Context, id string, patch calendar.EventPatch) (*calendar.Event, error) {
	ev := &gcal.Event{}
	if patch.Summary != nil {
		ev.Summary = *patch.Summary
	}
	if patch.Description != nil {
		ev.Description = *patch.Description
	}
	tz := ""
	if patch.TimeZone != nil {
		tz = *patch.TimeZone
	}
	if patch.Start != nil {
		ev.Start = eventTime(*patch.Start, tz)
	}
	if patch.End != nil {
		ev.End = eventTime(*patch.End, tz)
	}
	if patch.Start != nil && patch.End != nil && patch.End.Before(*patch.Start) {
		return nil, calendar.ErrInvalidRange
	}

	updated, err := s.svc.Events.Patch(primaryCalendar, id, ev).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
			return nil, calendar.ErrEventNotFound
		}
		return nil, fmt.Errorf("patching event: %w", err)
	}
	return fromAPIEvent(updated), nil
}

func eventTime(t time.Time, tz string) *gcal.EventDateTime {
	return &gcal.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: tz}
}

func parseEventTime(dt *gcal.EventDateTime) (time.Time, string) {
	if dt == nil {
		return time.Time{}, ""
	}
	if dt.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, dt.DateTime)
		return t, dt.TimeZone
	}
	// All-day events only carry a date.
	t, _ := time.Parse("2006-01-02", dt.Date)
	return t, dt.TimeZone
}

func fromAPIEvent(item *gcal.Event) *calendar.Event {
	start, tz := parseEventTime(item.Start)
	end, _ := parseEventTime(item.End)
	return &calendar.Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Start:       start,
		End:         end,
		TimeZone:    tz,
		Link:        item.HtmlLink,
	}
}
