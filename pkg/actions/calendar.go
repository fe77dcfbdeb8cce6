package actions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/notemate/pkg/calendar"
	"github.com/harun/notemate/pkg/toolexecutor"
)

// Calendar action names.
const (
	CreateEvent = "createEvent"
	ListEvents  = "listEvents"
	UpdateEvent = "updateEvent"
)

// maxListedEvents caps listEvents results.
const maxListedEvents = 10

type eventParams struct {
	EventID     string  `json:"eventId"`
	Summary     *string `json:"summary"`
	Description *string `json:"description"`
	Start       string  `json:"start"`
	End         string  `json:"end"`
	TimeZone    *string `json:"timeZone"`
	TimeMin     string  `json:"timeMin"`
	TimeMax     string  `json:"timeMax"`
}

// RegisterCalendarActions registers createEvent, listEvents and updateEvent.
// now supplies the current time for listEvents defaults; nil means time.Now.
func RegisterCalendarActions(reg Registrar, provider calendar.Provider, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}

	forPrincipal := func(ctx context.Context, p toolexecutor.Principal) (calendar.Store, error) {
		return provider.ForPrincipal(ctx, p.ID)
	}

	return registerAll(reg, []toolexecutor.ToolDefinition{
		{
			Name:        CreateEvent,
			Description: "Creates an event in the authenticated user's primary Google Calendar",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "summary", Type: "string", Description: "Event title", Required: true},
				{Name: "description", Type: "string", Description: "Event details"},
				{Name: "start", Type: "string", Description: "Start time, RFC 3339 (e.g. 2025-01-31T15:00:00+07:00)", Required: true},
				{Name: "end", Type: "string", Description: "End time, RFC 3339", Required: true},
				{Name: "timeZone", Type: "string", Description: "IANA time zone, e.g. Asia/Jakarta"},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, p toolexecutor.Principal) (interface{}, error) {
				var in eventParams
				if err := decodeParams(params, &in); err != nil {
					return nil, err
				}
				start, err := parseTime("start", in.Start)
				if err != nil {
					return nil, err
				}
				end, err := parseTime("end", in.End)
				if err != nil {
					return nil, err
				}

				store, err := forPrincipal(ctx, p)
				if err != nil {
					return nil, err
				}
				return store.CreateEvent(ctx, calendar.EventInput{
					Summary:     strings.TrimSpace(deref(in.Summary)),
					Description: deref(in.Description),
					Start:       start,
					End:         end,
					TimeZone:    deref(in.TimeZone),
				})
			},
		},
		{
			Name:        ListEvents,
			Description: "Lists events from the authenticated user's primary Google Calendar. Defaults to the rest of today.",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "timeMin", Type: "string", Description: "Range start, RFC 3339 (default now)"},
				{Name: "timeMax", Type: "string", Description: "Range end, RFC 3339 (default end of today)"},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, p toolexecutor.Principal) (interface{}, error) {
				var in eventParams
				if err := decodeParams(params, &in); err != nil {
					return nil, err
				}

				timeMin := now()
				if in.TimeMin != "" {
					t, err := parseTime("timeMin", in.TimeMin)
					if err != nil {
						return nil, err
					}
					timeMin = t
				}
				timeMax := calendar.EndOfDay(timeMin)
				if in.TimeMax != "" {
					t, err := parseTime("timeMax", in.TimeMax)
					if err != nil {
						return nil, err
					}
					timeMax = t
				}
				if timeMax.Before(timeMin) {
					return nil, fmt.Errorf("timeMax must not be before timeMin")
				}

				store, err := forPrincipal(ctx, p)
				if err != nil {
					return nil, err
				}
				return store.ListEvents(ctx, timeMin, timeMax, maxListedEvents)
			},
		},
		{
			Name:        UpdateEvent,
			Description: "Updates fields of an event in the authenticated user's primary Google Calendar",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "eventId", Type: "string", Description: "ID of the event to update", Required: true},
				{Name: "summary", Type: "string", Description: "New title"},
				{Name: "description", Type: "string", Description: "New details"},
				{Name: "start", Type: "string", Description: "New start time, RFC 3339"},
				{Name: "end", Type: "string", Description: "New end time, RFC 3339"},
				{Name: "timeZone", Type: "string", Description: "New IANA time zone"},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, p toolexecutor.Principal) (interface{}, error) {
				var in eventParams
				if err := decodeParams(params, &in); err != nil {
					return nil, err
				}

				patch := calendar.EventPatch{
					Summary:     in.Summary,
					Description: in.Description,
					TimeZone:    in.TimeZone,
				}
				if in.Start != "" {
					t, err := parseTime("start", in.Start)
					if err != nil {
						return nil, err
					}
					patch.Start = &t
				}
				if in.End != "" {
					t, err := parseTime("end", in.End)
					if err != nil {
						return nil, err
					}
					patch.End = &t
				}
				if patch.Empty() {
					return nil, fmt.Errorf("nothing to update")
				}

				store, err := forPrincipal(ctx, p)
				if err != nil {
					return nil, err
				}
				return store.UpdateEvent(ctx, in.EventID, patch)
			},
		},
	})
}

func parseTime(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp", field)
	}
	return t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
