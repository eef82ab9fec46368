package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleSource reads events with the Google Calendar v3 API. Credentials are
// supplied through client options; obtaining them is the caller's business.
type GoogleSource struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
	maxResults int64
}

func NewGoogleSource(ctx context.Context, calendarID string, loc *time.Location, opts ...option.ClientOption) (*GoogleSource, error) {
	svc, err := gcal.NewService(ctx, append([]option.ClientOption{option.WithScopes(gcal.CalendarReadonlyScope)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.Local
	}
	return &GoogleSource{svc: svc, calendarID: calendarID, loc: loc, maxResults: 50}, nil
}

func (g *GoogleSource) Events(ctx context.Context, from, to time.Time) ([]Event, error) {
	res, err := g.svc.Events.List(g.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		MaxResults(g.maxResults).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]Event, 0, len(res.Items))
	for _, item := range res.Items {
		out = append(out, g.parse(item))
	}
	return out, nil
}

func (g *GoogleSource) parse(item *gcal.Event) Event {
	e := Event{
		Summary:     item.Summary,
		Location:    item.Location,
		Description: item.Description,
	}
	if e.Summary == "" {
		e.Summary = "No title"
	}
	e.Start, e.AllDay = g.parseTime(item.Start)
	e.End, _ = g.parseTime(item.End)
	return e
}

func (g *GoogleSource) parseTime(dt *gcal.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t, false
		}
	}
	if dt.Date != "" {
		if t, err := time.ParseInLocation("2006-01-02", dt.Date, g.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var _ Source = (*GoogleSource)(nil)
