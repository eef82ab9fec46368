// Package calendar renders a user's upcoming events as prompt context.
package calendar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// NoEvents is returned by Context when nothing is scheduled.
const NoEvents = "No upcoming calendar events."

// Event is a calendar entry. All-day events carry midnight of their date as Start.
type Event struct {
	Summary     string
	Start       time.Time
	End         time.Time
	Location    string
	Description string
	AllDay      bool
}

// Source lists events overlapping [from, to).
type Source interface {
	Events(ctx context.Context, from, to time.Time) ([]Event, error)
}

// Provider produces the formatted calendar summary.
type Provider interface {
	Context(ctx context.Context, daysAhead, daysBack int) (string, error)
}

// Client formats events from a Source.
type Client struct {
	source        Source
	loc           *time.Location
	now           func() time.Time
	upcomingLimit int
}

func NewClient(source Source, loc *time.Location) *Client {
	if loc == nil {
		loc = time.Local
	}
	return &Client{source: source, loc: loc, now: time.Now, upcomingLimit: 5}
}

// WithClock overrides the time source.
func (c *Client) WithClock(now func() time.Time) *Client {
	if now != nil {
		c.now = now
	}
	return c
}

// Events returns events between now-daysBack and the end of now+daysAhead days.
func (c *Client) Events(ctx context.Context, daysAhead, daysBack int) ([]Event, error) {
	now := c.now().In(c.loc)
	from := now.AddDate(0, 0, -daysBack)
	to := now.AddDate(0, 0, daysAhead+1)
	events, err := c.source.Events(ctx, from, to)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

// Upcoming returns future events within daysAhead, at most limit.
func (c *Client) Upcoming(ctx context.Context, daysAhead, limit int) ([]Event, error) {
	events, err := c.Events(ctx, daysAhead, 0)
	if err != nil {
		return nil, err
	}
	now := c.now().In(c.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
	var out []Event
	for _, e := range events {
		if (e.AllDay && !e.Start.Before(today)) || (!e.AllDay && e.Start.After(now)) {
			out = append(out, e)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Context renders today's events followed by the next few upcoming ones.
func (c *Client) Context(ctx context.Context, daysAhead, daysBack int) (string, error) {
	today, err := c.Events(ctx, 0, daysBack)
	if err != nil {
		return "", fmt.Errorf("today's events: %w", err)
	}
	upcoming, err := c.Upcoming(ctx, daysAhead, c.upcomingLimit)
	if err != nil {
		return "", fmt.Errorf("upcoming events: %w", err)
	}
	var parts []string
	if len(today) > 0 {
		parts = append(parts, "Today's events:\n"+c.Format(today))
	}
	if len(upcoming) > 0 {
		parts = append(parts, "Upcoming events:\n"+c.Format(upcoming))
	}
	if len(parts) == 0 {
		return NoEvents, nil
	}
	return strings.Join(parts, "\n\n"), nil
}

// Format renders one "- summary: when [at location]" line per event.
func (c *Client) Format(events []Event) string {
	if len(events) == 0 {
		return "No events found."
	}
	lines := make([]string, 0, len(events))
	for _, e := range events {
		var when string
		if e.AllDay {
			when = e.Start.Format("Monday, January 02") + " (all day)"
		} else {
			when = e.Start.In(c.loc).Format("Monday, January 02 at 03:04 PM")
		}
		line := fmt.Sprintf("- %s: %s", e.Summary, when)
		if e.Location != "" {
			line += " at " + e.Location
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// StaticSource serves a fixed list of events.
type StaticSource []Event

func (s StaticSource) Events(_ context.Context, from, to time.Time) ([]Event, error) {
	var out []Event
	for _, e := range s {
		if e.Start.Before(to) && !endOf(e).Before(from) {
			out = append(out, e)
		}
	}
	return out, nil
}

func endOf(e Event) time.Time {
	if !e.End.IsZero() {
		return e.End
	}
	if e.AllDay {
		return e.Start.AddDate(0, 0, 1)
	}
	return e.Start
}

var _ Provider = (*Client)(nil)
