package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/wonny/flof/backend/pkg/httputil"
	"github.com/wonny/flof/backend/pkg/logger"
)

// CalendarConfig 경제 일정 윈도우
type CalendarConfig struct {
	Cooldown  time.Duration `yaml:"cooldown" json:"cooldown"`     // 이벤트 이후 활성 구간
	PreWindow time.Duration `yaml:"pre_window" json:"pre_window"` // 이벤트 이전 활성 구간
}

// DefaultCalendarConfig returns the default event windows
func DefaultCalendarConfig() CalendarConfig {
	return CalendarConfig{
		Cooldown:  180 * time.Second,
		PreWindow: 2 * time.Minute,
	}
}

// CalendarEvent is a scheduled macro release (CPI, FOMC, NFP ...)
type CalendarEvent struct {
	Name   string    `json:"name"`
	Time   time.Time `json:"time"`
	Impact string    `json:"impact,omitempty"`
	Type   string    `json:"type,omitempty"`
}

// jsonEvent is the on-disk event format. datetime is local wall time in the session timezone.
type jsonEvent struct {
	Name     string `json:"name"`
	Datetime string `json:"datetime"`
	Impact   string `json:"impact"`
	Type     string `json:"type"`
}

const eventLayout = "2006-01-02T15:04:05"

// EventCalendar 예정 이벤트 기반 Type A 감지
type EventCalendar struct {
	mu     sync.RWMutex
	cfg    CalendarConfig
	loc    *time.Location
	log    *logger.Logger
	events []CalendarEvent
}

// NewEventCalendar creates an empty calendar. loc is the zone of naive event times.
func NewEventCalendar(cfg CalendarConfig, loc *time.Location, log *logger.Logger) *EventCalendar {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &EventCalendar{cfg: cfg, loc: loc, log: log}
}

// LoadEvents replaces the event list
func (c *EventCalendar) LoadEvents(events []CalendarEvent) {
	sorted := make([]CalendarEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	c.mu.Lock()
	c.events = sorted
	c.mu.Unlock()

	c.log.WithField("count", len(sorted)).Info("Event calendar loaded")
}

// Events returns a copy of the loaded events
func (c *EventCalendar) Events() []CalendarEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]CalendarEvent, len(c.events))
	copy(out, c.events)
	return out
}

// LoadJSON reads [{"name","datetime","impact","type"}]. Unparseable datetimes are skipped.
func (c *EventCalendar) LoadJSON(r io.Reader) error {
	var raw []jsonEvent
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return fmt.Errorf("decode calendar json: %w", err)
	}

	events := make([]CalendarEvent, 0, len(raw))
	for _, e := range raw {
		t, err := time.ParseInLocation(eventLayout, e.Datetime, c.loc)
		if err != nil {
			c.log.WithFields(map[string]interface{}{
				"name":     e.Name,
				"datetime": e.Datetime,
			}).Warn("Skipping calendar event with bad datetime")
			continue
		}
		events = append(events, CalendarEvent{Name: e.Name, Time: t, Impact: e.Impact, Type: e.Type})
	}
	c.LoadEvents(events)
	return nil
}

// ParseHTML extracts events from an economic calendar table.
// 행 구조: 날짜(YYYY-MM-DD) | 시각(HH:MM) | 이벤트명 | 중요도
func (c *EventCalendar) ParseHTML(r io.Reader) ([]CalendarEvent, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse calendar html: %w", err)
	}

	dateRe := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe := regexp.MustCompile(`^\d{2}:\d{2}$`)

	var events []CalendarEvent
	doc.Find("table.calendar tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}

		date := strings.TrimSpace(cells.Eq(0).Text())
		clock := strings.TrimSpace(cells.Eq(1).Text())
		if !dateRe.MatchString(date) || !timeRe.MatchString(clock) {
			return
		}

		t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, c.loc)
		if err != nil {
			return
		}

		ev := CalendarEvent{
			Name: strings.TrimSpace(cells.Eq(2).Text()),
			Time: t,
		}
		if cells.Length() > 3 {
			ev.Impact = strings.ToLower(strings.TrimSpace(cells.Eq(3).Text()))
		}
		ev.Type = strings.ToUpper(strings.Fields(ev.Name + " _")[0])
		events = append(events, ev)
	})

	return events, nil
}

// Fetch downloads the calendar and loads it. JSON bodies are decoded directly, others parsed as HTML.
func (c *EventCalendar) Fetch(ctx context.Context, client *httputil.Client, url string) (int, error) {
	body, err := client.GetBody(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("fetch calendar: %w", err)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := c.LoadJSON(bytes.NewReader(trimmed)); err != nil {
			return 0, err
		}
		return len(c.Events()), nil
	}

	events, err := c.ParseHTML(bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	c.LoadEvents(events)
	return len(events), nil
}

// HasActiveEvent reports whether t is within [event - pre, event + cooldown] of any event
func (c *EventCalendar) HasActiveEvent(t time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.events {
		if !t.Before(e.Time.Add(-c.cfg.PreWindow)) && !t.After(e.Time.Add(c.cfg.Cooldown)) {
			return true
		}
	}
	return false
}

// NextEvent returns the first event strictly after t
func (c *EventCalendar) NextEvent(t time.Time) (CalendarEvent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.events {
		if e.Time.After(t) {
			return e, true
		}
	}
	return CalendarEvent{}, false
}
