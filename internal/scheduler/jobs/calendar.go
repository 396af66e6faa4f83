package jobs

import (
	"context"
	"time"

	"github.com/wonny/flof/backend/internal/market"
	"github.com/wonny/flof/backend/pkg/httputil"
	"github.com/wonny/flof/backend/pkg/logger"
	"github.com/wonny/flof/backend/pkg/redis"
)

// CalendarRefreshJob reloads the economic calendar used for Type A sudden moves.
// The fetched events are cached in Redis so a failed fetch can fall back to today's copy.
type CalendarRefreshJob struct {
	calendar *market.EventCalendar
	client   *httputil.Client
	cache    *redis.Cache
	url      string
	schedule string
	loc      *time.Location
	logger   *logger.Logger
	now      func() time.Time
}

// NewCalendarRefreshJob creates a new calendar refresh job. cache may be nil.
func NewCalendarRefreshJob(
	calendar *market.EventCalendar,
	client *httputil.Client,
	cache *redis.Cache,
	url, schedule string,
	loc *time.Location,
	log *logger.Logger,
) *CalendarRefreshJob {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarRefreshJob{
		calendar: calendar,
		client:   client,
		cache:    cache,
		url:      url,
		schedule: schedule,
		loc:      loc,
		logger:   log,
		now:      time.Now,
	}
}

// Name returns the job name
func (j *CalendarRefreshJob) Name() string { return "calendar_refresh" }

// Schedule returns the cron schedule
func (j *CalendarRefreshJob) Schedule() string { return j.schedule }

// Run fetches the calendar
func (j *CalendarRefreshJob) Run(ctx context.Context) error {
	if j.url == "" {
		j.logger.Debug("Calendar URL not configured, skipping refresh")
		return nil
	}

	key := redis.CalendarKey(j.now().In(j.loc).Format("2006-01-02"))

	n, err := j.calendar.Fetch(ctx, j.client, j.url)
	if err != nil {
		if j.restore(ctx, key) {
			j.logger.WithError(err).Warn("Calendar fetch failed, restored cached events")
			return nil
		}
		return err
	}

	if j.cache != nil {
		if err := j.cache.Set(ctx, key, j.calendar.Events(), redis.TTLCalendar); err != nil {
			j.logger.WithError(err).Warn("Failed to cache calendar")
		}
	}

	j.logger.WithField("events", n).Info("Economic calendar refreshed")
	return nil
}

// restore loads the cached copy of today's calendar
func (j *CalendarRefreshJob) restore(ctx context.Context, key string) bool {
	if j.cache == nil {
		return false
	}
	var events []market.CalendarEvent
	found, err := j.cache.Get(ctx, key, &events)
	if err != nil || !found {
		return false
	}
	j.calendar.LoadEvents(events)
	return true
}
