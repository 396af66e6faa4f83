package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/flof/backend/pkg/logger"
)

// SessionController receives session boundary callbacks
type SessionController interface {
	DailyReset(now time.Time)
	EODWarning(now time.Time)
}

// DailyResetJob clears session risk state at the futures session boundary (18:00 ET)
type DailyResetJob struct {
	engine   SessionController
	schedule string
	logger   *logger.Logger
	now      func() time.Time
}

// NewDailyResetJob creates a new daily reset job
func NewDailyResetJob(engine SessionController, schedule string, log *logger.Logger) *DailyResetJob {
	return &DailyResetJob{engine: engine, schedule: schedule, logger: log, now: time.Now}
}

// Name returns the job name
func (j *DailyResetJob) Name() string { return "daily_reset" }

// Schedule returns the cron schedule
func (j *DailyResetJob) Schedule() string { return j.schedule }

// Run executes the reset
func (j *DailyResetJob) Run(ctx context.Context) error {
	j.logger.Info("Running scheduled daily reset")
	j.engine.DailyReset(j.now())
	return nil
}

// EODWarningJob announces the end-of-day flatten ahead of time.
// The flatten itself runs on bar time inside the decision loop.
type EODWarningJob struct {
	engine   SessionController
	schedule string
	logger   *logger.Logger
	now      func() time.Time
}

// NewEODWarningJob creates the warning job for a flatten at "HH:MM" minus lead
func NewEODWarningJob(engine SessionController, flattenTime string, lead time.Duration, log *logger.Logger) (*EODWarningJob, error) {
	spec, err := EODWarningSpec(flattenTime, lead)
	if err != nil {
		return nil, err
	}
	return &EODWarningJob{engine: engine, schedule: spec, logger: log, now: time.Now}, nil
}

// Name returns the job name
func (j *EODWarningJob) Name() string { return "eod_warning" }

// Schedule returns the cron schedule
func (j *EODWarningJob) Schedule() string { return j.schedule }

// Run publishes the warning
func (j *EODWarningJob) Run(ctx context.Context) error {
	j.logger.Info("Publishing EOD flatten warning")
	j.engine.EODWarning(j.now())
	return nil
}

// EODWarningSpec returns a weekday cron spec firing lead before flattenTime ("15:50", 5m → "45 15 * * 1-5")
func EODWarningSpec(flattenTime string, lead time.Duration) (string, error) {
	t, err := time.Parse("15:04", flattenTime)
	if err != nil {
		return "", fmt.Errorf("invalid eod flatten time %q: %w", flattenTime, err)
	}
	if lead < 0 || lead >= 24*time.Hour {
		return "", fmt.Errorf("invalid eod warning lead %s", lead)
	}

	mins := (t.Hour()*60 + t.Minute() - int(lead/time.Minute) + 24*60) % (24 * 60)
	return fmt.Sprintf("%d %d * * 1-5", mins%60, mins/60), nil
}
