package jobs

import (
	"context"
	"time"

	"github.com/wonny/flof/backend/internal/risk"
	"github.com/wonny/flof/backend/pkg/logger"
)

// RiskChecker runs the overlord's periodic pillar check
type RiskChecker interface {
	RunRiskCheck(now time.Time) risk.CheckResult
}

// RiskCheckJob drives the Nuclear Flatten pillars on a fixed cadence.
// A breach is not a job failure: the flatten already ran inside the check.
type RiskCheckJob struct {
	engine   RiskChecker
	schedule string
	logger   *logger.Logger
	now      func() time.Time
}

// NewRiskCheckJob creates a new risk check job
func NewRiskCheckJob(engine RiskChecker, schedule string, log *logger.Logger) *RiskCheckJob {
	return &RiskCheckJob{
		engine:   engine,
		schedule: schedule,
		logger:   log,
		now:      time.Now,
	}
}

// Name returns the job name
func (j *RiskCheckJob) Name() string {
	return "risk_check"
}

// Schedule returns the cron schedule
func (j *RiskCheckJob) Schedule() string {
	return j.schedule
}

// Run executes one overlord check
func (j *RiskCheckJob) Run(ctx context.Context) error {
	res := j.engine.RunRiskCheck(j.now())

	if res.Status == risk.StatusBreach {
		j.logger.WithField("pillar", res.Pillar).Critical("Risk check breached, nuclear flatten executed")
	}

	return nil
}
