package scheduler

import (
	"context"
	"time"
)

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name
	Name() string

	// Run executes the job. Returning an error triggers a retry.
	Run(ctx context.Context) error

	// Schedule returns the cron schedule expression (5 fields, session timezone)
	// Examples: "0 18 * * 0-4" (세션 경계 18:00 ET)
	//           "@every 1s"
	Schedule() string
}

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// maxHistory caps results kept per job (risk_check runs every second)
const maxHistory = 100

// JobHistory keeps the most recent results of one job, oldest first
type JobHistory struct {
	Results []JobResult

	// 전체 실행 누계 (Results 는 maxHistory 로 잘림)
	totalRuns     int
	totalFailures int
	failStreak    int
}

// AddResult records a result and trims the window
func (h *JobHistory) AddResult(result JobResult) {
	h.totalRuns++
	if result.Success {
		h.failStreak = 0
	} else {
		h.totalFailures++
		h.failStreak++
	}

	h.Results = append(h.Results, result)
	if len(h.Results) > maxHistory {
		h.Results = append([]JobResult(nil), h.Results[len(h.Results)-maxHistory:]...)
	}
}

// Last returns the most recent result
func (h *JobHistory) Last() (JobResult, bool) {
	if len(h.Results) == 0 {
		return JobResult{}, false
	}
	return h.Results[len(h.Results)-1], true
}

// LastWhere returns the most recent result with the given outcome
func (h *JobHistory) LastWhere(success bool) (JobResult, bool) {
	for i := len(h.Results) - 1; i >= 0; i-- {
		if h.Results[i].Success == success {
			return h.Results[i], true
		}
	}
	return JobResult{}, false
}

// TotalRuns counts every run since registration
func (h *JobHistory) TotalRuns() int { return h.totalRuns }

// TotalFailures counts every failed run since registration
func (h *JobHistory) TotalFailures() int { return h.totalFailures }

// ConsecutiveFailures counts failures since the last success
func (h *JobHistory) ConsecutiveFailures() int { return h.failStreak }

// SuccessRate is the lifetime success rate (0.0 - 1.0)
func (h *JobHistory) SuccessRate() float64 {
	if h.totalRuns == 0 {
		return 0.0
	}
	return float64(h.totalRuns-h.totalFailures) / float64(h.totalRuns)
}

// clone copies the history for readers outside the scheduler lock
func (h *JobHistory) clone() *JobHistory {
	out := *h
	out.Results = append([]JobResult(nil), h.Results...)
	return &out
}
