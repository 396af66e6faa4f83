package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/flof/backend/pkg/logger"
)

// Options configures the scheduler
type Options struct {
	// Location is the session timezone cron specs are evaluated in (nil = UTC)
	Location *time.Location

	// Retry configuration. Retries apply to jobs that return an error.
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultOptions returns short retries suited to second-level jobs
func DefaultOptions() Options {
	return Options{
		Location:   time.UTC,
		MaxRetries: 2,
		RetryDelay: 2 * time.Second,
	}
}

// Scheduler manages scheduled jobs
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	jobs    map[string]Job
	entries map[string]cron.EntryID
	history map[string]*JobHistory
	mu      sync.RWMutex

	// Retry configuration
	maxRetries int
	retryDelay time.Duration

	now func() time.Time
}

// New creates a new scheduler. Overlapping runs of the same job are skipped.
func New(opts Options, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{log: log}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:     log,
		jobs:       make(map[string]Job),
		entries:    make(map[string]cron.EntryID),
		history:    make(map[string]*JobHistory),
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		now:        time.Now,
	}
}

// AddJob adds a job to the scheduler
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobName := job.Name()

	// Check if job already exists
	if _, exists := s.jobs[jobName]; exists {
		return fmt.Errorf("job %s already exists", jobName)
	}

	// Add job to cron
	id, err := s.cron.AddFunc(job.Schedule(), func() {
		s.runJob(context.Background(), job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", jobName, err)
	}

	// Store job
	s.jobs[jobName] = job
	s.entries[jobName] = id
	s.history[jobName] = &JobHistory{}

	s.logger.WithFields(map[string]interface{}{
		"job":      jobName,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// RemoveJob removes a job from the scheduler
func (s *Scheduler) RemoveJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobName]; !exists {
		return fmt.Errorf("job %s not found", jobName)
	}

	s.cron.Remove(s.entries[jobName])
	delete(s.jobs, jobName)
	delete(s.entries, jobName)
	s.logger.WithField("job", jobName).Info("Job removed from scheduler")

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// RunJob runs a specific job immediately (outside of schedule)
func (s *Scheduler) RunJob(jobName string) error {
	job, err := s.job(jobName)
	if err != nil {
		return err
	}

	go s.runJob(context.Background(), job)
	return nil
}

// RunJobSync runs a job immediately and returns its result
func (s *Scheduler) RunJobSync(ctx context.Context, jobName string) (JobResult, error) {
	job, err := s.job(jobName)
	if err != nil {
		return JobResult{}, err
	}
	return s.runJob(ctx, job), nil
}

func (s *Scheduler) job(jobName string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobName]
	if !exists {
		return nil, fmt.Errorf("job %s not found", jobName)
	}
	return job, nil
}

// runJob executes a job with retry logic
func (s *Scheduler) runJob(ctx context.Context, job Job) JobResult {
	jobName := job.Name()
	startTime := s.now()

	s.logger.WithField("job", jobName).Debug("Job started")

	var lastErr error
	var success bool
	attempts := 0

	// Try running the job with retries
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		attempts++
		err := job.Run(ctx)
		if err == nil {
			success = true
			break
		}

		lastErr = err
		s.logger.WithFields(map[string]interface{}{
			"job":     jobName,
			"attempt": attempt + 1,
			"error":   err.Error(),
		}).Warn("Job execution failed, retrying")

		// Wait before retry (except on last attempt)
		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
				attempt = s.maxRetries
			case <-time.After(s.retryDelay):
			}
		}
	}

	endTime := s.now()
	duration := endTime.Sub(startTime)

	// Create job result
	result := JobResult{
		JobName:   jobName,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  duration,
		Attempts:  attempts,
		Success:   success,
	}

	if !success && lastErr != nil {
		result.Error = lastErr.Error()
	}

	// Store result in history
	s.mu.Lock()
	if history, exists := s.history[jobName]; exists {
		history.AddResult(result)
	}
	s.mu.Unlock()

	// Log completion
	if success {
		s.logger.WithFields(map[string]interface{}{
			"job":      jobName,
			"duration": duration,
		}).Debug("Job completed successfully")
	} else {
		s.logger.WithFields(map[string]interface{}{
			"job":      jobName,
			"duration": duration,
			"error":    result.Error,
		}).Error("Job failed after all retries")
	}
	return result
}

// GetJobHistory returns a copy of the history for a specific job
func (s *Scheduler) GetJobHistory(jobName string) (*JobHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.history[jobName]
	if !exists {
		return nil, fmt.Errorf("job %s not found", jobName)
	}

	return history.clone(), nil
}

// GetAllJobs returns all registered job names in order
func (s *Scheduler) GetAllJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]string, 0, len(s.jobs))
	for jobName := range s.jobs {
		jobs = append(jobs, jobName)
	}
	sort.Strings(jobs)

	return jobs
}

// GetJobStats returns statistics for all registered jobs
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.jobs))

	for jobName, job := range s.jobs {
		history := s.history[jobName]
		st := JobStats{
			JobName:             jobName,
			Schedule:            job.Schedule(),
			TotalRuns:           history.TotalRuns(),
			SuccessCount:        history.TotalRuns() - history.TotalFailures(),
			FailureCount:        history.TotalFailures(),
			ConsecutiveFailures: history.ConsecutiveFailures(),
			SuccessRate:         history.SuccessRate(),
		}

		if last, ok := history.Last(); ok {
			st.LastRun = timePtr(last.StartTime)
			st.LastDuration = last.Duration
			st.LastError = last.Error
		}
		if r, ok := history.LastWhere(true); ok {
			st.LastSuccess = timePtr(r.StartTime)
		}
		if r, ok := history.LastWhere(false); ok {
			st.LastFailure = timePtr(r.StartTime)
		}
		if entry := s.cron.Entry(s.entries[jobName]); entry.Valid() && !entry.Next.IsZero() {
			st.NextRun = timePtr(entry.Next)
		}

		stats[jobName] = st
	}

	return stats
}

// JobStats represents statistics for a job
type JobStats struct {
	JobName             string        `json:"job_name"`
	Schedule            string        `json:"schedule"`
	TotalRuns           int           `json:"total_runs"`
	SuccessCount        int           `json:"success_count"`
	FailureCount        int           `json:"failure_count"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	SuccessRate         float64       `json:"success_rate"`
	LastRun             *time.Time    `json:"last_run,omitempty"`
	LastDuration        time.Duration `json:"last_duration,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
	LastSuccess         *time.Time    `json:"last_success,omitempty"`
	LastFailure         *time.Time    `json:"last_failure,omitempty"`
	NextRun             *time.Time    `json:"next_run,omitempty"`
}

func timePtr(t time.Time) *time.Time { return &t }

// cronLogger adapts the zerolog wrapper to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(kvFields(keysAndValues)).Error("cron: " + msg)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			fields[k] = kv[i+1]
		}
	}
	return fields
}
