package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/flof/backend/internal/scheduler"
	"github.com/wonny/flof/backend/pkg/logger"
)

// JobsHandler exposes scheduler state
type JobsHandler struct {
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(s *scheduler.Scheduler, log *logger.Logger) *JobsHandler {
	return &JobsHandler{scheduler: s, logger: log}
}

// GetJobs returns statistics for every registered job
// GET /api/jobs
func (h *JobsHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  h.scheduler.GetAllJobs(),
		"stats": h.scheduler.GetJobStats(),
	})
}

// RunJob runs a job now and returns its result
// POST /api/jobs/{name}/run
func (h *JobsHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	result, err := h.scheduler.RunJobSync(r.Context(), name)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"job":     name,
		"success": result.Success,
	}).Info("Job triggered via API")

	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, result)
}
