package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/easycrawl/catalog-service/internal/jobs"
)

// JobRunner runs one batch job
type JobRunner interface {
	Run(ctx context.Context, jobType jobs.Type, parameters string) (*jobs.Result, error)
}

// JobsHandler triggers batch jobs
type JobsHandler struct {
	runner JobRunner
	logger zerolog.Logger
}

// NewJobsHandler creates a jobs handler
func NewJobsHandler(runner JobRunner, logger zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		runner: runner,
		logger: logger.With().Str("component", "jobs_handler").Logger(),
	}
}

// TriggerJobRequest is the optional body of a trigger
type TriggerJobRequest struct {
	Parameters string `json:"parameters"`
}

// TriggerJob runs the job named by the path and returns its result
// POST /internal/jobs/:type
func (h *JobsHandler) TriggerJob(c *gin.Context) {
	jobType, err := jobs.ParseType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var req TriggerJobRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if q, ok := c.GetQuery("parameters"); ok && req.Parameters == "" {
		req.Parameters = q
	}

	result, err := h.runner.Run(c.Request.Context(), jobType, req.Parameters)
	if err != nil {
		h.logger.Error().Err(err).Str("job_type", string(jobType)).Msg("Job trigger failed")
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListJobTypes returns the job types that can be triggered
// GET /internal/jobs
func (h *JobsHandler) ListJobTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"types": jobs.Types})
}
