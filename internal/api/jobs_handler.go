package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jonesrussell/webcron/internal/domain"
)

// upcomingRuns is how many future fire times a job detail response carries.
const upcomingRuns = 5

// jobResponse assembles the response payload for one job.
func (s *Server) jobResponse(c *gin.Context, job *domain.CronJob, detailed bool) JobResponse {
	resp := JobResponse{CronJob: job, Tags: []string{}}

	if names, err := s.tags.NamesForJob(c.Request.Context(), job.ID); err == nil {
		resp.Tags = names
	} else {
		s.logger.Warn("Failed to load job tags", "job_id", job.ID, "error", err)
	}

	if state, exists := s.engine.JobState(job.ID); exists {
		resp.EngineStatus = string(state.Status)
	}

	if detailed {
		if sched, err := s.parser.Parse(job.Schedule, job.ScheduleType); err == nil {
			resp.ScheduleDescription = sched.Describe()
			if job.IsActive {
				resp.NextRuns = sched.Upcoming(upcomingRuns)
			}
		}
	}

	return resp
}

// handleListJobs returns all jobs with their tags.
func (s *Server) handleListJobs(c *gin.Context) {
	jobs, err := s.jobs.List(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to list jobs", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, s.jobResponse(c, job, false))
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  responses,
		"count": len(responses),
	})
}

// handleGetJob returns one job with schedule description and upcoming runs.
func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Job not found")
			return
		}
		s.logger.Error("Failed to get job", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to get job")
		return
	}

	c.JSON(http.StatusOK, s.jobResponse(c, job, true))
}

// handleCreateJob validates, persists and schedules a new job.
func (s *Server) handleCreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	req.normalize()
	if err := req.validate(); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	job := req.toJob(uuid.New().String(), time.Now().UTC())

	if err := s.parser.Validate(job.Schedule, job.ScheduleType); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := s.jobs.Create(ctx, job); err != nil {
		s.logger.Error("Failed to create job", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if len(req.Tags) > 0 {
		if err := s.tags.ReplaceJobTags(ctx, job.ID, req.Tags); err != nil {
			s.logger.Error("Failed to attach tags", "job_id", job.ID, "error", err)
		}
	}

	if err := s.engine.Register(job); err != nil {
		s.logger.Error("Failed to schedule new job", "job_id", job.ID, "error", err)
	}

	s.logger.Info("Job created", "job_id", job.ID, "name", job.Name)
	c.JSON(http.StatusCreated, s.jobResponse(c, job, true))
}

// handleUpdateJob applies a partial update and reconciles the engine.
func (s *Server) handleUpdateJob(c *gin.Context) {
	var req UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	job, err := s.jobs.GetByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Job not found")
			return
		}
		s.logger.Error("Failed to get job", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to get job")
		return
	}

	if err := req.apply(job, time.Now().UTC()); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.parser.Validate(job.Schedule, job.ScheduleType); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Error("Failed to update job", "job_id", job.ID, "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to update job")
		return
	}

	if req.Tags != nil {
		if err := s.tags.ReplaceJobTags(ctx, job.ID, *req.Tags); err != nil {
			s.logger.Error("Failed to update tags", "job_id", job.ID, "error", err)
		}
	}

	if err := s.engine.Update(ctx, job.ID); err != nil {
		s.logger.Error("Failed to reschedule job", "job_id", job.ID, "error", err)
	}

	s.logger.Info("Job updated", "job_id", job.ID)
	c.JSON(http.StatusOK, s.jobResponse(c, job, true))
}

// handleToggleJob flips a job's active flag and reconciles the engine.
func (s *Server) handleToggleJob(c *gin.Context) {
	ctx := c.Request.Context()
	job, err := s.jobs.GetByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Job not found")
			return
		}
		s.logger.Error("Failed to get job", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to get job")
		return
	}

	job.IsActive = !job.IsActive
	if err := s.jobs.SetActive(ctx, job.ID, job.IsActive); err != nil {
		s.logger.Error("Failed to toggle job", "job_id", job.ID, "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to toggle job")
		return
	}

	if job.IsActive {
		if err := s.engine.Update(ctx, job.ID); err != nil {
			s.logger.Error("Failed to schedule toggled job", "job_id", job.ID, "error", err)
		}
	} else {
		s.engine.Remove(job.ID)
	}

	s.logger.Info("Job toggled", "job_id", job.ID, "is_active", job.IsActive)
	c.JSON(http.StatusOK, s.jobResponse(c, job, true))
}

// handleDeleteJob removes a job, its timer and (via cascade) its logs.
func (s *Server) handleDeleteJob(c *gin.Context) {
	jobID := c.Param("id")
	s.engine.Remove(jobID)

	if err := s.jobs.Delete(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Job not found")
			return
		}
		s.logger.Error("Failed to delete job", "job_id", jobID, "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to delete job")
		return
	}

	s.logger.Info("Job deleted", "job_id", jobID)
	c.JSON(http.StatusOK, gin.H{"message": "Job deleted"})
}

// handleTriggerJob runs a job immediately, subject to the per-job rate
// limit, and returns the resulting execution log. The limiter token is
// consumed only for triggers that can actually execute: unknown or
// inactive jobs never start a cooldown, and a token is refunded when the
// engine turns the trigger away.
func (s *Server) handleTriggerJob(c *gin.Context) {
	jobID := c.Param("id")

	job, err := s.jobs.GetByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Job not found")
			return
		}
		s.logger.Error("Failed to get job", "job_id", jobID, "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to trigger job")
		return
	}
	if !job.IsActive {
		respondError(c, http.StatusBadRequest, "Job is not active")
		return
	}

	if allowed, retryAfter := s.limiter.Allow(jobID); !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":      domain.ErrRateLimited.Error(),
			"retryAfter": retryAfter,
		})
		return
	}

	entry, err := s.engine.ExecuteManually(c.Request.Context(), jobID)
	if err != nil {
		s.limiter.Refund(jobID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			respondError(c, http.StatusNotFound, "Job not found")
		case errors.Is(err, domain.ErrInactive):
			respondError(c, http.StatusBadRequest, "Job is not active")
		case errors.Is(err, domain.ErrAlreadyRunning):
			respondError(c, http.StatusBadRequest, "Job is already running")
		case errors.Is(err, domain.ErrInvalidSchedule):
			respondError(c, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("Manual trigger failed", "job_id", jobID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to trigger job")
		}
		return
	}

	if entry.Status == domain.ExecutionFailed {
		message := "Execution failed"
		if entry.ErrorMessage != nil {
			message = *entry.ErrorMessage
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     message,
			"execution": entry,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Job executed",
		"execution": entry,
	})
}
