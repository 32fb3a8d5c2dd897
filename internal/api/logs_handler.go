package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/webcron/internal/database"
	"github.com/jonesrussell/webcron/internal/domain"
)

// collapsedBodyLimit caps response bodies in listings unless expand=true.
const collapsedBodyLimit = 500

// logFilterFromQuery builds a log filter from the request's query
// parameters. It reports false when a parameter is malformed.
func logFilterFromQuery(c *gin.Context) (database.LogFilter, bool) {
	filter := database.LogFilter{
		Status:          c.Query("status"),
		JobName:         c.Query("jobName"),
		ResponseContent: c.Query("responseContent"),
	}

	if filter.Status != "" &&
		filter.Status != string(domain.ExecutionSuccess) &&
		filter.Status != string(domain.ExecutionFailed) {
		return filter, false
	}

	manual, ok := parseBoolQuery(c, "triggeredManually")
	if !ok {
		return filter, false
	}
	filter.TriggeredManually = manual

	start, ok := parseDateQuery(c, "startDate")
	if !ok {
		return filter, false
	}
	filter.StartDate = start

	end, ok := parseDateQuery(c, "endDate")
	if !ok {
		return filter, false
	}
	filter.EndDate = end

	return filter, true
}

// collapseBodies truncates long response bodies for listing views.
func collapseBodies(logs []*domain.ExecutionLog) {
	for _, entry := range logs {
		if entry.ResponseBody == nil {
			continue
		}
		body := *entry.ResponseBody
		if len(body) > collapsedBodyLimit {
			collapsed := body[:collapsedBodyLimit] + domain.TruncationSuffix
			entry.ResponseBody = &collapsed
		}
	}
}

// listLogs runs a filtered, paginated log query and writes the response.
func (s *Server) listLogs(c *gin.Context, filter database.LogFilter) {
	page, limit := parsePagination(c)

	expand := c.DefaultQuery("expand", "false") == "true"

	logs, total, err := s.logs.List(c.Request.Context(), filter, page, limit)
	if err != nil {
		s.logger.Error("Failed to list execution logs", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to list execution logs")
		return
	}

	if !expand {
		collapseBodies(logs)
	}

	totalPages := (total + limit - 1) / limit
	c.JSON(http.StatusOK, gin.H{
		"logs": logs,
		"pagination": gin.H{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": totalPages,
		},
	})
}

// handleJobLogs lists one job's execution logs, newest first.
func (s *Server) handleJobLogs(c *gin.Context) {
	jobID := c.Param("id")

	if _, err := s.jobs.GetByID(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Job not found")
			return
		}
		s.logger.Error("Failed to get job", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to get job")
		return
	}

	filter, ok := logFilterFromQuery(c)
	if !ok {
		respondError(c, http.StatusBadRequest, "Invalid filter parameter")
		return
	}
	filter.JobID = jobID

	s.listLogs(c, filter)
}

// handleSearchLogs searches execution logs across all jobs, including by
// job name and response-body content.
func (s *Server) handleSearchLogs(c *gin.Context) {
	filter, ok := logFilterFromQuery(c)
	if !ok {
		respondError(c, http.StatusBadRequest, "Invalid filter parameter")
		return
	}
	filter.JobID = c.Query("jobId")

	s.listLogs(c, filter)
}

// handleLogStats returns overall and per-job execution statistics.
func (s *Server) handleLogStats(c *gin.Context) {
	start, ok := parseDateQuery(c, "startDate")
	if !ok {
		respondError(c, http.StatusBadRequest, "Invalid startDate")
		return
	}
	end, ok := parseDateQuery(c, "endDate")
	if !ok {
		respondError(c, http.StatusBadRequest, "Invalid endDate")
		return
	}

	stats, err := s.logs.Stats(c.Request.Context(), start, end)
	if err != nil {
		s.logger.Error("Failed to compute log stats", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to compute statistics")
		return
	}

	c.JSON(http.StatusOK, stats)
}

// handleLogCleanup runs a retention sweep immediately. An optional
// retentionDays body field overrides the configured window.
func (s *Server) handleLogCleanup(c *gin.Context) {
	var req struct {
		RetentionDays *int `json:"retentionDays"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	if req.RetentionDays != nil && *req.RetentionDays < 1 {
		respondError(c, http.StatusBadRequest, "retentionDays must be at least 1")
		return
	}

	deleted, err := s.sweeper.SweepNow(c.Request.Context(), req.RetentionDays)
	if err != nil {
		s.logger.Error("Manual log sweep failed", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to clean up logs")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cleanup complete",
		"deleted": deleted,
	})
}
