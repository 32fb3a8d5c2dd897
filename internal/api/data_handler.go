package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/webcron/internal/domain"
)

// importFileLimit caps uploaded import files, in bytes.
const importFileLimit = 10 << 20

// handleExport serializes all jobs and tags into an export document.
func (s *Server) handleExport(c *gin.Context) {
	ctx := c.Request.Context()

	jobs, err := s.jobs.List(ctx)
	if err != nil {
		s.logger.Error("Failed to export jobs", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to export data")
		return
	}

	tags, err := s.tags.ListAll(ctx)
	if err != nil {
		s.logger.Error("Failed to export tags", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to export data")
		return
	}

	exports := make([]JobExport, 0, len(jobs))
	for _, job := range jobs {
		names, nameErr := s.tags.NamesForJob(ctx, job.ID)
		if nameErr != nil {
			s.logger.Warn("Failed to load tags for export", "job_id", job.ID, "error", nameErr)
			names = []string{}
		}
		exports = append(exports, JobExport{CronJob: *job, TagNames: names})
	}

	doc := ExportDocument{
		Metadata: ExportMetadata{
			ExportedAt: time.Now().UTC(),
			Version:    ExportFormatVersion,
			Counts: ExportCounts{
				CronJobs: len(exports),
				Tags:     len(tags),
			},
		},
		Data: ExportData{
			CronJobs: exports,
			Tags:     tags,
		},
	}

	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=webcron-export-%s.json",
			time.Now().UTC().Format("2006-01-02")))
	c.JSON(http.StatusOK, doc)
}

// validateDocument checks an import document and returns the list of
// problems found. An empty list means the document is importable.
func (s *Server) validateDocument(doc *ExportDocument) []string {
	var problems []string

	if doc.Metadata.Version != ExportFormatVersion {
		problems = append(problems,
			fmt.Sprintf("unsupported export version %q", doc.Metadata.Version))
	}

	seen := make(map[string]bool, len(doc.Data.CronJobs))
	for i, job := range doc.Data.CronJobs {
		label := fmt.Sprintf("job %d (%s)", i, job.Name)

		if job.ID == "" {
			problems = append(problems, label+": missing id")
		} else if seen[job.ID] {
			problems = append(problems, label+": duplicate id "+job.ID)
		}
		seen[job.ID] = true

		if job.Name == "" {
			problems = append(problems, label+": missing name")
		}
		if err := validateMethod(job.Method); err != nil {
			problems = append(problems, label+": "+err.Error())
		}
		if err := validateURL(job.URL); err != nil {
			problems = append(problems, label+": "+err.Error())
		}
		if err := s.parser.Validate(job.Schedule, job.ScheduleType); err != nil {
			problems = append(problems, label+": "+err.Error())
		}
		if job.RequestTimeout != nil {
			if err := validateTimeout(*job.RequestTimeout); err != nil {
				problems = append(problems, label+": "+err.Error())
			}
		}
	}

	return problems
}

// applyImport upserts the document's jobs and tags, then reconciles the
// engine. Jobs are matched by id: existing jobs are replaced, new ones
// created.
func (s *Server) applyImport(c *gin.Context, doc *ExportDocument) (created, updated int, err error) {
	ctx := c.Request.Context()

	for i := range doc.Data.CronJobs {
		job := doc.Data.CronJobs[i].CronJob
		job.UpdatedAt = time.Now().UTC()
		if job.CreatedAt.IsZero() {
			job.CreatedAt = job.UpdatedAt
		}
		// Engine-owned counter; never imported.
		job.CurrentRunning = 0

		_, getErr := s.jobs.GetByID(ctx, job.ID)
		switch {
		case getErr == nil:
			if updErr := s.jobs.Update(ctx, &job); updErr != nil {
				return created, updated, fmt.Errorf("failed to update job %q: %w", job.Name, updErr)
			}
			updated++
		case errors.Is(getErr, domain.ErrNotFound):
			if crtErr := s.jobs.Create(ctx, &job); crtErr != nil {
				return created, updated, fmt.Errorf("failed to create job %q: %w", job.Name, crtErr)
			}
			created++
		default:
			return created, updated, fmt.Errorf("failed to look up job %q: %w", job.Name, getErr)
		}

		if tagErr := s.tags.ReplaceJobTags(ctx, job.ID, doc.Data.CronJobs[i].TagNames); tagErr != nil {
			s.logger.Warn("Failed to import job tags", "job_id", job.ID, "error", tagErr)
		}

		if schedErr := s.engine.Update(ctx, job.ID); schedErr != nil {
			s.logger.Warn("Failed to schedule imported job", "job_id", job.ID, "error", schedErr)
		}
	}

	return created, updated, nil
}

// importDocument validates and applies an import document, writing the
// response.
func (s *Server) importDocument(c *gin.Context, doc *ExportDocument) {
	if problems := s.validateDocument(doc); len(problems) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Import document is invalid",
			"problems": problems,
		})
		return
	}

	created, updated, err := s.applyImport(c, doc)
	if err != nil {
		s.logger.Error("Import failed", "error", err)
		respondError(c, http.StatusInternalServerError, "Import failed: "+err.Error())
		return
	}

	s.logger.Info("Import complete", "created", created, "updated", updated)
	c.JSON(http.StatusOK, gin.H{
		"message": "Import complete",
		"created": created,
		"updated": updated,
	})
}

// handleImport imports an export document from the request body.
func (s *Server) handleImport(c *gin.Context) {
	var doc ExportDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid import document: "+err.Error())
		return
	}

	s.importDocument(c, &doc)
}

// handleImportFile imports an export document from an uploaded file.
func (s *Server) handleImportFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "Missing file upload")
		return
	}
	if header.Size > importFileLimit {
		respondError(c, http.StatusBadRequest, "Import file too large")
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, importFileLimit))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	var doc ExportDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid import document: "+err.Error())
		return
	}

	s.importDocument(c, &doc)
}

// handleValidateImport dry-runs import validation without writing anything.
func (s *Server) handleValidateImport(c *gin.Context) {
	var doc ExportDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid import document: "+err.Error())
		return
	}

	problems := s.validateDocument(&doc)
	c.JSON(http.StatusOK, gin.H{
		"valid":    len(problems) == 0,
		"problems": problems,
		"counts": ExportCounts{
			CronJobs: len(doc.Data.CronJobs),
			Tags:     len(doc.Data.Tags),
		},
	})
}
