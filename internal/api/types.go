package api

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jonesrussell/webcron/internal/domain"
)

// CreateJobRequest is the payload for creating a job.
type CreateJobRequest struct {
	Name           string   `json:"name" binding:"required"`
	URL            string   `json:"url" binding:"required"`
	Method         string   `json:"method"`
	Headers        string   `json:"headers"`
	Body           string   `json:"body"`
	Schedule       string   `json:"schedule" binding:"required"`
	ScheduleType   string   `json:"scheduleType"`
	IsActive       *bool    `json:"isActive"`
	RequestTimeout *int     `json:"requestTimeout"`
	ExecutionMode  string   `json:"executionMode"`
	MaxConcurrent  *int     `json:"maxConcurrent"`
	Tags           []string `json:"tags"`
}

// UpdateJobRequest is the payload for updating a job. Every field is
// optional; absent fields keep their current value.
type UpdateJobRequest struct {
	Name           *string   `json:"name"`
	URL            *string   `json:"url"`
	Method         *string   `json:"method"`
	Headers        *string   `json:"headers"`
	Body           *string   `json:"body"`
	Schedule       *string   `json:"schedule"`
	ScheduleType   *string   `json:"scheduleType"`
	IsActive       *bool     `json:"isActive"`
	RequestTimeout *int      `json:"requestTimeout"`
	ExecutionMode  *string   `json:"executionMode"`
	MaxConcurrent  *int      `json:"maxConcurrent"`
	Tags           *[]string `json:"tags"`
}

// JobResponse is a job plus its tags and live engine state.
type JobResponse struct {
	*domain.CronJob

	Tags                []string    `json:"tags"`
	ScheduleDescription string      `json:"scheduleDescription,omitempty"`
	NextRuns            []time.Time `json:"nextRuns,omitempty"`
	EngineStatus        string      `json:"engineStatus,omitempty"`
}

// JobExport is a job as it appears in an export document: runtime counters
// are carried, tags travel by name.
type JobExport struct {
	domain.CronJob

	TagNames []string `json:"tagNames"`
}

// ExportMetadata describes an export document.
type ExportMetadata struct {
	ExportedAt time.Time    `json:"exportedAt"`
	Version    string       `json:"version"`
	Counts     ExportCounts `json:"counts"`
}

// ExportCounts summarizes an export document's payload.
type ExportCounts struct {
	CronJobs int `json:"cronJobs"`
	Tags     int `json:"tags"`
}

// ExportData is the payload half of an export document.
type ExportData struct {
	CronJobs []JobExport   `json:"cronJobs"`
	Tags     []*domain.Tag `json:"tags"`
}

// ExportDocument is the full export/import wire format.
type ExportDocument struct {
	Metadata ExportMetadata `json:"metadata"`
	Data     ExportData     `json:"data"`
}

// ExportFormatVersion is written into export documents and checked on
// import.
const ExportFormatVersion = "1.0"

// validateMethod checks the HTTP method of a job.
func validateMethod(method string) error {
	if method != http.MethodGet && method != http.MethodPost {
		return fmt.Errorf("method must be GET or POST, got %q", method)
	}
	return nil
}

// validateURL checks that a job URL is an absolute http or https URL.
func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("invalid URL %q", raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	return nil
}

// validateTimeout checks a per-job request timeout in milliseconds.
func validateTimeout(ms int) error {
	if ms < domain.MinRequestTimeoutMs || ms > domain.MaxRequestTimeoutMs {
		return fmt.Errorf("requestTimeout must be between %d and %d ms",
			domain.MinRequestTimeoutMs, domain.MaxRequestTimeoutMs)
	}
	return nil
}

// validateExecutionMode checks the execution mode enum.
func validateExecutionMode(mode string) error {
	switch domain.ExecutionMode(mode) {
	case domain.ExecutionModeSequential, domain.ExecutionModeParallel:
		return nil
	default:
		return fmt.Errorf("executionMode must be sequential or parallel, got %q", mode)
	}
}

// validateMaxConcurrent checks the parallel concurrency cap.
func validateMaxConcurrent(n int) error {
	if n < domain.MinConcurrent || n > domain.MaxConcurrent {
		return fmt.Errorf("maxConcurrent must be between %d and %d",
			domain.MinConcurrent, domain.MaxConcurrent)
	}
	return nil
}

// validateScheduleType checks the schedule dialect enum.
func validateScheduleType(typ string) error {
	switch domain.ScheduleType(typ) {
	case domain.ScheduleTypeCron, domain.ScheduleTypeRepeat:
		return nil
	default:
		return fmt.Errorf("scheduleType must be cron or repeat, got %q", typ)
	}
}

// validateHeaders checks that a non-empty headers value is a flat JSON
// object of strings.
func validateHeaders(raw string) error {
	if raw == "" {
		return nil
	}
	if _, ok := domain.ParseHeaderMap(raw); !ok {
		return fmt.Errorf("headers must be a JSON object of string values")
	}
	return nil
}

// toJob materializes a create request into a domain job. Defaults: GET,
// active, sequential, maxConcurrent 1.
func (r *CreateJobRequest) toJob(id string, now time.Time) *domain.CronJob {
	job := &domain.CronJob{
		ID:            id,
		Name:          r.Name,
		URL:           r.URL,
		Method:        r.Method,
		Headers:       r.Headers,
		Body:          r.Body,
		Schedule:      r.Schedule,
		ScheduleType:  domain.ScheduleType(r.ScheduleType),
		IsActive:      true,
		ExecutionMode: domain.ExecutionMode(r.ExecutionMode),
		MaxConcurrent: 1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if r.IsActive != nil {
		job.IsActive = *r.IsActive
	}
	if r.RequestTimeout != nil {
		timeout := *r.RequestTimeout
		job.RequestTimeout = &timeout
	}
	if r.MaxConcurrent != nil {
		job.MaxConcurrent = *r.MaxConcurrent
	}

	return job
}

// normalize fills request defaults before validation.
func (r *CreateJobRequest) normalize() {
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	if r.ScheduleType == "" {
		r.ScheduleType = string(domain.ScheduleTypeCron)
	}
	if r.ExecutionMode == "" {
		r.ExecutionMode = string(domain.ExecutionModeSequential)
	}
}

// validate checks a create request's static fields. Schedule expressions are
// validated by the engine's parser, not here.
func (r *CreateJobRequest) validate() error {
	if err := validateMethod(r.Method); err != nil {
		return err
	}
	if err := validateURL(r.URL); err != nil {
		return err
	}
	if err := validateScheduleType(r.ScheduleType); err != nil {
		return err
	}
	if err := validateExecutionMode(r.ExecutionMode); err != nil {
		return err
	}
	if err := validateHeaders(r.Headers); err != nil {
		return err
	}
	if r.RequestTimeout != nil {
		if err := validateTimeout(*r.RequestTimeout); err != nil {
			return err
		}
	}
	if r.MaxConcurrent != nil {
		if err := validateMaxConcurrent(*r.MaxConcurrent); err != nil {
			return err
		}
	}
	return nil
}

// apply copies the set fields of an update request onto a job and validates
// them.
func (r *UpdateJobRequest) apply(job *domain.CronJob, now time.Time) error {
	if r.Name != nil {
		job.Name = *r.Name
	}
	if r.URL != nil {
		if err := validateURL(*r.URL); err != nil {
			return err
		}
		job.URL = *r.URL
	}
	if r.Method != nil {
		if err := validateMethod(*r.Method); err != nil {
			return err
		}
		job.Method = *r.Method
	}
	if r.Headers != nil {
		if err := validateHeaders(*r.Headers); err != nil {
			return err
		}
		job.Headers = *r.Headers
	}
	if r.Body != nil {
		job.Body = *r.Body
	}
	if r.Schedule != nil {
		job.Schedule = *r.Schedule
	}
	if r.ScheduleType != nil {
		if err := validateScheduleType(*r.ScheduleType); err != nil {
			return err
		}
		job.ScheduleType = domain.ScheduleType(*r.ScheduleType)
	}
	if r.IsActive != nil {
		job.IsActive = *r.IsActive
	}
	if r.RequestTimeout != nil {
		if err := validateTimeout(*r.RequestTimeout); err != nil {
			return err
		}
		timeout := *r.RequestTimeout
		job.RequestTimeout = &timeout
	}
	if r.ExecutionMode != nil {
		if err := validateExecutionMode(*r.ExecutionMode); err != nil {
			return err
		}
		job.ExecutionMode = domain.ExecutionMode(*r.ExecutionMode)
	}
	if r.MaxConcurrent != nil {
		if err := validateMaxConcurrent(*r.MaxConcurrent); err != nil {
			return err
		}
		job.MaxConcurrent = *r.MaxConcurrent
	}

	job.UpdatedAt = now
	return nil
}
