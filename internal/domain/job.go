// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// ScheduleType identifies the schedule dialect of a job.
type ScheduleType string

const (
	// ScheduleTypeCron is a standard cron expression schedule.
	ScheduleTypeCron ScheduleType = "cron"
	// ScheduleTypeRepeat is a fixed-interval schedule such as "30s" or "5m".
	ScheduleTypeRepeat ScheduleType = "repeat"
)

// ExecutionMode controls how concurrent fires of the same job are gated.
type ExecutionMode string

const (
	// ExecutionModeSequential allows at most one in-flight execution.
	ExecutionModeSequential ExecutionMode = "sequential"
	// ExecutionModeParallel allows up to MaxConcurrent in-flight executions.
	ExecutionModeParallel ExecutionMode = "parallel"
)

// Request limits enforced by the HTTP invoker.
const (
	// DefaultRequestTimeoutMs is used when a job has no explicit timeout.
	DefaultRequestTimeoutMs = 30000
	// MinRequestTimeoutMs is the lowest permitted per-job timeout.
	MinRequestTimeoutMs = 1000
	// MaxRequestTimeoutMs is the highest permitted per-job timeout.
	MaxRequestTimeoutMs = 300000
	// MinConcurrent is the lowest permitted max_concurrent value.
	MinConcurrent = 1
	// MaxConcurrent is the highest permitted max_concurrent value.
	MaxConcurrent = 100
)

// CronJob represents a persisted recipe for one HTTP request plus a schedule.
type CronJob struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	URL      string `db:"url" json:"url"`
	Method   string `db:"method" json:"method"`
	Headers  string `db:"headers" json:"headers"`
	Body     string `db:"body" json:"body"`
	Schedule string `db:"schedule" json:"schedule"`

	ScheduleType ScheduleType `db:"schedule_type" json:"scheduleType"`
	IsActive     bool         `db:"is_active" json:"isActive"`

	// RequestTimeout is the per-request timeout in milliseconds. Nil means
	// DefaultRequestTimeoutMs.
	RequestTimeout *int          `db:"request_timeout" json:"requestTimeout,omitempty"`
	ExecutionMode  ExecutionMode `db:"execution_mode" json:"executionMode"`
	MaxConcurrent  int           `db:"max_concurrent" json:"maxConcurrent"`

	// CurrentRunning is maintained by the engine and is not user-writable.
	CurrentRunning int        `db:"current_running" json:"currentRunning"`
	ExecutionCount int64      `db:"execution_count" json:"executionCount"`
	LastExecutedAt *time.Time `db:"last_executed_at" json:"lastExecutedAt,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// TimeoutMs returns the effective request timeout in milliseconds.
func (j *CronJob) TimeoutMs() int {
	if j.RequestTimeout == nil {
		return DefaultRequestTimeoutMs
	}
	return *j.RequestTimeout
}

// Timeout returns the effective request timeout as a duration.
func (j *CronJob) Timeout() time.Duration {
	return time.Duration(j.TimeoutMs()) * time.Millisecond
}

// ConcurrencyLimit returns the effective concurrency cap for gating.
// Sequential jobs are strictly serialized regardless of MaxConcurrent.
func (j *CronJob) ConcurrencyLimit() int {
	if j.ExecutionMode != ExecutionModeParallel {
		return 1
	}
	if j.MaxConcurrent < MinConcurrent {
		return MinConcurrent
	}
	return j.MaxConcurrent
}
