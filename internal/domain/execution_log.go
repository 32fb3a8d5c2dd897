package domain

import (
	"time"
)

// ExecutionStatus is the terminal outcome of one attempt sequence.
type ExecutionStatus string

const (
	// ExecutionSuccess means an acceptable HTTP response was received.
	ExecutionSuccess ExecutionStatus = "success"
	// ExecutionFailed means the attempt sequence ended without one.
	ExecutionFailed ExecutionStatus = "failed"
)

// ResponseBodyLimit caps the stored response payload, in bytes.
const ResponseBodyLimit = 10 * 1024

// TruncationSuffix marks a response body cut at ResponseBodyLimit.
const TruncationSuffix = "… [truncated]"

// ExecutionLog records the outcome of one attempt sequence for a job.
// Exactly one row is written per call to the HTTP invoker.
type ExecutionLog struct {
	ID    string `db:"id" json:"id"`
	JobID string `db:"job_id" json:"jobId"`

	// ExecutedAt is when the attempt sequence started.
	ExecutedAt time.Time       `db:"executed_at" json:"executedAt"`
	Status     ExecutionStatus `db:"status" json:"status"`

	ResponseCode *int `db:"response_code" json:"responseCode,omitempty"`
	// ExecutionTime is milliseconds from start to terminal outcome,
	// including retry backoffs.
	ExecutionTime int64   `db:"execution_time" json:"executionTime"`
	ResponseBody  *string `db:"response_body" json:"responseBody,omitempty"`
	ErrorMessage  *string `db:"error_message" json:"errorMessage,omitempty"`
	// RetryCount is the number of retries actually performed; nil when no
	// retry happened.
	RetryCount *int `db:"retry_count" json:"retryCount,omitempty"`

	TriggeredManually bool `db:"triggered_manually" json:"triggeredManually"`
}

// TruncateBody bounds a response payload to ResponseBodyLimit bytes,
// appending TruncationSuffix when it was cut.
func TruncateBody(body string) string {
	if len(body) <= ResponseBodyLimit {
		return body
	}
	return body[:ResponseBodyLimit] + TruncationSuffix
}
