package domain

// ExecutionStats aggregates execution-log outcomes for one job.
type ExecutionStats struct {
	JobID           string  `json:"jobId,omitempty"`
	JobName         string  `json:"jobName,omitempty"`
	TotalExecutions int64   `json:"totalExecutions"`
	SuccessCount    int64   `json:"successCount"`
	FailureCount    int64   `json:"failureCount"`
	SuccessRate     float64 `json:"successRate"`
	MinExecutionMs  int64   `json:"minExecutionTime"`
	AvgExecutionMs  float64 `json:"avgExecutionTime"`
	MaxExecutionMs  int64   `json:"maxExecutionTime"`
}

// LogStats is the overall plus per-job execution statistics payload.
type LogStats struct {
	Overall ExecutionStats   `json:"overall"`
	PerJob  []ExecutionStats `json:"perJob"`
}
