package scheduler

import (
	"context"
	"time"

	"github.com/jonesrussell/webcron/internal/domain"
	"github.com/jonesrussell/webcron/internal/logger"
)

// LogStore is the execution-log persistence surface.
type LogStore interface {
	Insert(ctx context.Context, log *domain.ExecutionLog) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LogWriter persists execution logs. Exactly one record is written per
// attempt sequence; write failures are logged and never raised to the
// engine, so a broken log store cannot stop scheduling.
type LogWriter struct {
	logger logger.Interface
	logs   LogStore
}

// NewLogWriter creates a new log writer.
func NewLogWriter(log logger.Interface, logs LogStore) *LogWriter {
	return &LogWriter{logger: log, logs: logs}
}

// Append writes one execution log.
func (w *LogWriter) Append(ctx context.Context, entry *domain.ExecutionLog) {
	if err := w.logs.Insert(ctx, entry); err != nil {
		w.logger.Error("Failed to persist execution log",
			"job_id", entry.JobID,
			"status", entry.Status,
			"error", err)
		return
	}

	w.logger.Debug("Execution log written",
		"job_id", entry.JobID,
		"status", entry.Status,
		"execution_time_ms", entry.ExecutionTime)
}
