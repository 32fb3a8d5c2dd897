package database

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/webcron/internal/domain"
)

// Pagination bounds for log listings.
const (
	DefaultLogLimit = 20
	MaxLogLimit     = 100
)

// logColumns is the canonical column list for execution-log queries.
const logColumns = `l.id, l.job_id, l.executed_at, l.status, l.response_code,
	l.execution_time, l.response_body, l.error_message, l.retry_count,
	l.triggered_manually`

// LogFilter narrows execution-log queries. Zero values mean "no filter".
type LogFilter struct {
	JobID             string
	Status            string
	TriggeredManually *bool
	StartDate         *time.Time
	EndDate           *time.Time
	// JobName matches case-insensitively on the owning job's name.
	JobName string
	// ResponseContent matches case-insensitively inside response bodies.
	ResponseContent string
}

// needsJobJoin reports whether the filter requires joining cronjobs.
func (f *LogFilter) needsJobJoin() bool {
	return f.JobName != ""
}

// where builds the WHERE clause and arguments for the filter.
func (f *LogFilter) where() (string, []any) {
	conds := make([]string, 0, 6)
	args := make([]any, 0, 6)

	if f.JobID != "" {
		conds = append(conds, "l.job_id = ?")
		args = append(args, f.JobID)
	}
	if f.Status != "" {
		conds = append(conds, "l.status = ?")
		args = append(args, f.Status)
	}
	if f.TriggeredManually != nil {
		conds = append(conds, "l.triggered_manually = ?")
		args = append(args, *f.TriggeredManually)
	}
	if f.StartDate != nil {
		conds = append(conds, "l.executed_at >= ?")
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		conds = append(conds, "l.executed_at <= ?")
		args = append(args, *f.EndDate)
	}
	if f.JobName != "" {
		conds = append(conds, "LOWER(j.name) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.JobName)+"%")
	}
	if f.ResponseContent != "" {
		conds = append(conds, "LOWER(l.response_body) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.ResponseContent)+"%")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// LogRepository handles database operations for execution logs.
type LogRepository struct {
	db *sqlx.DB
}

// NewLogRepository creates a new execution-log repository.
func NewLogRepository(db *sqlx.DB) *LogRepository {
	return &LogRepository{db: db}
}

// Insert appends one execution log. Logs are insert-only.
func (r *LogRepository) Insert(ctx context.Context, log *domain.ExecutionLog) error {
	query := `
		INSERT INTO execution_logs (
			id, job_id, executed_at, status, response_code,
			execution_time, response_body, error_message, retry_count,
			triggered_manually
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		log.ID,
		log.JobID,
		log.ExecutedAt,
		log.Status,
		log.ResponseCode,
		log.ExecutionTime,
		log.ResponseBody,
		log.ErrorMessage,
		log.RetryCount,
		log.TriggeredManually,
	)

	if err != nil {
		return fmt.Errorf("failed to insert execution log: %w", err)
	}

	return nil
}

// List retrieves logs matching the filter, newest first, with the total
// match count for pagination.
func (r *LogRepository) List(
	ctx context.Context, filter LogFilter, page, limit int,
) ([]*domain.ExecutionLog, int, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	from := ` FROM execution_logs l`
	if filter.needsJobJoin() {
		from = ` FROM execution_logs l JOIN cronjobs j ON j.id = l.job_id`
	}
	where, args := filter.where()

	count, err := r.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total := int(count)

	var logs []*domain.ExecutionLog
	query := `SELECT ` + logColumns + from + where +
		` ORDER BY l.executed_at DESC LIMIT ? OFFSET ?`
	listArgs := append(append([]any{}, args...), limit, offset)

	if err := r.db.SelectContext(ctx, &logs, query, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list execution logs: %w", err)
	}

	if logs == nil {
		logs = []*domain.ExecutionLog{}
	}

	return logs, total, nil
}

// Count returns the number of logs matching the filter.
func (r *LogRepository) Count(ctx context.Context, filter LogFilter) (int64, error) {
	from := ` FROM execution_logs l`
	if filter.needsJobJoin() {
		from = ` FROM execution_logs l JOIN cronjobs j ON j.id = l.job_id`
	}
	where, args := filter.where()

	var count int64
	query := `SELECT COUNT(*)` + from + where
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count execution logs: %w", err)
	}

	return count, nil
}

// DeleteOlderThan removes logs whose executed_at precedes the cutoff and
// returns the number of deleted rows. Used by the retention sweeper.
func (r *LogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(
		ctx, `DELETE FROM execution_logs WHERE executed_at < ?`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete execution logs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// statsRow is the raw aggregate row scanned from the stats queries.
type statsRow struct {
	JobID        string   `db:"job_id"`
	JobName      string   `db:"job_name"`
	Total        int64    `db:"total"`
	SuccessCount int64    `db:"success_count"`
	FailureCount int64    `db:"failure_count"`
	MinMs        *int64   `db:"min_ms"`
	AvgMs        *float64 `db:"avg_ms"`
	MaxMs        *int64   `db:"max_ms"`
}

// toStats converts an aggregate row into the exported stats shape with the
// success rate rounded to two decimals.
func (row *statsRow) toStats() domain.ExecutionStats {
	stats := domain.ExecutionStats{
		JobID:           row.JobID,
		JobName:         row.JobName,
		TotalExecutions: row.Total,
		SuccessCount:    row.SuccessCount,
		FailureCount:    row.FailureCount,
	}
	if row.MinMs != nil {
		stats.MinExecutionMs = *row.MinMs
	}
	if row.AvgMs != nil {
		stats.AvgExecutionMs = *row.AvgMs
	}
	if row.MaxMs != nil {
		stats.MaxExecutionMs = *row.MaxMs
	}
	if row.Total > 0 {
		rate := float64(row.SuccessCount) / float64(row.Total) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}
	return stats
}

// Stats computes overall and per-job execution statistics in the given
// date window. Nil bounds mean unbounded.
func (r *LogRepository) Stats(
	ctx context.Context, startDate, endDate *time.Time,
) (*domain.LogStats, error) {
	where := ""
	args := []any{}
	conds := []string{}
	if startDate != nil {
		conds = append(conds, "l.executed_at >= ?")
		args = append(args, *startDate)
	}
	if endDate != nil {
		conds = append(conds, "l.executed_at <= ?")
		args = append(args, *endDate)
	}
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	aggregates := `
		COUNT(*) AS total,
		SUM(CASE WHEN l.status = 'success' THEN 1 ELSE 0 END) AS success_count,
		SUM(CASE WHEN l.status = 'failed' THEN 1 ELSE 0 END) AS failure_count,
		MIN(l.execution_time) AS min_ms,
		AVG(l.execution_time) AS avg_ms,
		MAX(l.execution_time) AS max_ms`

	var overall statsRow
	overallQuery := `SELECT '' AS job_id, '' AS job_name, ` + aggregates +
		` FROM execution_logs l` + where
	if err := r.db.GetContext(ctx, &overall, overallQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to compute overall stats: %w", err)
	}

	var perJob []statsRow
	perJobQuery := `SELECT l.job_id AS job_id, j.name AS job_name, ` + aggregates + `
		FROM execution_logs l
		JOIN cronjobs j ON j.id = l.job_id` + where + `
		GROUP BY l.job_id, j.name
		ORDER BY total DESC`
	if err := r.db.SelectContext(ctx, &perJob, perJobQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to compute per-job stats: %w", err)
	}

	stats := &domain.LogStats{
		Overall: overall.toStats(),
		PerJob:  make([]domain.ExecutionStats, 0, len(perJob)),
	}
	for i := range perJob {
		stats.PerJob = append(stats.PerJob, perJob[i].toStats())
	}

	return stats, nil
}
