package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/webcron/internal/domain"
)

// jobColumns is the canonical column list for cronjob queries.
const jobColumns = `id, name, url, method, headers, body, schedule, schedule_type,
	is_active, request_timeout, execution_mode, max_concurrent,
	current_running, execution_count, last_executed_at, created_at, updated_at`

// JobRepository handles database operations for cron jobs.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job into the database.
func (r *JobRepository) Create(ctx context.Context, job *domain.CronJob) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	query := `
		INSERT INTO cronjobs (
			id, name, url, method, headers, body, schedule, schedule_type,
			is_active, request_timeout, execution_mode, max_concurrent,
			current_running, execution_count, last_executed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.Name,
		job.URL,
		job.Method,
		job.Headers,
		job.Body,
		job.Schedule,
		job.ScheduleType,
		job.IsActive,
		job.RequestTimeout,
		job.ExecutionMode,
		job.MaxConcurrent,
		job.CurrentRunning,
		job.ExecutionCount,
		job.LastExecutedAt,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.CronJob, error) {
	var job domain.CronJob
	query := `SELECT ` + jobColumns + ` FROM cronjobs WHERE id = ?`

	err := r.db.GetContext(ctx, &job, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// List retrieves all jobs ordered by creation time, newest first.
func (r *JobRepository) List(ctx context.Context) ([]*domain.CronJob, error) {
	var jobs []*domain.CronJob
	query := `SELECT ` + jobColumns + ` FROM cronjobs ORDER BY created_at DESC`

	err := r.db.SelectContext(ctx, &jobs, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	if jobs == nil {
		jobs = []*domain.CronJob{}
	}

	return jobs, nil
}

// ListActive retrieves all jobs with is_active = true.
func (r *JobRepository) ListActive(ctx context.Context) ([]*domain.CronJob, error) {
	var jobs []*domain.CronJob
	query := `SELECT ` + jobColumns + ` FROM cronjobs WHERE is_active = ? ORDER BY created_at`

	err := r.db.SelectContext(ctx, &jobs, query, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}

	if jobs == nil {
		jobs = []*domain.CronJob{}
	}

	return jobs, nil
}

// Update updates a job's user-writable fields.
func (r *JobRepository) Update(ctx context.Context, job *domain.CronJob) error {
	job.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE cronjobs
		SET name = ?, url = ?, method = ?, headers = ?, body = ?,
		    schedule = ?, schedule_type = ?, is_active = ?,
		    request_timeout = ?, execution_mode = ?, max_concurrent = ?,
		    updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		job.Name,
		job.URL,
		job.Method,
		job.Headers,
		job.Body,
		job.Schedule,
		job.ScheduleType,
		job.IsActive,
		job.RequestTimeout,
		job.ExecutionMode,
		job.MaxConcurrent,
		job.UpdatedAt,
		job.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, job.ID)
	}

	return nil
}

// SetActive toggles a job's is_active flag.
func (r *JobRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE cronjobs SET is_active = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to toggle job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	return nil
}

// Delete removes a job. Execution logs cascade with it.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM cronjobs WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	return nil
}

// RuntimeUpdate carries the engine-owned fields written by the execution
// finalizer. Nil fields are left untouched.
type RuntimeUpdate struct {
	CurrentRunning *int
	LastExecutedAt *time.Time
	ExecutionCount *int64
}

// UpdateRuntime applies a best-effort update of the engine-owned runtime
// fields. These counters are observational; last-writer-wins is acceptable.
func (r *JobRepository) UpdateRuntime(ctx context.Context, id string, update RuntimeUpdate) error {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)

	if update.CurrentRunning != nil {
		sets = append(sets, "current_running = ?")
		args = append(args, *update.CurrentRunning)
	}
	if update.LastExecutedAt != nil {
		sets = append(sets, "last_executed_at = ?")
		args = append(args, *update.LastExecutedAt)
	}
	if update.ExecutionCount != nil {
		sets = append(sets, "execution_count = ?")
		args = append(args, *update.ExecutionCount)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := `UPDATE cronjobs SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update job runtime: %w", err)
	}

	return nil
}

// Count returns the total number of jobs.
func (r *JobRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM cronjobs`)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}
