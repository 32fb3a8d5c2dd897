package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/webcron/internal/config"
)

// sqliteSchema creates the tables and indexes on sqlite.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS cronjobs (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		url              TEXT NOT NULL,
		method           TEXT NOT NULL DEFAULT 'GET',
		headers          TEXT NOT NULL DEFAULT '',
		body             TEXT NOT NULL DEFAULT '',
		schedule         TEXT NOT NULL,
		schedule_type    TEXT NOT NULL,
		is_active        BOOLEAN NOT NULL DEFAULT 1,
		request_timeout  INTEGER,
		execution_mode   TEXT NOT NULL DEFAULT 'sequential',
		max_concurrent   INTEGER NOT NULL DEFAULT 1,
		current_running  INTEGER NOT NULL DEFAULT 0,
		execution_count  INTEGER NOT NULL DEFAULT 0,
		last_executed_at DATETIME,
		created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS execution_logs (
		id                 TEXT PRIMARY KEY,
		job_id             TEXT NOT NULL REFERENCES cronjobs(id) ON DELETE CASCADE,
		executed_at        DATETIME NOT NULL,
		status             TEXT NOT NULL,
		response_code      INTEGER,
		execution_time     INTEGER NOT NULL DEFAULT 0,
		response_body      TEXT,
		error_message      TEXT,
		retry_count        INTEGER,
		triggered_manually BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS cronjob_tags (
		cronjob_id TEXT NOT NULL REFERENCES cronjobs(id) ON DELETE CASCADE,
		tag_id     TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (cronjob_id, tag_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_execution_logs_job_id ON execution_logs(job_id)`,
	`CREATE INDEX IF NOT EXISTS idx_execution_logs_executed_at ON execution_logs(executed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_execution_logs_status ON execution_logs(status)`,
	`CREATE INDEX IF NOT EXISTS idx_cronjobs_is_active ON cronjobs(is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_cronjobs_schedule_type ON cronjobs(schedule_type)`,
}

// mysqlSchema creates the tables and indexes on mysql. Enum-like columns are
// plain VARCHARs so the two dialects stay interchangeable.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS cronjobs (
		id               VARCHAR(36) PRIMARY KEY,
		name             VARCHAR(255) NOT NULL,
		url              TEXT NOT NULL,
		method           VARCHAR(8) NOT NULL DEFAULT 'GET',
		headers          TEXT NOT NULL,
		body             TEXT NOT NULL,
		schedule         VARCHAR(255) NOT NULL,
		schedule_type    VARCHAR(16) NOT NULL,
		is_active        BOOLEAN NOT NULL DEFAULT TRUE,
		request_timeout  INT,
		execution_mode   VARCHAR(16) NOT NULL DEFAULT 'sequential',
		max_concurrent   INT NOT NULL DEFAULT 1,
		current_running  INT NOT NULL DEFAULT 0,
		execution_count  BIGINT NOT NULL DEFAULT 0,
		last_executed_at DATETIME(3),
		created_at       DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at       DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		INDEX idx_cronjobs_is_active (is_active),
		INDEX idx_cronjobs_schedule_type (schedule_type)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS execution_logs (
		id                 VARCHAR(36) PRIMARY KEY,
		job_id             VARCHAR(36) NOT NULL,
		executed_at        DATETIME(3) NOT NULL,
		status             VARCHAR(16) NOT NULL,
		response_code      INT,
		execution_time     BIGINT NOT NULL DEFAULT 0,
		response_body      MEDIUMTEXT,
		error_message      TEXT,
		retry_count        INT,
		triggered_manually BOOLEAN NOT NULL DEFAULT FALSE,
		INDEX idx_execution_logs_job_id (job_id),
		INDEX idx_execution_logs_executed_at (executed_at),
		INDEX idx_execution_logs_status (status),
		CONSTRAINT fk_execution_logs_job
			FOREIGN KEY (job_id) REFERENCES cronjobs(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS tags (
		id   VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS cronjob_tags (
		cronjob_id VARCHAR(36) NOT NULL,
		tag_id     VARCHAR(36) NOT NULL,
		PRIMARY KEY (cronjob_id, tag_id),
		CONSTRAINT fk_cronjob_tags_job
			FOREIGN KEY (cronjob_id) REFERENCES cronjobs(id) ON DELETE CASCADE,
		CONSTRAINT fk_cronjob_tags_tag
			FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
}

// Migrate applies the schema for the given dialect. Statements are
// idempotent so repeated startups are safe.
func Migrate(ctx context.Context, db *sqlx.DB, dbType string) error {
	statements := sqliteSchema
	if dbType == config.DBTypeMySQL {
		statements = mysqlSchema
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}

	return nil
}
