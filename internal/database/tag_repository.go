package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/webcron/internal/domain"
)

// TagRepository handles database operations for tags. The scheduler never
// touches tags; they only matter to the API layer and export/import.
type TagRepository struct {
	db *sqlx.DB
}

// NewTagRepository creates a new tag repository.
func NewTagRepository(db *sqlx.DB) *TagRepository {
	return &TagRepository{db: db}
}

// ListAll retrieves all tags ordered by name.
func (r *TagRepository) ListAll(ctx context.Context) ([]*domain.Tag, error) {
	var tags []*domain.Tag
	err := r.db.SelectContext(ctx, &tags, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}

	if tags == nil {
		tags = []*domain.Tag{}
	}

	return tags, nil
}

// NamesForJob retrieves the tag names attached to a job.
func (r *TagRepository) NamesForJob(ctx context.Context, jobID string) ([]string, error) {
	var names []string
	query := `
		SELECT t.name
		FROM tags t
		JOIN cronjob_tags ct ON ct.tag_id = t.id
		WHERE ct.cronjob_id = ?
		ORDER BY t.name
	`

	err := r.db.SelectContext(ctx, &names, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job tags: %w", err)
	}

	if names == nil {
		names = []string{}
	}

	return names, nil
}

// ReplaceJobTags attaches the given tag names to a job, creating missing
// tags and removing attachments not in the list.
func (r *TagRepository) ReplaceJobTags(ctx context.Context, jobID string, names []string) error {
	if _, err := r.db.ExecContext(
		ctx, `DELETE FROM cronjob_tags WHERE cronjob_id = ?`, jobID,
	); err != nil {
		return fmt.Errorf("failed to clear job tags: %w", err)
	}

	for _, name := range names {
		if name == "" {
			continue
		}

		tagID, err := r.ensureTag(ctx, name)
		if err != nil {
			return err
		}

		if _, err := r.db.ExecContext(
			ctx,
			`INSERT INTO cronjob_tags (cronjob_id, tag_id) VALUES (?, ?)`,
			jobID, tagID,
		); err != nil {
			return fmt.Errorf("failed to attach tag %q: %w", name, err)
		}
	}

	return nil
}

// ensureTag returns the id of the named tag, creating it if necessary.
func (r *TagRepository) ensureTag(ctx context.Context, name string) (string, error) {
	var id string
	err := r.db.GetContext(ctx, &id, `SELECT id FROM tags WHERE name = ?`, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to look up tag %q: %w", name, err)
	}

	id = uuid.New().String()
	if _, err := r.db.ExecContext(
		ctx, `INSERT INTO tags (id, name) VALUES (?, ?)`, id, name,
	); err != nil {
		return "", fmt.Errorf("failed to create tag %q: %w", name, err)
	}

	return id, nil
}
