package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tagpipe-io/tagpipe/internal/models"
)

// CreateTag inserts a new user tag. The name must pass validation and be
// unique.
func (s *Store) CreateTag(ctx context.Context, name, color string) (*models.Tag, error) {
	if err := models.ValidateTagName(name); err != nil {
		return nil, err
	}
	tag := &models.Tag{
		ID:        uuid.New().String(),
		Name:      name,
		Color:     color,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (id, name, color, created_at) VALUES (?, ?, ?, ?)`,
		tag.ID, tag.Name, tag.Color, formatTime(tag.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("tag %q: %w", name, models.ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to insert tag: %w", err)
	}
	return tag, nil
}

// GetTag returns the tag with the given id.
func (s *Store) GetTag(ctx context.Context, id string) (*models.Tag, error) {
	return s.scanTag(s.db.QueryRowContext(ctx,
		`SELECT id, name, color, created_at FROM tags WHERE id = ?`, id))
}

// GetTagByName returns the tag with the given name.
func (s *Store) GetTagByName(ctx context.Context, name string) (*models.Tag, error) {
	return s.scanTag(s.db.QueryRowContext(ctx,
		`SELECT id, name, color, created_at FROM tags WHERE name = ?`, name))
}

func (s *Store) scanTag(row *sql.Row) (*models.Tag, error) {
	var tag models.Tag
	var createdAt string
	err := row.Scan(&tag.ID, &tag.Name, &tag.Color, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tag: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tag: %w", err)
	}
	if tag.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse tag timestamp: %w", err)
	}
	return &tag, nil
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, color, created_at FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var tags []models.Tag
	for rows.Next() {
		var tag models.Tag
		var createdAt string
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Color, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		if tag.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse tag timestamp: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// UpdateTag changes the name and/or color of a tag. Extension tag names are
// immutable; attempting to rename one returns models.ErrForbidden.
func (s *Store) UpdateTag(ctx context.Context, id string, name, color *string) (*models.Tag, error) {
	tag, err := s.GetTag(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != nil && *name != tag.Name {
		if tag.IsExtension() {
			return nil, fmt.Errorf("%w: extension tag names are immutable", models.ErrForbidden)
		}
		if err := models.ValidateTagName(*name); err != nil {
			return nil, err
		}
		tag.Name = *name
	}
	if color != nil {
		tag.Color = *color
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE tags SET name = ?, color = ? WHERE id = ?`,
		tag.Name, tag.Color, tag.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("tag %q: %w", tag.Name, models.ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to update tag: %w", err)
	}
	return tag, nil
}

// DeleteTag removes a tag. Deletion is refused while any file carries the
// tag or any function declares it.
func (s *Store) DeleteTag(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var refs int
		err := tx.QueryRowContext(ctx, `
			SELECT (SELECT COUNT(*) FROM file_tags WHERE tag_id = ?)
			     + (SELECT COUNT(*) FROM function_input_tags WHERE tag_id = ?)
			     + (SELECT COUNT(*) FROM function_output_tags WHERE tag_id = ?)`,
			id, id, id).Scan(&refs)
		if err != nil {
			return fmt.Errorf("failed to count tag references: %w", err)
		}
		if refs > 0 {
			return fmt.Errorf("tag: %w", models.ErrInUse)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete tag: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("tag: %w", models.ErrNotFound)
		}
		return nil
	})
}

// UpsertExtensionTag returns the id of the extension tag with the given
// name, creating it with the given color if absent. The insert-then-select
// is race-safe under the unique name constraint.
func (s *Store) UpsertExtensionTag(ctx context.Context, name, color string) (string, error) {
	if !models.IsExtensionTagName(name) {
		return "", fmt.Errorf("%w: %q is not an extension tag name", models.ErrForbidden, name)
	}
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (id, name, color, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (name) DO NOTHING`,
		id, name, color, formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("failed to upsert extension tag: %w", err)
	}
	var existing string
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM tags WHERE name = ?`, name).Scan(&existing); err != nil {
		return "", fmt.Errorf("failed to read extension tag: %w", err)
	}
	return existing, nil
}

// AddFileTag attaches a tag to a file. Attaching an already-attached tag is
// a no-op.
func (s *Store) AddFileTag(ctx context.Context, fileID, tagID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO file_tags (file_id, tag_id) VALUES (?, ?)`,
		fileID, tagID)
	if err != nil {
		return fmt.Errorf("failed to tag file: %w", err)
	}
	return nil
}

// RemoveFileTag detaches a tag from a file.
func (s *Store) RemoveFileTag(ctx context.Context, fileID, tagID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM file_tags WHERE file_id = ? AND tag_id = ?`, fileID, tagID)
	if err != nil {
		return fmt.Errorf("failed to untag file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("file tag: %w", models.ErrNotFound)
	}
	return nil
}

// TagsOfFile returns the file's current tag id set.
func (s *Store) TagsOfFile(ctx context.Context, fileID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag_id FROM file_tags WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to read file tags: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan file tag: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
