package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tagpipe-io/tagpipe/internal/models"
)

// CreateFile inserts a new file row.
func (s *Store) CreateFile(ctx context.Context, file *models.File) error {
	mediaType := sql.NullString{String: file.MediaType, Valid: file.MediaType != ""}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (id, stored_name, display_name, size_bytes, media_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		file.ID, file.StoredName, file.DisplayName, file.SizeBytes, mediaType, formatTime(file.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("file %q: %w", file.StoredName, models.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

// GetFile returns the file with the given id, with its tags populated.
func (s *Store) GetFile(ctx context.Context, id string) (*models.File, error) {
	var file models.File
	var mediaType sql.NullString
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, stored_name, display_name, size_bytes, media_type, created_at
		 FROM files WHERE id = ?`, id).
		Scan(&file.ID, &file.StoredName, &file.DisplayName, &file.SizeBytes, &mediaType, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	file.MediaType = mediaType.String
	if file.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse file timestamp: %w", err)
	}
	if file.Tags, err = s.tagsForFile(ctx, id); err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *Store) tagsForFile(ctx context.Context, fileID string) ([]models.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.color, t.created_at
		 FROM tags t JOIN file_tags ft ON ft.tag_id = t.id
		 WHERE ft.file_id = ? ORDER BY t.name`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to read file tags: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var tags []models.Tag
	for rows.Next() {
		var tag models.Tag
		var createdAt string
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Color, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan file tag: %w", err)
		}
		if tag.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse tag timestamp: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// ListFiles returns all files ordered newest first, with tags populated.
func (s *Store) ListFiles(ctx context.Context) ([]models.File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stored_name, display_name, size_bytes, media_type, created_at
		 FROM files ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var files []models.File
	for rows.Next() {
		var file models.File
		var mediaType sql.NullString
		var createdAt string
		if err := rows.Scan(&file.ID, &file.StoredName, &file.DisplayName, &file.SizeBytes, &mediaType, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		file.MediaType = mediaType.String
		if file.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse file timestamp: %w", err)
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range files {
		if files[i].Tags, err = s.tagsForFile(ctx, files[i].ID); err != nil {
			return nil, err
		}
	}
	return files, nil
}

// DeleteFile removes the file row, its tag associations and its lineage row
// in one transaction. Removing the stored bytes is the caller's job.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM file_tags WHERE file_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete file tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lineage WHERE output_file_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete file lineage: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("file: %w", models.ErrNotFound)
		}
		return nil
	})
}
