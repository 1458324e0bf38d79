package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tagpipe-io/tagpipe/internal/models"
)

// CreateLineage inserts a provenance edge. Each output file has exactly one
// lineage row; a second insert for the same output fails as a duplicate.
func (s *Store) CreateLineage(ctx context.Context, lin *models.Lineage) error {
	success := 0
	if lin.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lineage (id, output_file_id, source_file_id, function_id, success, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		lin.ID, lin.OutputFileID, lin.SourceFileID, lin.FunctionID, success, formatTime(lin.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("lineage for file %q: %w", lin.OutputFileID, models.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert lineage: %w", err)
	}
	return nil
}

// GetLineageByOutput returns the lineage row for an output file.
func (s *Store) GetLineageByOutput(ctx context.Context, outputFileID string) (*models.Lineage, error) {
	return scanLineage(s.db.QueryRowContext(ctx,
		`SELECT id, output_file_id, source_file_id, function_id, success, created_at
		 FROM lineage WHERE output_file_id = ?`, outputFileID))
}

// ListLineageBySource returns all lineage rows that name the given file as
// their source.
func (s *Store) ListLineageBySource(ctx context.Context, sourceFileID string) ([]models.Lineage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, output_file_id, source_file_id, function_id, success, created_at
		 FROM lineage WHERE source_file_id = ? ORDER BY created_at, id`, sourceFileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lineage: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var lins []models.Lineage
	for rows.Next() {
		lin, err := scanLineage(rows)
		if err != nil {
			return nil, err
		}
		lins = append(lins, *lin)
	}
	return lins, rows.Err()
}

func scanLineage(row rowScanner) (*models.Lineage, error) {
	var lin models.Lineage
	var success int
	var createdAt string
	err := row.Scan(&lin.ID, &lin.OutputFileID, &lin.SourceFileID, &lin.FunctionID, &success, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lineage: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lineage: %w", err)
	}
	lin.Success = success != 0
	if lin.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse lineage timestamp: %w", err)
	}
	return &lin, nil
}
