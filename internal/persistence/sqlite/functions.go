package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tagpipe-io/tagpipe/internal/models"
)

// CreateFunction inserts a function together with its input and output tag
// sets in one transaction.
func (s *Store) CreateFunction(ctx context.Context, fn *models.Function) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO functions (id, name, script_ref, created_at) VALUES (?, ?, ?, ?)`,
			fn.ID, fn.Name, fn.ScriptRef, formatTime(fn.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("function %q: %w", fn.Name, models.ErrDuplicate)
			}
			return fmt.Errorf("failed to insert function: %w", err)
		}
		return insertFunctionTags(ctx, tx, fn)
	})
}

func insertFunctionTags(ctx context.Context, tx *sql.Tx, fn *models.Function) error {
	for _, tagID := range fn.InputTagIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO function_input_tags (function_id, tag_id) VALUES (?, ?)`,
			fn.ID, tagID); err != nil {
			return fmt.Errorf("failed to insert input tag: %w", err)
		}
	}
	for _, tagID := range fn.OutputTagIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO function_output_tags (function_id, tag_id) VALUES (?, ?)`,
			fn.ID, tagID); err != nil {
			return fmt.Errorf("failed to insert output tag: %w", err)
		}
	}
	return nil
}

// GetFunction returns the function with the given id, tag sets included.
func (s *Store) GetFunction(ctx context.Context, id string) (*models.Function, error) {
	var fn models.Function
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, script_ref, created_at FROM functions WHERE id = ?`, id).
		Scan(&fn.ID, &fn.Name, &fn.ScriptRef, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("function: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read function: %w", err)
	}
	if fn.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse function timestamp: %w", err)
	}
	if err := s.loadFunctionTags(ctx, &fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

func (s *Store) loadFunctionTags(ctx context.Context, fn *models.Function) error {
	var err error
	if fn.InputTagIDs, err = s.functionTagIDs(ctx, "function_input_tags", fn.ID); err != nil {
		return err
	}
	fn.OutputTagIDs, err = s.functionTagIDs(ctx, "function_output_tags", fn.ID)
	return err
}

func (s *Store) functionTagIDs(ctx context.Context, table, functionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT tag_id FROM %s WHERE function_id = ? ORDER BY tag_id`, table), functionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read function tags: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan function tag: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListFunctions returns all functions ordered by name, tag sets included.
func (s *Store) ListFunctions(ctx context.Context) ([]models.Function, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, script_ref, created_at FROM functions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list functions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var fns []models.Function
	for rows.Next() {
		var fn models.Function
		var createdAt string
		if err := rows.Scan(&fn.ID, &fn.Name, &fn.ScriptRef, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan function: %w", err)
		}
		if fn.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse function timestamp: %w", err)
		}
		fns = append(fns, fn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range fns {
		if err := s.loadFunctionTags(ctx, &fns[i]); err != nil {
			return nil, err
		}
	}
	return fns, nil
}

// UpdateFunction rewrites the function row and replaces both tag sets in one
// transaction.
func (s *Store) UpdateFunction(ctx context.Context, fn *models.Function) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE functions SET name = ?, script_ref = ? WHERE id = ?`,
			fn.Name, fn.ScriptRef, fn.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("function %q: %w", fn.Name, models.ErrDuplicate)
			}
			return fmt.Errorf("failed to update function: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("function: %w", models.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM function_input_tags WHERE function_id = ?`, fn.ID); err != nil {
			return fmt.Errorf("failed to clear input tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM function_output_tags WHERE function_id = ?`, fn.ID); err != nil {
			return fmt.Errorf("failed to clear output tags: %w", err)
		}
		return insertFunctionTags(ctx, tx, fn)
	})
}

// DeleteFunction removes the function and its tag sets in one transaction.
func (s *Store) DeleteFunction(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM function_input_tags WHERE function_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete input tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM function_output_tags WHERE function_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete output tags: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM functions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete function: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("function: %w", models.ErrNotFound)
		}
		return nil
	})
}

// FunctionsMatching returns every function whose input tag set is non-empty
// and fully contained in tagIDs. Functions without input tags never match;
// auto-dispatch requires at least one input tag.
func (s *Store) FunctionsMatching(ctx context.Context, tagIDs []string) ([]models.Function, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(tagIDs)), ", ")
	query := fmt.Sprintf(`
		SELECT f.id FROM functions f
		JOIN function_input_tags fit ON fit.function_id = f.id
		GROUP BY f.id
		HAVING SUM(CASE WHEN fit.tag_id IN (%s) THEN 0 ELSE 1 END) = 0`, placeholders)

	args := make([]any, len(tagIDs))
	for i, id := range tagIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to match functions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan function id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fns := make([]models.Function, 0, len(ids))
	for _, id := range ids {
		fn, err := s.GetFunction(ctx, id)
		if err != nil {
			return nil, err
		}
		fns = append(fns, *fn)
	}
	return fns, nil
}
