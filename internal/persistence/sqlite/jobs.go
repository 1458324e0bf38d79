package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tagpipe-io/tagpipe/internal/models"
)

// CreateJob inserts a new job row in SUBMITTED state.
func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	outputIDs, err := marshalOutputIDs(job.OutputFileIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, input_file_id, function_id, status, error, output_file_ids, created_at, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.InputFileID, job.FunctionID, string(job.Status),
		sql.NullString{String: job.Error, Valid: job.Error != ""},
		outputIDs, formatTime(job.CreatedAt),
		formatNullableTime(job.StartedAt), formatNullableTime(job.CompletedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("job %q: %w", job.ID, models.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// GetJob returns the job with the given id.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT id, input_file_id, function_id, status, error, output_file_ids, created_at, started_at, completed_at
		 FROM jobs WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var status string
	var errMsg sql.NullString
	var outputIDs string
	var createdAt string
	var startedAt, completedAt sql.NullString

	err := row.Scan(&job.ID, &job.InputFileID, &job.FunctionID, &status, &errMsg,
		&outputIDs, &createdAt, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job: %w", err)
	}

	job.Status = models.JobStatus(status)
	job.Error = errMsg.String
	if err := json.Unmarshal([]byte(outputIDs), &job.OutputFileIDs); err != nil {
		return nil, fmt.Errorf("failed to decode output file ids: %w", err)
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse job timestamp: %w", err)
	}
	if job.StartedAt, err = parseNullableTime(startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse job start time: %w", err)
	}
	if job.CompletedAt, err = parseNullableTime(completedAt); err != nil {
		return nil, fmt.Errorf("failed to parse job completion time: %w", err)
	}
	return &job, nil
}

// ListJobs returns all jobs ordered newest first.
func (s *Store) ListJobs(ctx context.Context) ([]models.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input_file_id, function_id, status, error, output_file_ids, created_at, started_at, completed_at
		 FROM jobs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// MarkJobRunning transitions a SUBMITTED job to RUNNING. Terminal jobs are
// never modified.
func (s *Store) MarkJobRunning(ctx context.Context, id string, startedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(models.JobStatusRunning), formatTime(startedAt), id, string(models.JobStatusSubmitted))
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job not in SUBMITTED state: %w", models.ErrNotFound)
	}
	return nil
}

// CompleteJob moves a job to SUCCESS or FAILED, recording the error message
// and the ordered output file id list. Jobs already terminal are not
// touched.
func (s *Store) CompleteJob(ctx context.Context, id string, status models.JobStatus, errMsg string, outputFileIDs []string, completedAt time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	outputIDs, err := marshalOutputIDs(outputFileIDs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, output_file_ids = ?, completed_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		string(status), sql.NullString{String: errMsg, Valid: errMsg != ""},
		outputIDs, formatTime(completedAt), id,
		string(models.JobStatusSuccess), string(models.JobStatusFailed))
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job not in a running state: %w", models.ErrNotFound)
	}
	return nil
}

// SweepUnfinishedJobs marks every SUBMITTED or RUNNING job as FAILED with
// the given message. Returns the number of jobs swept.
func (s *Store) SweepUnfinishedJobs(ctx context.Context, errMsg string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, completed_at = ? WHERE status IN (?, ?)`,
		string(models.JobStatusFailed), errMsg, formatTime(time.Now()),
		string(models.JobStatusSubmitted), string(models.JobStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep unfinished jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func marshalOutputIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("failed to encode output file ids: %w", err)
	}
	return string(data), nil
}
