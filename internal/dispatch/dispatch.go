// Package dispatch decides which functions run when a file's tag set
// changes, and owns the job lifecycle from SUBMITTED through its terminal
// state. A process-wide weighted semaphore is the only backpressure: it
// bounds concurrent subprocesses and database load together.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tagpipe-io/tagpipe/internal/executor"
	"github.com/tagpipe-io/tagpipe/internal/models"
	"github.com/tagpipe-io/tagpipe/internal/persistence"
)

// ScriptRunner runs one wrapped script against a staged input. Satisfied by
// *executor.Executor.
type ScriptRunner interface {
	Run(ctx context.Context, scriptSource, inputPath, displayName string) (*executor.Result, error)
}

// ScriptSource resolves a function's script_ref to its source. Satisfied by
// *scripts.Store.
type ScriptSource interface {
	Read(ref string) (string, error)
}

// Ingestor absorbs one produced artifact. Satisfied by *ingest.Ingestor.
type Ingestor interface {
	Ingest(ctx context.Context, sourceFileID string, fn *models.Function, producedPath string) (*models.File, error)
}

// Dispatcher matches tag-set changes against registered functions and runs
// the resulting jobs in background workers.
type Dispatcher struct {
	store      persistence.Store
	scripts    ScriptSource
	runner     ScriptRunner
	ingestor   Ingestor
	sem        *semaphore.Weighted
	uploadsDir string
	logger     *slog.Logger

	wg sync.WaitGroup
}

// Config configures a Dispatcher.
type Config struct {
	Store    persistence.Store
	Scripts  ScriptSource
	Runner   ScriptRunner
	Ingestor Ingestor
	// MaxConcurrentJobs is the capacity of the global permit pool.
	MaxConcurrentJobs int
	// UploadsDir is the file store directory; worker staging reads inputs
	// from here by stored name.
	UploadsDir string
	Logger     *slog.Logger
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := cfg.MaxConcurrentJobs
	if n < 1 {
		n = 1
	}
	return &Dispatcher{
		store:      cfg.Store,
		scripts:    cfg.Scripts,
		runner:     cfg.Runner,
		ingestor:   cfg.Ingestor,
		sem:        semaphore.NewWeighted(int64(n)),
		uploadsDir: cfg.UploadsDir,
		logger:     logger,
	}
}

// OnFileTagChange dispatches one job for every function whose input tag set
// is covered by the file's current tags. Jobs are persisted before this
// returns; execution happens in background workers. A failure to enqueue one
// job never blocks the others.
func (d *Dispatcher) OnFileTagChange(ctx context.Context, fileID string) {
	tagIDs, err := d.store.TagsOfFile(ctx, fileID)
	if err != nil {
		d.logger.Error("failed to read tag set for dispatch", "file_id", fileID, "error", err)
		return
	}
	if len(tagIDs) == 0 {
		return
	}

	fns, err := d.store.FunctionsMatching(ctx, tagIDs)
	if err != nil {
		d.logger.Error("failed to match functions for dispatch", "file_id", fileID, "error", err)
		return
	}

	for _, fn := range fns {
		job := &models.Job{
			ID:          uuid.New().String(),
			InputFileID: fileID,
			FunctionID:  fn.ID,
			Status:      models.JobStatusSubmitted,
			CreatedAt:   time.Now().UTC(),
		}
		if err := d.store.CreateJob(ctx, job); err != nil {
			d.logger.Error("failed to create job", "file_id", fileID, "function_id", fn.ID, "error", err)
			continue
		}
		d.logger.Info("job dispatched",
			"job_id", job.ID, "file_id", fileID, "function", fn.Name)

		d.wg.Add(1)
		go d.runJob(job, fn)
	}
}

// Wait blocks until every in-flight worker has finished. Used by tests and
// at shutdown to drain; running subprocesses are not killed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// runJob drives one job through its lifecycle. Workers are detached from the
// request that triggered them, so they run against the background context.
// Every failure mode ends in a FAILED job or a log line, never a crash.
func (d *Dispatcher) runJob(job *models.Job, fn models.Function) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job worker panicked", "job_id", job.ID, "panic", r)
			d.failJob(context.Background(), job.ID, fmt.Sprintf("worker panic: %v", r), nil)
		}
	}()

	ctx := context.Background()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.failJob(ctx, job.ID, fmt.Sprintf("failed to acquire permit: %v", err), nil)
		return
	}
	defer d.sem.Release(1)

	input, err := d.store.GetFile(ctx, job.InputFileID)
	if err != nil {
		d.failJob(ctx, job.ID, fmt.Sprintf("input file unavailable: %v", err), nil)
		return
	}

	if err := d.store.MarkJobRunning(ctx, job.ID, time.Now().UTC()); err != nil {
		d.logger.Error("failed to mark job running", "job_id", job.ID, "error", err)
		return
	}

	source, err := d.scripts.Read(fn.ScriptRef)
	if err != nil {
		d.failJob(ctx, job.ID, fmt.Sprintf("script unavailable: %v", err), nil)
		return
	}

	inputPath := filepath.Join(d.uploadsDir, input.StoredName)
	res, err := d.runner.Run(ctx, source, inputPath, input.DisplayName)
	if err != nil {
		d.failJob(ctx, job.ID, fmt.Sprintf("executor error: %v", err), nil)
		return
	}
	defer d.cleanupRunDir(res.RunDir)

	outputIDs, newFiles, ingestErr := d.ingestOutputs(ctx, job, &fn, res.Outputs)

	switch {
	case ingestErr != nil:
		d.failJob(ctx, job.ID, fmt.Sprintf("failed to ingest outputs: %v", ingestErr), outputIDs)
	case res.Success:
		if err := d.store.CompleteJob(ctx, job.ID, models.JobStatusSuccess, "", outputIDs, time.Now().UTC()); err != nil {
			d.logger.Error("failed to complete job", "job_id", job.ID, "error", err)
		}
	default:
		// The error log is a real output file; the job still fails.
		d.failJob(ctx, job.ID, res.Message, outputIDs)
	}

	// Outputs carry their own tags: notify for each new file so downstream
	// functions fire. This is the pipeline loop.
	for _, file := range newFiles {
		d.OnFileTagChange(ctx, file.ID)
	}
}

func (d *Dispatcher) ingestOutputs(ctx context.Context, job *models.Job, fn *models.Function, paths []string) ([]string, []*models.File, error) {
	var outputIDs []string
	var newFiles []*models.File
	for _, path := range paths {
		file, err := d.ingestor.Ingest(ctx, job.InputFileID, fn, path)
		if err != nil {
			return outputIDs, newFiles, fmt.Errorf("artifact %s: %w", path, err)
		}
		outputIDs = append(outputIDs, file.ID)
		newFiles = append(newFiles, file)
	}
	return outputIDs, newFiles, nil
}

func (d *Dispatcher) failJob(ctx context.Context, jobID, message string, outputIDs []string) {
	if err := d.store.CompleteJob(ctx, jobID, models.JobStatusFailed, message, outputIDs, time.Now().UTC()); err != nil {
		d.logger.Error("failed to mark job failed", "job_id", jobID, "error", err)
	}
}

func (d *Dispatcher) cleanupRunDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		d.logger.Warn("failed to remove run directory", "dir", dir, "error", err)
	}
}
