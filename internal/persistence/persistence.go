// Package persistence defines the storage interface the engine runs over.
// The sqlite subpackage provides the embedded database implementation.
package persistence

import (
	"context"
	"time"

	"github.com/tagpipe-io/tagpipe/internal/models"
)

// Store is the durable state for files, tags, functions, jobs and lineage.
// Implementations must surface models.ErrNotFound, models.ErrDuplicate and
// models.ErrInUse so callers can map them to API responses, and must make
// multi-row mutations transactional.
type Store interface {
	TagStore
	FileStore
	FunctionStore
	JobStore
	LineageStore

	Close() error
}

// TagStore persists tags and the file-tag association.
type TagStore interface {
	CreateTag(ctx context.Context, name, color string) (*models.Tag, error)
	GetTag(ctx context.Context, id string) (*models.Tag, error)
	GetTagByName(ctx context.Context, name string) (*models.Tag, error)
	ListTags(ctx context.Context) ([]models.Tag, error)
	// UpdateTag changes the name and/or color of a tag. Nil fields are left
	// untouched. Renaming an extension tag returns models.ErrForbidden.
	UpdateTag(ctx context.Context, id string, name, color *string) (*models.Tag, error)
	// DeleteTag removes a tag, refusing with models.ErrInUse while any file
	// or function still references it.
	DeleteTag(ctx context.Context, id string) error
	// UpsertExtensionTag atomically returns the tag id for an extension tag
	// name, creating the tag if absent.
	UpsertExtensionTag(ctx context.Context, name, color string) (string, error)

	AddFileTag(ctx context.Context, fileID, tagID string) error
	RemoveFileTag(ctx context.Context, fileID, tagID string) error
	// TagsOfFile returns the file's current tag id set.
	TagsOfFile(ctx context.Context, fileID string) ([]string, error)
}

// FileStore persists file metadata. The bytes themselves live in the file
// store directory; deletion of the row and of the associations is
// transactional, removal of the bytes is the caller's job.
type FileStore interface {
	CreateFile(ctx context.Context, file *models.File) error
	GetFile(ctx context.Context, id string) (*models.File, error)
	ListFiles(ctx context.Context) ([]models.File, error)
	// DeleteFile removes the file row together with its tag associations and
	// its lineage row.
	DeleteFile(ctx context.Context, id string) error
}

// FunctionStore persists functions and their input/output tag sets.
type FunctionStore interface {
	CreateFunction(ctx context.Context, fn *models.Function) error
	GetFunction(ctx context.Context, id string) (*models.Function, error)
	ListFunctions(ctx context.Context) ([]models.Function, error)
	UpdateFunction(ctx context.Context, fn *models.Function) error
	DeleteFunction(ctx context.Context, id string) error
	// FunctionsMatching returns every function whose input tag set is
	// non-empty and a subset of the given tag set.
	FunctionsMatching(ctx context.Context, tagIDs []string) ([]models.Function, error)
}

// JobStore persists job records and their state transitions.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context) ([]models.Job, error)
	MarkJobRunning(ctx context.Context, id string, startedAt time.Time) error
	// CompleteJob moves a job to a terminal status, recording the error
	// message and the ordered output file id list.
	CompleteJob(ctx context.Context, id string, status models.JobStatus, errMsg string, outputFileIDs []string, completedAt time.Time) error
	// SweepUnfinishedJobs marks every SUBMITTED or RUNNING job as FAILED.
	// Used at startup to resolve jobs orphaned by a previous process.
	SweepUnfinishedJobs(ctx context.Context, errMsg string) (int, error)
}

// LineageStore persists provenance edges.
type LineageStore interface {
	CreateLineage(ctx context.Context, lin *models.Lineage) error
	GetLineageByOutput(ctx context.Context, outputFileID string) (*models.Lineage, error)
	ListLineageBySource(ctx context.Context, sourceFileID string) ([]models.Lineage, error)
}
