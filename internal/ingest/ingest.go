// Package ingest absorbs produced artifacts back into the file store. It is
// the only pathway that retags outputs, so dispatch re-entrancy always
// observes fully tagged files: tags are written before the caller emits any
// change event.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tagpipe-io/tagpipe/internal/fileutil"
	"github.com/tagpipe-io/tagpipe/internal/models"
	"github.com/tagpipe-io/tagpipe/internal/persistence"
)

// Ingestor registers produced artifacts as new files.
type Ingestor struct {
	store      persistence.Store
	uploadsDir string
	logger     *slog.Logger
}

// Config configures an Ingestor.
type Config struct {
	Store      persistence.Store
	UploadsDir string
	Logger     *slog.Logger
}

// New creates an Ingestor.
func New(cfg Config) *Ingestor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		store:      cfg.Store,
		uploadsDir: cfg.UploadsDir,
		logger:     logger,
	}
}

// Ingest registers one produced artifact as a new file: the bytes move into
// the file store under the canonical stored name, the extension tag and the
// function's output tags are applied, and a lineage row links the file to
// its source. Error-log artifacts get only their extension tag and a
// lineage row with success=false.
func (i *Ingestor) Ingest(ctx context.Context, sourceFileID string, fn *models.Function, producedPath string) (*models.File, error) {
	displayName := filepath.Base(producedPath)
	isErrorLog := models.IsErrorLogName(displayName)

	info, err := os.Stat(producedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact %s: %w", producedPath, err)
	}

	file := &models.File{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		SizeBytes:   info.Size(),
		MediaType:   mime.TypeByExtension(filepath.Ext(displayName)),
		CreatedAt:   time.Now().UTC(),
	}
	file.StoredName = models.StoredName(file.ID, displayName)

	// Moving rather than copying keeps a single copy of the bytes whether
	// the artifact sits in a run directory or already in the file store.
	dst := filepath.Join(i.uploadsDir, file.StoredName)
	if err := fileutil.MoveFile(producedPath, dst); err != nil {
		return nil, fmt.Errorf("failed to store artifact %s: %w", displayName, err)
	}

	if err := i.store.CreateFile(ctx, file); err != nil {
		_ = os.Remove(dst)
		return nil, err
	}

	if extName := models.ExtensionTagName(displayName); extName != "" {
		tagID, err := i.store.UpsertExtensionTag(ctx, extName, models.DefaultExtensionTagColor)
		if err != nil {
			return nil, err
		}
		if err := i.store.AddFileTag(ctx, file.ID, tagID); err != nil {
			return nil, err
		}
	}

	if !isErrorLog {
		for _, tagID := range fn.OutputTagIDs {
			if err := i.store.AddFileTag(ctx, file.ID, tagID); err != nil {
				return nil, err
			}
		}
	}

	lin := &models.Lineage{
		ID:           uuid.New().String(),
		OutputFileID: file.ID,
		SourceFileID: sourceFileID,
		FunctionID:   fn.ID,
		Success:      !isErrorLog,
		CreatedAt:    time.Now().UTC(),
	}
	if err := i.store.CreateLineage(ctx, lin); err != nil {
		return nil, err
	}

	i.logger.Debug("artifact ingested",
		"file_id", file.ID, "display_name", displayName, "error_log", isErrorLog)
	return file, nil
}
