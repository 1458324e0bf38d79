package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagpipe-io/tagpipe/internal/models"
	"github.com/tagpipe-io/tagpipe/internal/persistence/sqlite"
)

type fixture struct {
	ingestor   *Ingestor
	store      *sqlite.Store
	uploadsDir string
	runDir     string
	fn         *models.Function
	sourceID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := sqlite.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	uploadsDir := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(uploadsDir, 0750))
	runDir := filepath.Join(dir, "output", "run_1")
	require.NoError(t, os.MkdirAll(runDir, 0750))

	ctx := t.Context()
	outTag, err := store.CreateTag(ctx, "processed", "#00ff00")
	require.NoError(t, err)

	fn := &models.Function{
		ID:           uuid.New().String(),
		Name:         "processor",
		ScriptRef:    "processor_v1.py",
		CreatedAt:    time.Now().UTC(),
		OutputTagIDs: []string{outTag.ID},
	}
	require.NoError(t, store.CreateFunction(ctx, fn))

	sourceID := uuid.New().String()
	require.NoError(t, store.CreateFile(ctx, &models.File{
		ID:          sourceID,
		StoredName:  models.StoredName(sourceID, "input.csv"),
		DisplayName: "input.csv",
		SizeBytes:   1,
		CreatedAt:   time.Now().UTC(),
	}))

	return &fixture{
		ingestor:   New(Config{Store: store, UploadsDir: uploadsDir}),
		store:      store,
		uploadsDir: uploadsDir,
		runDir:     runDir,
		fn:         fn,
		sourceID:   sourceID,
	}
}

func (f *fixture) writeArtifact(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.runDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0640))
	return path
}

func TestIngest_RegularOutput(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := t.Context()

	artifact := f.writeArtifact(t, "result.txt", "hello")

	file, err := f.ingestor.Ingest(ctx, f.sourceID, f.fn, artifact)
	require.NoError(t, err)

	assert.Equal(t, "result.txt", file.DisplayName)
	assert.Equal(t, models.StoredName(file.ID, "result.txt"), file.StoredName)
	assert.Equal(t, int64(5), file.SizeBytes)

	// Bytes moved into the file store.
	assert.FileExists(t, filepath.Join(f.uploadsDir, file.StoredName))
	assert.NoFileExists(t, artifact)

	// Extension tag plus the function's output tags.
	got, err := f.store.GetFile(ctx, file.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(got.Tags))
	for _, tag := range got.Tags {
		names = append(names, tag.Name)
	}
	assert.ElementsMatch(t, []string{".txt", "processed"}, names)

	lin, err := f.store.GetLineageByOutput(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, lin.Success)
	assert.Equal(t, f.sourceID, lin.SourceFileID)
	assert.Equal(t, f.fn.ID, lin.FunctionID)
}

func TestIngest_ErrorLogSkipsOutputTags(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := t.Context()

	name := "error_" + uuid.New().String() + ".log"
	artifact := f.writeArtifact(t, name, "Exit code: 1")

	file, err := f.ingestor.Ingest(ctx, f.sourceID, f.fn, artifact)
	require.NoError(t, err)

	got, err := f.store.GetFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, ".log", got.Tags[0].Name)

	lin, err := f.store.GetLineageByOutput(ctx, file.ID)
	require.NoError(t, err)
	assert.False(t, lin.Success)
}

func TestIngest_NoExtension(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := t.Context()

	artifact := f.writeArtifact(t, "README", "docs")

	file, err := f.ingestor.Ingest(ctx, f.sourceID, f.fn, artifact)
	require.NoError(t, err)

	got, err := f.store.GetFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, "processed", got.Tags[0].Name)
}

func TestIngest_ExtensionTagReused(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := t.Context()

	first, err := f.ingestor.Ingest(ctx, f.sourceID, f.fn, f.writeArtifact(t, "a.txt", "1"))
	require.NoError(t, err)
	second, err := f.ingestor.Ingest(ctx, f.sourceID, f.fn, f.writeArtifact(t, "b.txt", "2"))
	require.NoError(t, err)

	fileA, err := f.store.GetFile(ctx, first.ID)
	require.NoError(t, err)
	fileB, err := f.store.GetFile(ctx, second.ID)
	require.NoError(t, err)

	var extA, extB string
	for _, tag := range fileA.Tags {
		if tag.Name == ".txt" {
			extA = tag.ID
		}
	}
	for _, tag := range fileB.Tags {
		if tag.Name == ".txt" {
			extB = tag.ID
		}
	}
	require.NotEmpty(t, extA)
	assert.Equal(t, extA, extB)
}

func TestIngest_MissingArtifact(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.ingestor.Ingest(t.Context(), f.sourceID, f.fn, filepath.Join(f.runDir, "nope.txt"))
	assert.Error(t, err)
}
