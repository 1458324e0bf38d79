package frontend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagpipe-io/tagpipe/internal/models"
	"github.com/tagpipe-io/tagpipe/internal/persistence/sqlite"
	"github.com/tagpipe-io/tagpipe/internal/scripts"
)

// recordingDispatcher captures tag-change notifications instead of running
// jobs.
type recordingDispatcher struct {
	mu      sync.Mutex
	fileIDs []string
}

func (d *recordingDispatcher) OnFileTagChange(_ context.Context, fileID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fileIDs = append(d.fileIDs, fileID)
}

func (d *recordingDispatcher) events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.fileIDs...)
}

type fixture struct {
	ts         *httptest.Server
	store      *sqlite.Store
	dispatcher *recordingDispatcher
	uploadsDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := sqlite.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	scriptStore, err := scripts.New(filepath.Join(dir, "scripts"))
	require.NoError(t, err)

	uploadsDir := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(uploadsDir, 0750))

	dispatcher := &recordingDispatcher{}
	srv := New(Config{
		Addr:       "127.0.0.1:0",
		Store:      store,
		Scripts:    scriptStore,
		Dispatcher: dispatcher,
		UploadsDir: uploadsDir,
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &fixture{ts: ts, store: store, dispatcher: dispatcher, uploadsDir: uploadsDir}
}

func (f *fixture) doJSON(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	return res, data
}

func (f *fixture) upload(t *testing.T, filename, content string) models.File {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/api/v1/files", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	res, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	defer func() {
		_ = res.Body.Close()
	}()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var file models.File
	require.NoError(t, json.NewDecoder(res.Body).Decode(&file))
	return file
}

func (f *fixture) createTag(t *testing.T, name string) models.Tag {
	t.Helper()
	res, data := f.doJSON(t, http.MethodPost, "/api/v1/tags", map[string]string{"name": name, "color": "#123456"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var tag models.Tag
	require.NoError(t, json.Unmarshal(data, &tag))
	return tag
}

func TestHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, data := f.doJSON(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "healthy")
}

func TestTagEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tag := f.createTag(t, "alpha")

	// Duplicate name conflicts.
	res, _ := f.doJSON(t, http.MethodPost, "/api/v1/tags", map[string]string{"name": "alpha", "color": "#fff"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	// Reserved and malformed names are rejected.
	res, _ = f.doJSON(t, http.MethodPost, "/api/v1/tags", map[string]string{"name": ".csv", "color": "#fff"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res, _ = f.doJSON(t, http.MethodPost, "/api/v1/tags", map[string]string{"name": "a~b", "color": "#fff"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, data := f.doJSON(t, http.MethodGet, "/api/v1/tags/"+tag.ID, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "alpha")

	res, _ = f.doJSON(t, http.MethodGet, "/api/v1/tags/none", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = f.doJSON(t, http.MethodPut, "/api/v1/tags/"+tag.ID, map[string]string{"color": "#000"})
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = f.doJSON(t, http.MethodDelete, "/api/v1/tags/"+tag.ID, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestUploadAppliesExtensionTagAndDispatches(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	file := f.upload(t, "data.csv", "a,b\n1,2\n")
	assert.Equal(t, "data.csv", file.DisplayName)
	assert.Equal(t, int64(8), file.SizeBytes)

	names := make([]string, 0, len(file.Tags))
	for _, tag := range file.Tags {
		names = append(names, tag.Name)
	}
	assert.Contains(t, names, ".csv")

	// Bytes land in the file store under the canonical stored name.
	assert.FileExists(t, filepath.Join(f.uploadsDir, models.StoredName(file.ID, "data.csv")))

	assert.Equal(t, []string{file.ID}, f.dispatcher.events())
}

func TestExtensionTagImmutability(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.upload(t, "x.csv", "a\n")

	tag, err := f.store.GetTagByName(t.Context(), ".csv")
	require.NoError(t, err)

	// Rename is rejected, color edit succeeds.
	res, _ := f.doJSON(t, http.MethodPut, "/api/v1/tags/"+tag.ID, map[string]string{"name": "csv-files"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, data := f.doJSON(t, http.MethodPut, "/api/v1/tags/"+tag.ID, map[string]string{"color": "#abcdef"})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "#abcdef")
}

func TestFileTagEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	file := f.upload(t, "notes.txt", "hi")
	tag := f.createTag(t, "inbox")

	res, data := f.doJSON(t, http.MethodPost, "/api/v1/files/"+file.ID+"/tags",
		map[string][]string{"tagIds": {tag.ID}})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	var got models.File
	require.NoError(t, json.Unmarshal(data, &got))
	names := make([]string, 0, len(got.Tags))
	for _, tg := range got.Tags {
		names = append(names, tg.Name)
	}
	assert.ElementsMatch(t, []string{".txt", "inbox"}, names)

	// Tag attached to a file cannot be deleted until detached.
	res, _ = f.doJSON(t, http.MethodDelete, "/api/v1/tags/"+tag.ID, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, _ = f.doJSON(t, http.MethodDelete, "/api/v1/files/"+file.ID+"/tags/"+tag.ID, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = f.doJSON(t, http.MethodDelete, "/api/v1/tags/"+tag.ID, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	// Upload, tag add and tag remove each fired a change event.
	assert.Len(t, f.dispatcher.events(), 3)
}

func TestDeleteFileRemovesBytes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	file := f.upload(t, "gone.txt", "bye")
	stored := filepath.Join(f.uploadsDir, models.StoredName(file.ID, "gone.txt"))
	require.FileExists(t, stored)

	res, _ := f.doJSON(t, http.MethodDelete, "/api/v1/files/"+file.ID, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.NoFileExists(t, stored)

	res, _ = f.doJSON(t, http.MethodGet, "/api/v1/files/"+file.ID, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestFunctionEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tagA := f.createTag(t, "A")
	tagB := f.createTag(t, "B")

	script := "def main(p):\n    return None\n"
	res, data := f.doJSON(t, http.MethodPost, "/api/v1/functions", map[string]any{
		"name":         "fAB",
		"script":       script,
		"inputTagIds":  []string{tagA.ID},
		"outputTagIds": []string{tagB.ID},
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	var fn models.Function
	require.NoError(t, json.Unmarshal(data, &fn))
	assert.NotEmpty(t, fn.ScriptRef)

	// The reverse function would close a tag loop.
	res, data = f.doJSON(t, http.MethodPost, "/api/v1/functions", map[string]any{
		"name":         "fBA",
		"script":       script,
		"inputTagIds":  []string{tagB.ID},
		"outputTagIds": []string{tagA.ID},
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, string(data), "cycle")

	// Unknown tag ids are rejected.
	res, _ = f.doJSON(t, http.MethodPost, "/api/v1/functions", map[string]any{
		"name":        "broken",
		"script":      script,
		"inputTagIds": []string{"missing"},
	})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	// Fetch returns the script source.
	res, data = f.doJSON(t, http.MethodGet, "/api/v1/functions/"+fn.ID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "def main")

	// Updating the script creates a new blob version.
	res, data = f.doJSON(t, http.MethodPut, "/api/v1/functions/"+fn.ID, map[string]any{
		"script": "def main(p):\n    return p\n",
	})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var updated models.Function
	require.NoError(t, json.Unmarshal(data, &updated))
	assert.NotEqual(t, fn.ScriptRef, updated.ScriptRef)

	res, _ = f.doJSON(t, http.MethodDelete, "/api/v1/functions/"+fn.ID, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestUpdateFunctionCycleCheck(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tagA := f.createTag(t, "A")
	tagB := f.createTag(t, "B")
	script := "def main(p):\n    return None\n"

	mkFn := func(name string, in, out string) models.Function {
		res, data := f.doJSON(t, http.MethodPost, "/api/v1/functions", map[string]any{
			"name":         name,
			"script":       script,
			"inputTagIds":  []string{in},
			"outputTagIds": []string{out},
		})
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
		var fn models.Function
		require.NoError(t, json.Unmarshal(data, &fn))
		return fn
	}

	mkFn("fAB", tagA.ID, tagB.ID)
	tagC := f.createTag(t, "C")
	fBC := mkFn("fBC", tagB.ID, tagC.ID)

	// Re-pointing fBC's output at A closes the loop through fAB.
	res, data := f.doJSON(t, http.MethodPut, "/api/v1/functions/"+fBC.ID, map[string]any{
		"outputTagIds": []string{tagA.ID},
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, string(data), "cycle")
}

func TestPreviewEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	file := f.upload(t, "table.csv", "x,y\n1,2\n3,4\n")

	res, data := f.doJSON(t, http.MethodGet, "/api/v1/files/"+file.ID+"/preview?pageSize=1", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var table struct {
		Headers   []string   `json:"headers"`
		Rows      [][]string `json:"rows"`
		TotalRows int        `json:"totalRows"`
	}
	require.NoError(t, json.Unmarshal(data, &table))
	assert.Equal(t, []string{"x", "y"}, table.Headers)
	assert.Equal(t, 2, table.TotalRows)
	assert.Len(t, table.Rows, 1)

	// No tabular preview for binary-ish files.
	bin := f.upload(t, "image.png", "not a table")
	res, _ = f.doJSON(t, http.MethodGet, "/api/v1/files/"+bin.ID+"/preview", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestJobEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := t.Context()

	job := &models.Job{
		ID:          "job-1",
		InputFileID: "file-1",
		FunctionID:  "fn-1",
		Status:      models.JobStatusSubmitted,
	}
	job.CreatedAt = job.CreatedAt.UTC()
	require.NoError(t, f.store.CreateJob(ctx, job))

	res, data := f.doJSON(t, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "job-1")

	res, data = f.doJSON(t, http.MethodGet, "/api/v1/jobs/job-1", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), fmt.Sprintf("%q", models.JobStatusSubmitted))

	res, _ = f.doJSON(t, http.MethodGet, "/api/v1/jobs/none", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
