package frontend

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tagpipe-io/tagpipe/internal/fileutil"
	"github.com/tagpipe-io/tagpipe/internal/models"
	"github.com/tagpipe-io/tagpipe/internal/preview"
)

// maxUploadBytes caps multipart upload memory buffering; larger bodies spill
// to disk.
const maxUploadBytes = 32 << 20

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.store.ListFiles(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, files)
}

// handleUploadFile accepts a multipart upload, stores the bytes, applies the
// extension tag and fires the dispatcher. Further tags arrive through the
// tag endpoints.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file field"})
		return
	}
	defer func() {
		_ = part.Close()
	}()

	ctx := r.Context()
	displayName := filepath.Base(header.Filename)
	if displayName == "" || displayName == "." {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "missing filename"})
		return
	}

	file := &models.File{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		MediaType:   header.Header.Get("Content-Type"),
		CreatedAt:   time.Now().UTC(),
	}
	file.StoredName = models.StoredName(file.ID, displayName)

	dst := filepath.Join(s.uploadsDir, file.StoredName)
	if err := fileutil.EnsureDir(s.uploadsDir); err != nil {
		s.respondError(w, err)
		return
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0640)
	if err != nil {
		s.respondError(w, fmt.Errorf("failed to store upload: %w", err))
		return
	}
	size, err := io.Copy(out, part)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		s.respondError(w, fmt.Errorf("failed to store upload: %w", err))
		return
	}
	file.SizeBytes = size

	if err := s.store.CreateFile(ctx, file); err != nil {
		_ = os.Remove(dst)
		s.respondError(w, err)
		return
	}

	if extName := models.ExtensionTagName(displayName); extName != "" {
		tagID, err := s.store.UpsertExtensionTag(ctx, extName, models.DefaultExtensionTagColor)
		if err != nil {
			s.respondError(w, err)
			return
		}
		if err := s.store.AddFileTag(ctx, file.ID, tagID); err != nil {
			s.respondError(w, err)
			return
		}
	}

	s.dispatcher.OnFileTagChange(ctx, file.ID)

	created, err := s.store.GetFile(ctx, file.ID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	file, err := s.store.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, file)
}

// handleDeleteFile removes the row and associations first; the bytes go
// second so a failed transaction never leaves a row without its file.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	file, err := s.store.GetFile(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.store.DeleteFile(ctx, file.ID); err != nil {
		s.respondError(w, err)
		return
	}
	if err := os.Remove(filepath.Join(s.uploadsDir, file.StoredName)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove stored file", "stored_name", file.StoredName, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreviewFile(w http.ResponseWriter, r *http.Request) {
	file, err := s.store.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}

	q := preview.Query{}
	if v := r.URL.Query().Get("page"); v != "" {
		q.Page, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("pageSize"); v != "" {
		q.PageSize, _ = strconv.Atoi(v)
	}

	table, err := preview.File(filepath.Join(s.uploadsDir, file.StoredName), file.DisplayName, q)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, table)
}

type addFileTagsRequest struct {
	TagIDs []string `json:"tagIds"`
}

func (s *Server) handleAddFileTags(w http.ResponseWriter, r *http.Request) {
	var req addFileTagsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	fileID := chi.URLParam(r, "id")

	if _, err := s.store.GetFile(ctx, fileID); err != nil {
		s.respondError(w, err)
		return
	}
	for _, tagID := range req.TagIDs {
		if _, err := s.store.GetTag(ctx, tagID); err != nil {
			s.respondError(w, err)
			return
		}
		if err := s.store.AddFileTag(ctx, fileID, tagID); err != nil {
			s.respondError(w, err)
			return
		}
	}

	s.dispatcher.OnFileTagChange(ctx, fileID)

	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, file)
}

func (s *Server) handleRemoveFileTag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fileID := chi.URLParam(r, "id")

	if err := s.store.RemoveFileTag(ctx, fileID, chi.URLParam(r, "tagID")); err != nil {
		s.respondError(w, err)
		return
	}
	s.dispatcher.OnFileTagChange(ctx, fileID)
	w.WriteHeader(http.StatusNoContent)
}
