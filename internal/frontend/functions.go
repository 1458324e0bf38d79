package frontend

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tagpipe-io/tagpipe/internal/graph"
	"github.com/tagpipe-io/tagpipe/internal/models"
)

type createFunctionRequest struct {
	Name         string   `json:"name"`
	Script       string   `json:"script"`
	InputTagIDs  []string `json:"inputTagIds"`
	OutputTagIDs []string `json:"outputTagIds"`
}

type updateFunctionRequest struct {
	Name         *string   `json:"name"`
	Script       *string   `json:"script"`
	InputTagIDs  *[]string `json:"inputTagIds"`
	OutputTagIDs *[]string `json:"outputTagIds"`
}

type functionResponse struct {
	models.Function
	Script string `json:"script,omitempty"`
}

func (s *Server) handleListFunctions(w http.ResponseWriter, r *http.Request) {
	fns, err := s.store.ListFunctions(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, fns)
}

// handleCreateFunction validates the declared tag flow against the cycle
// detector, saves the script blob and inserts the function.
func (s *Server) handleCreateFunction(w http.ResponseWriter, r *http.Request) {
	var req createFunctionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.Script == "" {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "name and script are required"})
		return
	}

	ctx := r.Context()
	if err := s.validateTagIDs(r, append(req.InputTagIDs, req.OutputTagIDs...)); err != nil {
		s.respondError(w, err)
		return
	}

	fn := &models.Function{
		ID:           uuid.New().String(),
		Name:         req.Name,
		CreatedAt:    time.Now().UTC(),
		InputTagIDs:  req.InputTagIDs,
		OutputTagIDs: req.OutputTagIDs,
	}

	if err := s.checkCycle(r, fn); err != nil {
		s.respondError(w, err)
		return
	}

	ref, err := s.scripts.Save(fn.ID, req.Script)
	if err != nil {
		s.respondError(w, err)
		return
	}
	fn.ScriptRef = ref

	if err := s.store.CreateFunction(ctx, fn); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, fn)
}

func (s *Server) handleGetFunction(w http.ResponseWriter, r *http.Request) {
	fn, err := s.store.GetFunction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	source, err := s.scripts.Read(fn.ScriptRef)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, functionResponse{Function: *fn, Script: source})
}

// handleUpdateFunction applies partial updates. A new script body becomes a
// new blob version; the previous blob stays on disk.
func (s *Server) handleUpdateFunction(w http.ResponseWriter, r *http.Request) {
	var req updateFunctionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	fn, err := s.store.GetFunction(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}

	if req.Name != nil {
		fn.Name = *req.Name
	}
	if req.InputTagIDs != nil {
		fn.InputTagIDs = *req.InputTagIDs
	}
	if req.OutputTagIDs != nil {
		fn.OutputTagIDs = *req.OutputTagIDs
	}
	if err := s.validateTagIDs(r, append(fn.InputTagIDs, fn.OutputTagIDs...)); err != nil {
		s.respondError(w, err)
		return
	}

	if err := s.checkCycle(r, fn); err != nil {
		s.respondError(w, err)
		return
	}

	if req.Script != nil {
		ref, err := s.scripts.Save(fn.ID, *req.Script)
		if err != nil {
			s.respondError(w, err)
			return
		}
		fn.ScriptRef = ref
	}

	if err := s.store.UpdateFunction(ctx, fn); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, fn)
}

func (s *Server) handleDeleteFunction(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteFunction(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) validateTagIDs(r *http.Request, tagIDs []string) error {
	for _, tagID := range tagIDs {
		if _, err := s.store.GetTag(r.Context(), tagID); err != nil {
			return fmt.Errorf("tag %s: %w", tagID, err)
		}
	}
	return nil
}

func (s *Server) checkCycle(r *http.Request, candidate *models.Function) error {
	existing, err := s.store.ListFunctions(r.Context())
	if err != nil {
		return err
	}
	if graph.WouldCycle(existing, candidate) {
		return fmt.Errorf("function %q: %w", candidate.Name, models.ErrWouldCycle)
	}
	return nil
}
