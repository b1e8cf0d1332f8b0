package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cymbytes.com/cymlure/pkg/contract"
	"cymbytes.com/cymlure/pkg/protocol"
)

// ============================================================
// Generation Handlers
// ============================================================

// CreateGeneration handles POST /api/generations
//
// The request is validated and queued; the worker runs it. With ?wait=true
// the run executes inline and the bundle is returned.
func (h *Handlers) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req contract.Request
	if !h.decode(w, r, &req) {
		return
	}

	if req.TargetProfileID != "" && req.TargetProfile == nil {
		target, err := h.db.GetTarget(r.Context(), req.TargetProfileID)
		if err != nil {
			h.logger.Error().Err(err).Str("target_id", req.TargetProfileID).Msg("Failed to get target")
			h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to resolve target profile")
			return
		}
		if target == nil {
			h.writeError(w, r, http.StatusBadRequest, "validation_failed", "Target profile not found")
			return
		}
		req.TargetProfile = target.Profile()
	}

	// Defaults are applied exactly once, here
	if err := h.validator.Check(&req); err != nil {
		var ve *contract.ValidationError
		if errors.As(err, &ve) {
			h.writeValidationError(w, r, ve)
			return
		}
		h.writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		bundle, err := h.runner.Execute(r.Context(), "", &req)
		if err != nil {
			h.writeRunError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, bundle)
		return
	}

	job, err := h.db.CreateJob(r.Context(), &req)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to queue generation")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to queue generation")
		return
	}

	h.writeJSON(w, http.StatusAccepted, protocol.GenerationAcceptedResponse{
		JobID:     job.ID,
		Status:    job.Status,
		StatusURL: "/api/generations/" + job.ID,
	})
}

// GetGeneration handles GET /api/generations/{jobID}
func (h *Handlers) GetGeneration(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.db.GetJob(r.Context(), jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to get generation")
		return
	}
	if job == nil {
		h.writeError(w, r, http.StatusNotFound, "not_found", "Generation not found")
		return
	}

	h.writeJSON(w, http.StatusOK, protocol.GenerationJobResponse{
		JobID:        job.ID,
		Status:       job.Status,
		Stage:        deref(job.Stage),
		BundleID:     deref(job.BundleID),
		ErrorCode:    deref(job.ErrorCode),
		ErrorMessage: deref(job.ErrorMessage),
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
