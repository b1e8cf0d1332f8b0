package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cymbytes.com/cymlure/internal/storage"
	"cymbytes.com/cymlure/pkg/contract"
	"cymbytes.com/cymlure/pkg/protocol"
)

// ============================================================
// Target Profile Handlers
// ============================================================

// CreateTarget handles POST /api/targets
func (h *Handlers) CreateTarget(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateTargetRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.validator.Check(&req); err != nil {
		var ve *contract.ValidationError
		if errors.As(err, &ve) {
			h.writeValidationError(w, r, ve)
			return
		}
		h.writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	target := &storage.Target{
		Name:            req.Name,
		Department:      req.Department,
		Title:           req.Title,
		Triggers:        req.Triggers,
		Vulnerabilities: req.Vulnerabilities,
	}

	if err := h.db.CreateTarget(r.Context(), target); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			h.writeError(w, r, http.StatusConflict, "conflict", "A target with this name already exists")
			return
		}
		h.logger.Error().Err(err).Str("name", req.Name).Msg("Failed to create target")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create target")
		return
	}
	h.audit.LogTargetCreated(target.ID, target.Department, middleware.GetReqID(r.Context()))

	h.writeJSON(w, http.StatusCreated, targetResponse(target))
}

// GetTarget handles GET /api/targets/{targetID}
func (h *Handlers) GetTarget(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "targetID")

	target, err := h.db.GetTarget(r.Context(), targetID)
	if err != nil {
		h.logger.Error().Err(err).Str("target_id", targetID).Msg("Failed to get target")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to get target")
		return
	}
	if target == nil {
		h.writeError(w, r, http.StatusNotFound, "not_found", "Target not found")
		return
	}

	h.writeJSON(w, http.StatusOK, targetResponse(target))
}

// ListTargets handles GET /api/targets
func (h *Handlers) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.db.ListTargets(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list targets")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to list targets")
		return
	}

	resp := protocol.ListTargetsResponse{
		Targets: make([]protocol.TargetResponse, 0, len(targets)),
	}
	for _, t := range targets {
		resp.Targets = append(resp.Targets, targetResponse(t))
	}
	resp.Count = len(resp.Targets)

	h.writeJSON(w, http.StatusOK, resp)
}

// DeleteTarget handles DELETE /api/targets/{targetID}
func (h *Handlers) DeleteTarget(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "targetID")

	if err := h.db.DeleteTarget(r.Context(), targetID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, r, http.StatusNotFound, "not_found", "Target not found")
			return
		}
		h.logger.Error().Err(err).Str("target_id", targetID).Msg("Failed to delete target")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to delete target")
		return
	}
	h.audit.LogTargetDeleted(targetID, middleware.GetReqID(r.Context()))

	w.WriteHeader(http.StatusNoContent)
}

func targetResponse(t *storage.Target) protocol.TargetResponse {
	return protocol.TargetResponse{
		ID:              t.ID,
		Name:            t.Name,
		Department:      t.Department,
		Title:           t.Title,
		Triggers:        t.Triggers,
		Vulnerabilities: t.Vulnerabilities,
		CreatedAt:       t.CreatedAt,
	}
}
