package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cymbytes.com/cymlure/internal/generator/fanout"
	"cymbytes.com/cymlure/internal/generator/pipeline"
	"cymbytes.com/cymlure/internal/generator/policy"
	"cymbytes.com/cymlure/internal/storage"
	"cymbytes.com/cymlure/pkg/contract"
	"cymbytes.com/cymlure/pkg/protocol"
)

// ============================================================
// Bundle Handlers
// ============================================================

// ListBundles handles GET /api/bundles
func (h *Handlers) ListBundles(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			offset = n
		}
	}

	bundles, err := h.db.ListBundles(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list bundles")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to list bundles")
		return
	}

	resp := protocol.ListBundlesResponse{
		Bundles: make([]protocol.BundleSummary, 0, len(bundles)),
		Limit:   limit,
		Offset:  offset,
	}
	for _, b := range bundles {
		resp.Bundles = append(resp.Bundles, protocol.BundleSummary{
			ID:         b.ID,
			Channel:    b.Channel,
			Kind:       b.Kind,
			Name:       b.Name,
			Language:   b.Language,
			Difficulty: b.Difficulty,
			CreatedAt:  b.CreatedAt,
		})
	}
	resp.Count = len(resp.Bundles)

	h.writeJSON(w, http.StatusOK, resp)
}

// GetBundle handles GET /api/bundles/{bundleID}
func (h *Handlers) GetBundle(w http.ResponseWriter, r *http.Request) {
	bundle, ok := h.loadBundle(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, bundle)
}

// DeleteBundle handles DELETE /api/bundles/{bundleID}
func (h *Handlers) DeleteBundle(w http.ResponseWriter, r *http.Request) {
	bundleID := chi.URLParam(r, "bundleID")

	if err := h.db.DeleteBundle(r.Context(), bundleID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, r, http.StatusNotFound, "not_found", "Bundle not found")
			return
		}
		h.logger.Error().Err(err).Str("bundle_id", bundleID).Msg("Failed to delete bundle")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to delete bundle")
		return
	}
	h.audit.LogBundleDeleted(bundleID, middleware.GetReqID(r.Context()))

	w.WriteHeader(http.StatusNoContent)
}

// ============================================================
// Inbox Handlers
// ============================================================

// CreateInbox handles POST /api/bundles/{bundleID}/inbox
func (h *Handlers) CreateInbox(w http.ResponseWriter, r *http.Request) {
	if h.inbox == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "not_configured", "Inbox generation is not configured")
		return
	}

	bundle, ok := h.loadBundle(w, r)
	if !ok {
		return
	}

	var req protocol.CreateInboxRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	if req.Deliver && (h.deliverer == nil || !h.deliverer.Enabled()) {
		h.writeError(w, r, http.StatusBadRequest, "not_configured", "Inbox delivery is not configured")
		return
	}

	// The bundle carries everything the policy context needs
	pc := policy.Resolve(&contract.Request{
		Topic:         bundle.Blueprint.Scenario,
		Difficulty:    bundle.Difficulty,
		Language:      bundle.Language,
		Channel:       bundle.Channel,
		PolicyContext: bundle.PolicyContext,
	}, h.locales)

	items, err := h.inbox.Generate(r.Context(), fanout.Batch{
		Blueprint: &bundle.Blueprint,
		Policy:    pc,
		Insights:  req.InboxInsights,
	})
	if err != nil {
		var ve *contract.ValidationError
		var be *fanout.BatchError
		switch {
		case errors.As(err, &be):
			h.writeJSON(w, http.StatusBadGateway, protocol.ErrorResponse{
				Error:     pipeline.CodeGenerationFailed,
				Message:   err.Error(),
				Details:   map[string]any{"failed": len(be.Failed)},
				RequestID: middleware.GetReqID(r.Context()),
			})
		case errors.As(err, &ve):
			h.writeValidationError(w, r, ve)
		default:
			h.logger.Error().Err(err).Str("bundle_id", bundle.ID).Msg("Inbox generation failed")
			h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Inbox generation failed")
		}
		return
	}

	inbox, err := h.db.SaveInbox(r.Context(), bundle.ID, items)
	if err != nil {
		h.logger.Error().Err(err).Str("bundle_id", bundle.ID).Msg("Failed to save inbox")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to save inbox")
		return
	}

	if req.Deliver {
		mailbox, err := h.deliverer.Deliver(r.Context(), items)
		h.audit.LogInboxDelivered(bundle.ID, mailbox, len(items), middleware.GetReqID(r.Context()), err)
		if err != nil {
			h.logger.Error().Err(err).Str("bundle_id", bundle.ID).Msg("Inbox delivery failed")
			h.writeError(w, r, http.StatusBadGateway, "delivery_failed", err.Error())
			return
		}
		at := time.Now().UTC()
		if err := h.db.MarkInboxDelivered(r.Context(), bundle.ID, mailbox, at); err != nil {
			h.logger.Error().Err(err).Str("bundle_id", bundle.ID).Msg("Failed to record delivery")
		}
		inbox.Mailbox = &mailbox
		inbox.DeliveredAt = &at
	}

	if h.notifier != nil {
		if err := h.notifier.ForwardInboxGenerated(r.Context(), bundle.ID, len(items), req.Deliver); err != nil {
			h.logger.Warn().Err(err).Str("bundle_id", bundle.ID).Msg("Inbox notification failed")
		}
	}

	h.writeJSON(w, http.StatusCreated, inboxResponse(inbox))
}

// GetInbox handles GET /api/bundles/{bundleID}/inbox
func (h *Handlers) GetInbox(w http.ResponseWriter, r *http.Request) {
	bundleID := chi.URLParam(r, "bundleID")

	inbox, err := h.db.GetInbox(r.Context(), bundleID)
	if err != nil {
		h.logger.Error().Err(err).Str("bundle_id", bundleID).Msg("Failed to get inbox")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to get inbox")
		return
	}
	if inbox == nil {
		h.writeError(w, r, http.StatusNotFound, "not_found", "Inbox not found")
		return
	}

	h.writeJSON(w, http.StatusOK, inboxResponse(inbox))
}

func (h *Handlers) loadBundle(w http.ResponseWriter, r *http.Request) (*contract.FinalBundle, bool) {
	bundleID := chi.URLParam(r, "bundleID")

	bundle, err := h.db.GetBundle(r.Context(), bundleID)
	if err != nil {
		h.logger.Error().Err(err).Str("bundle_id", bundleID).Msg("Failed to get bundle")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to get bundle")
		return nil, false
	}
	if bundle == nil {
		h.writeError(w, r, http.StatusNotFound, "not_found", "Bundle not found")
		return nil, false
	}
	return bundle, true
}

func inboxResponse(inbox *storage.Inbox) protocol.InboxResponse {
	return protocol.InboxResponse{
		BundleID:    inbox.BundleID,
		Items:       inbox.Items,
		Mailbox:     deref(inbox.Mailbox),
		DeliveredAt: inbox.DeliveredAt,
		CreatedAt:   inbox.CreatedAt,
	}
}
