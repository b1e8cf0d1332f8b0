// Package handlers provides HTTP request handlers for the generation API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"cymbytes.com/cymlure/internal/audit"
	"cymbytes.com/cymlure/internal/generator/fanout"
	"cymbytes.com/cymlure/internal/generator/locale"
	"cymbytes.com/cymlure/internal/generator/pipeline"
	"cymbytes.com/cymlure/internal/generator/validator"
	"cymbytes.com/cymlure/internal/storage"
	"cymbytes.com/cymlure/pkg/contract"
	"cymbytes.com/cymlure/pkg/protocol"
)

// maxBodyBytes bounds request bodies; policy text is the largest field.
const maxBodyBytes = 1 << 20

// Runner executes a generation run synchronously.
type Runner interface {
	Execute(ctx context.Context, runID string, req *contract.Request) (*contract.FinalBundle, error)
}

// InboxGenerator produces a simulated inbox for a Blueprint.
type InboxGenerator interface {
	Generate(ctx context.Context, batch fanout.Batch) ([]contract.InboxItem, error)
}

// InboxDeliverer appends an inbox to a lab mailbox.
type InboxDeliverer interface {
	Enabled() bool
	Deliver(ctx context.Context, items []contract.InboxItem) (string, error)
}

// InboxNotifier announces generated inboxes.
type InboxNotifier interface {
	ForwardInboxGenerated(ctx context.Context, bundleID string, items int, delivered bool) error
}

// Dependencies holds the collaborators of the handlers. Inbox, Deliverer,
// Notifier and Audit are optional.
type Dependencies struct {
	DB        *storage.DB
	Runner    Runner
	Inbox     InboxGenerator
	Deliverer InboxDeliverer
	Notifier  InboxNotifier
	Audit     *audit.Logger
	Locales   *locale.Cache
	Providers []string
	Version   string
	StartTime time.Time
}

// Handlers contains all API handlers.
type Handlers struct {
	db        *storage.DB
	runner    Runner
	inbox     InboxGenerator
	deliverer InboxDeliverer
	notifier  InboxNotifier
	audit     *audit.Logger
	locales   *locale.Cache
	validator *validator.Validator
	providers []string
	version   string
	startTime time.Time
	logger    zerolog.Logger
}

// New creates a new Handlers instance.
func New(deps Dependencies, logger zerolog.Logger) *Handlers {
	return &Handlers{
		db:        deps.DB,
		runner:    deps.Runner,
		inbox:     deps.Inbox,
		deliverer: deps.Deliverer,
		notifier:  deps.Notifier,
		audit:     deps.Audit,
		locales:   deps.Locales,
		validator: validator.New(),
		providers: deps.Providers,
		version:   deps.Version,
		startTime: deps.StartTime,
		logger:    logger.With().Str("component", "handlers").Logger(),
	}
}

// ============================================================
// Health Handlers
// ============================================================

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus, dbErr := h.db.Health(r.Context())

	status := "healthy"
	if dbErr != nil {
		status = "unhealthy"
	}

	resp := protocol.HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Providers:     h.providers,
		Components: map[string]protocol.ComponentHealth{
			"database": {
				Status:    dbStatus,
				LastCheck: time.Now(),
			},
		},
	}

	if dbErr != nil {
		resp.Components["database"] = protocol.ComponentHealth{
			Status:    "unhealthy",
			LastCheck: time.Now(),
			Details:   dbErr.Error(),
		}
	}

	if counts, err := h.db.CountJobsByStatus(r.Context()); err == nil {
		resp.Components["queue"] = protocol.ComponentHealth{
			Status:    "healthy",
			LastCheck: time.Now(),
			Details:   queueDetails(counts),
		}
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	h.writeJSON(w, statusCode, resp)
}

// ReadyCheck handles GET /ready
func (h *Handlers) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "not_ready", "Database not available")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

// ============================================================
// Helper methods
// ============================================================

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return h.decodeBody(w, r, v, false)
}

// decodeOptional is decode for endpoints whose body may be omitted. An empty
// body leaves v untouched whether or not Content-Length was sent.
func (h *Handlers) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	return h.decodeBody(w, r, v, true)
}

func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	h.writeError(w, r, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
	return false
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, protocol.ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeValidationError reports contract violations field by field.
func (h *Handlers) writeValidationError(w http.ResponseWriter, r *http.Request, ve *contract.ValidationError) {
	h.writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{
		Error:     pipeline.CodeValidationFailed,
		Message:   ve.Error(),
		Details:   map[string]any{"violations": ve.Violations},
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeRunError maps a pipeline error to a status code and error body.
func (h *Handlers) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *contract.ValidationError
	var se *pipeline.StageError
	if errors.As(err, &ve) && !errors.As(err, &se) {
		h.writeValidationError(w, r, ve)
		return
	}

	code, stage := pipeline.Classify(err)
	h.writeJSON(w, statusFor(code), protocol.ErrorResponse{
		Error:     code,
		Message:   err.Error(),
		Stage:     string(stage),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func statusFor(code string) int {
	switch code {
	case pipeline.CodeValidationFailed, pipeline.CodeProviderUnavailable:
		return http.StatusBadRequest
	case pipeline.CodeRoutingFailed:
		return http.StatusUnprocessableEntity
	case pipeline.CodeGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func queueDetails(counts map[string]int) string {
	data, _ := json.Marshal(counts)
	return string(data)
}
