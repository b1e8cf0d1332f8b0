// Package protocol defines the request and response bodies of the HTTP API.
package protocol

import (
	"time"

	"cymbytes.com/cymlure/pkg/contract"
)

// ============================================================
// Generation Responses
// ============================================================

// GenerationAcceptedResponse is returned when a request is queued.
type GenerationAcceptedResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

// GenerationJobResponse reports the progress of a queued request.
type GenerationJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`

	// Last pipeline state the run reached
	Stage string `json:"stage,omitempty"`

	// Set once the job completed
	BundleID string `json:"bundle_id,omitempty"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ============================================================
// Bundle Responses
// ============================================================

// BundleSummary is one entry of a bundle listing.
type BundleSummary struct {
	ID         string                `json:"id"`
	Channel    contract.Channel      `json:"channel"`
	Kind       contract.ScenarioKind `json:"kind"`
	Name       string                `json:"name"`
	Language   string                `json:"language"`
	Difficulty contract.Difficulty   `json:"difficulty"`
	CreatedAt  time.Time             `json:"created_at"`
}

// ListBundlesResponse is returned when listing bundles.
type ListBundlesResponse struct {
	Bundles []BundleSummary `json:"bundles"`
	Count   int             `json:"count"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// InboxResponse is a stored simulated inbox.
type InboxResponse struct {
	BundleID    string               `json:"bundle_id"`
	Items       []contract.InboxItem `json:"items"`
	Mailbox     string               `json:"mailbox,omitempty"`
	DeliveredAt *time.Time           `json:"delivered_at,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// ============================================================
// Target Responses
// ============================================================

// TargetResponse is a stored target profile.
type TargetResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Department      string    `json:"department,omitempty"`
	Title           string    `json:"title,omitempty"`
	Triggers        []string  `json:"triggers,omitempty"`
	Vulnerabilities []string  `json:"vulnerabilities,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListTargetsResponse is returned when listing target profiles.
type ListTargetsResponse struct {
	Targets []TargetResponse `json:"targets"`
	Count   int              `json:"count"`
}

// ============================================================
// Error Response
// ============================================================

// ErrorResponse is the standard error format for all API errors.
type ErrorResponse struct {
	// Error code for programmatic handling
	Error string `json:"error"`

	// Human-readable error message
	Message string `json:"message"`

	// Pipeline stage that failed, for generation errors
	Stage string `json:"stage,omitempty"`

	// Additional error details, e.g. field violations
	Details map[string]any `json:"details,omitempty"`

	// Request ID for debugging
	RequestID string `json:"request_id,omitempty"`
}

// ============================================================
// Health Check Response
// ============================================================

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	// Service status: healthy, degraded, unhealthy
	Status string `json:"status"`

	// Service version
	Version string `json:"version"`

	// Service uptime in seconds
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Registered text-generation providers
	Providers []string `json:"providers,omitempty"`

	// Component health
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth represents the health of a subsystem.
type ComponentHealth struct {
	Status    string    `json:"status"`
	LastCheck time.Time `json:"last_check"`
	Details   string    `json:"details,omitempty"`
}
