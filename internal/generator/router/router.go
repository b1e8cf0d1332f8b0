// Package router decides which scenario branch a run takes and supplies the
// per-branch instructions and output checks.
package router

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"cymbytes.com/cymlure/internal/generator/llm"
	"cymbytes.com/cymlure/internal/generator/policy"
	"cymbytes.com/cymlure/internal/generator/prompts"
	"cymbytes.com/cymlure/pkg/contract"
)

// MinConfidence is the lowest pre-check confidence the router accepts.
const MinConfidence = 0.5

// Signal is the pre-check classification output.
type Signal struct {
	IsQuishing *bool                 `json:"is_quishing"`
	Vector     contract.ScenarioKind `json:"vector,omitempty"`
	Confidence *float64              `json:"confidence"`
}

// RoutingError means the classification signal was ambiguous or
// contradictory. It is fatal; retrying cannot resolve it.
type RoutingError struct {
	Reason string
	Signal *Signal
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing failed: %s", e.Reason)
}

// PreCheckError wraps a pre-check call that failed after its retry.
type PreCheckError struct {
	Attempts int
	Err      error
}

func (e *PreCheckError) Error() string {
	return fmt.Sprintf("pre-check failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *PreCheckError) Unwrap() error {
	return e.Err
}

// Router selects the branch for a request.
type Router struct {
	logger zerolog.Logger
}

// New creates a router.
func New(logger zerolog.Logger) *Router {
	return &Router{
		logger: logger.With().Str("component", "router").Logger(),
	}
}

// Route returns the branch for req. An explicit Request.Vector wins;
// otherwise one pre-check call classifies the request.
func (r *Router) Route(ctx context.Context, client llm.Client, req *contract.Request, pc policy.Context) (Branch, error) {
	if req.Vector != "" {
		r.logger.Debug().Str("vector", string(req.Vector)).Msg("Using explicit vector")
		return ForKind(req.Vector)
	}

	sig, attempts, err := llm.Generate[Signal](ctx, client, prompts.PreCheck(req, pc), nil)
	if err != nil {
		return nil, &PreCheckError{Attempts: attempts, Err: err}
	}

	kind, err := Decide(sig)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Ambiguous routing signal")
		return nil, err
	}

	r.logger.Info().
		Str("vector", string(kind)).
		Float64("confidence", *sig.Confidence).
		Int("attempts", attempts).
		Msg("Request classified")

	return ForKind(kind)
}

// Decide turns a pre-check signal into a scenario kind.
func Decide(sig *Signal) (contract.ScenarioKind, error) {
	if sig.IsQuishing == nil {
		return "", &RoutingError{Reason: "classification flag missing", Signal: sig}
	}
	if sig.Confidence == nil {
		return "", &RoutingError{Reason: "confidence missing", Signal: sig}
	}
	if *sig.Confidence < MinConfidence {
		return "", &RoutingError{Reason: fmt.Sprintf("confidence %.2f below %.2f", *sig.Confidence, MinConfidence), Signal: sig}
	}

	flagged := contract.KindLink
	if *sig.IsQuishing {
		flagged = contract.KindQR
	}

	switch {
	case sig.Vector == "":
		return flagged, nil
	case !contract.IsValidKind(sig.Vector):
		return "", &RoutingError{Reason: fmt.Sprintf("unknown vector %q", sig.Vector), Signal: sig}
	case sig.Vector != flagged:
		return "", &RoutingError{
			Reason: fmt.Sprintf("is_quishing=%t contradicts vector %q", *sig.IsQuishing, sig.Vector),
			Signal: sig,
		}
	}
	return flagged, nil
}
