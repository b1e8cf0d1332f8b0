package pipeline

import (
	"errors"
	"fmt"

	"cymbytes.com/cymlure/internal/generator/llm"
	"cymbytes.com/cymlure/internal/generator/router"
	"cymbytes.com/cymlure/pkg/contract"
)

// Stage names a pipeline step in errors and progress events.
type Stage string

const (
	StageRoute    Stage = "route"
	StageAnalyze  Stage = "analyze"
	StageContent  Stage = "content"
	StageArtifact Stage = "artifact"
	StageFinalize Stage = "finalize"
)

// StageError is the terminal failure of a run, tagged with the stage that
// failed and the number of calls it made. Err is the last cause.
type StageError struct {
	Stage    Stage
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Error codes reported to API callers and stored on failed jobs.
const (
	CodeValidationFailed    = "validation_failed"
	CodeRoutingFailed       = "routing_failed"
	CodeGenerationFailed    = "generation_failed"
	CodeFinalizeFailed      = "finalize_failed"
	CodeProviderUnavailable = "provider_unavailable"
	CodeInternal            = "internal_error"
)

// Classify maps an Execute error to an error code and, for stage failures,
// the failing stage.
func Classify(err error) (string, Stage) {
	var se *StageError
	if errors.As(err, &se) {
		var re *router.RoutingError
		switch {
		case errors.As(se.Err, &re):
			return CodeRoutingFailed, se.Stage
		case se.Stage == StageFinalize:
			return CodeFinalizeFailed, se.Stage
		default:
			return CodeGenerationFailed, se.Stage
		}
	}

	var ve *contract.ValidationError
	if errors.As(err, &ve) {
		return CodeValidationFailed, ""
	}
	if errors.Is(err, llm.ErrUnknownProvider) {
		return CodeProviderUnavailable, ""
	}
	return CodeInternal, ""
}
