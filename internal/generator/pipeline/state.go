package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// State is a run state.
type State string

const (
	StateAnalyzing          State = "analyzing"
	StateContentGenerating  State = "content_generating"
	StateArtifactGenerating State = "artifact_generating"
	StateFinalizing         State = "finalizing"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// transitions lists the allowed forward moves. Failed is reachable from any
// non-terminal state.
var transitions = map[State][]State{
	// ArtifactGenerating directly when content is not requested
	StateAnalyzing: {StateContentGenerating, StateArtifactGenerating},
	// Finalizing directly when no landing page is requested
	StateContentGenerating:  {StateArtifactGenerating, StateFinalizing},
	StateArtifactGenerating: {StateFinalizing},
	StateFinalizing:         {StateDone},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Run tracks the state of one pipeline execution.
type Run struct {
	ID string

	mu      sync.Mutex
	state   State
	history []Transition
}

// Transition is one recorded state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// NewRun creates a run in the Analyzing state.
func NewRun(id string) *Run {
	return &Run{ID: id, state: StateAnalyzing}
}

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// History returns the recorded transitions in order.
func (r *Run) History() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.history...)
}

// Transition moves the run to state to.
func (r *Run) Transition(to State) (Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !CanTransition(r.state, to) {
		return Transition{}, fmt.Errorf("invalid transition %s -> %s", r.state, to)
	}

	t := Transition{From: r.state, To: to, At: time.Now().UTC()}
	r.history = append(r.history, t)
	r.state = to
	return t, nil
}
