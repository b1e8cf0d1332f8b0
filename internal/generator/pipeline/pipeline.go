// Package pipeline runs the generation stage chain:
// Analyzing → ContentGenerating → ArtifactGenerating → Finalizing → Done.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cymbytes.com/cymlure/internal/generator/assembler"
	"cymbytes.com/cymlure/internal/generator/layout"
	"cymbytes.com/cymlure/internal/generator/llm"
	"cymbytes.com/cymlure/internal/generator/locale"
	"cymbytes.com/cymlure/internal/generator/policy"
	"cymbytes.com/cymlure/internal/generator/prompts"
	"cymbytes.com/cymlure/internal/generator/router"
	"cymbytes.com/cymlure/internal/generator/validator"
	"cymbytes.com/cymlure/pkg/contract"
)

// Options configures a Pipeline.
type Options struct {
	Providers *llm.Set
	Locales   *locale.Cache
	Writer    BundleWriter
	Observer  Observer

	// Rand returns the randomness source for one run's layout selection
	Rand func() *rand.Rand
}

// Pipeline executes generation runs.
type Pipeline struct {
	validator *validator.Validator
	router    *router.Router
	assembler *assembler.Assembler
	providers *llm.Set
	locales   *locale.Cache
	writer    BundleWriter
	observer  Observer
	rand      func() *rand.Rand
	logger    zerolog.Logger
}

// New creates a pipeline.
func New(opts Options, logger zerolog.Logger) *Pipeline {
	p := &Pipeline{
		validator: validator.New(),
		router:    router.New(logger),
		assembler: assembler.New(),
		providers: opts.Providers,
		locales:   opts.Locales,
		writer:    opts.Writer,
		observer:  opts.Observer,
		rand:      opts.Rand,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
	if p.rand == nil {
		p.rand = func() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) }
	}
	return p
}

// Validator returns the contract validator used for requests.
func (p *Pipeline) Validator() *validator.Validator {
	return p.validator
}

// Execute runs the whole chain for req. runID tags progress events; an empty
// runID gets a fresh one. On success the bundle has been persisted; on
// failure nothing is persisted and the error is a *StageError (or a
// *contract.ValidationError for an invalid request).
func (p *Pipeline) Execute(ctx context.Context, runID string, req *contract.Request) (*contract.FinalBundle, error) {
	if runID == "" {
		runID = uuid.New().String()
	}

	if err := p.validator.Check(req); err != nil {
		return nil, err
	}

	client, sel, err := p.providers.Resolve(req.Provider, req.Model)
	if err != nil {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}

	logger := p.logger.With().
		Str("run_id", runID).
		Str("provider", sel.Provider).
		Str("model", sel.Model).
		Logger()

	r := &execution{
		p:      p,
		run:    NewRun(runID),
		req:    req,
		pc:     policy.Resolve(req, p.locales),
		client: client,
		sel:    sel,
		logger: logger,
	}

	logger.Info().
		Str("topic", req.Topic).
		Str("channel", string(req.Channel)).
		Str("difficulty", string(req.Difficulty)).
		Msg("Starting generation run")

	bundle, err := r.execute(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Generation run failed")
		return nil, err
	}

	logger.Info().Str("bundle_id", bundle.ID).Msg("Generation run completed")
	return bundle, nil
}

// execution holds the state of one run.
type execution struct {
	p      *Pipeline
	run    *Run
	req    *contract.Request
	pc     policy.Context
	client llm.Client
	sel    llm.Selection
	logger zerolog.Logger
}

func (e *execution) execute(ctx context.Context) (*contract.FinalBundle, error) {
	e.notify(ctx, Event{RunID: e.run.ID, To: StateAnalyzing, Stage: StageAnalyze, At: time.Now().UTC()})

	// Routing runs inside Analyzing, before the first stage call
	branch, err := e.p.router.Route(ctx, e.client, e.req, e.pc)
	if err != nil {
		return nil, e.fail(ctx, StageRoute, routeAttempts(err), err)
	}

	bp, attempts, err := e.analyze(ctx, branch)
	if err != nil {
		return nil, e.fail(ctx, StageAnalyze, attempts, err)
	}
	bp.Provider = e.sel.Provider
	bp.Model = e.sel.Model

	// Later stages read the branch fixed on the Blueprint
	branch, err = router.ForKind(bp.Kind)
	if err != nil {
		return nil, e.fail(ctx, StageAnalyze, attempts, err)
	}

	var draft *contract.ContentDraft
	if e.req.WantsContent() {
		e.transition(ctx, StateContentGenerating, StageContent)

		draft, attempts, err = e.content(ctx, branch, bp)
		if err != nil {
			return nil, e.fail(ctx, StageContent, attempts, err)
		}
	}

	var set *contract.ArtifactSet
	if e.req.WantsLandingPage() {
		e.transition(ctx, StateArtifactGenerating, StageArtifact)

		set, attempts, err = e.artifacts(ctx, branch, bp, draft)
		if err != nil {
			return nil, e.fail(ctx, StageArtifact, attempts, err)
		}
	}

	e.transition(ctx, StateFinalizing, StageFinalize)

	bundle, err := e.p.assembler.Assemble(assembler.Input{
		Request:   e.req,
		Policy:    e.pc,
		Blueprint: bp,
		Content:   draft,
		Artifacts: set,
	})
	if err != nil {
		return nil, e.fail(ctx, StageFinalize, 1, err)
	}

	if e.p.writer != nil {
		if err := e.p.writer.SaveBundle(ctx, bundle); err != nil {
			return nil, e.fail(ctx, StageFinalize, 1, fmt.Errorf("persist bundle: %w", err))
		}
	}

	if t, err := e.run.Transition(StateDone); err == nil {
		e.notify(ctx, Event{RunID: e.run.ID, From: t.From, To: t.To, BundleID: bundle.ID, At: t.At})
	}
	return bundle, nil
}

func (e *execution) analyze(ctx context.Context, branch router.Branch) (*contract.Blueprint, int, error) {
	in := prompts.Analyze(e.req, e.pc, branch.Kind(), branch.AnalyzeGuidance())

	return llm.Generate[contract.Blueprint](ctx, e.client, in, func(bp *contract.Blueprint) error {
		// The discriminant comes from the router, never from the model
		bp.Kind = branch.Kind()
		bp.Provider = ""
		bp.Model = ""
		if err := e.p.validator.Check(bp); err != nil {
			return err
		}
		return branch.CheckBlueprint(bp)
	})
}

func (e *execution) content(ctx context.Context, branch router.Branch, bp *contract.Blueprint) (*contract.ContentDraft, int, error) {
	in := prompts.Content(e.req, e.pc, bp, branch.ContentGuidance())

	return llm.Generate[contract.ContentDraft](ctx, e.client, in, func(d *contract.ContentDraft) error {
		d.Blueprint = *bp
		if err := e.p.validator.Check(d); err != nil {
			return err
		}
		if err := checkChannel(e.req.Channel, d); err != nil {
			return err
		}
		return branch.CheckContent(d)
	})
}

func (e *execution) artifacts(ctx context.Context, branch router.Branch, bp *contract.Blueprint, draft *contract.ContentDraft) (*contract.ArtifactSet, int, error) {
	sel := layout.Select(e.p.rand())
	in := prompts.Artifacts(e.req, e.pc, bp, draft, sel, branch.PageGuidance())

	set, attempts, err := llm.Generate[contract.ArtifactSet](ctx, e.client, in, func(a *contract.ArtifactSet) error {
		if err := e.p.validator.Check(a); err != nil {
			return err
		}
		if err := checkPageTypes(a); err != nil {
			return err
		}
		return branch.CheckPages(a)
	})
	if err != nil {
		return nil, attempts, err
	}

	set.Layout = sel.Layout.Name
	set.Style = sel.Style.Name
	return set, attempts, nil
}

// transition moves the run forward and emits a progress event.
func (e *execution) transition(ctx context.Context, to State, stage Stage) {
	t, err := e.run.Transition(to)
	if err != nil {
		// Only reachable through a programming error in execute
		e.logger.Error().Err(err).Msg("Invalid state transition")
		return
	}
	e.logger.Debug().Str("from", string(t.From)).Str("to", string(t.To)).Msg("Stage transition")
	e.notify(ctx, Event{RunID: e.run.ID, From: t.From, To: t.To, Stage: stage, At: t.At})
}

// fail moves the run to Failed and returns the stage-tagged error.
func (e *execution) fail(ctx context.Context, stage Stage, attempts int, cause error) error {
	stageErr := &StageError{Stage: stage, Attempts: attempts, Err: cause}

	t, err := e.run.Transition(StateFailed)
	if err == nil {
		e.notify(ctx, Event{
			RunID:    e.run.ID,
			From:     t.From,
			To:       t.To,
			Stage:    stage,
			Attempts: attempts,
			Error:    cause.Error(),
			At:       t.At,
		})
	}
	return stageErr
}

func (e *execution) notify(ctx context.Context, ev Event) {
	if e.p.observer == nil {
		return
	}
	if err := e.p.observer.Notify(ctx, ev); err != nil {
		e.logger.Warn().Err(err).Str("to", string(ev.To)).Msg("Progress notification failed")
	}
}

// ============================================================
// Helper functions
// ============================================================

func routeAttempts(err error) int {
	var pe *router.PreCheckError
	if errors.As(err, &pe) {
		return pe.Attempts
	}
	var re *router.RoutingError
	if errors.As(err, &re) && re.Signal == nil {
		// Explicit vector rejected without a call
		return 0
	}
	return 1
}

func checkChannel(ch contract.Channel, d *contract.ContentDraft) error {
	switch {
	case ch == contract.ChannelEmail && d.Email == nil:
		return channelViolation("email", "email content required for the email channel")
	case ch == contract.ChannelSMS && d.SMS == nil:
		return channelViolation("sms", "sms content required for the sms channel")
	}
	return nil
}

func checkPageTypes(a *contract.ArtifactSet) error {
	seen := make(map[contract.PageType]bool, len(a.Pages))
	for i, p := range a.Pages {
		if seen[p.Type] {
			return &contract.ValidationError{
				Contract: "ArtifactSet",
				Violations: []contract.FieldViolation{{
					Field:   fmt.Sprintf("pages[%d].type", i),
					Rule:    "unique",
					Message: fmt.Sprintf("duplicate page type %s", p.Type),
				}},
			}
		}
		seen[p.Type] = true
	}
	if !seen[contract.PageLogin] {
		return &contract.ValidationError{
			Contract: "ArtifactSet",
			Violations: []contract.FieldViolation{{
				Field:   "pages",
				Rule:    "login_page",
				Message: "a login page is required",
			}},
		}
	}
	return nil
}

func channelViolation(field, msg string) error {
	return &contract.ValidationError{
		Contract:   "ContentDraft",
		Violations: []contract.FieldViolation{{Field: field, Rule: "channel", Message: msg}},
	}
}
