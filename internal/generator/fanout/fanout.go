// Package fanout generates a batch of differentiated inbox messages for one
// Blueprint, one concurrent task per variant.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"cymbytes.com/cymlure/internal/generator/llm"
	"cymbytes.com/cymlure/internal/generator/policy"
	"cymbytes.com/cymlure/internal/generator/prompts"
	"cymbytes.com/cymlure/internal/generator/validator"
	"cymbytes.com/cymlure/pkg/contract"
)

// DefaultTimestampPool is the canonical label pool, newest first.
var DefaultTimestampPool = []string{
	"Just now",
	"3 minutes ago",
	"12 minutes ago",
	"27 minutes ago",
	"1 hour ago",
	"2 hours ago",
	"4 hours ago",
	"Yesterday, 16:42",
	"Yesterday, 09:15",
	"2 days ago",
	"4 days ago",
	"Last week",
}

// hintTable rotates by batch position.
var hintTable = []contract.DiversityHint{
	{
		SenderDomainStyle: "lookalike of a well-known brand with a typo or extra word",
		GreetingStyle:     "generic (\"Dear customer\")",
		AuthRealism:       "failing SPF and DMARC",
		AttachmentPolicy:  "none",
	},
	{
		SenderDomainStyle: "plausible partner domain on a different TLD",
		GreetingStyle:     "personalised with first name",
		AuthRealism:       "SPF and DKIM pass, DMARC none",
		AttachmentPolicy:  "optional PDF",
	},
	{
		SenderDomainStyle: "internal company domain",
		GreetingStyle:     "informal (\"Hi all\", \"Hey\")",
		AuthRealism:       "all checks pass",
		AttachmentPolicy:  "none",
	},
	{
		SenderDomainStyle: "internal company or established vendor domain",
		GreetingStyle:     "formal (\"Dear colleagues\")",
		AuthRealism:       "all checks pass",
		AttachmentPolicy:  "optional PDF",
	},
}

// Batch is one fan-out request.
type Batch struct {
	Blueprint *contract.Blueprint
	Policy    policy.Context

	// Variants defaults to contract.InboxVariants
	Variants []contract.Variant
	Insights contract.InboxInsights
}

// TaskError is an unrecovered failure of one task.
type TaskError struct {
	Position int
	Variant  contract.Variant
	Attempts int
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("variant %s (position %d) failed after %d attempt(s): %v", e.Variant, e.Position, e.Attempts, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// BatchError is returned when any task failed; no partial results are
// returned alongside it.
type BatchError struct {
	Failed []*TaskError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%d of batch failed: %s", len(e.Failed), strings.Join(parts, "; "))
}

// Unwrap exposes the task errors to errors.Is/As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f)
	}
	return errs
}

// Generator runs fan-out batches.
type Generator struct {
	client    llm.Client
	validator *validator.Validator
	pool      []string

	// rng is not safe for concurrent use
	rngMu sync.Mutex
	rng   *rand.Rand

	logger zerolog.Logger
}

// New creates a generator. rng drives timestamp selection; pool defaults to
// DefaultTimestampPool when nil.
func New(client llm.Client, rng *rand.Rand, pool []string, logger zerolog.Logger) *Generator {
	if pool == nil {
		pool = DefaultTimestampPool
	}
	return &Generator{
		client:    client,
		validator: validator.New(),
		pool:      pool,
		rng:       rng,
		logger:    logger.With().Str("component", "fanout").Logger(),
	}
}

// Generate launches one task per variant and waits for all of them. Any task
// failing after its retry fails the whole batch.
func (g *Generator) Generate(ctx context.Context, batch Batch) ([]contract.InboxItem, error) {
	if batch.Blueprint == nil {
		return nil, errors.New("fanout: blueprint is required")
	}
	if err := g.validator.Validate(&batch.Insights); err != nil {
		return nil, err
	}

	variants := batch.Variants
	if len(variants) == 0 {
		variants = contract.InboxVariants
	}
	n := len(variants)

	g.rngMu.Lock()
	labels, err := AssignTimestamps(g.pool, n, g.rng)
	g.rngMu.Unlock()
	if err != nil {
		return nil, err
	}
	hints := Hints(n, batch.Insights)

	items := make([]contract.InboxItem, n)
	failures := make([]*TaskError, n)

	var group errgroup.Group
	for i, v := range variants {
		i, v := i, v
		group.Go(func() error {
			email, attempts, err := g.task(ctx, batch, v, hints[i], labels[i])
			if err != nil {
				failures[i] = &TaskError{Position: i + 1, Variant: v, Attempts: attempts, Err: err}
				return failures[i]
			}
			items[i] = contract.InboxItem{
				Position:  i + 1,
				Variant:   v,
				Timestamp: labels[i],
				Email:     *email,
			}
			return nil
		})
	}

	// Wait returns only after every task has settled
	if err := group.Wait(); err != nil {
		be := &BatchError{}
		for _, f := range failures {
			if f != nil {
				be.Failed = append(be.Failed, f)
			}
		}
		g.logger.Warn().Err(be).Int("failed", len(be.Failed)).Int("batch_size", n).Msg("Fan-out batch failed")
		return nil, be
	}

	g.logger.Info().Int("batch_size", n).Msg("Fan-out batch generated")
	return items, nil
}

func (g *Generator) task(ctx context.Context, batch Batch, v contract.Variant, hint contract.DiversityHint, label string) (*contract.InboxEmail, int, error) {
	in := prompts.InboxEmail(batch.Blueprint, batch.Policy, v, hint, label)

	return llm.Generate[contract.InboxEmail](ctx, g.client, in, func(e *contract.InboxEmail) error {
		// The variant decides the class, not the model
		e.IsPhishing = v.IsPhishing()
		if err := g.validator.Check(e); err != nil {
			return err
		}
		if hint.AttachmentPolicy == "none" && e.Attachment != "" {
			return &contract.ValidationError{
				Contract: "InboxEmail",
				Violations: []contract.FieldViolation{{
					Field:   "attachment",
					Rule:    "attachment_policy",
					Message: "attachment not allowed for this variant",
				}},
			}
		}
		return nil
	})
}

// AssignTimestamps picks n distinct labels from pool: shuffle, take n, then
// restore pool order so the result is newest-first and independent of
// variant position.
func AssignTimestamps(pool []string, n int, rng *rand.Rand) ([]string, error) {
	if n > len(pool) {
		return nil, fmt.Errorf("fanout: batch of %d exceeds timestamp pool of %d", n, len(pool))
	}

	picked := rng.Perm(len(pool))[:n]
	sort.Ints(picked)

	labels := make([]string, n)
	for i, idx := range picked {
		labels[i] = pool[idx]
	}
	return labels, nil
}

// Hints returns the diversity hint per position, with caller insights
// overriding domain and greeting in rotation.
func Hints(n int, insights contract.InboxInsights) []contract.DiversityHint {
	hints := make([]contract.DiversityHint, n)
	for i := range hints {
		h := hintTable[i%len(hintTable)]
		if len(insights.PreferredDomains) > 0 {
			h.PreferredDomain = insights.PreferredDomains[i%len(insights.PreferredDomains)]
		}
		if len(insights.Greetings) > 0 {
			h.Greeting = insights.Greetings[i%len(insights.Greetings)]
		}
		hints[i] = h
	}
	return hints
}
