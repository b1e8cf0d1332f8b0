package llm

import (
	"context"

	"cymbytes.com/cymlure/internal/generator/prompts"
)

// MaxAttempts is the number of calls a generation step may make: the first
// call and one corrective retry.
const MaxAttempts = 2

// Check validates a decoded value. A non-nil error triggers the corrective
// retry.
type Check[T any] func(*T) error

// Generate runs one generation step: call, clean, decode into a fresh T and
// check. Transport, parse and check failures are retried exactly once with
// the failure reason appended to the instruction. It returns the number of
// calls made and the last error.
func Generate[T any](ctx context.Context, client Client, in prompts.Instruction, check Check[T]) (*T, int, error) {
	var lastErr error

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 {
			in = prompts.Corrective(in, lastErr)
		}

		out, err := once(ctx, client, in, check)
		if err == nil {
			return out, attempt, nil
		}
		lastErr = err

		// A cancelled caller gets no retry
		if ctx.Err() != nil {
			return nil, attempt, lastErr
		}
	}

	return nil, MaxAttempts, lastErr
}

func once[T any](ctx context.Context, client Client, in prompts.Instruction, check Check[T]) (*T, error) {
	raw, err := client.Generate(ctx, in.System, in.User)
	if err != nil {
		return nil, err
	}

	out := new(T)
	if err := DecodeInto(raw, out); err != nil {
		return nil, err
	}

	if check != nil {
		if err := check(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}
