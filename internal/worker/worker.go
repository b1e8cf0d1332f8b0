// Package worker drains the generation job queue in the background.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cymbytes.com/cymlure/internal/generator/pipeline"
	"cymbytes.com/cymlure/internal/storage"
	"cymbytes.com/cymlure/pkg/contract"
)

// JobStore is the queue the worker drains.
type JobStore interface {
	ClaimNextJob(ctx context.Context) (*storage.GenerationJob, error)
	UpdateJobStage(ctx context.Context, id, stage string) error
	CompleteJob(ctx context.Context, id, bundleID string) error
	FailJob(ctx context.Context, id, code, message string) error
	ResetRunningJobs(ctx context.Context) (int, error)
	CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int, error)
}

// Runner executes one generation run.
type Runner interface {
	Execute(ctx context.Context, runID string, req *contract.Request) (*contract.FinalBundle, error)
}

// Worker claims pending jobs and runs them through the pipeline.
type Worker struct {
	store  JobStore
	runner Runner
	logger zerolog.Logger

	// Configuration
	pollInterval    time.Duration
	concurrency     int
	retention       time.Duration
	cleanupInterval time.Duration

	// Background loops
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Config holds worker configuration.
type Config struct {
	// PollInterval is how often an idle loop checks for pending jobs
	PollInterval time.Duration `yaml:"poll_interval"`

	// Concurrency is the number of jobs run in parallel
	Concurrency int `yaml:"concurrency"`

	// Retention is how long finished jobs are kept
	Retention time.Duration `yaml:"retention"`

	// CleanupInterval is how often finished jobs are purged
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:    time.Second,
		Concurrency:     2,
		Retention:       7 * 24 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

// New creates a new worker.
func New(store JobStore, runner Runner, cfg Config, logger zerolog.Logger) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Worker{
		store:           store,
		runner:          runner,
		logger:          logger.With().Str("component", "worker").Logger(),
		pollInterval:    cfg.PollInterval,
		concurrency:     cfg.Concurrency,
		retention:       cfg.Retention,
		cleanupInterval: cfg.CleanupInterval,
		stopCh:          make(chan struct{}),
	}
}

// Start requeues jobs interrupted by a previous process and begins the
// background loops.
func (w *Worker) Start(ctx context.Context) {
	if n, err := w.store.ResetRunningJobs(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Failed to requeue interrupted jobs")
	} else if n > 0 {
		w.logger.Warn().Int("count", n).Msg("Requeued interrupted jobs")
	}

	w.logger.Info().
		Dur("poll_interval", w.pollInterval).
		Int("concurrency", w.concurrency).
		Msg("Starting worker")

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.pollLoop(ctx)
	}

	if w.cleanupInterval > 0 && w.retention > 0 {
		w.wg.Add(1)
		go w.cleanupLoop(ctx)
	}
}

// Stop halts the loops and waits for running jobs to finish.
func (w *Worker) Stop() {
	w.logger.Info().Msg("Stopping worker")
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Worker) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick
			for w.RunOnce(ctx) {
				select {
				case <-ctx.Done():
					return
				case <-w.stopCh:
					return
				default:
				}
			}
		}
	}
}

func (w *Worker) cleanupLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if _, err := w.store.CleanupOldJobs(ctx, w.retention); err != nil {
				w.logger.Error().Err(err).Msg("Failed to clean up old jobs")
			}
		}
	}
}

// RunOnce claims and runs a single job. It reports whether the queue may
// hold more work: true after a run or a lost claim, false when the queue is
// empty or unreadable.
func (w *Worker) RunOnce(ctx context.Context) bool {
	job, err := w.store.ClaimNextJob(ctx)
	if errors.Is(err, storage.ErrClaimLost) {
		w.logger.Debug().Err(err).Msg("Claim lost, retrying")
		return true
	}
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to claim job")
		return false
	}
	if job == nil {
		return false
	}

	logger := w.logger.With().Str("job_id", job.ID).Logger()
	logger.Info().Str("topic", job.Request.Topic).Msg("Running generation job")

	start := time.Now()
	bundle, err := w.runner.Execute(ctx, job.ID, job.Request)
	if err != nil {
		code, stage := pipeline.Classify(err)
		logger.Warn().
			Err(err).
			Str("error_code", code).
			Str("stage", string(stage)).
			Dur("duration", time.Since(start)).
			Msg("Generation job failed")

		if ferr := w.store.FailJob(ctx, job.ID, code, err.Error()); ferr != nil {
			logger.Error().Err(ferr).Msg("Failed to record job failure")
		}
		return true
	}

	if err := w.store.CompleteJob(ctx, job.ID, bundle.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to record job completion")
		return true
	}

	logger.Info().
		Str("bundle_id", bundle.ID).
		Dur("duration", time.Since(start)).
		Msg("Generation job completed")
	return true
}

// StageRecorder returns an observer that stores the state each job reaches.
// Runs without a job row (synchronous API calls, the CLI) are ignored.
func StageRecorder(store JobStore) pipeline.Observer {
	return pipeline.ObserverFunc(func(ctx context.Context, ev pipeline.Event) error {
		if ev.To.Terminal() {
			return nil
		}
		err := store.UpdateJobStage(ctx, ev.RunID, string(ev.To))
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	})
}
