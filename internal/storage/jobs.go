package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cymbytes.com/cymlure/pkg/contract"
)

// GenerationJob is one queued pipeline run.
type GenerationJob struct {
	ID           string            `json:"id"`
	Request      *contract.Request `json:"-"`
	Status       string            `json:"status"`
	Stage        *string           `json:"stage,omitempty"`
	BundleID     *string           `json:"bundle_id,omitempty"`
	ErrorCode    *string           `json:"error_code,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Job status values
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

const jobColumns = `id, request, status, stage, bundle_id, error_code, error_message,
		       created_at, started_at, completed_at, updated_at`

// CreateJob inserts a pending job for an accepted request.
func (d *DB) CreateJob(ctx context.Context, req *contract.Request) (*GenerationJob, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	now := time.Now().UTC()
	job := &GenerationJob{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO generation_jobs (id, request, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, job.ID, string(data), job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	d.logger.Debug().Str("job_id", job.ID).Msg("Job created")
	return job, nil
}

// GetJob retrieves a job by ID. It returns nil, nil when not found.
func (d *DB) GetJob(ctx context.Context, id string) (*GenerationJob, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM generation_jobs WHERE id = ?", id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ClaimNextJob moves the oldest pending job to running and returns it.
// It returns nil, nil when the queue is empty and ErrClaimLost when the
// selected job was taken by another claimer.
func (d *DB) ClaimNextJob(ctx context.Context) (*GenerationJob, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT "+jobColumns+` FROM generation_jobs
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT 1
	`, JobStatusPending)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select pending job: %w", err)
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE generation_jobs SET status = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, JobStatusRunning, now, now, job.ID, JobStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, fmt.Errorf("job %s: %w", job.ID, ErrClaimLost)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	job.Status = JobStatusRunning
	job.StartedAt = &now
	job.UpdatedAt = now
	return job, nil
}

// UpdateJobStage records the pipeline state a running job has reached.
func (d *DB) UpdateJobStage(ctx context.Context, id, stage string) error {
	result, err := d.db.ExecContext(ctx, `
		UPDATE generation_jobs SET stage = ?, updated_at = ? WHERE id = ?
	`, stage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update job stage: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// CompleteJob marks a job completed with the bundle it produced.
func (d *DB) CompleteJob(ctx context.Context, id, bundleID string) error {
	now := time.Now().UTC()
	result, err := d.db.ExecContext(ctx, `
		UPDATE generation_jobs
		SET status = ?, bundle_id = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`, JobStatusCompleted, bundleID, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to update job completed: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}

	d.logger.Debug().Str("job_id", id).Str("bundle_id", bundleID).Msg("Job completed")
	return nil
}

// FailJob marks a job failed. Jobs are not retried; the pipeline already
// retried each stage once.
func (d *DB) FailJob(ctx context.Context, id, code, message string) error {
	now := time.Now().UTC()
	result, err := d.db.ExecContext(ctx, `
		UPDATE generation_jobs
		SET status = ?, error_code = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`, JobStatusFailed, code, message, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to update job failed: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}

	d.logger.Debug().Str("job_id", id).Str("error_code", code).Msg("Job failed")
	return nil
}

// ResetRunningJobs returns jobs left running by a previous process to the
// queue.
func (d *DB) ResetRunningJobs(ctx context.Context) (int, error) {
	result, err := d.db.ExecContext(ctx, `
		UPDATE generation_jobs SET status = ?, stage = NULL, started_at = NULL, updated_at = ?
		WHERE status = ?
	`, JobStatusPending, time.Now().UTC(), JobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to reset running jobs: %w", err)
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// CountJobsByStatus returns job counts grouped by status.
func (d *DB) CountJobsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM generation_jobs GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

// CleanupOldJobs removes finished jobs older than the specified duration.
func (d *DB) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := d.db.ExecContext(ctx, `
		DELETE FROM generation_jobs
		WHERE status IN (?, ?) AND completed_at < ?
	`, JobStatusCompleted, JobStatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old jobs: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		d.logger.Info().Int64("count", rows).Dur("older_than", olderThan).Msg("Cleaned up old jobs")
	}

	return int(rows), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*GenerationJob, error) {
	var job GenerationJob
	var request string

	if err := row.Scan(
		&job.ID, &request, &job.Status, &job.Stage, &job.BundleID, &job.ErrorCode,
		&job.ErrorMessage, &job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.Request = &contract.Request{}
	if err := json.Unmarshal([]byte(request), job.Request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	return &job, nil
}
