package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cymbytes.com/cymlure/pkg/contract"
)

// BundleSummary is the list view of a bundle.
type BundleSummary struct {
	ID         string                `json:"id"`
	Channel    contract.Channel      `json:"channel"`
	Kind       contract.ScenarioKind `json:"kind"`
	Name       string                `json:"name"`
	Language   string                `json:"language"`
	Difficulty contract.Difficulty   `json:"difficulty"`
	CreatedAt  time.Time             `json:"created_at"`
}

// SaveBundle persists a finished bundle. It is the pipeline's only write.
func (d *DB) SaveBundle(ctx context.Context, b *contract.FinalBundle) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal bundle: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO bundles (id, channel, kind, name, language, difficulty, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.Channel, b.Blueprint.Kind, b.Blueprint.Name, b.Language, b.Difficulty, string(data), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bundle: %w", err)
	}

	d.logger.Debug().
		Str("bundle_id", b.ID).
		Str("channel", string(b.Channel)).
		Str("kind", string(b.Blueprint.Kind)).
		Msg("Bundle saved")

	return nil
}

// GetBundle retrieves a bundle by ID. It returns nil, nil when not found.
func (d *DB) GetBundle(ctx context.Context, id string) (*contract.FinalBundle, error) {
	var data string
	err := d.db.QueryRowContext(ctx, "SELECT data FROM bundles WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bundle: %w", err)
	}

	var b contract.FinalBundle
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bundle: %w", err)
	}
	return &b, nil
}

// ListBundles returns bundle summaries, newest first.
func (d *DB) ListBundles(ctx context.Context, limit, offset int) ([]*BundleSummary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, channel, kind, name, language, difficulty, created_at
		FROM bundles
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list bundles: %w", err)
	}
	defer rows.Close()

	var bundles []*BundleSummary
	for rows.Next() {
		var s BundleSummary
		if err := rows.Scan(&s.ID, &s.Channel, &s.Kind, &s.Name, &s.Language, &s.Difficulty, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bundle: %w", err)
		}
		bundles = append(bundles, &s)
	}
	return bundles, rows.Err()
}

// DeleteBundle removes a bundle and its inbox.
func (d *DB) DeleteBundle(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM inboxes WHERE bundle_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete inbox: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM bundles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete bundle: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("bundle %s: %w", id, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	d.logger.Info().Str("bundle_id", id).Msg("Bundle deleted")
	return nil
}
