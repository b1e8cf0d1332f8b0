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

// Target is a stored audience profile that requests can reference by ID.
type Target struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Department      string    `json:"department,omitempty"`
	Title           string    `json:"title,omitempty"`
	Triggers        []string  `json:"triggers,omitempty"`
	Vulnerabilities []string  `json:"vulnerabilities,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Profile converts the stored target into the request-level profile.
func (t *Target) Profile() *contract.TargetProfile {
	name := t.Name
	if t.Title != "" {
		name = fmt.Sprintf("%s (%s)", t.Name, t.Title)
	}
	return &contract.TargetProfile{
		Name:            name,
		Department:      t.Department,
		Triggers:        t.Triggers,
		Vulnerabilities: t.Vulnerabilities,
	}
}

// CreateTarget inserts a new target profile.
func (d *DB) CreateTarget(ctx context.Context, t *Target) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	triggers, err := json.Marshal(t.Triggers)
	if err != nil {
		return fmt.Errorf("failed to marshal triggers: %w", err)
	}
	vulns, err := json.Marshal(t.Vulnerabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal vulnerabilities: %w", err)
	}

	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO target_profiles (id, name, department, title, triggers, vulnerabilities, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Name, t.Department, t.Title, string(triggers), string(vulns), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create target: %w", err)
	}

	d.logger.Info().Str("target_id", t.ID).Str("name", t.Name).Msg("Created target profile")
	return nil
}

// GetTarget retrieves a target by ID. It returns nil, nil when not found.
func (d *DB) GetTarget(ctx context.Context, id string) (*Target, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, name, department, title, triggers, vulnerabilities, created_at, updated_at
		FROM target_profiles
		WHERE id = ?
	`, id)

	t, err := scanTarget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return t, nil
}

// ListTargets returns all targets ordered by name.
func (d *DB) ListTargets(ctx context.Context) ([]*Target, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, department, title, triggers, vulnerabilities, created_at, updated_at
		FROM target_profiles
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []*Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// DeleteTarget deletes a target profile.
func (d *DB) DeleteTarget(ctx context.Context, id string) error {
	result, err := d.db.ExecContext(ctx, "DELETE FROM target_profiles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("target %s: %w", id, ErrNotFound)
	}

	d.logger.Info().Str("target_id", id).Msg("Deleted target profile")
	return nil
}

func scanTarget(row rowScanner) (*Target, error) {
	var t Target
	var department, title, triggers, vulns sql.NullString

	if err := row.Scan(&t.ID, &t.Name, &department, &title, &triggers, &vulns, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Department = department.String
	t.Title = title.String

	if triggers.Valid && triggers.String != "" {
		if err := json.Unmarshal([]byte(triggers.String), &t.Triggers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal triggers: %w", err)
		}
	}
	if vulns.Valid && vulns.String != "" {
		if err := json.Unmarshal([]byte(vulns.String), &t.Vulnerabilities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal vulnerabilities: %w", err)
		}
	}
	return &t, nil
}
