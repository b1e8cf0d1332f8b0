package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cymbytes.com/cymlure/pkg/contract"
)

// Inbox is the stored fan-out result for a bundle.
type Inbox struct {
	BundleID    string               `json:"bundle_id"`
	Items       []contract.InboxItem `json:"items"`
	Mailbox     *string              `json:"mailbox,omitempty"`
	DeliveredAt *time.Time           `json:"delivered_at,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// SaveInbox stores the inbox for a bundle, replacing any previous one.
func (d *DB) SaveInbox(ctx context.Context, bundleID string, items []contract.InboxItem) (*Inbox, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inbox items: %w", err)
	}

	inbox := &Inbox{BundleID: bundleID, Items: items, CreatedAt: time.Now().UTC()}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO inboxes (bundle_id, items, created_at) VALUES (?, ?, ?)
		ON CONFLICT(bundle_id) DO UPDATE SET
			items = excluded.items,
			mailbox = NULL,
			delivered_at = NULL,
			created_at = excluded.created_at
	`, bundleID, string(data), inbox.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save inbox: %w", err)
	}

	d.logger.Debug().Str("bundle_id", bundleID).Int("items", len(items)).Msg("Inbox saved")
	return inbox, nil
}

// GetInbox retrieves the inbox for a bundle. It returns nil, nil when not
// found.
func (d *DB) GetInbox(ctx context.Context, bundleID string) (*Inbox, error) {
	var inbox Inbox
	var items string

	err := d.db.QueryRowContext(ctx, `
		SELECT bundle_id, items, mailbox, delivered_at, created_at
		FROM inboxes WHERE bundle_id = ?
	`, bundleID).Scan(&inbox.BundleID, &items, &inbox.Mailbox, &inbox.DeliveredAt, &inbox.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inbox: %w", err)
	}

	if err := json.Unmarshal([]byte(items), &inbox.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inbox items: %w", err)
	}
	return &inbox, nil
}

// MarkInboxDelivered records the mailbox the inbox was appended to.
func (d *DB) MarkInboxDelivered(ctx context.Context, bundleID, mailbox string, at time.Time) error {
	result, err := d.db.ExecContext(ctx, `
		UPDATE inboxes SET mailbox = ?, delivered_at = ? WHERE bundle_id = ?
	`, mailbox, at, bundleID)
	if err != nil {
		return fmt.Errorf("failed to mark inbox delivered: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("inbox %s: %w", bundleID, ErrNotFound)
	}
	return nil
}
