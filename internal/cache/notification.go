package cache

import (
	"database/sql"
	"time"

	"github.com/fastsm/fastsm/internal/models"
)

// UpsertNotification persists a notification, its account and its embedded
// status (users first, see UpsertStatus).
func (db *DB) UpsertNotification(n *models.Notification) error {
	if n == nil || n.ID == "" {
		return nil
	}
	if err := db.UpsertUser(n.Account); err != nil {
		return err
	}
	if err := db.UpsertStatus(n.Status); err != nil {
		return err
	}

	accountID := ""
	if n.Account != nil {
		accountID = n.Account.ID
	}
	statusID := ""
	if n.Status != nil {
		statusID = n.Status.ID
	}

	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO notifications (id, type, account_id, created_at, status_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			status_id = excluded.status_id,
			updated_at = excluded.updated_at`,
		n.ID, n.Type, accountID, n.CreatedAt.UnixMilli(), statusID, now)
	return err
}

// GetNotification returns a notification by id with its account and status
// rehydrated, or nil if absent.
func (db *DB) GetNotification(id string) (*models.Notification, error) {
	row := db.QueryRow(`
		SELECT id, type, account_id, created_at, status_id
		FROM notifications WHERE id = ?`, id)

	var n models.Notification
	var accountID, statusID string
	var createdAt int64
	err := row.Scan(&n.ID, &n.Type, &accountID, &createdAt, &statusID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	n.CreatedAt = time.UnixMilli(createdAt)

	if accountID != "" {
		if n.Account, err = db.GetUser(accountID); err != nil {
			return nil, err
		}
	}
	if statusID != "" {
		if n.Status, err = db.GetStatus(statusID); err != nil {
			return nil, err
		}
	}
	return &n, nil
}
