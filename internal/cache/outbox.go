package cache

import "time"

// OutboxEntry is one queued post awaiting delivery. ClientID is a
// caller-generated UUID providing idempotency: re-queueing the same id is
// rejected by the unique constraint.
type OutboxEntry struct {
	ID             int64
	ClientID       string
	Body           string
	InReplyToID    string
	Visibility     string
	SpoilerText    string
	Status         string
	ServerStatusID string
	ErrorMessage   string
}

// QueueOutbox adds a post to the send outbox.
func (db *DB) QueueOutbox(e *OutboxEntry) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO outbox (client_id, body, in_reply_to_id, visibility, spoiler_text, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'queued', ?, ?)`,
		e.ClientID, e.Body, e.InReplyToID, e.Visibility, e.SpoilerText, now, now)
	return err
}

// MarkOutboxSending updates an outbox entry to 'sending' status.
func (db *DB) MarkOutboxSending(clientID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sending', updated_at = ? WHERE client_id = ?`, now, clientID)
	return err
}

// MarkOutboxSent updates an outbox entry to 'sent' with the server status id.
func (db *DB) MarkOutboxSent(clientID, serverStatusID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', server_status_id = ?, updated_at = ? WHERE client_id = ?`, serverStatusID, now, clientID)
	return err
}

// MarkOutboxFailed updates an outbox entry to 'failed' with an error message.
func (db *DB) MarkOutboxFailed(clientID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE client_id = ?`, errMsg, now, clientID)
	return err
}

// PendingOutbox returns outbox entries that are still queued, oldest first.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, client_id, body, in_reply_to_id, visibility, spoiler_text, status, server_status_id, error_message
		FROM outbox WHERE status = 'queued' ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.ClientID, &e.Body, &e.InReplyToID, &e.Visibility, &e.SpoilerText, &e.Status, &e.ServerStatusID, &e.ErrorMessage); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
