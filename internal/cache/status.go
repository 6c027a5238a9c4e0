package cache

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fastsm/fastsm/internal/models"
)

// maxStatusDepth bounds reblog/quote recursion when persisting and loading.
// A reblog-of-a-reblog is flattened beyond this depth.
const maxStatusDepth = 2

// UpsertStatus persists a status and everything it references. Users are
// written before the statuses that point at them; foreign-key ordering is
// procedural here, the schema does not enforce it.
func (db *DB) UpsertStatus(s *models.Status) error {
	return db.upsertStatus(s, 0)
}

func (db *DB) upsertStatus(s *models.Status, depth int) error {
	if s == nil || s.ID == "" || depth > maxStatusDepth {
		return nil
	}
	if err := db.UpsertUser(s.Account); err != nil {
		return err
	}
	if s.Reblog != nil {
		if err := db.upsertStatus(s.Reblog, depth+1); err != nil {
			return err
		}
	}
	if s.Quote != nil {
		if err := db.upsertStatus(s.Quote, depth+1); err != nil {
			return err
		}
	}

	accountID := ""
	if s.Account != nil {
		accountID = s.Account.ID
	}
	reblogID := ""
	if s.Reblog != nil {
		reblogID = s.Reblog.ID
	}
	quoteID := ""
	if s.Quote != nil {
		quoteID = s.Quote.ID
	}

	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO statuses (id, account_id, content, text, created_at, url, visibility, spoiler_text,
			favourites_count, boosts_count, replies_count, in_reply_to_id, reblog_id, quote_id,
			media_json, mentions_json, card_json, poll_json,
			favourited, boosted, bookmarked, pinned,
			notification_id, original_status_id, instance_url, resolved_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			text = excluded.text,
			favourites_count = excluded.favourites_count,
			boosts_count = excluded.boosts_count,
			replies_count = excluded.replies_count,
			media_json = excluded.media_json,
			mentions_json = excluded.mentions_json,
			card_json = excluded.card_json,
			poll_json = excluded.poll_json,
			favourited = excluded.favourited,
			boosted = excluded.boosted,
			bookmarked = excluded.bookmarked,
			pinned = excluded.pinned,
			notification_id = excluded.notification_id,
			original_status_id = excluded.original_status_id,
			resolved_id = excluded.resolved_id,
			updated_at = excluded.updated_at`,
		s.ID, accountID, s.Content, s.Text, s.CreatedAt.UnixMilli(), s.URL, s.Visibility, s.SpoilerText,
		s.FavouritesCount, s.BoostsCount, s.RepliesCount, s.InReplyToID, reblogID, quoteID,
		marshalJSON(s.MediaAttachments), marshalJSON(s.Mentions), marshalJSON(s.Card), marshalJSON(s.Poll),
		s.Favourited, s.Boosted, s.Bookmarked, s.Pinned,
		s.NotificationID, s.OriginalStatusID, s.InstanceURL, s.ResolvedID, now)
	return err
}

// GetStatus returns a status by id with its account, reblog and quote
// rehydrated, or nil if absent.
func (db *DB) GetStatus(id string) (*models.Status, error) {
	return db.getStatus(id, 0)
}

func (db *DB) getStatus(id string, depth int) (*models.Status, error) {
	if id == "" || depth > maxStatusDepth {
		return nil, nil
	}
	row := db.QueryRow(`
		SELECT id, account_id, content, text, created_at, url, visibility, spoiler_text,
			favourites_count, boosts_count, replies_count, in_reply_to_id, reblog_id, quote_id,
			media_json, mentions_json, card_json, poll_json,
			favourited, boosted, bookmarked, pinned,
			notification_id, original_status_id, instance_url, resolved_id
		FROM statuses WHERE id = ?`, id)

	var s models.Status
	var accountID, reblogID, quoteID string
	var createdAt int64
	var mediaJSON, mentionsJSON, cardJSON, pollJSON string
	err := row.Scan(&s.ID, &accountID, &s.Content, &s.Text, &createdAt, &s.URL, &s.Visibility, &s.SpoilerText,
		&s.FavouritesCount, &s.BoostsCount, &s.RepliesCount, &s.InReplyToID, &reblogID, &quoteID,
		&mediaJSON, &mentionsJSON, &cardJSON, &pollJSON,
		&s.Favourited, &s.Boosted, &s.Bookmarked, &s.Pinned,
		&s.NotificationID, &s.OriginalStatusID, &s.InstanceURL, &s.ResolvedID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.CreatedAt = time.UnixMilli(createdAt)

	unmarshalJSON(mediaJSON, &s.MediaAttachments)
	unmarshalJSON(mentionsJSON, &s.Mentions)
	unmarshalJSON(cardJSON, &s.Card)
	unmarshalJSON(pollJSON, &s.Poll)

	if accountID != "" {
		if s.Account, err = db.GetUser(accountID); err != nil {
			return nil, err
		}
	}
	if reblogID != "" {
		if s.Reblog, err = db.getStatus(reblogID, depth+1); err != nil {
			return nil, err
		}
	}
	if quoteID != "" {
		if s.Quote, err = db.getStatus(quoteID, depth+1); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func marshalJSON(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	str := string(data)
	if str == "null" {
		return ""
	}
	return str
}

func unmarshalJSON(data string, v any) {
	if data == "" {
		return
	}
	_ = json.Unmarshal([]byte(data), v)
}
