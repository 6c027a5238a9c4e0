package cache

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastsm/fastsm/internal/models"
)

// Key identifies one timeline's rows in the cache.
type Key struct {
	Kind string
	Name string
	Data string
}

// Gap is a region of a timeline known to be un-fetched, so a later
// "load more" can target it.
type Gap struct {
	SinceID string `json:"since_id"`
	MaxID   string `json:"max_id"`
}

// Metadata is the persisted resumption state for one timeline.
type Metadata struct {
	ItemType       string // "status" or "notification"
	LastIndex      int
	LastPositionID string
	SinceID        string
	OldestID       string
	OlderCursor    string // opaque older-page bound from the backend
	Gaps           []Gap
}

// TimelineCache is the SQLite-backed persistent store for one account. It
// exists so the UI can populate near-instantly on cold start; it is an
// optimization, never a source of truth. Every method degrades to a no-op or
// empty result on database errors, logging the failure. A corrupt cache must
// not block the application.
type TimelineCache struct {
	db     *DB
	mu     sync.Mutex
	logger *zap.Logger
}

// New opens (creating and migrating as needed) the cache database at path.
func New(path string, logger *zap.Logger) (*TimelineCache, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &TimelineCache{db: db, logger: logger}, nil
}

// Close closes the underlying database.
// DB exposes the underlying connection for collaborators that share the
// account database, like the post outbox.
func (c *TimelineCache) DB() *DB {
	return c.db
}

func (c *TimelineCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

// SaveStatuses snapshots a status timeline: the first limit items are
// persisted and the timeline_items row-set for key is replaced wholesale.
// limit <= 0 means no cap. Called with no items it is a no-op: an empty
// in-memory list (e.g. a failed initial load) must not clobber a previous
// good snapshot.
func (c *TimelineCache) SaveStatuses(key Key, items []*models.Status, md Metadata, limit int) {
	if len(items) == 0 {
		return
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	md.ItemType = "status"
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(items))
	err := c.inTx(func() error {
		for _, s := range items {
			if err := c.db.UpsertStatus(s); err != nil {
				return err
			}
			ids = append(ids, s.ID)
		}
		return c.replaceItems(key, ids, md)
	})
	if err != nil {
		c.logger.Warn("cache: save statuses failed", zap.Error(err), zap.String("timeline", key.Name))
	}
}

// SaveNotifications snapshots a notification timeline. Same semantics as
// SaveStatuses.
func (c *TimelineCache) SaveNotifications(key Key, items []*models.Notification, md Metadata, limit int) {
	if len(items) == 0 {
		return
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	md.ItemType = "notification"
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(items))
	err := c.inTx(func() error {
		for _, n := range items {
			if err := c.db.UpsertNotification(n); err != nil {
				return err
			}
			ids = append(ids, n.ID)
		}
		return c.replaceItems(key, ids, md)
	})
	if err != nil {
		c.logger.Warn("cache: save notifications failed", zap.Error(err), zap.String("timeline", key.Name))
	}
}

// inTx runs fn between BEGIN IMMEDIATE and COMMIT, rolling back on error.
// The DAO methods run against the shared connection; the cache mutex already
// serializes access, the transaction is for atomicity of the snapshot.
func (c *TimelineCache) inTx(fn func() error) error {
	if _, err := c.db.Exec("BEGIN IMMEDIATE"); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_, _ = c.db.Exec("ROLLBACK")
		return err
	}
	_, err := c.db.Exec("COMMIT")
	return err
}

func (c *TimelineCache) replaceItems(key Key, ids []string, md Metadata) error {
	if _, err := c.db.Exec(`
		DELETE FROM timeline_items
		WHERE timeline_kind = ? AND timeline_name = ? AND timeline_data = ?`,
		key.Kind, key.Name, key.Data); err != nil {
		return err
	}
	for pos, id := range ids {
		if _, err := c.db.Exec(`
			INSERT INTO timeline_items (timeline_kind, timeline_name, timeline_data, item_id, position)
			VALUES (?, ?, ?, ?, ?)`,
			key.Kind, key.Name, key.Data, id, pos); err != nil {
			return err
		}
	}

	gapsJSON := ""
	if len(md.Gaps) > 0 {
		data, err := json.Marshal(md.Gaps)
		if err == nil {
			gapsJSON = string(data)
		}
	}
	_, err := c.db.Exec(`
		INSERT INTO timeline_metadata (timeline_kind, timeline_name, timeline_data,
			item_type, last_index, last_position_id, since_id, oldest_id, older_cursor, gaps_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(timeline_kind, timeline_name, timeline_data) DO UPDATE SET
			item_type = excluded.item_type,
			last_index = excluded.last_index,
			last_position_id = excluded.last_position_id,
			since_id = excluded.since_id,
			oldest_id = excluded.oldest_id,
			older_cursor = excluded.older_cursor,
			gaps_json = excluded.gaps_json,
			updated_at = excluded.updated_at`,
		key.Kind, key.Name, key.Data,
		md.ItemType, md.LastIndex, md.LastPositionID, md.SinceID, md.OldestID, md.OlderCursor, gapsJSON,
		time.Now().UnixMilli())
	return err
}

// LoadStatuses restores a status timeline snapshot in position order,
// together with its metadata. Missing or unreadable data yields an empty
// result, never an error.
func (c *TimelineCache) LoadStatuses(key Key) ([]*models.Status, *Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, md := c.loadItems(key)
	var items []*models.Status
	for _, id := range ids {
		s, err := c.db.GetStatus(id)
		if err != nil {
			c.logger.Warn("cache: load status failed", zap.Error(err), zap.String("id", id))
			continue
		}
		if s != nil {
			items = append(items, s)
		}
	}
	return items, md
}

// LoadNotifications restores a notification timeline snapshot.
func (c *TimelineCache) LoadNotifications(key Key) ([]*models.Notification, *Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, md := c.loadItems(key)
	var items []*models.Notification
	for _, id := range ids {
		n, err := c.db.GetNotification(id)
		if err != nil {
			c.logger.Warn("cache: load notification failed", zap.Error(err), zap.String("id", id))
			continue
		}
		if n != nil {
			items = append(items, n)
		}
	}
	return items, md
}

func (c *TimelineCache) loadItems(key Key) ([]string, *Metadata) {
	rows, err := c.db.Query(`
		SELECT item_id FROM timeline_items
		WHERE timeline_kind = ? AND timeline_name = ? AND timeline_data = ?
		ORDER BY position`,
		key.Kind, key.Name, key.Data)
	if err != nil {
		c.logger.Warn("cache: load items failed", zap.Error(err), zap.String("timeline", key.Name))
		return nil, &Metadata{}
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			c.logger.Warn("cache: scan item failed", zap.Error(err))
			return nil, &Metadata{}
		}
		ids = append(ids, id)
	}

	md := &Metadata{}
	var gapsJSON string
	err = c.db.QueryRow(`
		SELECT item_type, last_index, last_position_id, since_id, oldest_id, older_cursor, gaps_json
		FROM timeline_metadata
		WHERE timeline_kind = ? AND timeline_name = ? AND timeline_data = ?`,
		key.Kind, key.Name, key.Data).
		Scan(&md.ItemType, &md.LastIndex, &md.LastPositionID, &md.SinceID, &md.OldestID, &md.OlderCursor, &gapsJSON)
	if err == nil && gapsJSON != "" {
		_ = json.Unmarshal([]byte(gapsJSON), &md.Gaps)
	}
	return ids, md
}

// Users returns every cached user, for hydrating the in-memory user cache.
func (c *TimelineCache) Users() []*models.User {
	c.mu.Lock()
	defer c.mu.Unlock()

	users, err := c.db.AllUsers()
	if err != nil {
		c.logger.Warn("cache: load users failed", zap.Error(err))
		return nil
	}
	return users
}
