package cache

import "go.uber.org/zap"

// Cleanup removes timeline_items and timeline_metadata rows for timeline
// keys no longer in the account's open set, then sweeps statuses and
// notifications not referenced by any remaining timeline_items row. Users
// are retained; they back the in-memory user cache.
func (c *TimelineCache) Cleanup(active []Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.inTx(func() error {
		keys, err := c.allKeys()
		if err != nil {
			return err
		}
		activeSet := make(map[Key]bool, len(active))
		for _, k := range active {
			activeSet[k] = true
		}
		for _, k := range keys {
			if activeSet[k] {
				continue
			}
			if _, err := c.db.Exec(`
				DELETE FROM timeline_items
				WHERE timeline_kind = ? AND timeline_name = ? AND timeline_data = ?`,
				k.Kind, k.Name, k.Data); err != nil {
				return err
			}
			if _, err := c.db.Exec(`
				DELETE FROM timeline_metadata
				WHERE timeline_kind = ? AND timeline_name = ? AND timeline_data = ?`,
				k.Kind, k.Name, k.Data); err != nil {
				return err
			}
		}
		return c.sweepOrphanedItems()
	})
	if err != nil {
		c.logger.Warn("cache: cleanup failed", zap.Error(err))
	}
}

func (c *TimelineCache) allKeys() ([]Key, error) {
	rows, err := c.db.Query(`
		SELECT DISTINCT timeline_kind, timeline_name, timeline_data FROM timeline_metadata
		UNION
		SELECT DISTINCT timeline_kind, timeline_name, timeline_data FROM timeline_items`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.Kind, &k.Name, &k.Data); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// sweepOrphanedItems deletes statuses and notifications no timeline_items
// row references. Statuses referenced indirectly, as another status's reblog
// or quote or as a notification's subject, survive the sweep.
func (c *TimelineCache) sweepOrphanedItems() error {
	if _, err := c.db.Exec(`
		DELETE FROM notifications
		WHERE id NOT IN (SELECT item_id FROM timeline_items)`); err != nil {
		return err
	}
	_, err := c.db.Exec(`
		DELETE FROM statuses
		WHERE id NOT IN (SELECT item_id FROM timeline_items)
		AND id NOT IN (SELECT reblog_id FROM statuses WHERE reblog_id != '')
		AND id NOT IN (SELECT quote_id FROM statuses WHERE quote_id != '')
		AND id NOT IN (SELECT status_id FROM notifications WHERE status_id != '')`)
	return err
}
