package timeline

import (
	"github.com/fastsm/fastsm/internal/cache"
	"github.com/fastsm/fastsm/internal/models"
)

// Save snapshots the timeline into the cache: the unfiltered backing set
// (capped at the configured limit) plus resumption metadata. Caching is
// advisory; a nil cache or an empty list is a no-op.
func (t *Timeline) Save() {
	if t.deps.Cache == nil {
		return
	}
	t.mu.Lock()
	backing := append([]Item(nil), t.backingLocked()...)
	if t.settings.Reversed {
		// Snapshots are always stored newest-first.
		reverseItems(backing)
	}
	md := cache.Metadata{
		LastIndex:   t.index,
		SinceID:     t.sinceID,
		OlderCursor: t.olderCursor,
		Gaps:        append([]cache.Gap(nil), t.gaps...),
	}
	if t.index >= 0 && t.index < len(t.items) {
		md.LastPositionID = t.items[t.index].ItemID()
	}
	if n := len(backing); n > 0 {
		md.OldestID = backing[n-1].ItemID()
	}
	limit := t.settings.CacheLimit
	t.mu.Unlock()

	key := t.cacheKey()
	if t.kind.Notifications() {
		md.ItemType = "notification"
		ns := make([]*models.Notification, 0, len(backing))
		for _, it := range backing {
			if n, ok := it.(*models.Notification); ok {
				ns = append(ns, n)
			}
		}
		t.deps.Cache.SaveNotifications(key, ns, md, limit)
		return
	}
	md.ItemType = "status"
	ss := make([]*models.Status, 0, len(backing))
	for _, it := range backing {
		if s, ok := it.(*models.Status); ok {
			ss = append(ss, s)
		}
	}
	t.deps.Cache.SaveStatuses(key, ss, md, limit)
}

// Hydrate replays the last cached snapshot so the UI populates before the
// first network load. The timeline still counts as initial until that load
// completes. Cached items flow through the same filtered-insert path as
// fetched ones.
func (t *Timeline) Hydrate() {
	if t.deps.Cache == nil {
		return
	}
	key := t.cacheKey()
	var items []Item
	var md *cache.Metadata
	if t.kind.Notifications() {
		ns, m := t.deps.Cache.LoadNotifications(key)
		for _, n := range ns {
			items = append(items, n)
		}
		md = m
	} else {
		ss, m := t.deps.Cache.LoadStatuses(key)
		for _, s := range ss {
			items = append(items, s)
		}
		md = m
	}
	if len(items) == 0 {
		return
	}
	t.registerUsers(items)

	t.mu.Lock()
	// Snapshots are stored in display order for the non-reversed view.
	batch := items
	if t.settings.Reversed {
		batch = make([]Item, len(items))
		for i, it := range items {
			batch[len(items)-1-i] = it
		}
	}
	if t.filter == nil {
		t.items = batch
	} else {
		t.unfiltered = batch
		visible := make([]Item, 0, len(batch))
		for _, it := range batch {
			if t.passesLocked(it) {
				visible = append(visible, it)
			}
		}
		t.items = visible
	}
	if md != nil {
		t.sinceID = md.SinceID
		t.olderCursor = md.OlderCursor
		t.gaps = md.Gaps
		t.index = md.LastIndex
		if md.LastPositionID != "" {
			if pos := indexOf(t.items, md.LastPositionID); pos >= 0 {
				t.index = pos
			}
		}
	}
	if t.index >= len(t.items) {
		t.index = len(t.items) - 1
	}
	if t.index < 0 {
		t.index = 0
	}
	t.display = nil
	t.mu.Unlock()
}
