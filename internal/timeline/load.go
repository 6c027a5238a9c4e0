package timeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fastsm/fastsm/internal/backend"
	"github.com/fastsm/fastsm/internal/bus"
	"github.com/fastsm/fastsm/internal/cache"
	"github.com/fastsm/fastsm/internal/models"
)

// Load is the single entry point for new data. With items nil it fetches
// from the backend: forward (newer) when back is false, older pages when
// back is true. A non-nil items slice is a streamed push and skips the
// fetch entirely. Returns false when the timeline is hidden or another
// fetching load is already in flight; a racing caller loses silently.
func (t *Timeline) Load(ctx context.Context, back, speak bool, items []Item) bool {
	if t.Hidden() {
		// Hidden timelines still count as loaded for startup sequencing.
		t.fireInitialComplete()
		return false
	}
	if len(items) > 0 {
		t.registerUsers(items)
		t.apply(items, applyOpts{speak: speak})
		return true
	}
	if !t.loadMu.TryLock() {
		return false
	}
	defer t.loadMu.Unlock()
	t.doLoad(ctx, back, speak)
	return true
}

type applyOpts struct {
	back      bool
	speak     bool
	fullPages bool
	cursor    string
}

func (t *Timeline) doLoad(ctx context.Context, back, speak bool) {
	fetched, cursor, full, err := t.fetch(ctx, back)
	if err != nil {
		t.loadFailed(err)
		return
	}

	t.registerUsers(fetched)
	t.apply(fetched, applyOpts{back: back, speak: speak, fullPages: full, cursor: cursor})

	if t.shouldSyncPosition() {
		t.SyncPositionFromServer(ctx)
	}
	t.fireInitialComplete()
}

// loadFailed handles a backend error: report it, never block the initial
// gate, and auto-close removable timelines that never managed a first load.
func (t *Timeline) loadFailed(err error) {
	t.mu.Lock()
	wasInitial := t.initial
	t.mu.Unlock()

	if errors.Is(err, backend.ErrUnsupported) {
		// Unsupported kind/platform combination degrades to a hidden no-op.
		t.Hide()
	} else {
		t.deps.Reporter.HandleError(fmt.Sprintf("Error loading %s", t.name), err)
	}
	t.fireInitialComplete()

	if wasInitial && t.removable && !errors.Is(err, backend.ErrUnsupported) {
		if t.onAutoClose != nil {
			t.onAutoClose(t)
		} else {
			t.publish(bus.KindTimelineClosed, t.name)
		}
	}
}

// fetch pulls one or more pages from the backend. Multi-page fetches chain
// the older-page cursor and stop early on a short page (end of data). An
// error after the first page keeps the partial result.
func (t *Timeline) fetch(ctx context.Context, back bool) (items []Item, cursor string, full bool, err error) {
	t.mu.Lock()
	p := backend.Params{
		Data:  t.data,
		User:  t.user,
		Limit: t.settings.PageSize,
	}
	if back {
		p.MaxID = t.olderCursorLocked()
	} else {
		p.SinceID = t.sinceID
	}
	pages := t.settings.MaxPages
	size := t.settings.PageSize
	t.mu.Unlock()

	full = true
	for i := 0; i < pages; i++ {
		page, ferr := t.account.FetchTimeline(ctx, t.kind, p)
		if ferr != nil {
			if i == 0 {
				return nil, "", false, ferr
			}
			t.deps.Logger.Warn("page fetch failed mid-chain",
				zap.String("timeline", t.name), zap.Error(ferr))
			break
		}
		items = append(items, pageItems(page)...)
		cursor = page.NextMaxID
		if page.Len() < size || page.NextMaxID == "" {
			full = false
			break
		}
		p.MaxID = page.NextMaxID
		p.SinceID = ""
	}
	return items, cursor, full, nil
}

// olderCursorLocked returns the pagination bound for a "load older" fetch:
// the cursor from the last older fetch (also restored from the cache on
// hydrate), else the oldest id of the unfiltered list so the bound is
// correct under an active filter. The id fallback only applies where item
// ids are valid bounds; an opaque-cursor platform starts from the top.
func (t *Timeline) olderCursorLocked() string {
	if t.olderCursor != "" {
		return t.olderCursor
	}
	if !t.account.Capabilities().IDPaging {
		return ""
	}
	backing := t.backingLocked()
	if len(backing) == 0 {
		return ""
	}
	if t.settings.Reversed {
		return backing[0].ItemID()
	}
	return backing[len(backing)-1].ItemID()
}

func pageItems(page *backend.Page) []Item {
	if len(page.Notifications) > 0 {
		items := make([]Item, len(page.Notifications))
		for i, n := range page.Notifications {
			items[i] = n
		}
		return items
	}
	items := make([]Item, len(page.Statuses))
	for i, s := range page.Statuses {
		items[i] = s
	}
	return items
}

// apply merges fetched or streamed items into the list: dedup against the
// unfiltered backing set, dual-list filtered insertion, index adjustment
// and cursor updates. It is the convergence point for every data source.
func (t *Timeline) apply(fetched []Item, opts applyOpts) int {
	t.mu.Lock()
	wasInitial := t.initial
	hadItems := len(t.backingLocked()) > 0

	fresh := t.dedupLocked(fetched)

	// Forward items land ahead of the existing list in newest-first mode
	// and behind it in oldest-first mode; backward items the opposite.
	prepend := opts.back == t.settings.Reversed
	batch := fresh
	if t.settings.Reversed {
		batch = make([]Item, len(fresh))
		for i, it := range fresh {
			batch[len(fresh)-1-i] = it
		}
	}

	var visible []Item
	if t.filter == nil {
		visible = batch
		t.items = insert(t.items, batch, prepend)
	} else {
		t.unfiltered = insert(t.unfiltered, batch, prepend)
		for _, it := range batch {
			if t.passesLocked(it) {
				visible = append(visible, it)
			}
		}
		t.items = insert(t.items, visible, prepend)
	}
	shown := len(visible)

	// New items inserted ahead of the cursor shift it by the count that
	// actually became visible, keeping it on the same logical item.
	if prepend && hadItems && shown > 0 {
		t.index += shown
	}

	t.updateCursorsLocked(fetched, opts, wasInitial)

	if shown > 0 {
		t.display = nil
	}
	t.initial = false
	t.mu.Unlock()

	if opts.speak && shown > 0 && !t.silent && !t.Muted() {
		t.announce(visible, shown)
	}
	if shown > 0 {
		t.publish(bus.KindTimelineLoaded, shown)
	}
	return shown
}

// dedupLocked keeps only items whose id is absent from the backing set and
// from the batch itself. Callers hold mu.
func (t *Timeline) dedupLocked(fetched []Item) []Item {
	seen := make(map[string]struct{}, len(t.backingLocked())+len(fetched))
	for _, it := range t.backingLocked() {
		seen[it.ItemID()] = struct{}{}
	}
	var fresh []Item
	for _, it := range fetched {
		id := it.ItemID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, it)
	}
	return fresh
}

func insert(list, batch []Item, prepend bool) []Item {
	if len(batch) == 0 {
		return list
	}
	if prepend {
		out := make([]Item, 0, len(list)+len(batch))
		out = append(out, batch...)
		return append(out, list...)
	}
	return append(list, batch...)
}

// updateCursorsLocked refreshes pagination state from the raw fetched batch
// (before dedup, so cursors advance even when everything was already seen).
func (t *Timeline) updateCursorsLocked(fetched []Item, opts applyOpts, wasInitial bool) {
	if len(fetched) == 0 {
		return
	}
	if !opts.back {
		// Pages arrive newest-first; the batch head is the new since bound.
		prevSince := t.sinceID
		t.sinceID = fetched[0].ItemID()
		if opts.fullPages && !wasInitial && prevSince != "" {
			// Every page came back full: there may be unfetched items
			// between this batch's tail and what we already had.
			t.gaps = append(t.gaps, cache.Gap{
				SinceID: prevSince,
				MaxID:   fetched[len(fetched)-1].ItemID(),
			})
		}
	}
	if (opts.back || wasInitial) && opts.cursor != "" {
		t.olderCursor = opts.cursor
	}
}

// announce plays the kind-specific cue and speaks either the new items (three
// or fewer) or their count.
func (t *Timeline) announce(visible []Item, count int) {
	t.deps.Player.Play(t.cue(visible))
	if count > 3 {
		t.deps.Speaker.Speak(fmt.Sprintf("%d new items in %s.", count, t.name))
		return
	}
	t.mu.Lock()
	tpl := t.settings.Template
	t.mu.Unlock()
	for _, it := range visible {
		t.deps.Speaker.Speak(it.Render(tpl))
	}
}

func (t *Timeline) cue(visible []Item) string {
	switch t.kind {
	case backend.KindUser, backend.KindRemoteUser:
		return "user"
	case backend.KindList:
		return "list"
	case backend.KindSearch:
		return "search"
	case backend.KindMentions:
		// A direct-visibility mention is a private message, not a mention.
		for _, it := range visible {
			if n, ok := it.(*models.Notification); ok &&
				n.Status != nil && n.Status.Visibility == "direct" {
				return "message"
			}
		}
		return "mentions"
	case backend.KindNotifications:
		return "notification"
	default:
		return "new_status"
	}
}

// RemoveByID drops an item (streamed delete) from both lists, pulling the
// cursor back when the removal was ahead of it.
func (t *Timeline) RemoveByID(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := false
	if pos := indexOf(t.items, id); pos >= 0 {
		t.items = append(t.items[:pos], t.items[pos+1:]...)
		if pos < t.index {
			t.index--
		} else if t.index >= len(t.items) && t.index > 0 {
			t.index--
		}
		removed = true
	}
	if t.filter != nil {
		if pos := indexOf(t.unfiltered, id); pos >= 0 {
			t.unfiltered = append(t.unfiltered[:pos], t.unfiltered[pos+1:]...)
			removed = true
		}
	}
	if removed {
		t.display = nil
	}
	return removed
}

// ReplaceItem swaps an edited item in place, keeping order and cursor.
func (t *Timeline) ReplaceItem(it Item) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := it.ItemID()
	replaced := false
	if pos := indexOf(t.items, id); pos >= 0 {
		t.items[pos] = it
		replaced = true
	}
	if t.filter != nil {
		if pos := indexOf(t.unfiltered, id); pos >= 0 {
			t.unfiltered[pos] = it
			replaced = true
		}
	}
	if replaced {
		t.display = nil
	}
	return replaced
}

func indexOf(items []Item, id string) int {
	for i, it := range items {
		if it.ItemID() == id {
			return i
		}
	}
	return -1
}

// LoadAllPrevious pages backward until the backend runs dry or StopLoadingAll
// is called. Cancellation is cooperative, checked once per page.
func (t *Timeline) LoadAllPrevious(ctx context.Context) {
	t.stopAll.Store(false)
	for {
		if t.stopAll.Load() || ctx.Err() != nil {
			return
		}
		before := t.Len()
		if !t.Load(ctx, true, false, nil) {
			return
		}
		if t.Len() == before {
			return
		}
	}
}

// StopLoadingAll cancels an in-flight LoadAllPrevious at the next page
// boundary.
func (t *Timeline) StopLoadingAll() {
	t.stopAll.Store(true)
}

func (t *Timeline) fireInitialComplete() {
	t.mu.Lock()
	fired := t.initialFired
	t.initialFired = true
	t.mu.Unlock()
	if !fired {
		t.publish(bus.KindTimelineInitialComplete, t.name)
	}
}

func (t *Timeline) publish(kind string, payload any) {
	if t.deps.Bus == nil {
		return
	}
	t.deps.Bus.Publish(bus.Event{
		Kind:    kind,
		Account: t.accountName,
		Payload: payload,
	})
}
