// Package timeline owns the state of one logical feed: its ordered in-memory
// item list, pagination cursors, client-side filter overlay, read position
// and cache persistence. All platform specifics stay behind backend.Account;
// polled pages, streamed pushes and cache hydration all converge on the same
// dedup/filter/insert path.
package timeline

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fastsm/fastsm/internal/backend"
	"github.com/fastsm/fastsm/internal/bus"
	"github.com/fastsm/fastsm/internal/cache"
	"github.com/fastsm/fastsm/internal/models"
	"github.com/fastsm/fastsm/internal/speech"
)

// Item is one timeline entry: a status or a notification.
type Item interface {
	ItemID() string
	Render(template string) string
}

// Settings are the user preferences a timeline consults on every load.
type Settings struct {
	// Oldest-first ordering when true; newest-first otherwise.
	Reversed bool

	PageSize int
	MaxPages int

	// Cap on items persisted per cache snapshot.
	CacheLimit int

	// Sync the home timeline cursor with the server-side read marker.
	SyncPosition bool

	// Display template; see models.Status.Render.
	Template string
}

// Filter is a client-side overlay on a timeline's item list. The unfiltered
// backing set is always retained so clearing is lossless.
type Filter struct {
	Text   string
	Author string
	Invert bool
}

// Options identify and configure one timeline at construction.
type Options struct {
	Account     backend.Account
	AccountName string

	Kind backend.Kind
	Name string
	Data string // list id, query, feed URI, instance URL...
	User string // user id anchor for user/quotes/conversation kinds

	// Removable timelines are closed on initial-load failure and can be
	// closed by the user; home/mentions/notifications are not.
	Removable bool

	// Silent suppresses announce on every load (used for background
	// timelines opened for lookup purposes).
	Silent bool

	Mute bool
	Read bool
	Hide bool

	Filter *Filter

	Settings Settings
}

// Deps are the shared collaborators a timeline announces and persists
// through. Cache may be nil (caching is advisory).
type Deps struct {
	Bus      *bus.Bus
	Cache    *cache.TimelineCache
	Users    *cache.UserCache
	Speaker  speech.Speaker
	Player   speech.Player
	Reporter speech.Reporter
	Logger   *zap.Logger
}

// Timeline is the orchestrator for one feed.
type Timeline struct {
	account     backend.Account
	accountName string
	kind        backend.Kind
	name        string
	data        string
	user        string
	removable   bool
	silent      bool

	deps Deps

	// Set by the manager: deregisters this timeline when a removable
	// one fails its first load.
	onAutoClose func(*Timeline) bool

	// Single-flight guard for real (fetching) loads. Streamed pushes
	// bypass it and serialize on mu instead.
	loadMu sync.Mutex

	mu           sync.Mutex
	settings     Settings
	items        []Item
	unfiltered   []Item // nil when no filter is active
	filter       *Filter
	index        int
	sinceID      string
	olderCursor  string // opaque cursor for the next older page
	gaps         []cache.Gap
	positionMoved bool
	lastSyncedID string
	initial      bool
	initialFired bool
	mute         bool
	read         bool
	hide         bool
	display      []string // memoized rendered items; nil means dirty

	stopAll atomic.Bool
}

// New constructs a timeline. Kinds the platform cannot serve come up hidden
// rather than erroring, so account startup never blocks on an unsupported
// timeline.
func New(opts Options, deps Deps) *Timeline {
	t := &Timeline{
		account:     opts.Account,
		accountName: opts.AccountName,
		kind:        opts.Kind,
		name:        opts.Name,
		data:        opts.Data,
		user:        opts.User,
		removable:   opts.Removable,
		silent:      opts.Silent,
		deps:        deps,
		settings:    opts.Settings,
		filter:      opts.Filter,
		mute:        opts.Mute,
		read:        opts.Read,
		hide:        opts.Hide,
		initial:     true,
	}
	if t.settings.PageSize <= 0 {
		t.settings.PageSize = 40
	}
	if t.settings.MaxPages <= 0 {
		t.settings.MaxPages = 1
	}
	caps := opts.Account.Capabilities()
	switch opts.Kind {
	case backend.KindList:
		if !caps.Lists {
			t.hide = true
		}
	case backend.KindFeed:
		if !caps.Feeds {
			t.hide = true
		}
	}
	if t.filter != nil {
		t.unfiltered = []Item{}
	}
	return t
}

// Name returns the display name of the timeline.
func (t *Timeline) Name() string { return t.name }

// Kind returns the feed kind.
func (t *Timeline) Kind() backend.Kind { return t.kind }

// Data returns the kind-specific parameter (list id, query, ...).
func (t *Timeline) Data() string { return t.data }

// AccountName returns the owning account's configured name.
func (t *Timeline) AccountName() string { return t.accountName }

// Removable reports whether the user may close this timeline.
func (t *Timeline) Removable() bool { return t.removable }

// Hidden reports whether the timeline is a no-op for loads.
func (t *Timeline) Hidden() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hide
}

// Hide makes the timeline skip loads. Initial-load sequencing still treats
// it as complete.
func (t *Timeline) Hide() {
	t.mu.Lock()
	t.hide = true
	t.mu.Unlock()
}

// Unhide re-enables loads.
func (t *Timeline) Unhide() {
	t.mu.Lock()
	t.hide = false
	t.mu.Unlock()
}

// Muted reports whether load announcements are suppressed.
func (t *Timeline) Muted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mute
}

// ToggleMute flips announcement muting and returns the new value.
func (t *Timeline) ToggleMute() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mute = !t.mute
	return t.mute
}

// ToggleRead flips the read flag and returns the new value.
func (t *Timeline) ToggleRead() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.read = !t.read
	return t.read
}

// Read reports the read flag.
func (t *Timeline) Read() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.read
}

// Len returns the number of visible items.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Items returns a snapshot of the visible item list.
func (t *Timeline) Items() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Item, len(t.items))
	copy(out, t.items)
	return out
}

// Index returns the cursor position.
func (t *Timeline) Index() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index
}

// SetIndex moves the cursor and marks the position as user-moved, clamping
// to the list bounds.
func (t *Timeline) SetIndex(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 {
		i = 0
	}
	if n := len(t.items); i >= n && n > 0 {
		i = n - 1
	}
	t.index = i
	t.positionMoved = true
}

// MarkPositionMoved records a manual navigation without changing the index.
func (t *Timeline) MarkPositionMoved() {
	t.mu.Lock()
	t.positionMoved = true
	t.mu.Unlock()
}

// Current returns the item under the cursor, or nil.
func (t *Timeline) Current() Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index < 0 || t.index >= len(t.items) {
		return nil
	}
	return t.items[t.index]
}

// Get returns the rendered display strings for the visible items. Renders
// are memoized until the list or the template changes.
func (t *Timeline) Get() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.display == nil {
		t.display = make([]string, len(t.items))
		for i, it := range t.items {
			t.display[i] = it.Render(t.settings.Template)
		}
	}
	return t.display
}

// SetTemplate changes the display template and invalidates memoized renders.
func (t *Timeline) SetTemplate(tpl string) {
	t.mu.Lock()
	t.settings.Template = tpl
	t.display = nil
	t.mu.Unlock()
}

// Reverse flips the ordering of the timeline in place. The cursor keeps
// pointing at the same logical item.
func (t *Timeline) Reverse() {
	t.mu.Lock()
	defer t.mu.Unlock()
	reverseItems(t.items)
	reverseItems(t.unfiltered)
	if n := len(t.items); n > 0 {
		t.index = n - 1 - t.index
	}
	t.settings.Reversed = !t.settings.Reversed
	t.display = nil
}

func reverseItems(items []Item) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

// backingLocked is the dedup reference set: the full unfiltered list when a
// filter is active, the visible list otherwise. Callers hold mu.
func (t *Timeline) backingLocked() []Item {
	if t.filter != nil {
		return t.unfiltered
	}
	return t.items
}

// cacheKey identifies this timeline's rows in the cache.
func (t *Timeline) cacheKey() cache.Key {
	return cache.Key{Kind: string(t.kind), Name: t.name, Data: t.data}
}

// registerUsers feeds embedded users into the account's user cache.
// Conversation items carry partial accounts and are skipped.
func (t *Timeline) registerUsers(items []Item) {
	if t.deps.Users == nil || t.kind == backend.KindConversations {
		return
	}
	for _, it := range items {
		switch v := it.(type) {
		case *models.Status:
			t.deps.Users.AddUsersFromStatus(v)
		case *models.Notification:
			t.deps.Users.AddUsersFromNotification(v)
		}
	}
}
