package timeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fastsm/fastsm/internal/backend"
	"github.com/fastsm/fastsm/internal/bus"
	"github.com/fastsm/fastsm/internal/cache"
	"github.com/fastsm/fastsm/internal/config"
	"github.com/fastsm/fastsm/internal/models"
)

// Manager owns one account's set of open timelines: it opens them from the
// saved preferences, persists open/close changes back, routes streamed
// events into the right timeline and snapshots everything on shutdown.
type Manager struct {
	account     backend.Account
	accountName string
	prefsPath   string
	settings    Settings
	deps        Deps

	mu        sync.Mutex
	timelines []*Timeline
	prefs     *config.Prefs

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager builds a manager for one account. Prefs decide which timelines
// come up; a missing prefs file means the default set (home, mentions,
// notifications).
func NewManager(account backend.Account, accountName, prefsPath string, settings Settings, deps Deps) (*Manager, error) {
	prefs, err := config.LoadPrefs(prefsPath)
	if err != nil {
		return nil, fmt.Errorf("load prefs: %w", err)
	}
	if len(prefs.Timelines) == 0 {
		prefs.Timelines = defaultTimelines()
	}
	m := &Manager{
		account:     account,
		accountName: accountName,
		prefsPath:   prefsPath,
		settings:    settings,
		deps:        deps,
		prefs:       prefs,
	}
	for _, tp := range prefs.Timelines {
		m.timelines = append(m.timelines, m.build(tp))
	}
	return m, nil
}

func defaultTimelines() []config.TimelinePref {
	return []config.TimelinePref{
		{Kind: string(backend.KindHome), Name: "Home"},
		{Kind: string(backend.KindMentions), Name: "Mentions"},
		{Kind: string(backend.KindNotifications), Name: "Notifications"},
	}
}

// removableKinds are the timelines a user may open and close at will; the
// default three are permanent.
func removable(kind backend.Kind) bool {
	switch kind {
	case backend.KindHome, backend.KindMentions, backend.KindNotifications:
		return false
	}
	return true
}

func (m *Manager) build(tp config.TimelinePref) *Timeline {
	opts := Options{
		Account:     m.account,
		AccountName: m.accountName,
		Kind:        backend.Kind(tp.Kind),
		Name:        tp.Name,
		Data:        tp.Data,
		Removable:   removable(backend.Kind(tp.Kind)),
		Mute:        tp.Mute,
		Read:        tp.Read,
		Hide:        tp.Hide,
		Settings:    m.settings,
	}
	switch opts.Kind {
	case backend.KindUser, backend.KindQuotes, backend.KindConversation:
		opts.User = tp.Data
	}
	if fp, ok := m.prefs.Filters[filterKey(tp)]; ok {
		opts.Filter = &Filter{Text: fp.Text, Author: fp.Author, Invert: fp.Invert}
	}
	tl := New(opts, m.deps)
	tl.onAutoClose = m.CloseTimeline
	return tl
}

func filterKey(tp config.TimelinePref) string {
	return tp.Kind + ":" + tp.Data
}

// Timelines returns a snapshot of the open timeline list.
func (m *Manager) Timelines() []*Timeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Timeline, len(m.timelines))
	copy(out, m.timelines)
	return out
}

// Account returns the backing platform account.
func (m *Manager) Account() backend.Account {
	return m.account
}

// AccountName returns the configured account name.
func (m *Manager) AccountName() string {
	return m.accountName
}

// Find returns the open timeline matching kind and data, or nil.
func (m *Manager) Find(kind backend.Kind, data string) *Timeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tl := range m.timelines {
		if tl.kind == kind && tl.data == data {
			return tl
		}
	}
	return nil
}

// OpenTimeline opens a new timeline, records it in prefs and loads it.
// Opening an already-open (kind, data) pair returns the existing timeline.
func (m *Manager) OpenTimeline(ctx context.Context, tp config.TimelinePref) *Timeline {
	if tl := m.Find(backend.Kind(tp.Kind), tp.Data); tl != nil {
		return tl
	}
	tl := m.build(tp)
	m.mu.Lock()
	m.timelines = append(m.timelines, tl)
	m.prefs.Timelines = append(m.prefs.Timelines, tp)
	m.mu.Unlock()
	m.savePrefs()

	tl.Hydrate()
	tl.Load(ctx, false, false, nil)
	return tl
}

// CloseTimeline removes a removable timeline from the open set and the
// prefs, then drops its cache rows. Permanent timelines are left alone.
func (m *Manager) CloseTimeline(tl *Timeline) bool {
	if !tl.Removable() {
		return false
	}
	m.mu.Lock()
	found := false
	for i, cur := range m.timelines {
		if cur == tl {
			m.timelines = append(m.timelines[:i], m.timelines[i+1:]...)
			found = true
			break
		}
	}
	if found {
		for i, tp := range m.prefs.Timelines {
			if backend.Kind(tp.Kind) == tl.kind && tp.Data == tl.data {
				m.prefs.Timelines = append(m.prefs.Timelines[:i], m.prefs.Timelines[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()
	if !found {
		return false
	}
	m.savePrefs()
	if m.deps.Cache != nil {
		m.deps.Cache.Cleanup(m.activeKeys())
	}
	if m.deps.Bus != nil {
		m.deps.Bus.Publish(bus.Event{
			Kind:    bus.KindTimelineClosed,
			Account: m.accountName,
			Payload: tl.Name(),
		})
	}
	return true
}

// SaveFilter persists a timeline's filter settings in prefs so they survive
// restarts; a nil filter removes the entry.
func (m *Manager) SaveFilter(tl *Timeline, f *Filter) {
	if f == nil {
		tl.ClearFilter()
	} else {
		tl.SetFilter(*f)
	}
	m.mu.Lock()
	key := string(tl.kind) + ":" + tl.data
	if f == nil {
		delete(m.prefs.Filters, key)
	} else {
		if m.prefs.Filters == nil {
			m.prefs.Filters = make(map[string]config.FilterPref)
		}
		m.prefs.Filters[key] = config.FilterPref{Text: f.Text, Author: f.Author, Invert: f.Invert}
	}
	m.mu.Unlock()
	m.savePrefs()
}

func (m *Manager) activeKeys() []cache.Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]cache.Key, 0, len(m.timelines))
	for _, tl := range m.timelines {
		keys = append(keys, tl.cacheKey())
	}
	return keys
}

// HydrateAll replays cached snapshots for every open timeline, newest user
// records first so lookups work during the replay.
func (m *Manager) HydrateAll() {
	if m.deps.Cache != nil && m.deps.Users != nil {
		if users := m.deps.Cache.Users(); len(users) > 0 {
			m.deps.Users.Hydrate(users)
		}
	}
	for _, tl := range m.Timelines() {
		tl.Hydrate()
	}
}

// LoadAll runs the initial load of every open timeline sequentially. Errors
// are reported per-timeline and never abort the sweep.
func (m *Manager) LoadAll(ctx context.Context, speak bool) {
	for _, tl := range m.Timelines() {
		tl.Load(ctx, false, speak, nil)
	}
}

// SaveAll snapshots every open timeline and the current prefs flags.
func (m *Manager) SaveAll() {
	m.mu.Lock()
	for i := range m.prefs.Timelines {
		tp := &m.prefs.Timelines[i]
		if tl := m.findLocked(backend.Kind(tp.Kind), tp.Data); tl != nil {
			tp.Mute = tl.Muted()
			tp.Read = tl.Read()
			tp.Hide = tl.Hidden()
		}
	}
	m.mu.Unlock()
	m.savePrefs()
	for _, tl := range m.Timelines() {
		tl.Save()
	}
}

func (m *Manager) findLocked(kind backend.Kind, data string) *Timeline {
	for _, tl := range m.timelines {
		if tl.kind == kind && tl.data == data {
			return tl
		}
	}
	return nil
}

func (m *Manager) savePrefs() {
	m.mu.Lock()
	prefs := *m.prefs
	m.mu.Unlock()
	if err := config.SavePrefs(m.prefsPath, &prefs); err != nil {
		m.deps.Logger.Error("failed to save prefs", zap.Error(err))
	}
}

// Run subscribes to this account's streaming events and routes them into
// the same load path polled pages use. Blocks until ctx is cancelled; run
// it on its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	if m.deps.Bus == nil {
		return
	}
	events, unsubscribe := m.deps.Bus.Subscribe("stream.", 256)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			if evt.Account != m.accountName {
				continue
			}
			m.dispatch(ctx, evt)
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindStreamStatus:
		s, ok := evt.Payload.(*models.Status)
		if !ok {
			return
		}
		if tl := m.Find(backend.KindHome, ""); tl != nil {
			tl.Load(ctx, false, true, []Item{s})
		}
	case bus.KindStreamNotification:
		n, ok := evt.Payload.(*models.Notification)
		if !ok {
			return
		}
		if tl := m.Find(backend.KindNotifications, ""); tl != nil {
			tl.Load(ctx, false, true, []Item{n})
		}
		if n.Type == models.NotificationMention {
			if tl := m.Find(backend.KindMentions, ""); tl != nil {
				tl.Load(ctx, false, true, []Item{n})
			}
		}
	case bus.KindStreamDelete:
		id, ok := evt.Payload.(string)
		if !ok {
			return
		}
		for _, tl := range m.Timelines() {
			tl.RemoveByID(id)
		}
	case bus.KindStreamEdit:
		s, ok := evt.Payload.(*models.Status)
		if !ok {
			return
		}
		for _, tl := range m.Timelines() {
			tl.ReplaceItem(s)
		}
	}
}

// Start launches Run on a background goroutine; Stop cancels it and waits.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		m.Run(ctx)
	}()
}

// Stop terminates the event routing goroutine.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}
