package timeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fastsm/fastsm/internal/backend"
	"github.com/fastsm/fastsm/internal/bus"
	"github.com/fastsm/fastsm/internal/cache"
	"github.com/fastsm/fastsm/internal/config"
	"github.com/fastsm/fastsm/internal/models"
)

func testManager(t *testing.T, acct *fakeAccount) *Manager {
	t.Helper()
	deps, _, _, _ := testDeps(t)
	prefsPath := filepath.Join(t.TempDir(), "prefs.json")
	m, err := NewManager(acct, "test", prefsPath, Settings{}, deps)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestManagerDefaultTimelines(t *testing.T) {
	m := testManager(t, &fakeAccount{})
	tls := m.Timelines()
	if len(tls) != 3 {
		t.Fatalf("default timelines = %d, want 3", len(tls))
	}
	for _, tl := range tls {
		if tl.Removable() {
			t.Errorf("default timeline %s is removable", tl.Name())
		}
	}
}

func TestManagerOpenCloseRoundTrip(t *testing.T) {
	acct := &fakeAccount{}
	m := testManager(t, acct)

	tp := config.TimelinePref{Kind: string(backend.KindSearch), Data: "golang", Name: "search: golang"}
	acct.pages = append(acct.pages, &backend.Page{Statuses: []*models.Status{st("1")}})
	tl := m.OpenTimeline(context.Background(), tp)
	if tl == nil || !tl.Removable() {
		t.Fatal("opened timeline missing or not removable")
	}
	if len(m.Timelines()) != 4 {
		t.Fatalf("timelines = %d after open, want 4", len(m.Timelines()))
	}

	// Opening the same (kind, data) again returns the existing timeline.
	if again := m.OpenTimeline(context.Background(), tp); again != tl {
		t.Error("re-open created a second timeline")
	}

	// Prefs on disk reflect the open set.
	prefs, err := config.LoadPrefs(m.prefsPath)
	if err != nil {
		t.Fatalf("LoadPrefs: %v", err)
	}
	if len(prefs.Timelines) != 4 {
		t.Errorf("persisted timelines = %d, want 4", len(prefs.Timelines))
	}

	if !m.CloseTimeline(tl) {
		t.Fatal("close failed")
	}
	prefs, _ = config.LoadPrefs(m.prefsPath)
	if len(prefs.Timelines) != 3 {
		t.Errorf("persisted timelines = %d after close, want 3", len(prefs.Timelines))
	}
}

func TestManagerRefusesToClosePermanent(t *testing.T) {
	m := testManager(t, &fakeAccount{})
	home := m.Find(backend.KindHome, "")
	if home == nil {
		t.Fatal("no home timeline")
	}
	if m.CloseTimeline(home) {
		t.Error("closed a permanent timeline")
	}
}

func TestManagerAutoClosesFailedRemovable(t *testing.T) {
	prefsPath := filepath.Join(t.TempDir(), "prefs.json")
	err := config.SavePrefs(prefsPath, &config.Prefs{
		Timelines: append(defaultTimelines(),
			config.TimelinePref{Kind: string(backend.KindSearch), Data: "golang", Name: "search: golang"}),
	})
	if err != nil {
		t.Fatalf("SavePrefs: %v", err)
	}

	deps, _, _, _ := testDeps(t)
	acct := &fakeAccount{fetchErr: errors.New("boom")}
	m, err := NewManager(acct, "test", prefsPath, Settings{}, deps)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if len(m.Timelines()) != 4 {
		t.Fatalf("timelines = %d before load, want 4", len(m.Timelines()))
	}

	m.LoadAll(context.Background(), false)

	// The removable search timeline failed its first load and must leave
	// both the open set and the persisted prefs; the permanent three stay.
	if tl := m.Find(backend.KindSearch, "golang"); tl != nil {
		t.Error("failed removable timeline still in the open set")
	}
	if len(m.Timelines()) != 3 {
		t.Errorf("timelines = %d after load, want 3", len(m.Timelines()))
	}
	saved, err := config.LoadPrefs(prefsPath)
	if err != nil {
		t.Fatalf("LoadPrefs: %v", err)
	}
	for _, tp := range saved.Timelines {
		if backend.Kind(tp.Kind) == backend.KindSearch {
			t.Error("failed removable timeline still persisted in prefs")
		}
	}
}

func TestManagerRestoresFilterFromPrefs(t *testing.T) {
	deps, _, _, _ := testDeps(t)
	prefsPath := filepath.Join(t.TempDir(), "prefs.json")
	err := config.SavePrefs(prefsPath, &config.Prefs{
		Timelines: []config.TimelinePref{{Kind: string(backend.KindHome), Name: "Home"}},
		Filters: map[string]config.FilterPref{
			"home:": {Text: "golang"},
		},
	})
	if err != nil {
		t.Fatalf("SavePrefs: %v", err)
	}

	m, err := NewManager(&fakeAccount{}, "test", prefsPath, Settings{}, deps)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	home := m.Find(backend.KindHome, "")
	f := home.Filter()
	if f == nil || f.Text != "golang" {
		t.Errorf("restored filter = %+v, want Text golang", f)
	}
}

func TestManagerRoutesStreamedStatus(t *testing.T) {
	acct := &fakeAccount{}
	m := testManager(t, acct)
	home := m.Find(backend.KindHome, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	m.deps.Bus.Publish(bus.Event{
		Kind:    bus.KindStreamStatus,
		Account: "test",
		Payload: st("42"),
	})

	deadline := time.After(time.Second)
	for home.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("streamed status never reached the home timeline")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if got := ids(home.Items()); fmt.Sprint(got) != "[42]" {
		t.Errorf("home items = %v, want [42]", got)
	}
}

func TestManagerIgnoresOtherAccountsEvents(t *testing.T) {
	m := testManager(t, &fakeAccount{})
	home := m.Find(backend.KindHome, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.deps.Bus.Publish(bus.Event{
		Kind:    bus.KindStreamStatus,
		Account: "someone-else",
		Payload: st("42"),
	})
	m.Stop()

	if home.Len() != 0 {
		t.Error("event for another account reached this manager's timeline")
	}
}

func TestManagerStreamedDeleteSweepsAllTimelines(t *testing.T) {
	acct := &fakeAccount{}
	m := testManager(t, acct)
	home := m.Find(backend.KindHome, "")
	home.Load(context.Background(), false, false, []Item{st("1"), st("2")})

	m.dispatch(context.Background(), bus.Event{
		Kind:    bus.KindStreamDelete,
		Account: "test",
		Payload: "1",
	})
	if got := ids(home.Items()); fmt.Sprint(got) != "[2]" {
		t.Errorf("home items = %v after delete, want [2]", got)
	}
}

func TestPollerResolvesUnknownUsers(t *testing.T) {
	acct := &fakeAccount{}
	m := testManager(t, acct)
	m.deps.Users.LookupByID("u-unknown") // miss enqueues

	p := NewPoller([]*Manager{m}, time.Minute, zap.NewNop())
	p.Sweep(context.Background())

	if u := m.deps.Users.LookupByID("u-unknown"); u == nil {
		t.Error("unknown user not resolved by sweep")
	}
}

func TestPollerSweepLoadsEveryTimeline(t *testing.T) {
	acct := &fakeAccount{}
	m := testManager(t, acct)

	p := NewPoller([]*Manager{m}, time.Minute, zap.NewNop())
	p.Sweep(context.Background())

	if acct.fetches != len(m.Timelines()) {
		t.Errorf("fetches = %d, want one per timeline (%d)", acct.fetches, len(m.Timelines()))
	}
}

func TestManagerSaveAllSnapshotsTimelines(t *testing.T) {
	dir := t.TempDir()
	tc, err := cache.New(filepath.Join(dir, "timeline_cache.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	defer tc.Close()

	deps, _, _, _ := testDeps(t)
	deps.Cache = tc
	acct := &fakeAccount{}
	m, err := NewManager(acct, "test", filepath.Join(dir, "prefs.json"), Settings{CacheLimit: 10}, deps)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	home := m.Find(backend.KindHome, "")
	home.Load(context.Background(), false, false, []Item{st("1")})
	m.SaveAll()

	restored, _ := NewManager(acct, "test", filepath.Join(dir, "prefs.json"), Settings{CacheLimit: 10}, deps)
	restored.HydrateAll()
	if got := restored.Find(backend.KindHome, "").Len(); got != 1 {
		t.Errorf("hydrated home len = %d, want 1", got)
	}
}
