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
	"github.com/fastsm/fastsm/internal/models"
)

type fakeAccount struct {
	caps       backend.Capabilities
	pages      []*backend.Page
	fetchErr   error
	fetches    int
	lastParams backend.Params
	block      chan struct{}

	marker    string
	setMarker []string
}

func (f *fakeAccount) Platform() string                   { return "fake" }
func (f *fakeAccount) Me() *models.User                   { return &models.User{ID: "me"} }
func (f *fakeAccount) Capabilities() backend.Capabilities { return f.caps }

func (f *fakeAccount) FetchTimeline(ctx context.Context, kind backend.Kind, p backend.Params) (*backend.Page, error) {
	if f.block != nil {
		<-f.block
	}
	f.fetches++
	f.lastParams = p
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.pages) == 0 {
		return &backend.Page{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeAccount) GetStatus(context.Context, string) (*models.Status, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeAccount) GetStatusContext(context.Context, string) (*backend.Context, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeAccount) Post(context.Context, backend.PostArgs) (*models.Status, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeAccount) Favourite(context.Context, string) error   { return nil }
func (f *fakeAccount) Unfavourite(context.Context, string) error { return nil }
func (f *fakeAccount) Boost(context.Context, string) error       { return nil }
func (f *fakeAccount) Unboost(context.Context, string) error     { return nil }
func (f *fakeAccount) Bookmark(context.Context, string) error    { return nil }
func (f *fakeAccount) Follow(context.Context, string) error      { return nil }
func (f *fakeAccount) Unfollow(context.Context, string) error    { return nil }

func (f *fakeAccount) LookupUsers(ctx context.Context, ids []string) ([]*models.User, error) {
	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, &models.User{ID: id, Acct: id})
	}
	return users, nil
}
func (f *fakeAccount) SearchUsers(context.Context, string) ([]*models.User, error) {
	return nil, nil
}

func (f *fakeAccount) GetTimelineMarker(context.Context, string) (string, error) {
	return f.marker, nil
}
func (f *fakeAccount) SetTimelineMarker(_ context.Context, _ string, id string) error {
	f.setMarker = append(f.setMarker, id)
	return nil
}

type spySpeaker struct{ spoken []string }

func (s *spySpeaker) Speak(text string) { s.spoken = append(s.spoken, text) }
func (s *spySpeaker) Silence()          {}

type spyPlayer struct{ cues []string }

func (p *spyPlayer) Play(cue string) { p.cues = append(p.cues, cue) }

type spyReporter struct{ errs []error }

func (r *spyReporter) HandleError(msg string, err error) { r.errs = append(r.errs, err) }

func st(id string) *models.Status {
	return &models.Status{
		ID:        id,
		Text:      "post " + id,
		Account:   &models.User{ID: "u" + id, Acct: "user" + id + "@example.com"},
		CreatedAt: time.Now(),
	}
}

func testDeps(t *testing.T) (Deps, *spySpeaker, *spyPlayer, *spyReporter) {
	t.Helper()
	speaker := &spySpeaker{}
	player := &spyPlayer{}
	reporter := &spyReporter{}
	return Deps{
		Bus:      bus.New(),
		Users:    cache.NewUserCache(),
		Speaker:  speaker,
		Player:   player,
		Reporter: reporter,
		Logger:   zap.NewNop(),
	}, speaker, player, reporter
}

func testTimeline(t *testing.T, acct *fakeAccount, opts Options) *Timeline {
	t.Helper()
	deps, _, _, _ := testDeps(t)
	opts.Account = acct
	opts.AccountName = "test"
	if opts.Name == "" {
		opts.Name = "Home"
	}
	if opts.Kind == "" {
		opts.Kind = backend.KindHome
	}
	return New(opts, deps)
}

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ItemID()
	}
	return out
}

func seed(t *testing.T, tl *Timeline, statuses ...*models.Status) {
	t.Helper()
	acct := tl.account.(*fakeAccount)
	acct.pages = append(acct.pages, &backend.Page{Statuses: statuses})
	if !tl.Load(context.Background(), false, false, nil) {
		t.Fatal("seed load failed")
	}
}

func TestForwardLoadInsertsAheadAndShiftsIndex(t *testing.T) {
	acct := &fakeAccount{}
	tl := testTimeline(t, acct, Options{})
	seed(t, tl, st("1"), st("2"), st("3"))

	if got := ids(tl.Items()); fmt.Sprint(got) != "[1 2 3]" {
		t.Fatalf("seeded items = %v", got)
	}

	// Forward load returns one new item and one duplicate.
	acct.pages = append(acct.pages, &backend.Page{Statuses: []*models.Status{st("4"), st("1")}})
	tl.Load(context.Background(), false, false, nil)

	got := ids(tl.Items())
	if fmt.Sprint(got) != "[4 1 2 3]" {
		t.Errorf("items = %v, want [4 1 2 3]", got)
	}
	if tl.Index() != 1 {
		t.Errorf("index = %d, want 1 (still pointing at item 1)", tl.Index())
	}
}

func TestDedupIdempotence(t *testing.T) {
	acct := &fakeAccount{}
	tl := testTimeline(t, acct, Options{})
	seed(t, tl, st("1"), st("2"), st("3"))

	before := tl.Len()
	acct.pages = append(acct.pages, &backend.Page{Statuses: []*models.Status{st("1"), st("2"), st("3")}})
	tl.Load(context.Background(), false, false, nil)

	if tl.Len() != before {
		t.Errorf("len = %d after duplicate page, want %d", tl.Len(), before)
	}
}

func TestFilterRoundTrip(t *testing.T) {
	acct := &fakeAccount{}
	tl := testTimeline(t, acct, Options{})
	seed(t, tl, st("1"), st("2"), st("3"), st("4"))
	original := fmt.Sprint(ids(tl.Items()))

	tl.SetFilter(Filter{Text: "post 2"})
	if got := ids(tl.Items()); fmt.Sprint(got) != "[2]" {
		t.Fatalf("filtered items = %v, want [2]", got)
	}

	tl.ClearFilter()
	if got := fmt.Sprint(ids(tl.Items())); got != original {
		t.Errorf("items after clear = %v, want %v", got, original)
	}
}

func TestFilterSurvivesLoads(t *testing.T) {
	acct := &fakeAccount{}
	tl := testTimeline(t, acct, Options{})
	seed(t, tl, st("1"), st("2"))

	tl.SetFilter(Filter{Text: "post 1"})
	acct.pages = append(acct.pages, &backend.Page{Statuses: []*models.Status{st("3"), st("10")}})
	tl.Load(context.Background(), false, false, nil)

	// "post 10" matches the substring "post 1"; "post 3" does not, but it
	// must still reach the unfiltered backing set.
	if got := ids(tl.Items()); fmt.Sprint(got) != "[10 1]" {
		t.Errorf("visible = %v, want [10 1]", got)
	}
	tl.ClearFilter()
	if got := ids(tl.Items()); fmt.Sprint(got) != "[3 10 1 2]" {
		t.Errorf("unfiltered = %v, want [3 10 1 2]", got)
	}
}

func TestIndexShiftCountsOnlyVisibleItems(t *testing.T) {
	acct := &fakeAccount{}
	tl := testTimeline(t, acct, Options{})
	seed(t, tl, st("1"), st("2"))
	tl.SetFilter(Filter{Text: "post"}) // matches everything so far
	tl.SetIndex(1)

	// Two new items, only one passes the filter.
	hidden := st("3")
	hidden.Text = "nothing to see"
	acct.pages = append(acct.pages, &backend.Page{Statuses: []*models.Status{st("4"), hidden}})
	tl.Load(context.Background(), false, false, nil)

	if got := tl.Index(); got != 2 {
		t.Errorf("index = %d, want 2 (shifted by the one visible item)", got)
	}
}

func TestReversalSymmetry(t *testing.T) {
	acct := &fakeAccount{}
	tl := testTimeline(t, acct, Options{})
	seed(t, tl, st("1"), st("2"), st("3"))
	tl.SetIndex(1)
	original := fmt.Sprint(ids(tl.Items()))
	logical := tl.Current().ItemID()

	tl.Reverse()
	if cur := tl.Current().ItemID(); cur != logical {
		t.Errorf("after one reverse cursor moved to %s, want %s", cur, logical)
	}
	tl.Reverse()

	if got := fmt.Sprint(ids(tl.Items())); got != original {
		t.Errorf("items after double reverse = %v, want %v", got, original)
	}
	if cur := tl.Current().ItemID(); cur != logical {
		t.Errorf("cursor on %s after double reverse, want %s", cur, logical)
	}
}

func TestReversedLoadsAppendForward(t *testing.T) {
	acct := &fakeAccount{}
	tl := testTimeline(t, acct, Options{Settings: Settings{Reversed: true}})
	seed(t, tl, st("3"), st("2"), st("1")) // page is newest-first

	if got := ids(tl.Items()); fmt.Sprint(got) != "[1 2 3]" {
		t.Fatalf("seeded reversed items = %v, want [1 2 3]", got)
	}

	acct.pages = append(acct.pages, &backend.Page{Statuses: []*models.Status{st("4")}})
	tl.Load(context.Background(), false, false, nil)

	if got := ids(tl.Items()); fmt.Sprint(got) != "[1 2 3 4]" {
		t.Errorf("items = %v, want [1 2 3 4]", got)
	}
	if tl.Index() != 0 {
		t.Errorf("index = %d, want 0 (nothing inserted ahead)", tl.Index())
	}
}

func TestPositionSyncConvergence(t *testing.T) {
	acct := &fakeAccount{caps: backend.Capabilities{Markers: true}, marker: "2"}
	tl := testTimeline(t, acct, Options{Settings: Settings{SyncPosition: true}})
	seed(t, tl, st("1"), st("2"), st("3"))
	before := fmt.Sprint(ids(tl.Items()))

	tl.SyncPositionFromServer(context.Background())

	if tl.Index() != 1 {
		t.Errorf("index = %d, want 1 (position of marker id)", tl.Index())
	}
	if got := fmt.Sprint(ids(tl.Items())); got != before {
		t.Errorf("sync altered contents: %v", got)
	}
}

func TestPositionPushOnlyAfterNavigation(t *testing.T) {
	acct := &fakeAccount{caps: backend.Capabilities{Markers: true}}
	tl := testTimeline(t, acct, Options{Settings: Settings{SyncPosition: true}})
	seed(t, tl, st("1"), st("2"), st("3"))

	tl.SyncPositionToServer(context.Background())
	if len(acct.setMarker) != 0 {
		t.Fatal("marker pushed without navigation")
	}

	tl.SetIndex(2)
	tl.SyncPositionToServer(context.Background())
	if len(acct.setMarker) != 1 || acct.setMarker[0] != "3" {
		t.Fatalf("setMarker = %v, want [3]", acct.setMarker)
	}

	// Second push without further navigation is a no-op.
	tl.SyncPositionToServer(context.Background())
	if len(acct.setMarker) != 1 {
		t.Error("marker pushed twice for one navigation")
	}
}

func TestHiddenLoadIsNoOpButFiresInitialComplete(t *testing.T) {
	acct := &fakeAccount{}
	deps, _, _, _ := testDeps(t)
	events, unsub := deps.Bus.Subscribe("timeline.", 16)
	defer unsub()

	tl := New(Options{
		Account:     acct,
		AccountName: "test",
		Kind:        backend.KindHome,
		Name:        "Home",
		Hide:        true,
	}, deps)

	if tl.Load(context.Background(), false, false, nil) {
		t.Error("hidden load returned true")
	}
	if acct.fetches != 0 {
		t.Error("hidden load hit the backend")
	}
	select {
	case evt := <-events:
		if evt.Kind != bus.KindTimelineInitialComplete {
			t.Errorf("event = %s, want %s", evt.Kind, bus.KindTimelineInitialComplete)
		}
	case <-time.After(time.Second):
		t.Error("no initial-complete event from hidden timeline")
	}
}

func TestInitialErrorFiresCompleteAndClosesRemovable(t *testing.T) {
	acct := &fakeAccount{fetchErr: errors.New("boom")}
	deps, _, _, reporter := testDeps(t)
	events, unsub := deps.Bus.Subscribe("timeline.", 16)
	defer unsub()

	tl := New(Options{
		Account:     acct,
		AccountName: "test",
		Kind:        backend.KindSearch,
		Name:        "search: golang",
		Data:        "golang",
		Removable:   true,
	}, deps)
	tl.Load(context.Background(), false, false, nil)

	if len(reporter.errs) != 1 {
		t.Fatalf("reported errors = %d, want 1", len(reporter.errs))
	}
	var kinds []string
	for len(kinds) < 2 {
		select {
		case evt := <-events:
			kinds = append(kinds, evt.Kind)
		case <-time.After(time.Second):
			t.Fatalf("events = %v, want initial-complete and closed", kinds)
		}
	}
	if kinds[0] != bus.KindTimelineInitialComplete || kinds[1] != bus.KindTimelineClosed {
		t.Errorf("events = %v", kinds)
	}
}

func TestUnsupportedKindDegradesToHidden(t *testing.T) {
	acct := &fakeAccount{fetchErr: backend.ErrUnsupported}
	deps, _, _, reporter := testDeps(t)
	tl := New(Options{
		Account:     acct,
		AccountName: "test",
		Kind:        backend.KindScheduled,
		Name:        "Scheduled",
	}, deps)

	tl.Load(context.Background(), false, false, nil)
	if !tl.Hidden() {
		t.Error("unsupported timeline not hidden")
	}
	if len(reporter.errs) != 0 {
		t.Error("unsupported kind reported as an error")
	}
}

func TestConcurrentLoadLosesSilently(t *testing.T) {
	acct := &fakeAccount{block: make(chan struct{})}
	tl := testTimeline(t, acct, Options{})

	first := make(chan bool)
	go func() {
		first <- tl.Load(context.Background(), false, false, nil)
	}()

	// Wait for the first load to be inside the fetch.
	deadline := time.After(time.Second)
	for {
		if !tl.loadMu.TryLock() {
			break
		}
		tl.loadMu.Unlock()
		select {
		case <-deadline:
			t.Fatal("first load never started")
		default:
		}
	}

	if tl.Load(context.Background(), false, false, nil) {
		t.Error("racing load returned true, want silent no-op")
	}
	close(acct.block)
	if !<-first {
		t.Error("first load failed")
	}
}

func TestStreamedItemsBypassLoadGuard(t *testing.T) {
	acct := &fakeAccount{block: make(chan struct{})}
	tl := testTimeline(t, acct, Options{})

	done := make(chan bool)
	go func() {
		done <- tl.Load(context.Background(), false, false, nil)
	}()
	for tl.loadMu.TryLock() {
		tl.loadMu.Unlock()
	}

	if !tl.Load(context.Background(), false, false, []Item{st("9")}) {
		t.Error("streamed push blocked by in-flight load")
	}
	if tl.Len() != 1 {
		t.Errorf("len = %d after streamed push, want 1", tl.Len())
	}
	close(acct.block)
	<-done
}

func TestAnnounceSpeaksItemsOrCount(t *testing.T) {
	acct := &fakeAccount{}
	deps, speaker, player, _ := testDeps(t)
	tl := New(Options{
		Account:     acct,
		AccountName: "test",
		Kind:        backend.KindHome,
		Name:        "Home",
		Settings:    Settings{Template: "$name: $text"},
	}, deps)

	acct.pages = append(acct.pages, &backend.Page{Statuses: []*models.Status{st("1"), st("2")}})
	tl.Load(context.Background(), false, true, nil)

	if len(player.cues) != 1 || player.cues[0] != "new_status" {
		t.Errorf("cues = %v, want [new_status]", player.cues)
	}
	if len(speaker.spoken) != 2 {
		t.Fatalf("spoke %d items, want 2", len(speaker.spoken))
	}

	speaker.spoken = nil
	acct.pages = append(acct.pages, &backend.Page{Statuses: []*models.Status{st("3"), st("4"), st("5"), st("6")}})
	tl.Load(context.Background(), false, true, nil)
	if len(speaker.spoken) != 1 {
		t.Fatalf("spoke %d messages for a big batch, want 1 count summary", len(speaker.spoken))
	}
}

func TestDirectMentionPlaysMessageCue(t *testing.T) {
	acct := &fakeAccount{}
	deps, _, player, _ := testDeps(t)
	tl := New(Options{
		Account:     acct,
		AccountName: "test",
		Kind:        backend.KindMentions,
		Name:        "Mentions",
	}, deps)

	direct := st("1")
	direct.Visibility = "direct"
	acct.pages = append(acct.pages, &backend.Page{
		Notifications: []*models.Notification{{
			ID:      "n1",
			Type:    models.NotificationMention,
			Account: direct.Account,
			Status:  direct,
		}},
	})
	tl.Load(context.Background(), false, true, nil)

	if len(player.cues) != 1 || player.cues[0] != "message" {
		t.Errorf("cues = %v, want [message]", player.cues)
	}
}

func TestMutedTimelineSkipsAnnounce(t *testing.T) {
	acct := &fakeAccount{}
	deps, speaker, player, _ := testDeps(t)
	tl := New(Options{
		Account:     acct,
		AccountName: "test",
		Kind:        backend.KindHome,
		Name:        "Home",
		Mute:        true,
	}, deps)

	acct.pages = append(acct.pages, &backend.Page{Statuses: []*models.Status{st("1")}})
	tl.Load(context.Background(), false, true, nil)

	if len(player.cues) != 0 || len(speaker.spoken) != 0 {
		t.Errorf("muted timeline announced: cues=%v spoken=%v", player.cues, speaker.spoken)
	}
}

func TestMultiPageChainStopsOnShortPage(t *testing.T) {
	acct := &fakeAccount{}
	deps, _, _, _ := testDeps(t)
	tl := New(Options{
		Account:     acct,
		AccountName: "test",
		Kind:        backend.KindHome,
		Name:        "Home",
		Settings:    Settings{PageSize: 2, MaxPages: 3},
	}, deps)

	acct.pages = []*backend.Page{
		{Statuses: []*models.Status{st("6"), st("5")}, NextMaxID: "5"},
		{Statuses: []*models.Status{st("4")}, NextMaxID: "4"}, // short page
		{Statuses: []*models.Status{st("3"), st("2")}, NextMaxID: "2"},
	}
	tl.Load(context.Background(), false, false, nil)

	if acct.fetches != 2 {
		t.Errorf("fetches = %d, want 2 (stop on short page)", acct.fetches)
	}
	if got := ids(tl.Items()); fmt.Sprint(got) != "[6 5 4]" {
		t.Errorf("items = %v, want [6 5 4]", got)
	}
}

func TestLoadAllPreviousStopsWhenDry(t *testing.T) {
	acct := &fakeAccount{}
	tl := testTimeline(t, acct, Options{})
	seed(t, tl, st("5"), st("4"))

	acct.pages = []*backend.Page{
		{Statuses: []*models.Status{st("3"), st("2")}},
		{Statuses: []*models.Status{st("1")}},
		// Subsequent fetches return empty pages.
	}
	tl.LoadAllPrevious(context.Background())

	if got := ids(tl.Items()); fmt.Sprint(got) != "[5 4 3 2 1]" {
		t.Errorf("items = %v, want [5 4 3 2 1]", got)
	}
}

func TestRemoveByIDAdjustsIndex(t *testing.T) {
	acct := &fakeAccount{}
	tl := testTimeline(t, acct, Options{})
	seed(t, tl, st("1"), st("2"), st("3"))
	tl.SetIndex(2)

	if !tl.RemoveByID("1") {
		t.Fatal("remove failed")
	}
	if tl.Index() != 1 {
		t.Errorf("index = %d after removing an earlier item, want 1", tl.Index())
	}
	if cur := tl.Current().ItemID(); cur != "3" {
		t.Errorf("cursor on %s, want 3", cur)
	}
}

func TestSaveHydrateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tc, err := cache.New(filepath.Join(dir, "timeline_cache.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	defer tc.Close()

	deps, _, _, _ := testDeps(t)
	deps.Cache = tc
	acct := &fakeAccount{}
	opts := Options{
		Account:     acct,
		AccountName: "test",
		Kind:        backend.KindHome,
		Name:        "Home",
		Settings:    Settings{CacheLimit: 100},
	}
	tl := New(opts, deps)
	acct.pages = append(acct.pages, &backend.Page{Statuses: []*models.Status{st("3"), st("2"), st("1")}})
	tl.Load(context.Background(), false, false, nil)
	tl.SetIndex(1)
	tl.Save()

	restored := New(opts, deps)
	restored.Hydrate()
	if got := ids(restored.Items()); fmt.Sprint(got) != "[3 2 1]" {
		t.Errorf("hydrated items = %v, want [3 2 1]", got)
	}
	if restored.Index() != 1 {
		t.Errorf("hydrated index = %d, want 1", restored.Index())
	}
}

func TestOlderCursorSurvivesHydrate(t *testing.T) {
	dir := t.TempDir()
	tc, err := cache.New(filepath.Join(dir, "timeline_cache.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	defer tc.Close()

	deps, _, _, _ := testDeps(t)
	deps.Cache = tc
	acct := &fakeAccount{}
	opts := Options{
		Account:     acct,
		AccountName: "test",
		Kind:        backend.KindHome,
		Name:        "Home",
		Settings:    Settings{CacheLimit: 100},
	}
	tl := New(opts, deps)
	acct.pages = append(acct.pages, &backend.Page{
		Statuses:  []*models.Status{st("2"), st("1")},
		NextMaxID: "server-cursor",
	})
	tl.Load(context.Background(), false, false, nil)
	tl.Save()

	restored := New(opts, deps)
	restored.Hydrate()
	restored.Load(context.Background(), true, false, nil)
	if acct.lastParams.MaxID != "server-cursor" {
		t.Errorf("older-page bound = %q, want restored cursor %q",
			acct.lastParams.MaxID, "server-cursor")
	}
}

func TestOlderLoadBoundPerPlatformPaging(t *testing.T) {
	// Without a saved cursor, the oldest item id is only a valid bound on
	// platforms whose ids paginate; opaque-cursor platforms get none.
	for _, tt := range []struct {
		name     string
		idPaging bool
		wantMax  string
	}{
		{"id paging", true, "1"},
		{"opaque cursor", false, ""},
	} {
		t.Run(tt.name, func(t *testing.T) {
			acct := &fakeAccount{caps: backend.Capabilities{IDPaging: tt.idPaging}}
			tl := testTimeline(t, acct, Options{})
			seed(t, tl, st("2"), st("1"))

			tl.Load(context.Background(), true, false, nil)
			if acct.lastParams.MaxID != tt.wantMax {
				t.Errorf("MaxID = %q, want %q", acct.lastParams.MaxID, tt.wantMax)
			}
		})
	}
}
