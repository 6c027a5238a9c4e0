// Package tui is the terminal shell. It is presentation only: every key
// binding calls into the timeline manager or the outbox, and every screen
// mutation from a background goroutine is marshaled onto the UI goroutine
// through Application.QueueUpdateDraw.
package tui

import (
	"context"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/fastsm/fastsm/internal/account"
	"github.com/fastsm/fastsm/internal/backend"
	"github.com/fastsm/fastsm/internal/bus"
	"github.com/fastsm/fastsm/internal/models"
	"github.com/fastsm/fastsm/internal/outbox"
	"github.com/fastsm/fastsm/internal/speech"
	"github.com/fastsm/fastsm/internal/timeline"
	"github.com/fastsm/fastsm/internal/tui/views"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	root      *tview.Flex
	list      *views.ItemList
	statusBar *views.StatusBar
	composer  *views.Composer

	managers []*timeline.Manager
	senders  map[string]*outbox.Sender
	speaker  speech.Speaker
	bus      *bus.Bus
	logger   *zap.Logger

	curAccount  int
	curTimeline int
	replyTo     string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application over the given account managers.
func NewApp(managers []*timeline.Manager, senders map[string]*outbox.Sender, speaker speech.Speaker, b *bus.Bus, logger *zap.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		app:       tview.NewApplication(),
		list:      views.NewItemList(),
		statusBar: views.NewStatusBar(),
		composer:  views.NewComposer(),
		managers:  managers,
		senders:   senders,
		speaker:   speaker,
		bus:       b,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	a.setupBindings()
	a.setupLayout()
	return a
}

func (a *App) setupLayout() {
	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.list, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.composer.SetOnSend(func(text string) {
		a.submitPost(text)
		a.hideComposer()
	})
	a.composer.SetOnCancel(a.hideComposer)
	a.app.SetRoot(a.root, true)
}

func (a *App) setupBindings() {
	a.list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyTab:
			a.nextTimeline(1)
			return nil
		case tcell.KeyBacktab:
			a.nextTimeline(-1)
			return nil
		}
		switch event.Rune() {
		case 'j':
			a.move(1)
			return nil
		case 'k':
			a.move(-1)
			return nil
		case 'a':
			a.nextAccount()
			return nil
		case 'r':
			a.refreshCurrent()
			return nil
		case '[':
			a.loadOlder()
			return nil
		case 'f':
			a.favouriteCurrent()
			return nil
		case 'b':
			a.boostCurrent()
			return nil
		case 'n':
			a.replyTo = ""
			a.showComposer()
			return nil
		case 'p':
			if s := a.currentStatus(); s != nil {
				a.replyTo = s.Original().ID
				a.showComposer()
			}
			return nil
		case 'q':
			a.app.Stop()
			return nil
		}
		return event
	})
}

// Run draws the shell and consumes bus events until the user quits.
func (a *App) Run() error {
	go a.eventLoop()
	a.refresh()
	defer a.cancel()
	return a.app.Run()
}

// Post runs fn on the UI goroutine. Collaborators that must interleave with
// screen updates (the narrator) go through here.
func (a *App) Post(fn func()) {
	a.app.QueueUpdateDraw(fn)
}

// Stop terminates the UI from another goroutine.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// eventLoop redraws on domain events. Payloads are not inspected here; the
// timelines already hold the updated state.
func (a *App) eventLoop() {
	events, unsubscribe := a.bus.Subscribe("", 256)
	defer unsubscribe()
	for {
		select {
		case <-a.ctx.Done():
			return
		case evt := <-events:
			switch evt.Kind {
			case bus.KindTimelineLoaded, bus.KindTimelineClosed:
				a.app.QueueUpdateDraw(a.refresh)
			case bus.KindAccountState:
				if ch, ok := evt.Payload.(account.Change); ok {
					a.app.QueueUpdateDraw(func() {
						a.statusBar.SetState(string(ch.To))
					})
				}
			case bus.KindPostSent:
				a.app.QueueUpdateDraw(func() {
					a.statusBar.SetFlash("Posted.")
				})
			case bus.KindPostFailed:
				a.app.QueueUpdateDraw(func() {
					a.statusBar.SetFlash("Post failed.")
				})
			}
		}
	}
}

// current returns the selected manager and timeline, or nils.
func (a *App) current() (*timeline.Manager, *timeline.Timeline) {
	if len(a.managers) == 0 {
		return nil, nil
	}
	m := a.managers[a.curAccount%len(a.managers)]
	tls := m.Timelines()
	if len(tls) == 0 {
		return m, nil
	}
	return m, tls[a.curTimeline%len(tls)]
}

func (a *App) currentStatus() *models.Status {
	_, tl := a.current()
	if tl == nil {
		return nil
	}
	s, _ := tl.Current().(*models.Status)
	return s
}

// refresh redraws the list and status bar. Callers off the UI goroutine must
// go through QueueUpdateDraw.
func (a *App) refresh() {
	m, tl := a.current()
	if m == nil || tl == nil {
		return
	}
	a.list.Update(tl.Name(), tl.Get(), tl.Index())
	a.statusBar.SetAccount(m.AccountName())
	a.statusBar.SetTimeline(tl.Name())
}

func (a *App) move(delta int) {
	_, tl := a.current()
	if tl == nil {
		return
	}
	tl.SetIndex(tl.Index() + delta)
	a.refresh()
}

func (a *App) nextTimeline(delta int) {
	m, _ := a.current()
	if m == nil {
		return
	}
	n := len(m.Timelines())
	if n == 0 {
		return
	}
	a.curTimeline = (a.curTimeline + delta + n) % n
	a.refresh()
}

func (a *App) nextAccount() {
	if len(a.managers) == 0 {
		return
	}
	a.curAccount = (a.curAccount + 1) % len(a.managers)
	a.curTimeline = 0
	a.refresh()
}

func (a *App) refreshCurrent() {
	_, tl := a.current()
	if tl == nil {
		return
	}
	go func() {
		if tl.Load(a.ctx, false, true, nil) {
			return
		}
		// A racing load is already fetching this timeline.
		a.speaker.Speak("Still loading " + tl.Name() + ".")
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetFlash("Load already in progress.")
		})
	}()
}

func (a *App) loadOlder() {
	_, tl := a.current()
	if tl == nil {
		return
	}
	go func() {
		tl.Load(a.ctx, true, false, nil)
		a.app.QueueUpdateDraw(a.refresh)
	}()
}

func (a *App) favouriteCurrent() {
	m, _ := a.current()
	s := a.currentStatus()
	if m == nil || s == nil {
		return
	}
	target := s.Original()
	go func() {
		var err error
		if target.Favourited {
			err = m.Account().Unfavourite(a.ctx, target.ID)
		} else {
			err = m.Account().Favourite(a.ctx, target.ID)
		}
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.statusBar.SetFlash("Favourite failed: " + err.Error())
				return
			}
			target.Favourited = !target.Favourited
			a.statusBar.SetFlash("Favourited.")
		})
	}()
}

func (a *App) boostCurrent() {
	m, _ := a.current()
	s := a.currentStatus()
	if m == nil || s == nil {
		return
	}
	target := s.Original()
	go func() {
		var err error
		if target.Boosted {
			err = m.Account().Unboost(a.ctx, target.ID)
		} else {
			err = m.Account().Boost(a.ctx, target.ID)
		}
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.statusBar.SetFlash("Boost failed: " + err.Error())
				return
			}
			target.Boosted = !target.Boosted
			a.statusBar.SetFlash("Boosted.")
		})
	}()
}

func (a *App) submitPost(text string) {
	m, _ := a.current()
	if m == nil {
		return
	}
	sender, ok := a.senders[m.AccountName()]
	if !ok {
		a.statusBar.SetFlash("No outbox for account.")
		return
	}
	args := backend.PostArgs{Text: text, InReplyToID: a.replyTo}
	a.replyTo = ""
	if _, err := sender.Queue(args); err != nil {
		a.statusBar.SetFlash("Queue failed: " + err.Error())
		return
	}
	a.statusBar.SetFlash("Queued.")
}

func (a *App) showComposer() {
	a.root.RemoveItem(a.statusBar)
	a.root.AddItem(a.composer, 1, 0, false)
	a.root.AddItem(a.statusBar, 1, 0, false)
	a.app.SetFocus(a.composer)
}

func (a *App) hideComposer() {
	a.root.RemoveItem(a.composer)
	a.app.SetFocus(a.list)
}
