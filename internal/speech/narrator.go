package speech

import (
	"context"
	"fmt"

	"github.com/fastsm/fastsm/internal/bus"
)

// Narrator voices meta timeline events (open/close, initial sync done).
// Per-item announcements happen where items are loaded; the narrator only
// covers lifecycle chatter. Speech calls are marshaled through uiPost so
// screen readers see them in UI-thread order with the screen updates they
// describe.
type Narrator struct {
	bus     *bus.Bus
	speaker Speaker
	uiPost  func(func())

	cancel context.CancelFunc
	done   chan struct{}
}

// NewNarrator builds a narrator. uiPost must run its argument on the UI
// goroutine (tview's QueueUpdateDraw); pass a direct call in tests.
func NewNarrator(b *bus.Bus, speaker Speaker, uiPost func(func())) *Narrator {
	if uiPost == nil {
		uiPost = func(fn func()) { fn() }
	}
	return &Narrator{bus: b, speaker: speaker, uiPost: uiPost}
}

func (n *Narrator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})
	go n.loop(ctx)
}

func (n *Narrator) Stop() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	<-n.done
}

func (n *Narrator) loop(ctx context.Context) {
	defer close(n.done)
	events, unsubscribe := n.bus.Subscribe("timeline.", 64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			n.handle(evt)
		}
	}
}

func (n *Narrator) handle(evt bus.Event) {
	var line string
	switch evt.Kind {
	case bus.KindTimelineClosed:
		line = fmt.Sprintf("Closed %v.", evt.Payload)
	case bus.KindTimelineInitialComplete:
		line = fmt.Sprintf("%v ready.", evt.Payload)
	default:
		return
	}
	n.uiPost(func() {
		n.speaker.Speak(line)
	})
}
