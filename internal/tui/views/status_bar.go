package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// StatusBar displays persistent account/timeline status.
type StatusBar struct {
	*tview.TextView
	account  string
	timeline string
	state    string
	flash    string
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetAccount updates the account name display.
func (sb *StatusBar) SetAccount(name string) {
	sb.account = name
	sb.render()
}

// SetTimeline updates the current timeline display.
func (sb *StatusBar) SetTimeline(name string) {
	sb.timeline = name
	sb.render()
}

// SetState updates the account state indicator.
func (sb *StatusBar) SetState(state string) {
	sb.state = state
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	clock := time.Now().Format("15:04")
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s | %s", sb.account, sb.timeline, sb.state, clock)
	if sb.flash != "" {
		line += " | [yellow]" + tview.Escape(sb.flash) + "[-]"
	}
	fmt.Fprint(sb, line)
}
