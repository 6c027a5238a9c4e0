package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the single-line post input.
type Composer struct {
	*tview.InputField
	onSend   func(text string)
	onCancel func()
}

// NewComposer creates a new composer input.
func NewComposer() *Composer {
	input := tview.NewInputField().
		SetLabel(" Post: ")

	c := &Composer{InputField: input}
	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := input.GetText()
			input.SetText("")
			if text != "" && c.onSend != nil {
				c.onSend(text)
			}
		case tcell.KeyEscape:
			input.SetText("")
			if c.onCancel != nil {
				c.onCancel()
			}
		}
	})
	return c
}

// SetOnSend sets the callback for a submitted post.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// SetOnCancel sets the callback for a dismissed composer.
func (c *Composer) SetOnCancel(fn func()) {
	c.onCancel = fn
}
