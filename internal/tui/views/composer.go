package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the single-line input for writing to the open conversation.
// Enter hands the trimmed text to the send callback and clears the field;
// blank input is swallowed so stray Enters never queue empty messages.
type Composer struct {
	*tview.InputField
	onSend func(text string)
}

// NewComposer creates the message composer.
func NewComposer() *Composer {
	c := &Composer{
		InputField: tview.NewInputField().
			SetLabel(" > ").
			SetPlaceholder("Write a message, Enter to send").
			SetFieldWidth(0),
	}

	c.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || c.onSend == nil {
			return
		}
		text := strings.TrimSpace(c.GetText())
		if text == "" {
			return
		}
		c.onSend(text)
		c.SetText("")
	})

	return c
}

// SetOnSend sets the callback invoked with the composed text.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}
