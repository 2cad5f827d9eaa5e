package views

import (
	"fmt"

	"github.com/pvieira/emchat/internal/window"
	"github.com/rivo/tview"
)

// MessageView renders the open conversation's message window.
type MessageView struct {
	*tview.TextView
	title string
}

// NewMessageView creates the message pane.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// SetChatName updates the pane title.
func (mv *MessageView) SetChatName(name string) {
	mv.title = name
	mv.SetTitle(fmt.Sprintf(" %s ", sanitizeForTerminal(name)))
}

// Update redraws the window. counterpart names the other party for inbound
// messages. scroll moves the view to the newest message; loading an older
// page passes false so the reading position is kept.
func (mv *MessageView) Update(msgs []window.Message, counterpart string, scroll bool) {
	mv.Clear()

	for _, m := range msgs {
		sender := counterpart
		if m.Mine {
			sender = "You"
		}

		marker := ""
		switch {
		case m.Pending:
			marker = " [::d]…[-:-:-]"
		case m.Mine && m.Read != nil && *m.Read:
			marker = " [::d]✓✓[-:-:-]"
		case m.Mine:
			marker = " [::d]✓[-:-:-]"
		}

		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
			sanitizeForTerminal(sender), formatTimestamp(m.SentAt), marker,
			sanitizeForTerminal(m.Text))
		_, _ = fmt.Fprint(mv, line)
	}

	if scroll {
		mv.ScrollToEnd()
	}
}
