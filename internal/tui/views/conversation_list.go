package views

import (
	"fmt"

	"github.com/pvieira/emchat/internal/chatlist"
	"github.com/rivo/tview"
)

// ConversationList is the main chat list table. Each row shows a presence
// dot for the counterpart, the display name with an unread badge, the last
// message preview, and its time.
type ConversationList struct {
	*tview.Table
	convs []chatlist.Conversation
}

// NewConversationList creates the chat list table.
func NewConversationList() *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Chats ")

	return &ConversationList{Table: table}
}

// Update refreshes the table. online reports counterpart presence; it is
// consulted per row so the dot always reflects the tracker's current view.
func (cl *ConversationList) Update(convs []chatlist.Conversation, online func(userID string) bool) {
	row, _ := cl.GetSelection()
	cl.convs = convs
	cl.Clear()

	cl.SetCell(0, 0, tview.NewTableCell("").SetSelectable(false))
	cl.SetCell(0, 1, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 3, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, conv := range convs {
		r := i + 1

		dot := "  "
		if !conv.IsGroup && online != nil && online(conv.CounterpartID) {
			dot = " [green]●[-]"
		}

		name := conv.DisplayName
		if name == "" {
			name = conv.CounterpartID
		}
		if conv.UnreadCount > 0 {
			name = fmt.Sprintf("%s [::b](%d)[-:-:-]", name, conv.UnreadCount)
		}

		cl.SetCell(r, 0, tview.NewTableCell(dot).SetMaxWidth(3))
		cl.SetCell(r, 1, tview.NewTableCell(" "+sanitizeForTerminal(name)).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(r, 2, tview.NewTableCell(" "+sanitizeForTerminal(conv.LastMessage)).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(r, 3, tview.NewTableCell(" "+formatTimestamp(conv.LastMessageAt)).SetMaxWidth(12))
	}

	if row > len(convs) {
		row = len(convs)
	}
	if row > 0 {
		cl.Select(row, 0)
	}
}

// SelectedID returns the id of the highlighted conversation, or empty.
func (cl *ConversationList) SelectedID() string {
	row, _ := cl.GetSelection()
	idx := row - 1 // header
	if idx >= 0 && idx < len(cl.convs) {
		return cl.convs[idx].ID
	}
	return ""
}
