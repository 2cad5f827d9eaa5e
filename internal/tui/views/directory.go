package views

import (
	"fmt"

	"github.com/pvieira/emchat/internal/api"
	"github.com/rivo/tview"
)

// Directory lists accounts available as chat counterparts, one page at a
// time.
type Directory struct {
	*tview.Table
	accounts []api.Account
	page     int
}

// NewDirectory creates the directory table.
func NewDirectory() *Directory {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true)

	d := &Directory{Table: table, page: 1}
	d.renderTitle()
	return d
}

// Update replaces the displayed page. preferredID, when it names an account
// on the page, becomes the highlighted row instead of the first one.
func (d *Directory) Update(accounts []api.Account, page int, preferredID string) {
	d.accounts = accounts
	d.page = page
	d.Clear()
	d.renderTitle()

	d.SetCell(0, 0, tview.NewTableCell("").SetSelectable(false))
	d.SetCell(0, 1, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, acct := range accounts {
		row := i + 1
		dot := "  "
		if acct.Online {
			dot = " [green]●[-]"
		}
		d.SetCell(row, 0, tview.NewTableCell(dot).SetMaxWidth(3))
		d.SetCell(row, 1, tview.NewTableCell(" "+sanitizeForTerminal(acct.Name)).SetExpansion(1))
	}

	if len(accounts) > 0 {
		selectRow := 1
		for i, acct := range accounts {
			if preferredID != "" && acct.ID == preferredID {
				selectRow = i + 1
				break
			}
		}
		d.Select(selectRow, 0)
	}
}

// Selected returns the highlighted account, or nil.
func (d *Directory) Selected() *api.Account {
	row, _ := d.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(d.accounts) {
		acct := d.accounts[idx]
		return &acct
	}
	return nil
}

// Page returns the displayed page number.
func (d *Directory) Page() int {
	return d.page
}

func (d *Directory) renderTitle() {
	d.SetTitle(fmt.Sprintf(" People (page %d)  n:next  p:prev ", d.page))
}
