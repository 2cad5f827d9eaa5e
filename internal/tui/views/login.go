package views

import (
	"github.com/rivo/tview"
)

// LoginView is the credential form shown while the session is
// unauthenticated.
type LoginView struct {
	*tview.Flex
	form     *tview.Form
	message  *tview.TextView
	onSubmit func(username, password string)
}

// NewLoginView creates the login form.
func NewLoginView() *LoginView {
	lv := &LoginView{}

	lv.message = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	lv.form = tview.NewForm().
		AddInputField("Username", "", 32, nil, nil).
		AddPasswordField("Password", "", 32, '*', nil).
		AddButton("Sign in", func() {
			if lv.onSubmit == nil {
				return
			}
			user := lv.form.GetFormItemByLabel("Username").(*tview.InputField).GetText()
			pass := lv.form.GetFormItemByLabel("Password").(*tview.InputField).GetText()
			lv.onSubmit(user, pass)
		})
	lv.form.SetBorder(true).SetTitle(" Sign in ")

	lv.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tview.NewBox(), 0, 1, false).
		AddItem(lv.form, 9, 0, true).
		AddItem(lv.message, 1, 0, false).
		AddItem(tview.NewBox(), 0, 1, false)

	return lv
}

// SetOnSubmit sets the callback for a submitted credential pair.
func (lv *LoginView) SetOnSubmit(fn func(username, password string)) {
	lv.onSubmit = fn
}

// ShowMessage displays a status or error line under the form.
func (lv *LoginView) ShowMessage(msg string) {
	lv.message.Clear()
	_, _ = lv.message.Write([]byte("[yellow]" + msg + "[-]"))
}

// Form exposes the form for focus handling.
func (lv *LoginView) Form() *tview.Form {
	return lv.form
}
