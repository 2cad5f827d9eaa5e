package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"github.com/pvieira/emchat/internal/api"
	"github.com/pvieira/emchat/internal/bus"
	"github.com/pvieira/emchat/internal/chatlist"
	"github.com/pvieira/emchat/internal/outbox"
	"github.com/pvieira/emchat/internal/presence"
	"github.com/pvieira/emchat/internal/push"
	"github.com/pvieira/emchat/internal/session"
	"github.com/pvieira/emchat/internal/status"
	"github.com/pvieira/emchat/internal/store"
	"github.com/pvieira/emchat/internal/tui/model"
	"github.com/pvieira/emchat/internal/tui/views"
	"github.com/pvieira/emchat/internal/window"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

// refreshInterval is the slow-poll fallback for list state the push
// channel may have missed.
const refreshInterval = 15 * time.Second

// Deps bundles everything the TUI shell needs.
type Deps struct {
	API      *api.Client
	Chats    *chatlist.Aggregator
	Windows  *window.Cache
	Presence *presence.Tracker
	Machine  *status.Machine
	Channel  *push.Channel
	Sender   *outbox.Sender
	DB       *store.DB
	Bus      *bus.Bus
	Logger   *zap.Logger
	Profile  string
	Identity *session.Identity
}

// App is the terminal application shell. All mutations flow through the
// aggregator and window cache; the shell only renders snapshots and turns
// key presses into operations.
type App struct {
	deps Deps

	app       *tview.Application
	pages     *tview.Pages
	flash     *model.Flash
	statusBar *views.StatusBar
	chatList  *views.ConversationList
	msgView   *views.MessageView
	composer  *views.Composer
	directory *views.Directory
	loginView *views.LoginView

	ctx    context.Context
	cancel context.CancelFunc

	openID string
}

// NewApp creates the TUI application.
func NewApp(deps Deps) *App {
	ctx, cancel := context.WithCancel(context.Background())
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	a := &App{
		deps:      deps,
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		flash:     &model.Flash{},
		statusBar: views.NewStatusBar(),
		chatList:  views.NewConversationList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		directory: views.NewDirectory(),
		loginView: views.NewLoginView(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(deps.Profile)
	a.statusBar.SetStatus(string(deps.Machine.Current()))
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupCallbacks() {
	a.chatList.SetSelectedFunc(func(row, col int) {
		if id := a.chatList.SelectedID(); id != "" {
			a.openChat(id)
		}
	})

	a.directory.SetSelectedFunc(func(row, col int) {
		acct := a.directory.Selected()
		if acct == nil {
			return
		}
		conv := a.deps.Chats.StartLocal(*acct)
		if conv != nil {
			a.openChat(conv.ID)
		}
	})

	a.composer.SetOnSend(func(text string) {
		conv := a.deps.Chats.Selected()
		if conv == nil {
			return
		}
		clientID := uuid.NewString()
		a.deps.Windows.AppendOptimistic(conv.ID, window.Message{
			ID:     clientID,
			Text:   text,
			SentAt: time.Now().UnixMilli(),
		})
		if err := a.deps.DB.QueueOutbox(clientID, conv.ID, conv.CounterpartID, text); err != nil {
			a.deps.Logger.Error("failed to queue message", zap.Error(err))
			a.flashErr("Send failed: " + err.Error())
		}
	})

	a.loginView.SetOnSubmit(func(username, password string) {
		a.loginView.ShowMessage("Signing in...")
		go a.login(username, password)
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("chats", a.chatList, true, true)
	a.pages.AddPage("chat", chatFlex, true, false)
	a.pages.AddPage("people", a.directory, true, false)
	a.pages.AddPage("login", a.loginView, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case "chat", "people":
				a.pages.SwitchToPage("chats")
				a.app.SetFocus(a.chatList)
				return nil
			}
		}

		// Text inputs consume keys normally.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}
		if currentPage == "login" {
			return event
		}

		if event.Key() != tcell.KeyRune {
			return event
		}
		switch currentPage {
		case "chats":
			switch event.Rune() {
			case 'q':
				a.Stop()
				return nil
			case 'd':
				a.showDirectory(1)
				return nil
			case 'r':
				go func() { _ = a.deps.Chats.LoadInitial(a.ctx) }()
				return nil
			case 'L':
				a.logout()
				return nil
			}
		case "chat":
			switch event.Rune() {
			case 'i':
				a.app.SetFocus(a.composer.InputField)
				return nil
			case '[':
				a.loadEarlier()
				return nil
			}
		case "people":
			switch event.Rune() {
			case 'n':
				a.showDirectory(a.directory.Page() + 1)
				return nil
			case 'p':
				if a.directory.Page() > 1 {
					a.showDirectory(a.directory.Page() - 1)
				}
				return nil
			}
		}

		return event
	})
}

// Run starts the application, entering either the login form or the signed
// in session depending on stored credentials.
func (a *App) Run() error {
	if a.deps.Identity == nil {
		_ = a.deps.Machine.Transition(status.AuthRequired)
		a.pages.SwitchToPage("login")
		a.app.SetFocus(a.loginView.Form())
	} else {
		a.startSession()
	}

	go a.eventLoop()
	go a.refreshLoop()

	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// startSession brings up the signed-in machinery: cached list restore, the
// push channel, presence tracking, the reconciler loop, and the outbox
// drainer.
func (a *App) startSession() {
	a.deps.Chats.Restore()
	a.redrawChatList()

	a.deps.Chats.Start(a.ctx)
	a.deps.Presence.Start(a.ctx)
	a.deps.Sender.Start(a.ctx)
	a.deps.Channel.Start(a.ctx)

	go func() {
		if err := a.deps.Chats.LoadInitial(a.ctx); err != nil {
			a.flashErr("Chat list: " + err.Error())
		}
		a.app.QueueUpdateDraw(a.redrawChatList)
	}()
}

func (a *App) login(username, password string) {
	res, err := a.deps.API.Login(a.ctx, username, password)
	if err != nil {
		a.app.QueueUpdateDraw(func() {
			a.loginView.ShowMessage("Sign in failed: " + err.Error())
		})
		return
	}

	id := &session.Identity{
		UserID:      res.UserID,
		DisplayName: res.DisplayName,
		Token:       res.Token,
	}
	if err := session.SaveIdentity(a.deps.Profile, id); err != nil {
		a.deps.Logger.Warn("failed to persist credentials", zap.Error(err))
	}

	a.deps.API.SetToken(res.Token)
	a.deps.Channel.SetToken(res.Token)
	a.deps.Chats.SetLocalUser(res.UserID)
	a.deps.Windows.SetLocalUser(res.UserID)
	a.deps.Identity = id

	a.app.QueueUpdateDraw(func() {
		a.pages.SwitchToPage("chats")
		a.app.SetFocus(a.chatList)
		a.startSession()
	})
}

// logout signs the profile out: the session machinery stops, stored
// credentials and persisted UI state are wiped, presence forgets every
// tracked user, and the shell returns to the login form.
func (a *App) logout() {
	a.deps.Channel.Stop()
	a.deps.Sender.Stop()
	a.deps.Presence.Stop()
	a.deps.Chats.Stop()
	a.deps.Presence.Reset()

	if err := session.ClearIdentity(a.deps.Profile); err != nil {
		a.deps.Logger.Warn("failed to clear credentials", zap.Error(err))
	}
	if a.deps.DB != nil {
		for _, key := range []string{store.KeySelectedChatID, store.KeySelectedAccountID} {
			if err := a.deps.DB.DeleteUIState(key); err != nil {
				a.deps.Logger.Warn("failed to clear ui state",
					zap.Error(err), zap.String("key", key))
			}
		}
	}

	a.deps.API.SetToken("")
	a.deps.Channel.SetToken("")
	a.deps.Identity = nil
	a.openID = ""
	_ = a.deps.Machine.Transition(status.AuthRequired)

	a.loginView.ShowMessage("Signed out")
	a.pages.SwitchToPage("login")
	a.app.SetFocus(a.loginView.Form())
}

func (a *App) openChat(id string) {
	conv := a.deps.Chats.Select(id)
	if conv == nil {
		return
	}
	a.openID = conv.ID

	a.msgView.SetChatName(conv.DisplayName)
	a.msgView.Update(a.deps.Windows.Window(conv.ID), conv.DisplayName, true)
	a.pages.SwitchToPage("chat")
	a.app.SetFocus(a.msgView)

	if !conv.Placeholder() {
		roomID := conv.ID
		go func() {
			if err := a.deps.Windows.FetchPage(a.ctx, roomID, 1); err != nil {
				a.flashErr("Messages: " + err.Error())
			}
		}()
	}
}

// loadEarlier fetches the next older history page. The reading position is
// kept; only fresh page-1 loads scroll.
func (a *App) loadEarlier() {
	roomID := a.openID
	if roomID == "" {
		return
	}
	if !a.deps.Windows.HasMore(roomID) {
		a.flashInfo("No earlier messages")
		return
	}
	page := a.deps.Windows.TopPage(roomID) + 1
	go func() {
		if err := a.deps.Windows.FetchPage(a.ctx, roomID, page); err != nil {
			a.flashErr("Messages: " + err.Error())
		}
	}()
}

func (a *App) showDirectory(page int) {
	go func() {
		accounts, err := a.deps.API.GetAccountListForChat(a.ctx, page)
		if err != nil {
			a.flashErr("Directory: " + err.Error())
			return
		}
		for i := range accounts {
			if a.deps.Presence.IsOnline(accounts[i].ID) {
				accounts[i].Online = true
			}
		}
		a.app.QueueUpdateDraw(func() {
			a.directory.Update(accounts, page, a.deps.Chats.SelectedAccountID())
			a.pages.SwitchToPage("people")
			a.app.SetFocus(a.directory)
		})
	}()
}

// eventLoop folds bus events into redraws. The components own the state;
// the shell just repaints whichever surface the event touches.
func (a *App) eventLoop() {
	events, unsub := a.deps.Bus.Subscribe("", 64)
	defer unsub()

	for {
		select {
		case evt := <-events:
			a.handleEvent(evt)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case "chat.updated", "chat.list_replaced", "presence.changed", "presence.resynced":
		a.app.QueueUpdateDraw(a.redrawChatList)

	case "message.window_updated":
		if roomID, ok := evt.Payload.(string); ok && roomID == a.openID {
			a.app.QueueUpdateDraw(func() { a.redrawThread(false) })
		}

	case "chat.scroll_bottom":
		if roomID, ok := evt.Payload.(string); ok && roomID == a.openID {
			a.app.QueueUpdateDraw(func() { a.redrawThread(true) })
		}

	case "session.status_changed":
		if change, ok := evt.Payload.(status.StatusChange); ok {
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetStatus(string(change.To))
			})
		}

	case "message.send_failed":
		if fail, ok := evt.Payload.(outbox.SendFailed); ok {
			a.flashErr("Send failed: " + fail.Error)
		}
	}
}

// refreshLoop is the slow-poll fallback for anything missed on the push
// channel, and keeps the flash/clock area of the status bar fresh.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if a.deps.Machine.Current() == status.Ready {
				_ = a.deps.Chats.LoadInitial(a.ctx)
			}
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetFlash(a.flash.Get())
				if page, _ := a.pages.GetFrontPage(); page == "chats" {
					a.redrawChatList()
				}
			})
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) redrawChatList() {
	a.chatList.Update(a.deps.Chats.Conversations(), a.deps.Presence.IsOnline)
}

func (a *App) redrawThread(scroll bool) {
	conv := a.deps.Chats.Selected()
	name := ""
	if conv != nil {
		name = conv.DisplayName
		// Promotion may have renamed the open room.
		a.openID = conv.ID
	}
	a.msgView.Update(a.deps.Windows.Window(a.openID), name, scroll)
}

func (a *App) flashErr(msg string) {
	a.flash.Error(msg, 5*time.Second)
	a.repaintFlash()
}

func (a *App) flashInfo(msg string) {
	a.flash.Info(msg, 5*time.Second)
	a.repaintFlash()
}

func (a *App) repaintFlash() {
	// Queued from a fresh goroutine: QueueUpdateDraw blocks if invoked on
	// the event loop goroutine itself.
	go a.app.QueueUpdateDraw(func() {
		a.statusBar.SetFlash(a.flash.Get())
	})
}
