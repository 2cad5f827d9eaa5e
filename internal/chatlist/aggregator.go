package chatlist

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pvieira/emchat/internal/api"
	"github.com/pvieira/emchat/internal/bus"
	"github.com/pvieira/emchat/internal/outbox"
	"github.com/pvieira/emchat/internal/push"
	"github.com/pvieira/emchat/internal/readstate"
	"github.com/pvieira/emchat/internal/store"
	"github.com/pvieira/emchat/internal/window"
	"go.uber.org/zap"
)

// localIDPrefix marks conversation ids generated client-side before the
// backend has issued a durable room id.
const localIDPrefix = "local-"

// Conversation is one row of the aggregated chat list.
type Conversation struct {
	ID            string
	CounterpartID string
	DisplayName   string
	IsGroup       bool
	LastMessage   string
	LastMessageAt int64
	UnreadCount   int
	AvatarRef     string
	// Confirmed is set once at least one server-persisted message exists.
	Confirmed bool
}

// Placeholder reports whether the conversation only exists client-side.
func (c *Conversation) Placeholder() bool {
	return strings.HasPrefix(c.ID, localIDPrefix) && !c.Confirmed
}

// Lister fetches the authoritative chat list from the backend.
type Lister interface {
	GetChatList(ctx context.Context) ([]api.ChatSummary, error)
}

// Aggregator owns the chat list: the ordered set of conversations, their
// unread counters, the current selection, and the rules for folding inbound
// messages and send acks into all three. It is the only writer of that
// state; the TUI reads snapshots.
type Aggregator struct {
	mu sync.Mutex

	api     Lister
	reads   *readstate.Synchronizer
	windows *window.Cache
	db      *store.DB
	bus     *bus.Bus
	logger  *zap.Logger

	localUserID string

	order          []string
	byID           map[string]*Conversation
	selectedID     string
	selectedAcctID string
	loadErr        string

	cancel context.CancelFunc
}

// NewAggregator creates an empty aggregator. windows may be nil in headless
// use; inbound messages then only update the list.
func NewAggregator(l Lister, reads *readstate.Synchronizer, windows *window.Cache, db *store.DB, b *bus.Bus, logger *zap.Logger, localUserID string) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		api:         l,
		reads:       reads,
		windows:     windows,
		db:          db,
		bus:         b,
		logger:      logger,
		localUserID: localUserID,
		byID:        make(map[string]*Conversation),
	}
}

// SetLocalUser records the authenticated user id. Needed when the
// aggregator is built before login completes.
func (a *Aggregator) SetLocalUser(userID string) {
	a.mu.Lock()
	a.localUserID = userID
	a.mu.Unlock()
}

// Restore loads the cached chat list and the persisted selection from the
// profile database, so the UI has something to show before the first
// refresh completes.
func (a *Aggregator) Restore() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db == nil {
		return
	}
	cached, err := a.db.ListChats()
	if err != nil {
		a.logger.Warn("failed to read cached chat list", zap.Error(err))
		return
	}
	for _, c := range cached {
		conv := &Conversation{
			ID:            c.RoomID,
			CounterpartID: c.CounterpartID,
			DisplayName:   c.Name,
			IsGroup:       c.IsGroup,
			LastMessage:   c.LastMessage,
			LastMessageAt: c.LastMessageAt,
			UnreadCount:   c.UnreadCount,
			AvatarRef:     c.AvatarRef,
			Confirmed:     true,
		}
		a.order = append(a.order, conv.ID)
		a.byID[conv.ID] = conv
	}
	if sel, err := a.db.GetUIState(store.KeySelectedChatID); err == nil && sel != "" {
		a.selectedID = sel
	}
	if acct, err := a.db.GetUIState(store.KeySelectedAccountID); err == nil && acct != "" {
		a.selectedAcctID = acct
	}
}

// LoadInitial replaces the conversation collection with the backend's
// current list. The selection is never disturbed, and client-local
// placeholders survive the replacement since the backend does not know
// them. On error the previous collection stays visible and the list enters
// a retryable failed state.
func (a *Aggregator) LoadInitial(ctx context.Context) error {
	summaries, err := a.api.GetChatList(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		a.loadErr = err.Error()
		a.logger.Warn("chat list refresh failed", zap.Error(err))
		return err
	}
	a.loadErr = ""

	// Keep placeholders, in their current relative order, ahead of the
	// server list.
	var keptIDs []string
	kept := make(map[string]*Conversation)
	for _, id := range a.order {
		if conv := a.byID[id]; conv != nil && conv.Placeholder() {
			keptIDs = append(keptIDs, id)
			kept[id] = conv
		}
	}

	a.order = a.order[:0]
	a.byID = make(map[string]*Conversation, len(summaries)+len(kept))
	for _, id := range keptIDs {
		a.order = append(a.order, id)
		a.byID[id] = kept[id]
	}
	for _, s := range summaries {
		conv := &Conversation{
			ID:            s.RoomID,
			CounterpartID: s.CounterpartID,
			DisplayName:   s.DisplayName,
			IsGroup:       s.IsGroup,
			LastMessage:   s.LastMessage,
			LastMessageAt: s.LastMessageAt,
			UnreadCount:   s.UnreadCount,
			AvatarRef:     s.AvatarRef,
			Confirmed:     true,
		}
		a.order = append(a.order, conv.ID)
		a.byID[conv.ID] = conv
	}

	a.persistListLocked()
	a.publish("chat.list_replaced", "")
	return nil
}

// UpsertFromInboundMessage folds one pushed message into the list. A
// message for an unknown room triggers a full list refresh instead of a
// guessed row: the backend already has the authoritative summary. Unread
// accounting: self-authored messages never increment; a message for the
// selected conversation is acknowledged immediately and stays at zero;
// everything else gains one unread.
func (a *Aggregator) UpsertFromInboundMessage(ctx context.Context, msg push.NewMessage) {
	a.mu.Lock()
	conv, known := a.byID[msg.RoomID]
	if !known {
		a.mu.Unlock()
		a.logger.Info("message for unknown room, refreshing list",
			zap.String("room_id", msg.RoomID))
		_ = a.LoadInitial(ctx)
		return
	}

	conv.LastMessage = msg.Message
	conv.LastMessageAt = msg.SentAt
	conv.Confirmed = true

	switch {
	case msg.SentBy == a.localUserID:
		// Own message echoed back; unread untouched.
	case a.selectedID == conv.ID && a.reads.ShouldMarkRead(conv, true):
		conv.UnreadCount = 0
		a.reads.MarkRead(conv.ID)
	default:
		conv.UnreadCount++
	}

	a.persistChatLocked(conv)
	id := conv.ID
	selected := a.selectedID == id
	a.mu.Unlock()

	a.publish("chat.updated", id)

	if a.windows != nil && selected && msg.SentBy != a.localUserID {
		a.windows.AppendFromPush(id, msg.SentBy, msg.Message, msg.SentAt)
	}
}

// Select makes id the active conversation, persisting the choice. Opening a
// conversation that had unread messages zeroes the counter and issues a
// single mark-read; an already-read conversation stays silent.
func (a *Aggregator) Select(id string) *Conversation {
	a.mu.Lock()
	conv, ok := a.byID[id]
	if !ok {
		a.mu.Unlock()
		return nil
	}

	a.selectedID = id
	if a.db != nil {
		if err := a.db.SetUIState(store.KeySelectedChatID, id); err != nil {
			a.logger.Warn("failed to persist selection", zap.Error(err))
		}
	}

	hadUnread := conv.UnreadCount > 0
	if hadUnread {
		conv.UnreadCount = 0
		a.persistChatLocked(conv)
	}
	markable := a.reads.ShouldMarkRead(conv, true)
	snap := *conv
	a.mu.Unlock()

	if hadUnread && markable {
		a.reads.MarkRead(id)
	}
	a.publish("chat.updated", id)
	return &snap
}

// StartLocal begins a conversation with a directory account. If a
// conversation with that counterpart already exists it is reused; otherwise
// a placeholder with a client-generated id is inserted at the top of the
// list. Either way the conversation becomes the selection.
func (a *Aggregator) StartLocal(account api.Account) *Conversation {
	a.mu.Lock()
	a.selectedAcctID = account.ID
	if a.db != nil {
		if err := a.db.SetUIState(store.KeySelectedAccountID, account.ID); err != nil {
			a.logger.Warn("failed to persist account selection", zap.Error(err))
		}
	}
	for _, id := range a.order {
		if conv := a.byID[id]; conv != nil && conv.CounterpartID == account.ID && !conv.IsGroup {
			a.mu.Unlock()
			return a.Select(id)
		}
	}

	conv := &Conversation{
		ID:            localIDPrefix + uuid.NewString(),
		CounterpartID: account.ID,
		DisplayName:   account.Name,
		AvatarRef:     account.AvatarRef,
	}
	a.order = append([]string{conv.ID}, a.order...)
	a.byID[conv.ID] = conv
	a.selectedID = conv.ID
	if a.db != nil {
		if err := a.db.SetUIState(store.KeySelectedChatID, conv.ID); err != nil {
			a.logger.Warn("failed to persist selection", zap.Error(err))
		}
	}
	snap := *conv
	a.mu.Unlock()

	a.publish("chat.list_replaced", "")
	return &snap
}

// PromoteLocal rewires a placeholder conversation onto the durable server
// room id after its first confirmed message. The selection follows the
// rename if the placeholder was selected. If a refresh already pulled in the
// server room before the ack landed, the placeholder is folded into that
// row instead, so the room never appears twice.
func (a *Aggregator) PromoteLocal(tempID, serverID string) {
	a.mu.Lock()
	conv, ok := a.byID[tempID]
	if !ok || tempID == serverID {
		a.mu.Unlock()
		return
	}

	delete(a.byID, tempID)
	if existing, dup := a.byID[serverID]; dup {
		// The server row is authoritative; it carries the backend's
		// unread count and summary. Drop the placeholder's slot.
		existing.Confirmed = true
		conv = existing
		kept := a.order[:0]
		for _, id := range a.order {
			if id != tempID {
				kept = append(kept, id)
			}
		}
		a.order = kept
	} else {
		conv.ID = serverID
		conv.Confirmed = true
		a.byID[serverID] = conv
		for i, id := range a.order {
			if id == tempID {
				a.order[i] = serverID
				break
			}
		}
	}
	if a.selectedID == tempID {
		a.selectedID = serverID
		if a.db != nil {
			_ = a.db.SetUIState(store.KeySelectedChatID, serverID)
		}
	}
	a.persistChatLocked(conv)
	a.mu.Unlock()

	if a.windows != nil {
		a.windows.Promote(tempID, serverID)
	}
	a.publish("chat.updated", serverID)
}

// Conversations returns the list in display order. Rows keep their position
// across updates; only a full refresh may reorder them.
func (a *Aggregator) Conversations() []Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Conversation, 0, len(a.order))
	for _, id := range a.order {
		if conv := a.byID[id]; conv != nil {
			out = append(out, *conv)
		}
	}
	return out
}

// Selected returns the active conversation, or nil.
func (a *Aggregator) Selected() *Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	if conv, ok := a.byID[a.selectedID]; ok {
		snap := *conv
		return &snap
	}
	return nil
}

// SelectedID returns the active conversation id, which may name a
// conversation not currently in the list.
func (a *Aggregator) SelectedID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectedID
}

// SelectedAccountID returns the directory account last chosen for a new
// conversation, restored across restarts.
func (a *Aggregator) SelectedAccountID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectedAcctID
}

// LoadError returns the last list refresh failure, or empty.
func (a *Aggregator) LoadError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadErr
}

// Start runs the aggregator's event loop: inbound pushed messages, send
// acks from the outbox, and reconnects (which trigger a full refresh since
// pushes were missed while offline).
func (a *Aggregator) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	events, unsub := a.bus.Subscribe("", 64)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-events:
				a.handle(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the event loop.
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *Aggregator) handle(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case "push.message":
		if msg, ok := evt.Payload.(push.NewMessage); ok {
			a.UpsertFromInboundMessage(ctx, msg)
		}
	case "push.connected":
		_ = a.LoadInitial(ctx)
	case "message.send_ack":
		if ack, ok := evt.Payload.(outbox.SendAck); ok {
			a.applySendAck(ack)
		}
	}
}

func (a *Aggregator) applySendAck(ack outbox.SendAck) {
	a.PromoteLocal(ack.LocalRoomID, ack.ServerRoomID)

	a.mu.Lock()
	conv, ok := a.byID[ack.ServerRoomID]
	if !ok {
		a.mu.Unlock()
		return
	}
	conv.LastMessage = ack.Body
	conv.LastMessageAt = ack.SentAt
	conv.Confirmed = true
	a.persistChatLocked(conv)
	id := conv.ID
	a.mu.Unlock()

	if a.windows != nil {
		a.windows.MarkSent(id, ack.ClientMsgID, ack.ServerMsgID)
	}
	a.publish("chat.updated", id)
}

// persistListLocked mirrors the in-memory list to the profile cache.
// Placeholders are skipped; they have no durable identity.
func (a *Aggregator) persistListLocked() {
	if a.db == nil {
		return
	}
	chats := make([]store.Chat, 0, len(a.order))
	for _, id := range a.order {
		conv := a.byID[id]
		if conv == nil || conv.Placeholder() {
			continue
		}
		chats = append(chats, toStoreChat(conv))
	}
	if err := a.db.ReplaceChats(chats); err != nil {
		a.logger.Warn("failed to cache chat list", zap.Error(err))
	}
}

func (a *Aggregator) persistChatLocked(conv *Conversation) {
	if a.db == nil || conv.Placeholder() {
		return
	}
	c := toStoreChat(conv)
	if err := a.db.UpsertChat(&c); err != nil {
		a.logger.Warn("failed to cache chat", zap.Error(err), zap.String("room_id", conv.ID))
	}
}

func toStoreChat(conv *Conversation) store.Chat {
	return store.Chat{
		RoomID:        conv.ID,
		CounterpartID: conv.CounterpartID,
		Name:          conv.DisplayName,
		IsGroup:       conv.IsGroup,
		UnreadCount:   conv.UnreadCount,
		LastMessage:   conv.LastMessage,
		LastMessageAt: conv.LastMessageAt,
		AvatarRef:     conv.AvatarRef,
	}
}

func (a *Aggregator) publish(kind, roomID string) {
	if a.bus != nil {
		a.bus.Publish(bus.Now(kind, roomID))
	}
}
