package window

import (
	"context"
	"sync"

	"github.com/pvieira/emchat/internal/api"
	"github.com/pvieira/emchat/internal/bus"
	"go.uber.org/zap"
)

// PageSize is the fixed message-history page size.
const PageSize = 20

// Message is one entry in a conversation's message window.
type Message struct {
	ID     string // server id once persisted, client id while pending
	RoomID string
	Text   string
	Mine   bool
	SentAt int64 // unix ms
	Read   *bool
	// Pending marks an optimistic entry not yet acknowledged. A failed send
	// leaves it pending forever; there is no rollback path.
	Pending bool
}

// Fetcher fetches one page of a room's history from the backend.
type Fetcher interface {
	GetChatMessageList(ctx context.Context, roomID string, page int) ([]api.ChatMessage, error)
}

// Cache holds the paginated message window of each conversation. Page 1
// replaces a window; higher pages prepend older history. Windows only grow:
// nothing in the app evicts messages.
type Cache struct {
	mu sync.Mutex

	api         Fetcher
	bus         *bus.Bus
	logger      *zap.Logger
	localUserID string
	windows     map[string]*state
}

type state struct {
	msgs []Message
	// latestGen counts fetches issued for this room. A response generated
	// by an older fetch than the newest issued one is stale and dropped.
	latestGen uint64
	fetchErr  string
	hasMore   bool
	topPage   int
}

// NewCache creates an empty cache.
func NewCache(f Fetcher, b *bus.Bus, logger *zap.Logger, localUserID string) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		api:         f,
		bus:         b,
		logger:      logger,
		localUserID: localUserID,
		windows:     make(map[string]*state),
	}
}

// FetchPage loads one history page for roomID. Page 1 replaces the stored
// window and signals scroll-to-bottom; pages above 1 prepend older messages
// without reordering or duplicating what is already loaded, and never
// scroll. A fetch error sets the room's error flag but leaves loaded
// messages intact.
func (c *Cache) FetchPage(ctx context.Context, roomID string, page int) error {
	if page < 1 {
		page = 1
	}

	c.mu.Lock()
	w := c.window(roomID)
	w.latestGen++
	gen := w.latestGen
	c.mu.Unlock()

	msgs, err := c.api.GetChatMessageList(ctx, roomID, page)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != w.latestGen {
		// A newer fetch for this room superseded us; whatever we got must
		// not overwrite its result.
		c.logger.Debug("dropping stale page response",
			zap.String("room_id", roomID), zap.Int("page", page))
		return nil
	}

	if err != nil {
		w.fetchErr = err.Error()
		return err
	}
	w.fetchErr = ""
	w.hasMore = len(msgs) == PageSize

	incoming := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		incoming = append(incoming, c.fromAPI(roomID, m))
	}

	if page == 1 {
		w.msgs = incoming
		w.topPage = 1
		c.publish("chat.scroll_bottom", roomID)
	} else {
		// Prepend, skipping anything already in the window.
		present := make(map[string]struct{}, len(w.msgs))
		for _, m := range w.msgs {
			if m.ID != "" {
				present[m.ID] = struct{}{}
			}
		}
		fresh := incoming[:0]
		for _, m := range incoming {
			if _, dup := present[m.ID]; dup {
				continue
			}
			fresh = append(fresh, m)
		}
		w.msgs = append(append([]Message{}, fresh...), w.msgs...)
		if page > w.topPage {
			w.topPage = page
		}
	}

	c.publish("message.window_updated", roomID)
	return nil
}

// AppendOptimistic inserts a locally sent message at the tail immediately,
// before any server acknowledgment.
func (c *Cache) AppendOptimistic(roomID string, msg Message) {
	msg.RoomID = roomID
	msg.Mine = true
	msg.Pending = true

	c.mu.Lock()
	w := c.window(roomID)
	w.msgs = append(w.msgs, msg)
	c.mu.Unlock()

	c.publish("message.window_updated", roomID)
	c.publish("chat.scroll_bottom", roomID)
}

// SetLocalUser records the authenticated user id. Needed when the cache is
// built before login completes.
func (c *Cache) SetLocalUser(userID string) {
	c.mu.Lock()
	c.localUserID = userID
	c.mu.Unlock()
}

// AppendFromPush inserts a push-delivered message at the tail. Self-authored
// pushes are suppressed: the optimistic insert already covers them, and a
// second entry would duplicate the message. Returns whether the message was
// appended.
func (c *Cache) AppendFromPush(roomID string, senderID, text string, sentAt int64) bool {
	c.mu.Lock()
	if senderID == c.localUserID {
		c.mu.Unlock()
		return false
	}
	w := c.window(roomID)
	w.msgs = append(w.msgs, Message{
		RoomID: roomID,
		Text:   text,
		SentAt: sentAt,
	})
	c.mu.Unlock()

	c.publish("message.window_updated", roomID)
	c.publish("chat.scroll_bottom", roomID)
	return true
}

// MarkSent settles an optimistic entry with its server id.
func (c *Cache) MarkSent(roomID, clientMsgID, serverMsgID string) {
	c.mu.Lock()
	w, ok := c.windows[roomID]
	if ok {
		for i := range w.msgs {
			if w.msgs[i].ID == clientMsgID {
				w.msgs[i].ID = serverMsgID
				w.msgs[i].Pending = false
				break
			}
		}
	}
	c.mu.Unlock()

	if ok {
		c.publish("message.window_updated", roomID)
	}
}

// Promote remaps a placeholder conversation's window to its server room id.
func (c *Cache) Promote(tempID, serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[tempID]
	if !ok {
		return
	}
	delete(c.windows, tempID)
	for i := range w.msgs {
		w.msgs[i].RoomID = serverID
	}
	if existing, dup := c.windows[serverID]; dup {
		// A window was already fetched under the server id. Keep it and
		// carry the local entries over to its tail.
		existing.msgs = append(existing.msgs, w.msgs...)
		return
	}
	c.windows[serverID] = w
}

// Window returns a copy of a room's message window in display order.
func (c *Cache) Window(roomID string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[roomID]
	if !ok {
		return nil
	}
	out := make([]Message, len(w.msgs))
	copy(out, w.msgs)
	return out
}

// FetchError returns the room's current fetch error message, if any.
func (c *Cache) FetchError(roomID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.windows[roomID]; ok {
		return w.fetchErr
	}
	return ""
}

// HasMore reports whether older pages likely remain for the room.
func (c *Cache) HasMore(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.windows[roomID]; ok {
		return w.hasMore
	}
	return false
}

// TopPage returns the highest (oldest) page fetched for the room.
func (c *Cache) TopPage(roomID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.windows[roomID]; ok {
		return w.topPage
	}
	return 0
}

func (c *Cache) window(roomID string) *state {
	w, ok := c.windows[roomID]
	if !ok {
		w = &state{}
		c.windows[roomID] = w
	}
	return w
}

func (c *Cache) fromAPI(roomID string, m api.ChatMessage) Message {
	return Message{
		ID:     m.ID,
		RoomID: roomID,
		Text:   m.Text,
		Mine:   m.SenderID == c.localUserID,
		SentAt: m.SentAt,
		Read:   m.Read,
	}
}

func (c *Cache) publish(kind, roomID string) {
	if c.bus != nil {
		c.bus.Publish(bus.Now(kind, roomID))
	}
}
