package presence

import (
	"context"
	"sync"
	"time"

	"github.com/pvieira/emchat/internal/bus"
	"github.com/pvieira/emchat/internal/push"
	"go.uber.org/zap"
)

// DefaultGrace is how long an offline signal is held before it is applied.
// Reconnecting clients flap offline/online within a few seconds; the grace
// window absorbs that so presence dots do not flicker.
const DefaultGrace = 5 * time.Second

// OnlineFetcher fetches the authoritative online set from the backend.
type OnlineFetcher interface {
	GetOnlineUsers(ctx context.Context) ([]string, error)
}

// Tracker maintains the set of online user ids. Online signals apply
// immediately; offline signals apply after a grace delay unless cancelled by
// an intervening online signal. At most one pending timer exists per user;
// repeated offline signals reset it rather than stacking.
type Tracker struct {
	mu      sync.Mutex
	online  map[string]struct{}
	pending map[string]*time.Timer

	grace  time.Duration
	fetch  OnlineFetcher
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewTracker creates a tracker. grace <= 0 uses DefaultGrace.
func NewTracker(fetch OnlineFetcher, b *bus.Bus, logger *zap.Logger, grace time.Duration) *Tracker {
	if grace <= 0 {
		grace = DefaultGrace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		online:  make(map[string]struct{}),
		pending: make(map[string]*time.Timer),
		grace:   grace,
		fetch:   fetch,
		bus:     b,
		logger:  logger,
	}
}

// Start subscribes to push presence events on the bus. A push.connected
// event (initial connect or reconnect) triggers a full resync because the
// tracker's state is stale after any gap in the stream.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	ch, unsub := t.bus.Subscribe("push.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				t.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the bus subscription loop.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Tracker) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case "push.user_online":
		if p, ok := evt.Payload.(push.UserOnline); ok {
			t.MarkOnline(p.UserID)
		}
	case "push.user_offline":
		if p, ok := evt.Payload.(push.UserOffline); ok {
			t.MarkOffline(p.UserID)
		}
	case "push.connected":
		if err := t.Resync(ctx); err != nil {
			t.logger.Warn("presence resync failed", zap.Error(err))
		}
	}
}

// MarkOnline adds userID to the online set immediately and cancels any
// pending offline timer. Idempotent.
func (t *Tracker) MarkOnline(userID string) {
	t.mu.Lock()
	if timer, ok := t.pending[userID]; ok {
		timer.Stop()
		delete(t.pending, userID)
	}
	_, already := t.online[userID]
	t.online[userID] = struct{}{}
	t.mu.Unlock()

	if !already {
		t.publishChanged(userID, true)
	}
}

// MarkOffline schedules removal of userID after the grace delay. A second
// offline signal resets the existing timer instead of creating another one.
func (t *Tracker) MarkOffline(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.pending[userID]; ok {
		timer.Reset(t.grace)
		return
	}
	t.pending[userID] = time.AfterFunc(t.grace, func() {
		t.applyOffline(userID)
	})
}

func (t *Tracker) applyOffline(userID string) {
	t.mu.Lock()
	delete(t.pending, userID)
	_, was := t.online[userID]
	delete(t.online, userID)
	t.mu.Unlock()

	if was {
		t.publishChanged(userID, false)
	}
}

// IsOnline reports whether userID is currently in the online set.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.online[userID]
	return ok
}

// Snapshot returns a copy of the online set.
func (t *Tracker) Snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	return out
}

// Resync fetches the authoritative online set and replaces the local one
// wholesale. Pending offline timers are dropped: the fetched set already
// reflects the server's view.
func (t *Tracker) Resync(ctx context.Context) error {
	users, err := t.fetch.GetOnlineUsers(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	for id, timer := range t.pending {
		timer.Stop()
		delete(t.pending, id)
	}
	t.online = make(map[string]struct{}, len(users))
	for _, id := range users {
		t.online[id] = struct{}{}
	}
	t.mu.Unlock()

	if t.bus != nil {
		t.bus.Publish(bus.Now("presence.resynced", len(users)))
	}
	return nil
}

// Reset empties the online set and drops all pending timers (logout).
func (t *Tracker) Reset() {
	t.mu.Lock()
	for id, timer := range t.pending {
		timer.Stop()
		delete(t.pending, id)
	}
	t.online = make(map[string]struct{})
	t.mu.Unlock()
}

func (t *Tracker) publishChanged(userID string, online bool) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(bus.Now("presence.changed", Change{UserID: userID, Online: online}))
}

// Change is the payload for presence.changed events.
type Change struct {
	UserID string
	Online bool
}
