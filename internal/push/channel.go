package push

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pvieira/emchat/internal/bus"
	"github.com/pvieira/emchat/internal/status"
	"go.uber.org/zap"
)

// reconnectBackoff is the fixed delay between reconnect attempts.
const reconnectBackoff = 5 * time.Second

// Channel is the websocket push connection to the backend. It publishes
// typed events on the bus ("push.message", "push.user_online",
// "push.user_offline") plus lifecycle markers ("push.connected",
// "push.disconnected") and drives the session state machine.
//
// Loss of the channel degrades silently: consumers keep their last state
// until push.connected triggers their resync.
type Channel struct {
	url     string
	token   string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	backoff time.Duration
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
}

// SetToken replaces the bearer token used on the next dial. Needed when the
// channel is built before the user has logged in.
func (c *Channel) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// NewChannel creates an unconnected push channel.
func NewChannel(url, token string, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		url:     url,
		token:   token,
		bus:     b,
		machine: machine,
		logger:  logger,
		backoff: reconnectBackoff,
		dialer:  websocket.DefaultDialer,
	}
}

// Start launches the connect/read/reconnect loop.
func (c *Channel) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

// Stop tears down the connection and stops reconnecting.
func (c *Channel) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Channel) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		_ = c.machine.Transition(status.Connecting)

		c.mu.Lock()
		token := c.token
		c.mu.Unlock()

		header := http.Header{}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
		conn, _, err := c.dialer.DialContext(ctx, c.url, header)
		if err != nil {
			c.logger.Warn("push channel dial failed", zap.Error(err))
			_ = c.machine.Transition(status.Reconnecting)
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		_ = c.machine.Transition(status.Ready)
		c.logger.Info("push channel connected")
		c.bus.Publish(bus.Now("push.connected", nil))

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		c.bus.Publish(bus.Now("push.disconnected", nil))
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("push channel lost, reconnecting")
		_ = c.machine.Transition(status.Reconnecting)
		if !c.sleep(ctx) {
			return
		}
	}
}

// readLoop pumps frames until the connection breaks. Malformed frames are
// logged and dropped; they never take the channel down.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("push channel read error", zap.Error(err))
			}
			_ = conn.Close()
			return
		}

		evt, err := Parse(frame)
		if err != nil {
			c.logger.Warn("dropping malformed push frame", zap.Error(err))
			continue
		}
		c.bus.Publish(evt)
	}
}

// sleep waits out the reconnect backoff; false means the context ended.
func (c *Channel) sleep(ctx context.Context) bool {
	select {
	case <-time.After(c.backoff):
		return true
	case <-ctx.Done():
		return false
	}
}
