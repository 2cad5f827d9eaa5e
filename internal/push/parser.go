package push

import (
	"encoding/json"
	"fmt"

	"github.com/pvieira/emchat/internal/bus"
)

// envelope is the wire shape of every push frame: the event name
// discriminates the data payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Parse validates a raw push frame and converts it into a typed bus event.
// Frames with unknown event names or payloads missing their required ids are
// rejected here, at the boundary, so nothing malformed reaches the
// reconciler.
func Parse(frame []byte) (bus.Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return bus.Event{}, fmt.Errorf("decode push frame: %w", err)
	}

	switch env.Event {
	case EventNewMessage:
		var p NewMessage
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return bus.Event{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if p.RoomID == "" || p.SentBy == "" {
			return bus.Event{}, fmt.Errorf("%s missing roomId or sentBy", env.Event)
		}
		return bus.Now("push.message", p), nil

	case EventUserOnline:
		var p UserOnline
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return bus.Event{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if p.UserID == "" {
			return bus.Event{}, fmt.Errorf("%s missing userId", env.Event)
		}
		return bus.Now("push.user_online", p), nil

	case EventUserOffline:
		var p UserOffline
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return bus.Event{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if p.UserID == "" {
			return bus.Event{}, fmt.Errorf("%s missing userId", env.Event)
		}
		return bus.Now("push.user_offline", p), nil

	default:
		return bus.Event{}, fmt.Errorf("unknown push event %q", env.Event)
	}
}
