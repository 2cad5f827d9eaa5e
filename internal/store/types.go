package store

// Chat is a cached conversation summary as last seen from the backend.
type Chat struct {
	RoomID        string
	CounterpartID string
	Name          string
	IsGroup       bool
	UnreadCount   int
	LastMessage   string
	LastMessageAt int64
	AvatarRef     string
}

// OutboxEntry is a pending or settled outgoing message. ReceiverID is kept
// because sends are addressed to a counterpart, not a room: the room for a
// first message may not exist server-side yet.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	RoomID       string
	ReceiverID   string
	Body         string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
	ServerRoomID string
}
