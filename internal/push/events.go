package push

// Event names carried in the push envelope.
const (
	EventNewMessage  = "NewMessage"
	EventUserOnline  = "UserOnline"
	EventUserOffline = "UserOffline"
)

// NewMessage is a live chat message delivered over the push channel.
type NewMessage struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
	SentBy  string `json:"sentBy"`
	SentTo  string `json:"sentTo"`
	SentAt  int64  `json:"sentAt"`
}

// UserOnline signals that a user's push connection came up.
type UserOnline struct {
	UserID string `json:"userId"`
}

// UserOffline signals that a user's push connection dropped. Consumers apply
// it after a grace window, not immediately.
type UserOffline struct {
	UserID string `json:"userId"`
}
