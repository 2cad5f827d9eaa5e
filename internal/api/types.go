package api

import "encoding/json"

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// ChatSummary is a conversation as the backend reports it in the chat list.
type ChatSummary struct {
	RoomID        string `json:"roomId"`
	CounterpartID string `json:"accountId"`
	DisplayName   string `json:"name"`
	IsGroup       bool   `json:"isGroup"`
	LastMessage   string `json:"lastMessage"`
	LastMessageAt int64  `json:"lastMessageAt"`
	UnreadCount   int    `json:"unreadCount"`
	AvatarRef     string `json:"avatar"`
}

// ChatMessage is a persisted message from the message history endpoint.
type ChatMessage struct {
	ID       string `json:"id"`
	RoomID   string `json:"roomId"`
	Text     string `json:"text"`
	SenderID string `json:"sentBy"`
	SentAt   int64  `json:"sentAt"`
	Read     *bool  `json:"read"`
}

// Account is a directory entry usable as a chat counterpart.
type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarRef string `json:"avatar"`
	Online    bool   `json:"online"`
}

// SendResult is the backend's acknowledgment of a sent message. RoomID is the
// durable room identifier, which for a first message to a new counterpart is
// freshly issued by the server.
type SendResult struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	SentAt    int64  `json:"sentAt"`
}

// LoginResult is the authentication payload.
type LoginResult struct {
	Token       string `json:"token"`
	UserID      string `json:"userId"`
	DisplayName string `json:"name"`
}
