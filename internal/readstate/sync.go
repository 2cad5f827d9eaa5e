package readstate

import (
	"context"

	"go.uber.org/zap"
)

// Marker is the backend call that zeroes a room's unread counter.
type Marker interface {
	MarkChatAsRead(ctx context.Context, roomID string) error
}

// Conversation is the slice of a chat summary the synchronizer inspects.
type Conversation interface {
	// Placeholder reports whether the conversation only exists client-side:
	// a locally generated id with no confirmed message yet.
	Placeholder() bool
}

// Synchronizer decides when a conversation may be acknowledged as read and
// issues the backend call. Mark-read is fire-and-forget: a failure is logged
// and the locally zeroed unread count is not rolled back, so local and
// server state can diverge until the next list fetch.
type Synchronizer struct {
	api    Marker
	logger *zap.Logger
}

// New creates a synchronizer.
func New(api Marker, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{api: api, logger: logger}
}

// ShouldMarkRead reports whether an inbound message on conv may be
// acknowledged immediately: only when conv is the actively selected
// conversation and is not a client-local placeholder. Marking a placeholder
// read would hit the backend with an id it never issued.
func (s *Synchronizer) ShouldMarkRead(conv Conversation, selected bool) bool {
	return selected && conv != nil && !conv.Placeholder()
}

// MarkRead issues the mark-read request in the background. The caller has
// already zeroed its local counter; nothing is retried or rolled back on
// failure.
func (s *Synchronizer) MarkRead(roomID string) {
	go func() {
		if err := s.api.MarkChatAsRead(context.Background(), roomID); err != nil {
			s.logger.Warn("mark read failed", zap.String("room_id", roomID), zap.Error(err))
		}
	}()
}
