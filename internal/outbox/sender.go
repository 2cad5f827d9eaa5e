package outbox

import (
	"context"
	"time"

	"github.com/pvieira/emchat/internal/api"
	"github.com/pvieira/emchat/internal/bus"
	"github.com/pvieira/emchat/internal/store"
	"go.uber.org/zap"
)

const pollInterval = 500 * time.Millisecond

// TextSender submits a text message to the backend.
type TextSender interface {
	SendMessage(ctx context.Context, receiverID, text string) (*api.SendResult, error)
}

// SendAck is published on "message.send_ack" once the backend confirms a
// queued message. LocalRoomID is the room the message was queued under,
// which may be a client placeholder id; ServerRoomID is the durable id the
// backend assigned the conversation.
type SendAck struct {
	ClientMsgID  string
	LocalRoomID  string
	ServerRoomID string
	ServerMsgID  string
	ReceiverID   string
	Body         string
	SentAt       int64
}

// SendFailed is published on "message.send_failed". The optimistic message
// stays in the conversation view; the entry is only marked failed in the
// outbox table.
type SendFailed struct {
	ClientMsgID string
	LocalRoomID string
	Error       string
}

// Sender drains the outbox table and submits queued messages to the
// backend, publishing an ack or failure event per entry.
type Sender struct {
	db     *store.DB
	api    TextSender
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, sender TextSender, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{db: db, api: sender, bus: b, logger: logger}
}

// Start begins polling the outbox for queued messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err),
				zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		res, err := s.api.SendMessage(ctx, entry.ReceiverID, entry.Body)
		if err != nil {
			s.logger.Error("failed to send message", zap.Error(err),
				zap.String("client_msg_id", entry.ClientMsgID))
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			s.bus.Publish(bus.Now("message.send_failed", SendFailed{
				ClientMsgID: entry.ClientMsgID,
				LocalRoomID: entry.RoomID,
				Error:       err.Error(),
			}))
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID, res.MessageID, res.RoomID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err),
				zap.String("client_msg_id", entry.ClientMsgID))
		}

		s.logger.Info("message sent",
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.String("server_msg_id", res.MessageID))
		s.bus.Publish(bus.Now("message.send_ack", SendAck{
			ClientMsgID:  entry.ClientMsgID,
			LocalRoomID:  entry.RoomID,
			ServerRoomID: res.RoomID,
			ServerMsgID:  res.MessageID,
			ReceiverID:   entry.ReceiverID,
			Body:         entry.Body,
			SentAt:       res.SentAt,
		}))
	}
}
