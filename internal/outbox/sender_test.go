package outbox

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pvieira/emchat/internal/api"
	"github.com/pvieira/emchat/internal/bus"
	"github.com/pvieira/emchat/internal/store"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "emchat.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// mockSender records calls and returns configurable results.
type mockSender struct {
	mu    sync.Mutex
	calls []string
	err   error
	delay time.Duration
}

func (m *mockSender) SendMessage(ctx context.Context, receiverID, text string) (*api.SendResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, receiverID+":"+text)
	err := m.err
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return &api.SendResult{
		RoomID:    "room-srv",
		MessageID: "msg-srv",
		SentAt:    time.Now().UnixMilli(),
	}, nil
}

func (m *mockSender) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestSenderDrainsQueueAndPublishesAck(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{}
	s := NewSender(db, mock, b, zap.NewNop())

	if err := db.QueueOutbox("c1", "local-room", "user-7", "hello"); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe("message.send_ack", 10)
	defer unsub()

	s.Start(context.Background())
	defer s.Stop()

	select {
	case evt := <-ch:
		ack, ok := evt.Payload.(SendAck)
		if !ok {
			t.Fatalf("payload type %T", evt.Payload)
		}
		if ack.ClientMsgID != "c1" || ack.LocalRoomID != "local-room" {
			t.Fatalf("ack = %+v", ack)
		}
		if ack.ServerRoomID != "room-srv" || ack.ServerMsgID != "msg-srv" {
			t.Fatalf("ack server ids = %+v", ack)
		}
		if ack.Body != "hello" {
			t.Fatalf("ack body = %q", ack.Body)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for send ack")
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after ack = %d, want 0", len(pending))
	}
}

func TestSenderFailurePublishesFailedAndKeepsNoRetry(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{err: fmt.Errorf("backend rejected")}
	s := NewSender(db, mock, b, zap.NewNop())

	if err := db.QueueOutbox("c1", "room-1", "user-7", "will-fail"); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe("message.send_failed", 10)
	defer unsub()

	s.Start(context.Background())
	defer s.Stop()

	select {
	case evt := <-ch:
		fail, ok := evt.Payload.(SendFailed)
		if !ok {
			t.Fatalf("payload type %T", evt.Payload)
		}
		if fail.ClientMsgID != "c1" || fail.Error == "" {
			t.Fatalf("failure = %+v", fail)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for send failure")
	}

	// Failed entries leave the queue; there is no automatic retry.
	time.Sleep(2 * pollInterval)
	if got := mock.callCount(); got != 1 {
		t.Fatalf("send attempts = %d, want 1", got)
	}
}

func TestSenderSendsOldestFirst(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{}
	s := NewSender(db, mock, b, zap.NewNop())

	if err := db.QueueOutbox("c1", "room-1", "user-7", "first"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := db.QueueOutbox("c2", "room-1", "user-7", "second"); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe("message.send_ack", 10)
	defer unsub()

	s.Start(context.Background())
	defer s.Stop()

	var order []string
	for len(order) < 2 {
		select {
		case evt := <-ch:
			order = append(order, evt.Payload.(SendAck).ClientMsgID)
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout, got %v", order)
		}
	}
	if order[0] != "c1" || order[1] != "c2" {
		t.Fatalf("send order = %v, want [c1 c2]", order)
	}
}
