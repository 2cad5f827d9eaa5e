package window

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pvieira/emchat/internal/api"
	"github.com/pvieira/emchat/internal/bus"
)

const me = "user-me"

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]map[int][]api.ChatMessage
	err   error
	// gate, when set, blocks a fetch until released. Keyed by page.
	gates map[int]chan struct{}
	// entered receives the page number when a gated fetch begins waiting.
	entered chan int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[string]map[int][]api.ChatMessage),
		gates: make(map[int]chan struct{}),
	}
}

func (f *fakeFetcher) setPage(roomID string, page int, msgs []api.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages[roomID] == nil {
		f.pages[roomID] = make(map[int][]api.ChatMessage)
	}
	f.pages[roomID][page] = msgs
}

func (f *fakeFetcher) GetChatMessageList(ctx context.Context, roomID string, page int) ([]api.ChatMessage, error) {
	f.mu.Lock()
	gate := f.gates[page]
	entered := f.entered
	err := f.err
	msgs := f.pages[roomID][page]
	f.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- page
		}
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func pageOf(start, n int) []api.ChatMessage {
	out := make([]api.ChatMessage, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, api.ChatMessage{
			ID:       fmt.Sprintf("m%03d", start+i),
			RoomID:   "room-1",
			Text:     fmt.Sprintf("msg %d", start+i),
			SenderID: "user-other",
			SentAt:   int64(1000 + start + i),
		})
	}
	return out
}

func ids(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestFetchPageOneReplacesWindow(t *testing.T) {
	f := newFakeFetcher()
	f.setPage("room-1", 1, pageOf(100, PageSize))
	c := NewCache(f, nil, nil, me)

	if err := c.FetchPage(context.Background(), "room-1", 1); err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if got := len(c.Window("room-1")); got != PageSize {
		t.Fatalf("window size = %d, want %d", got, PageSize)
	}
	if !c.HasMore("room-1") {
		t.Fatal("full page should imply more history")
	}

	// Refetching page 1 replaces, not appends.
	if err := c.FetchPage(context.Background(), "room-1", 1); err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if got := len(c.Window("room-1")); got != PageSize {
		t.Fatalf("window size after refetch = %d, want %d", got, PageSize)
	}
}

func TestFetchOlderPagePrependsWithoutDuplicates(t *testing.T) {
	f := newFakeFetcher()
	f.setPage("room-1", 1, pageOf(100, PageSize))
	// Page 2 overlaps page 1 by one message; the overlap must be skipped.
	older := pageOf(80, PageSize)
	older[PageSize-1] = pageOf(100, 1)[0]
	f.setPage("room-1", 2, older)

	c := NewCache(f, nil, nil, me)
	if err := c.FetchPage(context.Background(), "room-1", 1); err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if err := c.FetchPage(context.Background(), "room-1", 2); err != nil {
		t.Fatalf("page 2: %v", err)
	}

	w := c.Window("room-1")
	if want := 2*PageSize - 1; len(w) != want {
		t.Fatalf("window size = %d, want %d", len(w), want)
	}
	if w[0].ID != "m080" {
		t.Fatalf("oldest message = %s, want m080", w[0].ID)
	}
	if w[len(w)-1].ID != fmt.Sprintf("m%03d", 100+PageSize-1) {
		t.Fatalf("newest message = %s", w[len(w)-1].ID)
	}
	seen := make(map[string]int)
	for _, id := range ids(w) {
		seen[id]++
		if seen[id] > 1 {
			t.Fatalf("duplicate message %s", id)
		}
	}
	if c.TopPage("room-1") != 2 {
		t.Fatalf("top page = %d, want 2", c.TopPage("room-1"))
	}
}

func TestStalePageResponseDropped(t *testing.T) {
	f := newFakeFetcher()
	f.setPage("room-1", 1, pageOf(100, 3))
	f.setPage("room-1", 2, pageOf(80, 3))

	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[2] = gate
	f.entered = make(chan int, 1)
	f.mu.Unlock()

	c := NewCache(f, nil, nil, me)

	done := make(chan error, 1)
	go func() {
		done <- c.FetchPage(context.Background(), "room-1", 2)
	}()

	// Wait until the page 2 fetch is in flight before issuing the newer one.
	select {
	case <-f.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("page 2 fetch never started")
	}

	// A newer fetch lands while page 2 is still in flight.
	if err := c.FetchPage(context.Background(), "room-1", 1); err != nil {
		t.Fatalf("page 1: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("stale fetch should drop silently, got %v", err)
	}

	w := c.Window("room-1")
	if len(w) != 3 {
		t.Fatalf("window size = %d, want 3", len(w))
	}
	if w[0].ID != "m100" {
		t.Fatalf("window head = %s, want m100 from the newer fetch", w[0].ID)
	}
}

func TestFetchErrorKeepsLoadedMessages(t *testing.T) {
	f := newFakeFetcher()
	f.setPage("room-1", 1, pageOf(100, 5))
	c := NewCache(f, nil, nil, me)

	if err := c.FetchPage(context.Background(), "room-1", 1); err != nil {
		t.Fatalf("page 1: %v", err)
	}

	f.mu.Lock()
	f.err = errors.New("backend down")
	f.mu.Unlock()

	if err := c.FetchPage(context.Background(), "room-1", 2); err == nil {
		t.Fatal("expected fetch error")
	}
	if len(c.Window("room-1")) != 5 {
		t.Fatal("fetch error must not discard loaded messages")
	}
	if c.FetchError("room-1") == "" {
		t.Fatal("fetch error flag not set")
	}

	f.mu.Lock()
	f.err = nil
	f.mu.Unlock()
	if err := c.FetchPage(context.Background(), "room-1", 1); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if c.FetchError("room-1") != "" {
		t.Fatal("fetch error flag should clear on success")
	}
}

func TestSelfAuthoredPushSuppressed(t *testing.T) {
	c := NewCache(newFakeFetcher(), nil, nil, me)

	c.AppendOptimistic("room-1", Message{ID: "client-1", Text: "hello"})

	if appended := c.AppendFromPush("room-1", me, "hello", 2000); appended {
		t.Fatal("self-authored push must be suppressed")
	}
	if appended := c.AppendFromPush("room-1", "user-other", "hi back", 2001); !appended {
		t.Fatal("peer push should append")
	}

	w := c.Window("room-1")
	if len(w) != 2 {
		t.Fatalf("window size = %d, want 2", len(w))
	}
	hellos := 0
	for _, m := range w {
		if m.Text == "hello" {
			hellos++
		}
	}
	if hellos != 1 {
		t.Fatalf("message appears %d times, want exactly once", hellos)
	}
}

func TestMarkSentSettlesOptimisticEntry(t *testing.T) {
	c := NewCache(newFakeFetcher(), nil, nil, me)
	c.AppendOptimistic("room-1", Message{ID: "client-1", Text: "hello"})

	c.MarkSent("room-1", "client-1", "srv-42")

	w := c.Window("room-1")
	if w[0].ID != "srv-42" {
		t.Fatalf("message id = %s, want srv-42", w[0].ID)
	}
	if w[0].Pending {
		t.Fatal("acknowledged message still pending")
	}
}

func TestPromoteRemapsWindow(t *testing.T) {
	c := NewCache(newFakeFetcher(), nil, nil, me)
	c.AppendOptimistic("local-abc", Message{ID: "client-1", Text: "first"})

	c.Promote("local-abc", "room-9")

	if c.Window("local-abc") != nil {
		t.Fatal("placeholder window should be gone")
	}
	w := c.Window("room-9")
	if len(w) != 1 || w[0].RoomID != "room-9" {
		t.Fatalf("promoted window = %+v", w)
	}
}

func TestPromoteKeepsAlreadyFetchedWindow(t *testing.T) {
	f := newFakeFetcher()
	f.setPage("room-9", 1, []api.ChatMessage{
		{ID: "srv-1", RoomID: "room-9", Text: "fetched"},
	})
	c := NewCache(f, bus.New(), nil, me)
	if err := c.FetchPage(context.Background(), "room-9", 1); err != nil {
		t.Fatal(err)
	}
	c.AppendOptimistic("local-abc", Message{ID: "client-1", Text: "pending"})

	c.Promote("local-abc", "room-9")

	w := c.Window("room-9")
	if len(w) != 2 {
		t.Fatalf("merged window has %d messages, want 2: %+v", len(w), w)
	}
	if w[0].ID != "srv-1" || w[1].ID != "client-1" {
		t.Fatalf("merged window order = [%s %s]", w[0].ID, w[1].ID)
	}
	if w[1].RoomID != "room-9" {
		t.Fatalf("carried entry room = %s, want room-9", w[1].RoomID)
	}
}

func TestScrollSignalOnlyOnPageOne(t *testing.T) {
	f := newFakeFetcher()
	f.setPage("room-1", 1, pageOf(100, PageSize))
	f.setPage("room-1", 2, pageOf(80, PageSize))

	b := bus.New()
	ch, dispose := b.Subscribe("chat.scroll_bottom", 8)
	defer dispose()

	c := NewCache(f, b, nil, me)
	if err := c.FetchPage(context.Background(), "room-1", 1); err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if err := c.FetchPage(context.Background(), "room-1", 2); err != nil {
		t.Fatalf("page 2: %v", err)
	}

	got := 0
	for {
		select {
		case <-ch:
			got++
		default:
			if got != 1 {
				t.Fatalf("scroll signals = %d, want 1", got)
			}
			return
		}
	}
}
