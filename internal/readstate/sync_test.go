package readstate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeMarker struct {
	calls atomic.Int32
	err   error
}

func (f *fakeMarker) MarkChatAsRead(_ context.Context, _ string) error {
	f.calls.Add(1)
	return f.err
}

type conv bool

func (c conv) Placeholder() bool { return bool(c) }

func TestShouldMarkRead(t *testing.T) {
	s := New(&fakeMarker{}, nil)

	tests := []struct {
		name        string
		placeholder bool
		selected    bool
		want        bool
	}{
		{"selected confirmed", false, true, true},
		{"selected placeholder", true, true, false},
		{"unselected confirmed", false, false, false},
		{"unselected placeholder", true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.ShouldMarkRead(conv(tt.placeholder), tt.selected); got != tt.want {
				t.Errorf("ShouldMarkRead() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldMarkReadNilConversation(t *testing.T) {
	s := New(&fakeMarker{}, nil)
	if s.ShouldMarkRead(nil, true) {
		t.Error("ShouldMarkRead(nil, true) = true, want false")
	}
}

func TestMarkReadFireAndForget(t *testing.T) {
	f := &fakeMarker{}
	s := New(f, nil)

	s.MarkRead("r1")

	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("MarkRead never reached the backend")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestMarkReadFailureIsSwallowed(t *testing.T) {
	f := &fakeMarker{err: errors.New("backend down")}
	s := New(f, nil)

	// Must not panic or retry; the error is only logged.
	s.MarkRead("r1")

	time.Sleep(50 * time.Millisecond)
	if got := f.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want exactly 1 (no retries)", got)
	}
}
