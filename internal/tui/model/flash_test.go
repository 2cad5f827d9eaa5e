package model

import (
	"testing"
	"time"
)

func TestFlashSeverity(t *testing.T) {
	var f Flash

	f.Info("saved", time.Second)
	if msg, isErr := f.Get(); msg != "saved" || isErr {
		t.Fatalf("Get() = (%q, %v), want (saved, false)", msg, isErr)
	}

	f.Error("send failed", time.Second)
	if msg, isErr := f.Get(); msg != "send failed" || !isErr {
		t.Fatalf("Get() = (%q, %v), want (send failed, true)", msg, isErr)
	}
}

func TestFlashExpires(t *testing.T) {
	var f Flash

	f.Error("boom", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if msg, isErr := f.Get(); msg != "" || isErr {
		t.Fatalf("expired Get() = (%q, %v), want empty", msg, isErr)
	}
}

func TestFlashZeroValueEmpty(t *testing.T) {
	var f Flash
	if msg, isErr := f.Get(); msg != "" || isErr {
		t.Fatalf("zero value Get() = (%q, %v), want empty", msg, isErr)
	}
}
