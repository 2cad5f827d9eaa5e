package model

import (
	"sync"
	"time"
)

// Flash is the status bar's transient notice slot. A notice carries a
// severity so failed sends and refresh errors render hotter than plain
// informational hints, and it reads as empty once its deadline passes.
type Flash struct {
	mu       sync.RWMutex
	text     string
	isErr    bool
	deadline time.Time
}

// Info posts an informational notice visible for d.
func (f *Flash) Info(text string, d time.Duration) {
	f.post(text, false, d)
}

// Error posts a failure notice visible for d.
func (f *Flash) Error(text string, d time.Duration) {
	f.post(text, true, d)
}

func (f *Flash) post(text string, isErr bool, d time.Duration) {
	f.mu.Lock()
	f.text = text
	f.isErr = isErr
	f.deadline = time.Now().Add(d)
	f.mu.Unlock()
}

// Get returns the active notice and whether it reports a failure.
func (f *Flash) Get() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.deadline) {
		return "", false
	}
	return f.text, f.isErr
}
