package service

import (
	"sync"

	"github.com/waverly-chat/waverly/internal/core/domain"
)

// TypingTracker keeps the set of users currently typing per chat. It is an
// explicit service object injected at startup, not package state.
type TypingTracker struct {
	mu     sync.Mutex
	typing map[domain.ChatID]map[domain.UserID]struct{}
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{
		typing: make(map[domain.ChatID]map[domain.UserID]struct{}),
	}
}

// Start marks userID as typing in chatID. Returns false if it already was.
func (t *TypingTracker) Start(chatID domain.ChatID, userID domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.typing[chatID]
	if !ok {
		set = make(map[domain.UserID]struct{})
		t.typing[chatID] = set
	}
	if _, exists := set[userID]; exists {
		return false
	}
	set[userID] = struct{}{}
	return true
}

// Stop clears userID's typing state in chatID, dropping the chat entry when
// its set empties.
func (t *TypingTracker) Stop(chatID domain.ChatID, userID domain.UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.typing[chatID]
	if !ok {
		return
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(t.typing, chatID)
	}
}

// Typing reports whether userID is currently typing in chatID.
func (t *TypingTracker) Typing(chatID domain.ChatID, userID domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.typing[chatID][userID]
	return ok
}
