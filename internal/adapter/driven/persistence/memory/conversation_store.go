// Package memory is the in-process message-store collaborator. Call history
// lives only for the lifetime of the process; durable storage belongs to an
// external system.
package memory

import (
	"context"
	"sync"

	"github.com/waverly-chat/waverly/internal/core/domain"
)

type conversation struct {
	id      domain.ConversationID
	records []domain.CallRecord
}

// ConversationStore implements call.CallStore.
type ConversationStore struct {
	mu    sync.Mutex
	byKey map[string]*conversation
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		byKey: make(map[string]*conversation),
	}
}

// FindOrCreateConversation returns the conversation between a and b,
// creating it on first use. The pair key is order-independent.
func (s *ConversationStore) FindOrCreateConversation(ctx context.Context, a, b domain.UserID) (domain.ConversationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(a, b)
	conv, ok := s.byKey[key]
	if !ok {
		conv = &conversation{id: domain.NewConversationID()}
		s.byKey[key] = conv
	}
	return conv.id, nil
}

func (s *ConversationStore) AppendCallRecord(ctx context.Context, id domain.ConversationID, rec domain.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conv := range s.byKey {
		if conv.id == id {
			conv.records = append(conv.records, rec)
			return nil
		}
	}
	// Unknown conversation: create history lazily rather than fail the
	// fire-and-forget write.
	s.byKey[id.String()] = &conversation{id: id, records: []domain.CallRecord{rec}}
	return nil
}

// Records returns a copy of the call history for a conversation.
func (s *ConversationStore) Records(id domain.ConversationID) []domain.CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conv := range s.byKey {
		if conv.id == id {
			out := make([]domain.CallRecord, len(conv.records))
			copy(out, conv.records)
			return out
		}
	}
	return nil
}

func pairKey(a, b domain.UserID) string {
	if b < a {
		a, b = b, a
	}
	return a.String() + "|" + b.String()
}
