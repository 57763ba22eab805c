package history

import (
	"context"
	"sync"
	"time"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

// MemoryStore keeps history in process memory. Contents are lost on exit.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]core.HistoryMessage
	maxLen   int
}

// NewMemoryStore creates a store capping each session at maxLen messages.
// Zero keeps everything.
func NewMemoryStore(maxLen int) *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]core.HistoryMessage), maxLen: maxLen}
}

// AppendHistory stores one message.
func (s *MemoryStore) AppendHistory(_ context.Context, sessionKey string, role core.MessageRole, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.sessions[sessionKey], core.HistoryMessage{
		Role: role, Content: text, CreatedAt: time.Now().UTC(),
	})
	if s.maxLen > 0 && len(msgs) > s.maxLen {
		msgs = append([]core.HistoryMessage(nil), msgs[len(msgs)-s.maxLen:]...)
	}
	s.sessions[sessionKey] = msgs
	return nil
}

// LoadHistory returns at most limit of the newest messages, oldest first.
func (s *MemoryStore) LoadHistory(_ context.Context, sessionKey string, limit int) ([]core.HistoryMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.sessions[sessionKey]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]core.HistoryMessage(nil), msgs...), nil
}
