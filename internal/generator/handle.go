// Package generator provides session-scoped generator handles and the
// bounded cache that hands them out.
package generator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

// DefaultMemoryWindow is the number of messages a handle keeps.
const DefaultMemoryWindow = 50

// Key identifies one handle.
type Key struct {
	SessionKey string
	Type       core.GenerationType
}

func (k Key) String() string {
	return fmt.Sprintf("%s_%s", k.SessionKey, k.Type)
}

// Memory is a sliding window of conversation messages.
type Memory struct {
	mu       sync.Mutex
	window   int
	messages []core.HistoryMessage
}

// NewMemory creates a memory holding at most window messages.
func NewMemory(window int) *Memory {
	if window <= 0 {
		window = DefaultMemoryWindow
	}
	return &Memory{window: window}
}

// Add appends a message, dropping the oldest beyond the window.
func (m *Memory) Add(msg core.HistoryMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	if over := len(m.messages) - m.window; over > 0 {
		m.messages = append(m.messages[:0:0], m.messages[over:]...)
	}
}

// Messages returns a copy, oldest first.
func (m *Memory) Messages() []core.HistoryMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.HistoryMessage(nil), m.messages...)
}

// Len returns the number of remembered messages.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// Handle produces code for one session and generation type, carrying the
// conversation so far into every call.
type Handle struct {
	id      string
	key     Key
	model   core.CodeModel
	memory  *Memory
	created time.Time
}

func newHandle(key Key, model core.CodeModel, memory *Memory, now time.Time) *Handle {
	return &Handle{
		id:      uuid.NewString(),
		key:     key,
		model:   model,
		memory:  memory,
		created: now,
	}
}

// ID is unique per constructed handle.
func (h *Handle) ID() string { return h.id }

// Key returns the handle's cache key.
func (h *Handle) Key() Key { return h.key }

// Created returns the construction time.
func (h *Handle) Created() time.Time { return h.created }

// Memory exposes the conversation window.
func (h *Handle) Memory() *Memory { return h.memory }

// Generate starts a generation. The prompt joins memory after the request
// snapshot is taken, so the model sees it once as the prompt and not again
// as history. The reply is added by whoever consumes the stream.
func (h *Handle) Generate(ctx context.Context, prompt, outputDir string) (<-chan core.GenerationEvent, error) {
	req := core.GenerationRequest{
		SessionKey: h.key.SessionKey,
		Type:       h.key.Type,
		Prompt:     prompt,
		History:    h.memory.Messages(),
		OutputDir:  outputDir,
	}
	h.Remember(core.RoleUser, prompt)
	return h.model.StreamCode(ctx, req)
}

// Remember adds a message to the handle's memory.
func (h *Handle) Remember(role core.MessageRole, text string) {
	h.memory.Add(core.HistoryMessage{Role: role, Content: text, CreatedAt: time.Now()})
}
