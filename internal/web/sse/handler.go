// Package sse provides Server-Sent Events handlers for streaming events to web clients.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/iamxurulin/xu-AI-Zero/internal/events"
)

// DefaultHeartbeat is the interval between keep-alive comments.
const DefaultHeartbeat = 30 * time.Second

// Writer frames values as SSE messages on a flushing response.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the SSE headers. It fails when the response cannot flush.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &Writer{w: w, flusher: flusher}, nil
}

// Event sends a named event with a JSON payload.
func (sw *Writer) Event(name string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// Comment sends an SSE comment line, used for heartbeats.
func (sw *Writer) Comment(text string) {
	fmt.Fprintf(sw.w, ": %s\n\n", text)
	sw.flusher.Flush()
}

// Handler streams events from the EventBus to connected SSE clients.
type Handler struct {
	bus           *events.EventBus
	mu            sync.RWMutex
	clients       map[*client]struct{}
	heartbeatFreq time.Duration
}

// client represents a connected SSE client.
type client struct {
	id     string
	done   chan struct{}
	run    string   // optional filter by run ID
	types  []string // optional filter by event type
	closed bool     // tracks if done channel is already closed
}

// NewHandler creates a new SSE handler connected to the given EventBus.
func NewHandler(bus *events.EventBus) *Handler {
	return &Handler{
		bus:           bus,
		clients:       make(map[*client]struct{}),
		heartbeatFreq: DefaultHeartbeat,
	}
}

// SetHeartbeatFrequency sets the interval between heartbeat messages.
func (h *Handler) SetHeartbeatFrequency(d time.Duration) {
	h.heartbeatFreq = d
}

// ServeHTTP implements http.Handler for SSE connections. Query parameters
// run and types narrow the stream.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sw, err := NewWriter(w)
	if err != nil {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	c := &client{
		id:    fmt.Sprintf("%d", time.Now().UnixNano()),
		done:  make(chan struct{}),
		run:   r.URL.Query().Get("run"),
		types: splitList(r.URL.Query().Get("types")),
	}

	h.addClient(c)
	defer h.removeClient(c)

	// Subscribe before announcing the connection so nothing published after
	// the client saw "connected" is missed.
	eventCh := h.bus.Subscribe(c.types...)
	defer h.bus.Unsubscribe(eventCh)

	_ = sw.Event("connected", map[string]string{
		"client_id": c.id,
		"run":       c.run,
	})

	heartbeat := time.NewTicker(h.heartbeatFreq)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-heartbeat.C:
			sw.Comment("heartbeat")
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if c.run != "" && event.RunID() != "" && event.RunID() != c.run {
				continue
			}
			if err := sw.Event(event.EventType(), event); err != nil {
				return
			}
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// addClient registers a client.
func (h *Handler) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// removeClient unregisters a client.
func (h *Handler) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// ClientCount returns the number of connected clients.
func (h *Handler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown gracefully disconnects all clients.
func (h *Handler) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if !c.closed {
			c.closed = true
			close(c.done)
		}
	}
	h.clients = make(map[*client]struct{})
	return nil
}
