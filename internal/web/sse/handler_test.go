package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iamxurulin/xu-AI-Zero/internal/events"
)

// connect opens a stream and consumes the connected event.
func connect(t *testing.T, ctx context.Context, url string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read event line: %v", err)
	}
	if !strings.HasPrefix(line, "event: connected") {
		t.Fatalf("expected connected event, got %s", line)
	}
	_, _ = reader.ReadString('\n') // data
	_, _ = reader.ReadString('\n') // blank
	return resp, reader
}

func readEvent(t *testing.T, reader *bufio.Reader) (string, map[string]interface{}) {
	t.Helper()
	eventLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read event line: %v", err)
	}
	dataLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read data line: %v", err)
	}
	_, _ = reader.ReadString('\n')

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &data); err != nil {
		t.Fatalf("failed to parse event data: %v", err)
	}
	return strings.TrimSpace(strings.TrimPrefix(eventLine, "event: ")), data
}

func TestHandler_ServeHTTP_SetsHeaders(t *testing.T) {
	bus := events.New(100)
	defer bus.Close()

	ts := httptest.NewServer(NewHandler(bus))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, _ := connect(t, ctx, ts.URL)
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected Content-Type text/event-stream, got %s", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected Cache-Control no-cache, got %s", cc)
	}
}

func TestHandler_StreamsEvents(t *testing.T) {
	bus := events.New(100)
	defer bus.Close()

	h := NewHandler(bus)
	h.SetHeartbeatFrequency(10 * time.Second)
	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, reader := connect(t, ctx, ts.URL)
	defer resp.Body.Close()

	bus.Publish(events.NewWorkflowStartEvent("run-123", "s1", "test prompt", "plain_page"))

	name, data := readEvent(t, reader)
	if name != events.TypeWorkflowStart {
		t.Errorf("expected %s event, got %s", events.TypeWorkflowStart, name)
	}
	if data["run_id"] != "run-123" {
		t.Errorf("expected run_id run-123, got %v", data["run_id"])
	}
	if data["originalPrompt"] != "test prompt" {
		t.Errorf("expected prompt 'test prompt', got %v", data["originalPrompt"])
	}
}

func TestHandler_FiltersRun(t *testing.T) {
	bus := events.New(100)
	defer bus.Close()

	ts := httptest.NewServer(NewHandler(bus))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, reader := connect(t, ctx, ts.URL+"?run=mine")
	defer resp.Body.Close()

	bus.Publish(events.NewStepCompletedEvent("other", 1, "plan"))
	bus.Publish(events.NewStepCompletedEvent("mine", 2, "aggregate"))

	_, data := readEvent(t, reader)
	if data["run_id"] != "mine" {
		t.Errorf("expected only run mine, got %v", data["run_id"])
	}
	if data["currentStep"] != "aggregate" {
		t.Errorf("expected aggregate step, got %v", data["currentStep"])
	}
}

func TestHandler_FiltersTypes(t *testing.T) {
	bus := events.New(100)
	defer bus.Close()

	ts := httptest.NewServer(NewHandler(bus))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, reader := connect(t, ctx, ts.URL+"?types=build_failed,work_completed")
	defer resp.Body.Close()

	bus.Publish(events.NewGenerationChunkEvent("r1", "<h1>"))
	bus.Publish(events.NewBuildFailedEvent("r1", "/tmp/out", errors.New("npm exited 1")))

	name, data := readEvent(t, reader)
	if name != events.TypeBuildFailed {
		t.Errorf("expected build_failed, got %s", name)
	}
	if data["error"] != "npm exited 1" {
		t.Errorf("expected build error, got %v", data["error"])
	}
}

func TestHandler_ClientCount(t *testing.T) {
	bus := events.New(100)
	defer bus.Close()

	h := NewHandler(bus)
	ts := httptest.NewServer(h)
	defer ts.Close()

	if h.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", h.ClientCount())
	}

	ctx, cancel := context.WithCancel(context.Background())
	resp, _ := connect(t, ctx, ts.URL)

	if h.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", h.ClientCount())
	}

	cancel()
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.ClientCount() != 0 {
		t.Errorf("expected 0 clients after disconnect, got %d", h.ClientCount())
	}
}

func TestHandler_Shutdown(t *testing.T) {
	bus := events.New(100)
	defer bus.Close()

	h := NewHandler(bus)
	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < 3; i++ {
		resp, _ := connect(t, ctx, ts.URL)
		defer resp.Body.Close()
	}

	if h.ClientCount() != 3 {
		t.Errorf("expected 3 clients, got %d", h.ClientCount())
	}
	if err := h.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown error: %v", err)
	}
	if h.ClientCount() != 0 {
		t.Errorf("expected 0 clients after shutdown, got %d", h.ClientCount())
	}
}

func TestHandler_Heartbeat(t *testing.T) {
	bus := events.New(100)
	defer bus.Close()

	h := NewHandler(bus)
	h.SetHeartbeatFrequency(50 * time.Millisecond)
	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, reader := connect(t, ctx, ts.URL)
	defer resp.Body.Close()

	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read heartbeat: %v", err)
	}
	if !strings.HasPrefix(line, ": heartbeat") {
		t.Errorf("expected heartbeat comment, got %s", line)
	}
}

func TestNewWriter_RequiresFlusher(t *testing.T) {
	if _, err := NewWriter(nonFlusher{httptest.NewRecorder()}); err == nil {
		t.Error("expected error for writer without Flush")
	}
}

type nonFlusher struct{ http.ResponseWriter }
