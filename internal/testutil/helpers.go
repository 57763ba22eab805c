package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// ErrTest is a generic test error.
var ErrTest = errors.New("test error")

// WriteTree creates files under dir from a path to content map.
func WriteTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating dir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
}

// ReadFile returns the content of dir/name or fails the test.
func ReadFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		t.Fatalf("reading %s: %v", name, err)
	}
	return string(data)
}

// Chunks collects streamed text from any goroutine.
type Chunks struct {
	mu    sync.Mutex
	parts []string
}

// Add appends a chunk. Its signature matches stream.Run.OnChunk.
func (c *Chunks) Add(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parts = append(c.parts, text)
}

// Parts returns the collected chunks.
func (c *Chunks) Parts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.parts...)
}

// String joins every chunk.
func (c *Chunks) String() string {
	return strings.Join(c.Parts(), "")
}
