// Package tools renders the file tools a structured-project generator calls
// into human-readable stream text.
package tools

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
)

// Renderer formats one tool's calls.
type Renderer interface {
	// Name is the canonical tool name.
	Name() string
	// DisplayName is shown in the tool-selected notice.
	DisplayName() string
	// Render formats an executed call from its decoded arguments.
	Render(args Args) string
}

// Args are decoded tool arguments. Lookups accept several spellings because
// models name the same parameter differently.
type Args map[string]any

// String returns the first non-empty string value among keys.
func (a Args) String(keys ...string) string {
	for _, k := range keys {
		if v, ok := a[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// ParseArgs decodes a JSON argument object. Malformed input yields empty
// args along with the decode error.
func ParseArgs(raw string) (Args, error) {
	if strings.TrimSpace(raw) == "" {
		return Args{}, nil
	}
	args := Args{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return Args{}, fmt.Errorf("decoding tool arguments: %w", err)
	}
	return args, nil
}

// Registry resolves tool names and aliases to renderers.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
	logger    *logging.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used to report malformed tool arguments.
func WithLogger(l *logging.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry returns a registry holding the built-in file tools.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{renderers: make(map[string]Renderer), logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.Register(writeFile{}, "Write")
	r.Register(modifyFile{}, "Edit")
	r.Register(readFile{}, "Read")
	r.Register(deleteFile{})
	r.Register(readDir{}, "LS")
	r.Register(exitTool{})
	return r
}

// Register adds a renderer under its name and any aliases.
func (r *Registry) Register(rd Renderer, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[rd.Name()] = rd
	for _, a := range aliases {
		r.renderers[a] = rd
	}
}

// Get returns the renderer for name.
func (r *Registry) Get(name string) (Renderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rd, ok := r.renderers[name]
	return rd, ok
}

// RenderRequest returns the notice shown when the model selects a tool.
func (r *Registry) RenderRequest(name string) string {
	display := name
	if rd, ok := r.Get(name); ok {
		display = rd.DisplayName()
	}
	return fmt.Sprintf("\n\n[Tool selected] %s\n\n", display)
}

// RenderResult formats an executed call.
func (r *Registry) RenderResult(call core.ToolCall) string {
	rd, ok := r.Get(call.Name)
	if !ok {
		return fmt.Sprintf("[Tool call] %s", call.Name)
	}
	args, err := ParseArgs(call.Arguments)
	if err != nil {
		r.logger.Debug("malformed tool arguments", "tool", call.Name, "call_id", call.ID, "error", err)
	}
	return rd.Render(args)
}

var (
	pathKeys = []string{"relativeFilePath", "file_path", "path"}
	dirKeys  = []string{"relativeDirPath", "path", "dir"}
)

type writeFile struct{}

func (writeFile) Name() string        { return "writeFile" }
func (writeFile) DisplayName() string { return "Write file" }
func (writeFile) Render(a Args) string {
	path := a.String(pathKeys...)
	suffix := strings.TrimPrefix(filepath.Ext(path), ".")
	return fmt.Sprintf("[Tool call] Write file %s\n```%s\n%s\n```\n",
		path, suffix, a.String("content"))
}

type modifyFile struct{}

func (modifyFile) Name() string        { return "modifyFile" }
func (modifyFile) DisplayName() string { return "Modify file" }
func (modifyFile) Render(a Args) string {
	return fmt.Sprintf("[Tool call] Modify file %s\n\nBefore:\n```\n%s\n```\n\nAfter:\n```\n%s\n```\n",
		a.String(pathKeys...),
		a.String("oldContent", "old_string"),
		a.String("newContent", "new_string"))
}

type readFile struct{}

func (readFile) Name() string        { return "readFile" }
func (readFile) DisplayName() string { return "Read file" }
func (readFile) Render(a Args) string {
	return fmt.Sprintf("[Tool call] Read file %s", a.String(pathKeys...))
}

type deleteFile struct{}

func (deleteFile) Name() string        { return "deleteFile" }
func (deleteFile) DisplayName() string { return "Delete file" }
func (deleteFile) Render(a Args) string {
	return fmt.Sprintf("[Tool call] Delete file %s", a.String(pathKeys...))
}

type readDir struct{}

func (readDir) Name() string        { return "readDir" }
func (readDir) DisplayName() string { return "Read directory" }
func (readDir) Render(a Args) string {
	dir := a.String(dirKeys...)
	if dir == "" {
		dir = "root directory"
	}
	return fmt.Sprintf("[Tool call] Read directory %s", dir)
}

type exitTool struct{}

func (exitTool) Name() string         { return "exit" }
func (exitTool) DisplayName() string  { return "Exit" }
func (exitTool) Render(_ Args) string { return "[Execution finished]" }
