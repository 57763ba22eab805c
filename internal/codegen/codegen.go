// Package codegen turns generator text into files on disk. Each generation
// type has its own parser and saver, selected through a lookup table.
package codegen

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

// File is one generated file, relative to the output directory.
type File struct {
	Name    string
	Content string
}

// FileSet is the parsed output of one generation.
type FileSet []File

// Parser extracts files from raw generator text.
type Parser interface {
	Parse(text string) FileSet
}

// Saver writes a file set into a directory.
type Saver interface {
	Save(files FileSet, dir string) error
}

// Strategy pairs the parser and saver for one generation type.
type Strategy struct {
	Parser Parser
	Saver  Saver
}

// Registry maps generation types to strategies. Types that write files via
// tool calls have no entry.
type Registry struct {
	strategies map[core.GenerationType]Strategy
}

// NewRegistry returns the default table.
func NewRegistry() *Registry {
	saver := FileSaver{}
	return &Registry{strategies: map[core.GenerationType]Strategy{
		core.GenerationPlainPage: {Parser: HTMLParser{}, Saver: saver},
		core.GenerationMultiFile: {Parser: MultiFileParser{}, Saver: saver},
	}}
}

// Register adds or replaces a strategy.
func (r *Registry) Register(t core.GenerationType, s Strategy) {
	r.strategies[t] = s
}

// Lookup returns the strategy for t.
func (r *Registry) Lookup(t core.GenerationType) (Strategy, bool) {
	s, ok := r.strategies[t]
	return s, ok
}

// ParseAndSave parses text with t's strategy and writes the result to dir.
func (r *Registry) ParseAndSave(t core.GenerationType, text, dir string) (FileSet, error) {
	s, ok := r.Lookup(t)
	if !ok {
		return nil, core.ErrConfiguration(core.CodeMissingGenerator,
			fmt.Sprintf("no parser registered for generation type %s", t))
	}
	files := s.Parser.Parse(text)
	if err := s.Saver.Save(files, dir); err != nil {
		return files, err
	}
	return files, nil
}

// OutputDir returns the directory for a session's output of type t. The
// result is always a direct child of root.
func OutputDir(root string, t core.GenerationType, sessionKey string) (string, error) {
	name := fmt.Sprintf("%s_%s", t, sessionKey)
	dir := filepath.Join(root, name)
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel != name || strings.ContainsAny(rel, `/\`) {
		return "", core.ErrValidation(core.CodeInvalidSessionKey,
			fmt.Sprintf("session key %q escapes the output directory", sessionKey))
	}
	return dir, nil
}

var blockPatterns = map[string]*regexp.Regexp{
	"html": fencedBlock("html"),
	"css":  fencedBlock("css"),
	"js":   fencedBlock("js|javascript"),
}

// fencedBlock matches a fenced block tagged with one of the given languages.
// The lazy body stops at the first closing fence and excludes the newline
// before it.
func fencedBlock(langs string) *regexp.Regexp {
	return regexp.MustCompile("(?is)```(?:" + langs + ")[ \\t]*\\r?\\n(.*?)\\r?\\n?```")
}

func extract(lang, text string) (string, bool) {
	m := blockPatterns[lang].FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// HTMLParser extracts the first html block. Without one, the whole text is
// the page.
type HTMLParser struct{}

func (HTMLParser) Parse(text string) FileSet {
	if body, ok := extract("html", text); ok {
		return FileSet{{Name: "index.html", Content: body}}
	}
	return FileSet{{Name: "index.html", Content: text}}
}

// MultiFileParser extracts html, css and js blocks into three files.
type MultiFileParser struct{}

func (MultiFileParser) Parse(text string) FileSet {
	html, hasHTML := extract("html", text)
	css, hasCSS := extract("css", text)
	js, hasJS := extract("js", text)
	if !hasHTML && !hasCSS && !hasJS {
		return FileSet{{Name: "index.html", Content: text}}
	}
	return FileSet{
		{Name: "index.html", Content: html},
		{Name: "style.css", Content: css},
		{Name: "script.js", Content: js},
	}
}

// FileSaver writes each non-blank file atomically.
type FileSaver struct{}

func (FileSaver) Save(files FileSet, dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	for _, f := range files {
		if strings.TrimSpace(f.Content) == "" {
			continue
		}
		path, err := safeJoin(dir, f.Name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("creating dir for %s: %w", f.Name, err)
		}
		if err := renameio.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.Name, err)
		}
	}
	return nil
}

func safeJoin(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", core.ErrValidation("INVALID_PATH", fmt.Sprintf("file %q escapes output dir", name))
	}
	return path, nil
}
