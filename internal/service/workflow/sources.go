package workflow

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/iamxurulin/xu-AI-Zero/internal/fsutil"
)

// sourceExtensions are the files a quality check reads.
var sourceExtensions = map[string]bool{
	".html": true, ".htm": true, ".css": true, ".js": true, ".json": true,
	".vue": true, ".ts": true, ".jsx": true, ".tsx": true,
}

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{
	"node_modules": true, "dist": true, "target": true, ".git": true, ".vscode": true,
}

// maxSourceReaders bounds concurrent file reads.
const maxSourceReaders = 8

// CollectSources concatenates the source files under dir as
// "// File: {path}\n{content}\n\n" blocks in path order. Hidden files and
// build, VCS and dependency directories are skipped, as are symlinks. An empty result means
// no source files were found.
func CollectSources(ctx context.Context, dir string) (string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && (skippedDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 || strings.HasPrefix(name, ".") || !sourceExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(paths)

	root, err := fsutil.OpenDir(dir)
	if err != nil {
		return "", err
	}
	defer root.Close()

	contents := make([]string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxSourceReaders)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := root.ReadFile(path)
			if err != nil {
				return err
			}
			contents[i] = string(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, path := range paths {
		sb.WriteString("// File: ")
		sb.WriteString(filepath.ToSlash(path))
		sb.WriteString("\n")
		sb.WriteString(contents[i])
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}
