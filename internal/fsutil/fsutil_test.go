package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func openDir(t *testing.T, path string) *Dir {
	t.Helper()
	d, err := OpenDir(path)
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDir_ReadsNestedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "App.vue"), []byte("<template/>"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	b, err := openDir(t, dir).ReadFile(filepath.Join("src", "App.vue"))
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(b) != "<template/>" {
		t.Fatalf("unexpected content: %q", string(b))
	}
}

func TestDir_RejectsInvalidPath(t *testing.T) {
	d := openDir(t, t.TempDir())
	for _, p := range []string{"", ".", string(filepath.Separator) + "etc"} {
		if _, err := d.ReadFile(p); err == nil {
			t.Fatalf("expected error for %q", p)
		}
	}
}

func TestDir_RejectsEscapes(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "out")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	secret := filepath.Join(parent, "secret.txt")
	if err := os.WriteFile(secret, []byte("token"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	d := openDir(t, dir)

	if _, err := d.ReadFile(filepath.Join("..", "secret.txt")); err == nil {
		t.Fatal("expected error for parent traversal")
	}

	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	if err := os.Symlink(secret, filepath.Join(dir, "link.js")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if _, err := d.ReadFile("link.js"); err == nil {
		t.Fatal("expected error for symlink escape")
	}
}

func TestOpenDir_Missing(t *testing.T) {
	if _, err := OpenDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing dir")
	}
}
