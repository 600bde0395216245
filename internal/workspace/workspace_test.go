package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPrepareCreatesUniqueDirectories(t *testing.T) {
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first, err := m.Prepare("blog")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	second, err := m.Prepare("blog")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct directories, got %q twice", first)
	}
	for _, dir := range []string{first, second} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory at %q: %v", dir, err)
		}
		if !strings.HasPrefix(filepath.Base(dir), "blog-") {
			t.Fatalf("directory %q does not carry project prefix", dir)
		}
	}
}

func TestPrepareRejectsEmptyName(t *testing.T) {
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.Prepare(""); err == nil {
		t.Fatal("expected error for empty project name")
	}
}

func TestCleanupRemovesWorkspace(t *testing.T) {
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dir, err := m.Prepare("blog")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := m.Cleanup(dir); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("workspace still exists after cleanup: %v", err)
	}
}

func TestCleanupRefusesOutsideRoot(t *testing.T) {
	root := t.TempDir()
	m, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	outside := t.TempDir()
	if err := m.Cleanup(outside); err == nil {
		t.Fatal("expected refusal for path outside root")
	}
	if err := m.Cleanup(root); err == nil {
		t.Fatal("expected refusal for the root itself")
	}
	if err := m.Cleanup(filepath.Join(root, "..", "escape")); err == nil {
		t.Fatal("expected refusal for traversal path")
	}
	if err := m.Cleanup(""); err != nil {
		t.Fatalf("empty path should be a no-op, got %v", err)
	}
}
