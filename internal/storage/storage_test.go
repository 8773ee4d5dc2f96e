package storage

import (
	"path/filepath"
	"testing"
)

func TestMemory_SetGetRemoveClear(t *testing.T) {
	m := NewMemory()

	if _, ok := m.Get("k"); ok {
		t.Fatal("expected missing key to report ok=false")
	}
	if err := m.Set("k", "v"); err != nil {
		t.Fatal(err)
	}
	if v, ok := m.Get("k"); !ok || v != "v" {
		t.Fatalf("Get() = (%q, %v), want (v, true)", v, ok)
	}
	if err := m.Remove("k"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Get("k"); ok {
		t.Fatal("expected key removed")
	}

	m.Set("a", "1")
	m.Set("b", "2")
	if err := m.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Get("a"); ok {
		t.Fatal("expected Clear to drop all keys")
	}
}

func TestNoOp(t *testing.T) {
	var n NoOp
	if err := n.Set("k", "v"); err != nil {
		t.Fatal(err)
	}
	if _, ok := n.Get("k"); ok {
		t.Fatal("NoOp.Get must always report ok=false")
	}
	if err := n.Remove("k"); err != nil {
		t.Fatal(err)
	}
	if err := n.Clear(); err != nil {
		t.Fatal(err)
	}
}

func TestFile_SetGetRemoveClear(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := f.Get("queue"); ok {
		t.Fatal("expected missing key to report ok=false")
	}
	if err := f.Set("queue", `{"n":1}`); err != nil {
		t.Fatal(err)
	}
	v, ok := f.Get("queue")
	if !ok || v != `{"n":1}` {
		t.Fatalf("Get() = (%q, %v)", v, ok)
	}

	if err := f.Set("queue", `{"n":2}`); err != nil {
		t.Fatal(err)
	}
	v, _ = f.Get("queue")
	if v != `{"n":2}` {
		t.Fatalf("overwrite failed, got %q", v)
	}

	if err := f.Remove("queue"); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Get("queue"); ok {
		t.Fatal("expected key removed from disk")
	}

	// Remove of an already-absent key must not error.
	if err := f.Remove("queue"); err != nil {
		t.Fatalf("Remove of absent key should be a no-op, got %v", err)
	}
}

func TestFile_Clear(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	f.Set("a", "1")
	f.Set("b", "2")
	if err := f.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Get("a"); ok {
		t.Fatal("expected a removed")
	}
	if _, ok := f.Get("b"); ok {
		t.Fatal("expected b removed")
	}
}

func TestFile_NoBasePath_UsesTempDir(t *testing.T) {
	f, err := NewFile("")
	if err != nil {
		t.Fatal(err)
	}
	if f.basePath == "" {
		t.Fatal("expected a non-empty fallback base path")
	}
}

func TestFile_AtomicWrite_NoLeftoverTempFiles(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Set("k", "v"); err != nil {
		t.Fatal(err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, ".olakai-*.tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no leftover temp files, found %v", matches)
	}
}

func TestIsReadOnlyEnv_FalseInNormalEnvironment(t *testing.T) {
	if IsReadOnlyEnv() {
		t.Fatal("expected a writable temp dir in the test environment")
	}
}
