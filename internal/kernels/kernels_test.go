package kernels

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDeclaresEntryPoints(t *testing.T) {
	src := Default()
	for _, entry := range []string{EntrySAXPY, EntryPassthrough} {
		if !strings.Contains(src, "__kernel void "+entry+"(") {
			t.Errorf("embedded source does not declare %s", entry)
		}
	}
}

func TestLoad(t *testing.T) {
	src, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if src != Default() {
		t.Error("empty path should select the embedded source")
	}

	path := filepath.Join(t.TempDir(), "k.cl")
	content := "__kernel void K(void) {}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write kernel: %v", err)
	}
	src, err = Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if src != content {
		t.Errorf("Load returned %q, want %q", src, content)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.cl")); err == nil {
		t.Error("expected error for missing file")
	}

	empty := filepath.Join(dir, "empty.cl")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatalf("Failed to write kernel: %v", err)
	}
	if _, err := Load(empty); err == nil {
		t.Error("expected error for empty file")
	}
}
