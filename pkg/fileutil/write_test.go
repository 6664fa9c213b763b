package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.lrc")

	if err := WriteFileOverwrite(path, []byte("first version, longer"), 0644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteFileOverwrite(path, []byte("second"), 0600); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestWriteFileOverwriteMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "song.lrc")
	if err := WriteFileOverwrite(path, []byte("x"), 0644); err == nil {
		t.Error("expected error for missing directory")
	}
}
