package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOSRoundTrip(t *testing.T) {
	fs := OS{}
	path := filepath.Join(t.TempDir(), "sub", "file.txt")

	if fs.Exists(path) {
		t.Fatal("file exists before write")
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := fs.WriteFile(path, []byte("one\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := fs.Append(path, []byte("two\n")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "one\ntwo\n" {
		t.Errorf("content = %q, want %q", data, "one\ntwo\n")
	}

	f, err := fs.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	streamed, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(streamed) != string(data) {
		t.Error("Open and ReadFile disagree")
	}

	info, err := fs.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != int64(len(data)) {
		t.Errorf("Size = %d, want %d", info.Size(), len(data))
	}

	if err := fs.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if fs.Exists(path) {
		t.Error("file exists after Remove")
	}
}

func TestOSAppendCreates(t *testing.T) {
	fs := OS{}
	path := filepath.Join(t.TempDir(), "fresh.txt")
	if err := fs.Append(path, []byte("line\n")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "line\n" {
		t.Errorf("content = %q, want %q", data, "line\n")
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	fs := NewMemory()

	if err := fs.WriteFile("a/b.txt", []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !fs.Exists("a/b.txt") {
		t.Fatal("file missing after write")
	}
	if err := fs.Append("a/b.txt", []byte(" world")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := fs.ReadFile("a/b.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("content = %q, want %q", data, "hello world")
	}

	// Mutating the returned slice must not touch the stored copy.
	data[0] = 'X'
	again, _ := fs.ReadFile("a/b.txt")
	if string(again) != "hello world" {
		t.Error("ReadFile returned a live reference to internal state")
	}

	info, err := fs.Stat("a/b.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != int64(len("hello world")) {
		t.Errorf("Size = %d, want %d", info.Size(), len("hello world"))
	}

	if got := fs.Names(); len(got) != 1 || got[0] != "a/b.txt" {
		t.Errorf("Names = %v, want [a/b.txt]", got)
	}

	if err := fs.Remove("a/b.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := fs.Remove("a/b.txt"); err == nil {
		t.Error("Remove of missing file succeeded")
	}
}

func TestMemoryMissingFile(t *testing.T) {
	fs := NewMemory()
	if _, err := fs.ReadFile("nope"); err == nil {
		t.Error("ReadFile of missing file succeeded")
	}
	if _, err := fs.Open("nope"); err == nil {
		t.Error("Open of missing file succeeded")
	}
	if _, err := fs.Stat("nope"); err == nil {
		t.Error("Stat of missing file succeeded")
	}
	if fs.Exists("nope") {
		t.Error("Exists reported a missing file")
	}
}
