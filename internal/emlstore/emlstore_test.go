package emlstore

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreWritesRetrievableFile(t *testing.T) {
	root := t.TempDir()
	store := New(root, testLogger())

	received := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	body := []byte("From: a@example.com\r\nSubject: Hello\r\n\r\nbody")

	relPath, err := store.Store(body, "Inbox", "Hello", received)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	want := filepath.Join("eml", "2024", "01", "inbox_2024-01-15-10-30-00_hello.eml")
	if relPath != want {
		t.Fatalf("Store() relPath = %q, want %q", relPath, want)
	}

	if !store.Exists(relPath) {
		t.Fatal("Exists() = false after successful Store()")
	}

	size, err := store.Size(relPath)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}

	if size != int64(len(body)) {
		t.Fatalf("Size() = %d, want %d", size, len(body))
	}

	rc, err := store.OpenRead(relPath)
	if err != nil {
		t.Fatalf("OpenRead() error = %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}

	if string(got) != string(body) {
		t.Fatalf("read back %q, want %q", got, body)
	}

	// No temp files should survive a successful store.
	entries, err := os.ReadDir(filepath.Join(root, "eml", "2024", "01"))
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected exactly one file in date directory, got %d", len(entries))
	}
}

func TestStoreCollisionGetsSuffixed(t *testing.T) {
	root := t.TempDir()
	store := New(root, testLogger())

	received := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	first, err := store.Store([]byte("one"), "Inbox", "Hello", received)
	if err != nil {
		t.Fatalf("first Store() error = %v", err)
	}

	second, err := store.Store([]byte("two"), "Inbox", "Hello", received)
	if err != nil {
		t.Fatalf("second Store() error = %v", err)
	}

	if first == second {
		t.Fatalf("colliding stores produced the same path: %q", first)
	}

	b1, _ := io.ReadAll(mustOpen(t, store, first))
	b2, _ := io.ReadAll(mustOpen(t, store, second))

	if string(b1) != "one" || string(b2) != "two" {
		t.Fatalf("collision handling corrupted content: %q, %q", b1, b2)
	}
}

func mustOpen(t *testing.T, store *Store, relPath string) io.ReadCloser {
	t.Helper()

	rc, err := store.OpenRead(relPath)
	if err != nil {
		t.Fatalf("OpenRead(%q) error = %v", relPath, err)
	}

	return rc
}

func TestMoveToQuarantinePreservesSubPath(t *testing.T) {
	root := t.TempDir()
	store := New(root, testLogger())

	received := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	relPath, err := store.Store([]byte("body"), "Inbox", "Bye", received)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	newPath, err := store.MoveToQuarantine(relPath)
	if err != nil {
		t.Fatalf("MoveToQuarantine() error = %v", err)
	}

	want := filepath.Join("_Quarantine", "eml", "2024", "03")
	if filepath.Dir(newPath) != want {
		t.Fatalf("quarantine path = %q, want dir %q", newPath, want)
	}

	if store.Exists(relPath) {
		t.Fatal("original path should no longer exist after quarantine")
	}

	if !store.Exists(newPath) {
		t.Fatal("quarantined path should exist")
	}
}

func TestMoveToQuarantineMissingSource(t *testing.T) {
	root := t.TempDir()
	store := New(root, testLogger())

	_, err := store.MoveToQuarantine(filepath.Join("eml", "2024", "01", "ghost.eml"))
	if err != ErrQuarantineSourceMissing {
		t.Fatalf("MoveToQuarantine() error = %v, want ErrQuarantineSourceMissing", err)
	}
}

func TestFullPathOfRejectsEscape(t *testing.T) {
	root := t.TempDir()
	store := New(root, testLogger())

	cases := []string{
		"../outside.eml",
		"eml/../../outside.eml",
		"../../etc/passwd",
	}

	for _, c := range cases {
		if _, err := store.FullPathOf(c); err == nil {
			t.Errorf("FullPathOf(%q) succeeded, want error", c)
		}
	}
}

func TestFullPathOfAllowsRootItself(t *testing.T) {
	root := t.TempDir()
	store := New(root, testLogger())

	full, err := store.FullPathOf(".")
	if err != nil {
		t.Fatalf("FullPathOf(\".\") error = %v", err)
	}

	if full != filepath.Clean(root) {
		t.Fatalf("FullPathOf(\".\") = %q, want %q", full, root)
	}
}

func TestDeleteRemovesFile(t *testing.T) {
	root := t.TempDir()
	store := New(root, testLogger())

	received := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	relPath, err := store.Store([]byte("x"), "Inbox", "Gone", received)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	if err := store.Delete(relPath); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if store.Exists(relPath) {
		t.Fatal("Exists() = true after Delete()")
	}
}
