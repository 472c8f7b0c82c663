package blob

import (
	"bytes"
	"os"
	"testing"
)

func TestStore_SaveAndRead(t *testing.T) {
	store, err := NewStore(t.TempDir() + "/attachments")
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	data := []byte("attachment bytes")
	hash, err := store.Save(data)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if len(hash) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(hash))
	}

	got, err := store.Read(hash)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Read() = %q, want %q", got, data)
	}
}

func TestStore_Deduplicates(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	data := []byte("same bytes")
	h1, err := store.Save(data)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	h2, err := store.Save(data)
	if err != nil {
		t.Fatalf("second Save() error: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hashes differ: %s vs %s", h1, h2)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("blob files = %d, want 1 (deduplicated)", len(entries))
	}
}

func TestStore_MissingHash(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	if _, err := store.Read("deadbeef"); err == nil {
		t.Error("Read() of unknown hash should fail")
	}
	if _, err := store.Path("deadbeef"); err == nil {
		t.Error("Path() of unknown hash should fail")
	}
}
