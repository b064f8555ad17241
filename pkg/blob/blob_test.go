package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStoreAndDedupe(t *testing.T) {
	fs, err := NewFS(t.TempDir(), "/blobs")
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}
	ctx := context.Background()

	url1, err := fs.Store(ctx, "cover.jpg", []byte("image bytes"), Options{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if !strings.HasPrefix(url1, "/blobs/") || !strings.HasSuffix(url1, ".jpg") {
		t.Fatalf("unexpected url: %q", url1)
	}

	// same bytes, different name: content addressing dedupes
	url2, err := fs.Store(ctx, "other-name.jpg", []byte("image bytes"), Options{})
	if err != nil || url2 != url1 {
		t.Fatalf("dedupe failed: %q vs %q, %v", url2, url1, err)
	}

	// different bytes get a different address
	url3, _ := fs.Store(ctx, "cover.jpg", []byte("different bytes"), Options{})
	if url3 == url1 {
		t.Fatalf("distinct content collided: %q", url3)
	}
}

func TestStoredFileOnDisk(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewFS(dir, "/blobs")
	url, err := fs.Store(context.Background(), "notes.txt", []byte("hello"), Options{})
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.Base(url)))
	if err != nil || string(data) != "hello" {
		t.Fatalf("stored object unreadable: %q, %v", data, err)
	}
	// no stray temp files
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".blob-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestPublicMode(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewFS(dir, "")
	url, err := fs.Store(context.Background(), "pic.png", []byte("png"), Options{Public: true})
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	fi, err := os.Stat(filepath.Join(dir, strings.TrimPrefix(url, "/")))
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if fi.Mode().Perm() != 0o644 {
		t.Fatalf("public object mode: %v", fi.Mode().Perm())
	}
}
