package entry

import (
	"context"
	"testing"

	"fieldnotes/pkg/kv"
)

func TestPutGetDelete(t *testing.T) {
	s := New(kv.NewMemory())
	ctx := context.Background()

	type rec struct {
		Title string `json:"title"`
	}
	if err := s.Put(ctx, "record:b:d:s", rec{Title: "hello"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	raw, found, err := s.Get(ctx, "record:b:d:s")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found {
		t.Fatalf("expected found")
	}
	if string(raw) != `{"title":"hello"}` {
		t.Fatalf("unexpected record: %s", raw)
	}

	if err := s.Delete(ctx, "record:b:d:s"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, found, err = s.Get(ctx, "record:b:d:s")
	if err != nil || found {
		t.Fatalf("expected absent record: found=%v err=%v", found, err)
	}
	// idempotent delete
	if err := s.Delete(ctx, "record:b:d:s"); err != nil {
		t.Fatalf("repeat delete failed: %v", err)
	}
}

func TestGetAbsentIsNotError(t *testing.T) {
	s := New(kv.NewMemory())
	raw, found, err := s.Get(context.Background(), "record:never:was:here")
	if err != nil {
		t.Fatalf("absence must not be an error: %v", err)
	}
	if found || raw != nil {
		t.Fatalf("expected nil/false for absent record")
	}
}

func TestGetStoreFailureSurfaces(t *testing.T) {
	m := kv.NewMemory()
	m.Fail = kv.ErrUnavailable
	s := New(m)
	_, found, err := s.Get(context.Background(), "record:b:d:s")
	if err == nil || found {
		t.Fatalf("backing-store failure must surface: found=%v err=%v", found, err)
	}
}

func TestPutRawRejectsInvalidJSON(t *testing.T) {
	s := New(kv.NewMemory())
	if err := s.PutRaw(context.Background(), "record:b:d:s", []byte(`{"broken`)); err == nil {
		t.Fatalf("expected rejection of invalid JSON")
	}
	if err := s.PutRaw(context.Background(), "record:b:d:s", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("valid JSON rejected: %v", err)
	}
}

func TestPutOverwrites(t *testing.T) {
	s := New(kv.NewMemory())
	ctx := context.Background()
	s.PutRaw(ctx, "k", []byte(`{"v":1}`))
	s.PutRaw(ctx, "k", []byte(`{"v":2}`))
	raw, _, _ := s.Get(ctx, "k")
	if string(raw) != `{"v":2}` {
		t.Fatalf("expected last write to win, got %s", raw)
	}
}
