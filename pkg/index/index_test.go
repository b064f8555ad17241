package index

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"fieldnotes/pkg/entry"
	"fieldnotes/pkg/kv"
)

func newTestManager() (*Manager, *entry.Store, *kv.Memory) {
	m := kv.NewMemory()
	records := entry.New(m)
	return New(m, records), records, m
}

func TestAppendMovesToFront(t *testing.T) {
	idx, _, _ := newTestManager()
	ctx := context.Background()

	for _, k := range []string{"k1", "k2", "k3"} {
		if err := idx.Append(ctx, "book", k); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	got, _ := idx.Range(ctx, "book", 0, 10)
	if !reflect.DeepEqual(got, []string{"k3", "k2", "k1"}) {
		t.Fatalf("unexpected order: %v", got)
	}

	// re-append re-surfaces the key without duplicating it
	if err := idx.Append(ctx, "book", "k1"); err != nil {
		t.Fatalf("re-append failed: %v", err)
	}
	got, _ = idx.Range(ctx, "book", 0, 10)
	if !reflect.DeepEqual(got, []string{"k1", "k3", "k2"}) {
		t.Fatalf("expected move-to-front: %v", got)
	}
	if n, _ := idx.Len(ctx, "book"); n != 3 {
		t.Fatalf("duplicate introduced, len=%d", n)
	}
}

func TestRangePagination(t *testing.T) {
	idx, _, _ := newTestManager()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		idx.Append(ctx, "book", fmt.Sprintf("k%d", i))
	}
	// newest first: k4 k3 k2 k1 k0
	got, _ := idx.Range(ctx, "book", 1, 2)
	if !reflect.DeepEqual(got, []string{"k3", "k2"}) {
		t.Fatalf("unexpected page: %v", got)
	}
	// past the end is empty, not an error
	got, err := idx.Range(ctx, "book", 10, 5)
	if err != nil || got != nil {
		t.Fatalf("past-end range: %v, %v", got, err)
	}
	// degenerate parameters yield nothing
	if got, _ := idx.Range(ctx, "book", 0, 0); got != nil {
		t.Fatalf("count=0 should be empty: %v", got)
	}
	if got, _ := idx.Range(ctx, "book", -1, 5); got != nil {
		t.Fatalf("negative offset should be empty: %v", got)
	}
}

func TestRemove(t *testing.T) {
	idx, _, _ := newTestManager()
	ctx := context.Background()
	idx.Append(ctx, "book", "k1")
	idx.Append(ctx, "book", "k2")
	if err := idx.Remove(ctx, "book", "k1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	got, _ := idx.Range(ctx, "book", 0, 10)
	if !reflect.DeepEqual(got, []string{"k2"}) {
		t.Fatalf("unexpected list after remove: %v", got)
	}
	// removing a key that is not present is a no-op
	if err := idx.Remove(ctx, "book", "k1"); err != nil {
		t.Fatalf("repeat remove failed: %v", err)
	}
}

func TestResolvePreservesOrderAndMarksAbsent(t *testing.T) {
	idx, records, _ := newTestManager()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("record:b:d:s%d", i)
		if err := records.PutRaw(ctx, key, []byte(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
			t.Fatalf("put failed: %v", err)
		}
		idx.Append(ctx, "book", key)
	}
	// delete the middle record but leave its index entry behind
	if err := records.Delete(ctx, "record:b:d:s1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	entries, err := idx.Resolve(ctx, "book", 0, 10)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	wantKeys := []string{"record:b:d:s2", "record:b:d:s1", "record:b:d:s0"}
	for i, e := range entries {
		if e.Key != wantKeys[i] {
			t.Fatalf("order not preserved at %d: %q", i, e.Key)
		}
	}
	if !entries[0].Found || entries[1].Found || !entries[2].Found {
		t.Fatalf("absent marking wrong: %+v", entries)
	}
	if string(entries[2].Record) != `{"n":0}` {
		t.Fatalf("unexpected record payload: %s", entries[2].Record)
	}
}

func TestResolveEmptyIndex(t *testing.T) {
	idx, _, _ := newTestManager()
	entries, err := idx.Resolve(context.Background(), "nothing", 0, 10)
	if err != nil || entries != nil {
		t.Fatalf("empty index: %v, %v", entries, err)
	}
}

func TestResolveStoreFailureAborts(t *testing.T) {
	idx, records, m := newTestManager()
	ctx := context.Background()
	records.PutRaw(ctx, "record:b:d:s", []byte(`{}`))
	idx.Append(ctx, "book", "record:b:d:s")

	m.Fail = kv.ErrUnavailable
	if _, err := idx.Resolve(ctx, "book", 0, 10); err == nil {
		t.Fatalf("expected failure when the backing store is down")
	}
}
