// Package index maintains the ordered, deduplicated key lists that
// give the record store its recency-ordered listings.
package index

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"fieldnotes/pkg/entry"
	"fieldnotes/pkg/keys"
	"fieldnotes/pkg/kv"
	"fieldnotes/pkg/logger"
)

// defaultResolveWorkers bounds the concurrent record reads issued by
// Resolve for one call.
const defaultResolveWorkers = 8

// Entry is one resolved index position. Found is false when the index
// still references a record that has since been deleted; callers filter
// or render a placeholder as they see fit.
type Entry struct {
	Key    string
	Record json.RawMessage
	Found  bool
}

// Manager owns the index lists. Appends dedupe by value so a key
// occurs at most once per index, and the freshest append is always the
// head ("move-to-front on update": re-saving a record re-surfaces it).
type Manager struct {
	kv      kv.Store
	records *entry.Store
	workers int
}

// New returns a Manager over the backing store, resolving records
// through the given entry store.
func New(store kv.Store, records *entry.Store) *Manager {
	return &Manager{kv: store, records: records, workers: defaultResolveWorkers}
}

// Append inserts key at the head of the named index, removing any
// existing occurrence first. The remove and push are two store
// operations; concurrent appends to one index may interleave, and the
// head reflects whichever append completed last.
func (m *Manager) Append(ctx context.Context, name, key string) error {
	listKey := keys.Index(name)
	if err := m.kv.LRem(ctx, listKey, 0, key); err != nil {
		logger.Error("index_dedupe_failed", "index", name, "key", key, "error", err)
		return err
	}
	if err := m.kv.LPush(ctx, listKey, key); err != nil {
		logger.Error("index_append_failed", "index", name, "key", key, "error", err)
		return err
	}
	logger.Debug("index_appended", "index", name, "key", key)
	return nil
}

// Remove deletes key from the named index if present.
func (m *Manager) Remove(ctx context.Context, name, key string) error {
	return m.kv.LRem(ctx, keys.Index(name), 0, key)
}

// Range returns up to count keys starting at offset, most recent
// first. Each call re-reads current state; it is not a restartable
// cursor.
func (m *Manager) Range(ctx context.Context, name string, offset, count int) ([]string, error) {
	if count <= 0 || offset < 0 {
		return nil, nil
	}
	return m.kv.LRange(ctx, keys.Index(name), offset, offset+count-1)
}

// Len returns the current number of keys in the named index.
func (m *Manager) Len(ctx context.Context, name string) (int, error) {
	items, err := m.kv.LRange(ctx, keys.Index(name), 0, -1)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Resolve composes Range with batched record reads issued concurrently.
// Index order is preserved in the result. A key whose record is gone
// yields Found=false rather than an error; backing-store failures abort
// the whole read.
func (m *Manager) Resolve(ctx context.Context, name string, offset, count int) ([]Entry, error) {
	ks, err := m.Range(ctx, name, offset, count)
	if err != nil {
		return nil, err
	}
	if len(ks) == 0 {
		return nil, nil
	}
	out := make([]Entry, len(ks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, k := range ks {
		g.Go(func() error {
			rec, found, err := m.records.Get(gctx, k)
			if err != nil {
				return err
			}
			out[i] = Entry{Key: k, Record: rec, Found: found}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
