// Package kv defines the key-value store contract the rest of the
// system is built on, plus a Pebble-backed implementation and an
// in-memory one for tests. Components receive a Store at construction;
// there is no ambient global handle.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when no live value exists for a key.
// Callers treat it as a normal result, not a failure.
var ErrNotFound = errors.New("kv: key not found")

// Store is the backing key-value contract. Single-key operations are
// serialized by the implementation. Read operations honor ctx
// cancellation; write operations run to completion once issued so a
// cancelled request cannot leave a half-applied write behind.
type Store interface {
	// Get returns the value at key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value at key, overwriting any prior value. A ttl > 0
	// makes the key expire after that duration; ttl == 0 persists it.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX writes value only when key has no live value. Reports
	// whether the write happened.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Delete removes key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Incr atomically increments the decimal integer at key (absent
	// counts as 0) and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets or replaces the ttl of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Keys returns all live keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// LPush inserts value at the head of the list at listKey.
	LPush(ctx context.Context, listKey, value string) error
	// LRem removes occurrences of value from the list: count > 0 from
	// the head, count < 0 from the tail, count == 0 all of them.
	LRem(ctx context.Context, listKey string, count int, value string) error
	// LRange returns elements start..stop inclusive, head-first.
	// Negative indices address from the tail (-1 is the last element).
	LRange(ctx context.Context, listKey string, start, stop int) ([]string, error)

	Close() error
}

// ExpirySweeper is implemented by stores that keep TTL metadata which
// benefits from out-of-band reclamation in addition to lazy expiry on
// read. It returns the number of keys reclaimed.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context, max int) (int, error)
}

// Lists are stored as JSON string arrays under their key, so a list is
// one key like any other and single-key serialization covers list edits.

func encodeList(items []string) ([]byte, error) {
	if items == nil {
		items = []string{}
	}
	return json.Marshal(items)
}

func decodeList(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("corrupt list value: %w", err)
	}
	return items, nil
}

// removeByValue applies LRem semantics to a decoded list.
func removeByValue(items []string, count int, value string) []string {
	if len(items) == 0 {
		return items
	}
	limit := count
	if limit < 0 {
		limit = -limit
	}
	unlimited := count == 0
	out := items[:0:0]
	if count >= 0 {
		removed := 0
		for _, it := range items {
			if it == value && (unlimited || removed < limit) {
				removed++
				continue
			}
			out = append(out, it)
		}
		return out
	}
	// from the tail: walk backwards
	removed := 0
	keep := make([]bool, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		if items[i] == value && removed < limit {
			removed++
			continue
		}
		keep[i] = true
	}
	for i, it := range items {
		if keep[i] {
			out = append(out, it)
		}
	}
	return out
}

// rangeBounds resolves Redis-style inclusive start/stop (with negative
// indexing) against a list of length n. ok is false for an empty slice.
func rangeBounds(start, stop, n int) (int, int, bool) {
	if n == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start = n + start
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop = n + stop
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
