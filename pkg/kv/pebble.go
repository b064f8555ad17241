package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"fieldnotes/pkg/logger"
)

// ttlPrefix namespaces expiry deadlines away from user keys. '!' sorts
// before every key character we hand out, so the metadata clusters at
// the front of the keyspace.
const ttlPrefix = "!ttl:"

// Pebble is a Store backed by a Pebble database. Read-modify-write
// operations (Incr, SetNX, list edits) are serialized with a mutex so
// each key operation observes a consistent value.
type Pebble struct {
	db *pebble.DB
	mu sync.Mutex

	now func() time.Time
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Pebble, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &Pebble{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (p *Pebble) Close() error {
	if p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return err
	}
	p.db = nil
	logger.Info("pebble_closed")
	return nil
}

func (p *Pebble) ready() error {
	if p.db == nil {
		return fmt.Errorf("pebble not opened; call kv.Open first")
	}
	return nil
}

// rawGet reads a key without expiry handling. The returned slice is a copy.
func (p *Pebble) rawGet(key string) ([]byte, error) {
	v, closer, err := p.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, nil
}

// liveGet reads a key, reclaiming it when its deadline has passed.
func (p *Pebble) liveGet(key string) ([]byte, error) {
	v, err := p.rawGet(key)
	if err != nil {
		return nil, err
	}
	d, derr := p.rawGet(ttlPrefix + key)
	if derr != nil {
		if errors.Is(derr, ErrNotFound) {
			return v, nil
		}
		return nil, derr
	}
	ns, perr := strconv.ParseInt(string(d), 10, 64)
	if perr != nil || p.now().UTC().UnixNano() < ns {
		return v, nil
	}
	// expired: reclaim both halves, report absent
	_ = p.db.Delete([]byte(key), pebble.Sync)
	_ = p.db.Delete([]byte(ttlPrefix+key), pebble.Sync)
	return nil, ErrNotFound
}

func (p *Pebble) setDeadline(key string, ttl time.Duration) error {
	tk := []byte(ttlPrefix + key)
	if ttl <= 0 {
		return p.db.Delete(tk, pebble.Sync)
	}
	ns := p.now().UTC().Add(ttl).UnixNano()
	return p.db.Set(tk, []byte(strconv.FormatInt(ns, 10)), pebble.Sync)
}

// Get returns the live value at key or ErrNotFound.
func (p *Pebble) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.ready(); err != nil {
		return nil, err
	}
	v, err := p.liveGet(key)
	observeOp("get", start, err)
	return v, err
}

// Set overwrites the value at key. A prior ttl is cleared unless a new
// one is supplied.
func (p *Pebble) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	if err := p.ready(); err != nil {
		return err
	}
	if err := p.db.Set([]byte(key), value, pebble.Sync); err != nil {
		logger.Error("kv_set_failed", "key", key, "error", err)
		observeOp("set", start, err)
		return err
	}
	err := p.setDeadline(key, ttl)
	observeOp("set", start, err)
	return err
}

// SetNX writes value only when no live value exists at key.
func (p *Pebble) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	start := time.Now()
	if err := p.ready(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.liveGet(key)
	if err == nil {
		observeOp("setnx", start, nil)
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		observeOp("setnx", start, err)
		return false, err
	}
	if err := p.db.Set([]byte(key), value, pebble.Sync); err != nil {
		observeOp("setnx", start, err)
		return false, err
	}
	err = p.setDeadline(key, ttl)
	observeOp("setnx", start, err)
	return err == nil, err
}

// Delete removes key and any expiry metadata; absent keys are a no-op.
func (p *Pebble) Delete(ctx context.Context, key string) error {
	start := time.Now()
	if err := p.ready(); err != nil {
		return err
	}
	if err := p.db.Delete([]byte(key), pebble.Sync); err != nil {
		logger.Error("kv_delete_failed", "key", key, "error", err)
		observeOp("delete", start, err)
		return err
	}
	err := p.db.Delete([]byte(ttlPrefix+key), pebble.Sync)
	observeOp("delete", start, err)
	return err
}

// Incr increments the decimal integer at key and returns the new value.
// The key's existing ttl, if any, is left in place.
func (p *Pebble) Incr(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	if err := p.ready(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int64
	v, err := p.liveGet(key)
	switch {
	case err == nil:
		n, err = strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		if err != nil {
			observeOp("incr", start, err)
			return 0, fmt.Errorf("value at %s is not an integer: %w", key, err)
		}
	case errors.Is(err, ErrNotFound):
		n = 0
	default:
		observeOp("incr", start, err)
		return 0, err
	}
	n++
	err = p.db.Set([]byte(key), []byte(strconv.FormatInt(n, 10)), pebble.Sync)
	observeOp("incr", start, err)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Expire sets a fresh ttl on an existing key. Returns ErrNotFound when
// the key has no live value.
func (p *Pebble) Expire(ctx context.Context, key string, ttl time.Duration) error {
	start := time.Now()
	if err := p.ready(); err != nil {
		return err
	}
	if _, err := p.liveGet(key); err != nil {
		observeOp("expire", start, err)
		return err
	}
	err := p.setDeadline(key, ttl)
	observeOp("expire", start, err)
	return err
}

// Keys returns all live keys starting with prefix in lexicographic order.
func (p *Pebble) Keys(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.ready(); err != nil {
		return nil, err
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		observeOp("keys", start, err)
		return nil, err
	}
	defer iter.Close()
	pfx := []byte(prefix)
	var out []string
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if len(pfx) > 0 && !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		k := string(iter.Key())
		if strings.HasPrefix(k, ttlPrefix) {
			continue
		}
		if p.expired(k) {
			continue
		}
		out = append(out, k)
	}
	observeOp("keys", start, iter.Error())
	return out, iter.Error()
}

// expired reports whether a key has a passed deadline, without reclaiming.
func (p *Pebble) expired(key string) bool {
	d, err := p.rawGet(ttlPrefix + key)
	if err != nil {
		return false
	}
	ns, perr := strconv.ParseInt(string(d), 10, 64)
	if perr != nil {
		return false
	}
	return p.now().UTC().UnixNano() >= ns
}

// LPush inserts value at the head of the list at listKey.
func (p *Pebble) LPush(ctx context.Context, listKey, value string) error {
	start := time.Now()
	if err := p.ready(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	items, err := p.loadList(listKey)
	if err != nil {
		observeOp("lpush", start, err)
		return err
	}
	items = append([]string{value}, items...)
	raw, err := encodeList(items)
	if err != nil {
		observeOp("lpush", start, err)
		return err
	}
	err = p.db.Set([]byte(listKey), raw, pebble.Sync)
	observeOp("lpush", start, err)
	return err
}

// LRem removes occurrences of value; an emptied list key is deleted.
func (p *Pebble) LRem(ctx context.Context, listKey string, count int, value string) error {
	start := time.Now()
	if err := p.ready(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	items, err := p.loadList(listKey)
	if err != nil {
		observeOp("lrem", start, err)
		return err
	}
	if len(items) == 0 {
		observeOp("lrem", start, nil)
		return nil
	}
	items = removeByValue(items, count, value)
	if len(items) == 0 {
		err = p.db.Delete([]byte(listKey), pebble.Sync)
		observeOp("lrem", start, err)
		return err
	}
	raw, err := encodeList(items)
	if err != nil {
		observeOp("lrem", start, err)
		return err
	}
	err = p.db.Set([]byte(listKey), raw, pebble.Sync)
	observeOp("lrem", start, err)
	return err
}

// LRange returns elements start..stop inclusive, head-first.
func (p *Pebble) LRange(ctx context.Context, listKey string, first, last int) ([]string, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.ready(); err != nil {
		return nil, err
	}
	items, err := p.loadList(listKey)
	if err != nil {
		observeOp("lrange", start, err)
		return nil, err
	}
	lo, hi, ok := rangeBounds(first, last, len(items))
	observeOp("lrange", start, nil)
	if !ok {
		return nil, nil
	}
	return append([]string(nil), items[lo:hi+1]...), nil
}

func (p *Pebble) loadList(listKey string) ([]string, error) {
	raw, err := p.liveGet(listKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeList(raw)
}

// SweepExpired walks the ttl namespace and reclaims up to max expired
// keys. Lazy expiry on read keeps correctness; this keeps the keyspace
// from accumulating dead counters between reads.
func (p *Pebble) SweepExpired(ctx context.Context, max int) (int, error) {
	if err := p.ready(); err != nil {
		return 0, err
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	pfx := []byte(ttlPrefix)
	nowNS := p.now().UTC().UnixNano()
	reclaimed := 0
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		if err := ctx.Err(); err != nil {
			return reclaimed, err
		}
		if max > 0 && reclaimed >= max {
			break
		}
		ns, perr := strconv.ParseInt(string(iter.Value()), 10, 64)
		if perr != nil || nowNS < ns {
			continue
		}
		tk := append([]byte(nil), iter.Key()...)
		userKey := bytes.TrimPrefix(tk, pfx)
		if err := p.db.Delete(userKey, pebble.Sync); err != nil {
			return reclaimed, err
		}
		if err := p.db.Delete(tk, pebble.Sync); err != nil {
			return reclaimed, err
		}
		reclaimed++
	}
	if reclaimed > 0 {
		logger.Info("kv_expired_reclaimed", "count", reclaimed)
	}
	return reclaimed, iter.Error()
}
