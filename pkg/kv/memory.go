package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory Store with the same semantics as the Pebble
// store. It exists so components can be tested against a real Store
// without a database directory, and doubles as a failure injector: set
// Fail to make every operation return that error.
type Memory struct {
	mu   sync.Mutex
	data map[string]memVal
	now  func() time.Time

	// Fail, when non-nil, is returned by every operation. Used by
	// tests to exercise backing-store-unreachable paths.
	Fail error
}

type memVal struct {
	data     []byte
	deadline time.Time // zero means no expiry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]memVal), now: time.Now}
}

// SetClock replaces the store's clock; tests use it to step time past
// counter deadlines.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) live(key string) ([]byte, bool) {
	v, ok := m.data[key]
	if !ok {
		return nil, false
	}
	if !v.deadline.IsZero() && !m.now().Before(v.deadline) {
		delete(m.data, key)
		return nil, false
	}
	return v.data, true
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	v, ok := m.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	var dl time.Time
	if ttl > 0 {
		dl = m.now().Add(ttl)
	}
	m.data[key] = memVal{data: append([]byte(nil), value...), deadline: dl}
	return nil
}

func (m *Memory) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return false, m.Fail
	}
	if _, ok := m.live(key); ok {
		return false, nil
	}
	var dl time.Time
	if ttl > 0 {
		dl = m.now().Add(ttl)
	}
	m.data[key] = memVal{data: append([]byte(nil), value...), deadline: dl}
	return true, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return 0, m.Fail
	}
	var n int64
	if raw, ok := m.live(key); ok {
		v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer: %w", key, err)
		}
		n = v
	}
	n++
	prev := m.data[key]
	m.data[key] = memVal{data: []byte(strconv.FormatInt(n, 10)), deadline: prev.deadline}
	return n, nil
}

func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	v, ok := m.live(key)
	if !ok {
		return ErrNotFound
	}
	var dl time.Time
	if ttl > 0 {
		dl = m.now().Add(ttl)
	}
	m.data[key] = memVal{data: v, deadline: dl}
	return nil
}

func (m *Memory) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	var out []string
	for k := range m.data {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if _, ok := m.live(k); !ok {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) LPush(ctx context.Context, listKey, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	items, err := m.loadList(listKey)
	if err != nil {
		return err
	}
	raw, err := encodeList(append([]string{value}, items...))
	if err != nil {
		return err
	}
	prev := m.data[listKey]
	m.data[listKey] = memVal{data: raw, deadline: prev.deadline}
	return nil
}

func (m *Memory) LRem(ctx context.Context, listKey string, count int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	items, err := m.loadList(listKey)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	items = removeByValue(items, count, value)
	if len(items) == 0 {
		delete(m.data, listKey)
		return nil
	}
	raw, err := encodeList(items)
	if err != nil {
		return err
	}
	prev := m.data[listKey]
	m.data[listKey] = memVal{data: raw, deadline: prev.deadline}
	return nil
}

func (m *Memory) LRange(ctx context.Context, listKey string, first, last int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	items, err := m.loadList(listKey)
	if err != nil {
		return nil, err
	}
	lo, hi, ok := rangeBounds(first, last, len(items))
	if !ok {
		return nil, nil
	}
	return append([]string(nil), items[lo:hi+1]...), nil
}

func (m *Memory) loadList(listKey string) ([]string, error) {
	raw, ok := m.live(listKey)
	if !ok {
		return nil, nil
	}
	return decodeList(raw)
}

func (m *Memory) SweepExpired(ctx context.Context, max int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return 0, m.Fail
	}
	reclaimed := 0
	for k, v := range m.data {
		if max > 0 && reclaimed >= max {
			break
		}
		if !v.deadline.IsZero() && !m.now().Before(v.deadline) {
			delete(m.data, k)
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
var _ ExpirySweeper = (*Memory)(nil)
var _ Store = (*Pebble)(nil)
var _ ExpirySweeper = (*Pebble)(nil)

// ErrUnavailable is a convenience error tests inject via Memory.Fail to
// stand in for an unreachable backing store.
var ErrUnavailable = errors.New("kv: store unavailable")
