// Package entry implements the record store: JSON values under
// deterministic composite keys. It adds no schema of its own; callers
// validate payload shape before writing.
package entry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fieldnotes/pkg/kv"
	"fieldnotes/pkg/logger"
)

// Store reads and writes individual records. All operations go through
// the kv.Store handed in at construction.
type Store struct {
	kv kv.Store
}

// New returns a record store over the given backing store.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

// Put marshals record and writes it at key, overwriting any prior
// value. Marshal failures reject the write before the store is touched.
func (s *Store) Put(ctx context.Context, key string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := s.kv.Set(ctx, key, data, 0); err != nil {
		logger.Error("record_save_failed", "key", key, "error", err)
		return err
	}
	logger.Debug("record_saved", "key", key, "len", len(data))
	return nil
}

// PutRaw writes pre-marshaled JSON at key.
func (s *Store) PutRaw(ctx context.Context, key string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("record at %s is not valid JSON", key)
	}
	if err := s.kv.Set(ctx, key, data, 0); err != nil {
		logger.Error("record_save_failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Get returns the record at key. A missing record reports found=false
// with a nil error; only backing-store failures surface as errors.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return json.RawMessage(data), true, nil
}

// Delete removes the record at key; deleting an absent record is a
// no-op. Index entries pointing at the key are not touched — readers
// handle the divergence lazily (see pkg/index).
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil {
		logger.Error("record_delete_failed", "key", key, "error", err)
		return err
	}
	logger.Debug("record_deleted", "key", key)
	return nil
}
