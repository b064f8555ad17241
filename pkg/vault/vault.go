// Package vault implements gated file uploads into the blob store,
// with per-owner listings built on the same record/index machinery as
// stories.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fieldnotes/pkg/blob"
	"fieldnotes/pkg/entry"
	"fieldnotes/pkg/index"
	"fieldnotes/pkg/keys"
	"fieldnotes/pkg/logger"
	"fieldnotes/pkg/models"
	"fieldnotes/pkg/rategate"
	"fieldnotes/pkg/utils"
)

// ErrRateLimited is returned when the owner has exhausted their upload
// allowance for the current window.
var ErrRateLimited = errors.New("vault: upload rate exceeded")

// ErrTooLarge is returned before any store mutation when the payload
// exceeds the configured size limit.
var ErrTooLarge = errors.New("vault: file exceeds size limit")

// Service runs the upload flow and owner listings.
type Service struct {
	records *entry.Store
	idx     *index.Manager
	blobs   blob.Store
	gate    *rategate.Gate
	maxSize int64
	now     func() time.Time
}

// NewService wires the vault. maxSize <= 0 disables the size check.
func NewService(records *entry.Store, idx *index.Manager, blobs blob.Store, gate *rategate.Gate, maxSize int64) *Service {
	return &Service{records: records, idx: idx, blobs: blobs, gate: gate, maxSize: maxSize, now: time.Now}
}

// Upload stores one file for owner: gate first, then blob, then the
// file record, then the owner's vault index. A rejected upload touches
// nothing beyond the gate counter.
func (s *Service) Upload(ctx context.Context, owner, filename, contentType string, data []byte) (models.VaultFile, error) {
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return models.VaultFile{}, ErrTooLarge
	}

	d, err := s.gate.Admit(ctx, owner)
	if err != nil {
		if !d.Allowed {
			return models.VaultFile{}, fmt.Errorf("upload gate unavailable: %w", err)
		}
		logger.Warn("upload_gate_degraded", "owner", owner, "error", err)
	} else if !d.Allowed {
		logger.Warn("upload_rate_limited", "owner", owner)
		return models.VaultFile{}, ErrRateLimited
	}

	url, err := s.blobs.Store(ctx, filename, data, blob.Options{ContentType: contentType})
	if err != nil {
		return models.VaultFile{}, fmt.Errorf("blob store failed: %w", err)
	}

	f := models.VaultFile{
		ID:          utils.GenID(),
		Owner:       owner,
		Name:        filename,
		URL:         url,
		Size:        int64(len(data)),
		ContentType: contentType,
		CreatedTS:   s.now().UTC().UnixNano(),
	}
	key := keys.VaultFile(owner, f.ID)
	if err := s.records.Put(ctx, key, f); err != nil {
		return models.VaultFile{}, err
	}
	if err := s.idx.Append(ctx, keys.VaultIndex(owner), key); err != nil {
		return models.VaultFile{}, err
	}
	logger.Info("vault_file_stored", "owner", owner, "id", f.ID, "size", f.Size)
	return f, nil
}

// List returns the owner's files, newest upload first. Index entries
// whose record is gone are skipped.
func (s *Service) List(ctx context.Context, owner string, offset, count int) ([]models.VaultFile, error) {
	entries, err := s.idx.Resolve(ctx, keys.VaultIndex(owner), offset, count)
	if err != nil {
		return nil, err
	}
	out := make([]models.VaultFile, 0, len(entries))
	for _, e := range entries {
		if !e.Found {
			continue
		}
		var f models.VaultFile
		if err := json.Unmarshal(e.Record, &f); err != nil {
			logger.Warn("vault_record_corrupt", "key", e.Key, "error", err)
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// Remove deletes the file record. The blob itself is content-addressed
// and may back other records, so it is left alone; the index entry is
// reclaimed lazily like every other index/record divergence.
func (s *Service) Remove(ctx context.Context, owner, id string) error {
	return s.records.Delete(ctx, keys.VaultFile(owner, id))
}
