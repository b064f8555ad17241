// Package blob defines the opaque object-store collaborator used for
// cover images and vault uploads, plus a filesystem implementation.
// Objects are content-addressed so storing the same bytes twice yields
// the same stable URL.
package blob

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"fieldnotes/pkg/logger"
)

// Options carry per-object storage hints.
type Options struct {
	ContentType string
	Public      bool
}

// Store is the collaborator contract: persist bytes, get back a
// stable URL for them.
type Store interface {
	Store(ctx context.Context, name string, data []byte, opts Options) (string, error)
}

// FS stores objects as files under a root directory and addresses them
// by a BLAKE3 digest of their content.
type FS struct {
	root    string
	baseURL string
}

// NewFS returns a filesystem blob store rooted at dir. URLs are formed
// as baseURL/<digest><ext>.
func NewFS(dir, baseURL string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}
	return &FS{root: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Store writes data under its content digest, keeping the original
// file extension for content-type sniffing downstream. Re-storing
// identical bytes is a no-op returning the same URL.
func (f *FS) Store(ctx context.Context, name string, data []byte, opts Options) (string, error) {
	sum := blake3.Sum256(data)
	fname := hex.EncodeToString(sum[:16]) + strings.ToLower(filepath.Ext(name))
	dst := filepath.Join(f.root, fname)

	if _, err := os.Stat(dst); err == nil {
		return f.url(fname), nil
	}

	// write via temp + rename so a crashed upload never leaves a
	// half-written object at its final path
	tmp, err := os.CreateTemp(f.root, ".blob-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("failed to move blob into place: %w", err)
	}
	mode := os.FileMode(0o600)
	if opts.Public {
		mode = 0o644
	}
	_ = os.Chmod(dst, mode)

	logger.Debug("blob_stored", "name", fname, "size", len(data), "content_type", opts.ContentType)
	return f.url(fname), nil
}

func (f *FS) url(fname string) string {
	if f.baseURL == "" {
		return "/" + fname
	}
	return f.baseURL + "/" + fname
}

var _ Store = (*FS)(nil)
