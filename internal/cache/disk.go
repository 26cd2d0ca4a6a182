package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromegate/prerender/internal/types"
)

// Disk is a Facade backed by the local filesystem: artifacts are written
// under Root as flat files named by their CacheKey digest, atomically
// (write to a temp file, then rename), with freshness decided by the
// file's mtime against a configured TTL.
type Disk struct {
	root string
	ttl  TTL
}

// NewDisk creates a Disk cache rooted at dir, creating it if necessary.
func NewDisk(dir string, ttl TTL) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create disk root %q: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cache: resolve disk root %q: %w", dir, err)
	}
	return &Disk{root: abs, ttl: ttl}, nil
}

func (d *Disk) path(key types.CacheKey) string {
	return filepath.Join(d.root, key.String())
}

// Get reads the cached artifact for key, if present and not expired.
func (d *Disk) Get(_ context.Context, key types.CacheKey) (*types.Artifact, bool, error) {
	path := d.path(key)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: stat %q: %w", path, err)
	}

	if d.ttl.Expired(info.ModTime(), time.Now()) {
		return nil, false, nil
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("cache: read %q: %w", path, err)
	}

	return &types.Artifact{
		Format:      key.Format,
		Bytes:       bytes,
		ContentType: key.Format.ContentType(),
		ProducedAt:  info.ModTime(),
	}, true, nil
}

// Put writes artifact to disk atomically: it writes to a temp file in the
// same directory, then renames over the final path, so a concurrent Get
// never observes a partially-written file.
func (d *Disk) Put(_ context.Context, key types.CacheKey, artifact *types.Artifact) error {
	final := d.path(key)

	tmp, err := os.CreateTemp(d.root, key.String()+".tmp-*")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(artifact.Bytes); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("cache: write temp file %q: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cache: close temp file %q: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cache: rename %q to %q: %w", tmpPath, final, err)
	}

	return nil
}
