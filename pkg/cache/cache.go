// Package cache implements a time-to-live file cache for downloaded raster
// artifacts. Entries are keyed by the md5 of the source URL; each entry is a
// data file plus a JSON sidecar recording the original key and storage time.
package cache

import (
	"crypto/md5" //nolint: gosec // cache key fingerprint, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// entryMeta is the sidecar payload stored next to each cached file.
type entryMeta struct {
	Key      string    `json:"key"`
	StoredAt time.Time `json:"storedAt"`
}

// FileCache is a TTL cache of files on local disk. It is safe for concurrent
// readers; concurrent writers of the same key may race but the rename-based
// write keeps entries internally consistent.
type FileCache struct {
	dir string
	ttl time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a FileCache rooted at dir with the given TTL, creating the
// directory if needed. A TTL of zero disables expiry.
func New(dir string, ttl time.Duration) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create cache dir: %w", err)
	}

	return &FileCache{dir: dir, ttl: ttl, now: time.Now}, nil
}

// hashKey returns the md5 hex fingerprint used as the on-disk name for key.
func hashKey(key string) string {
	sum := md5.Sum([]byte(key)) //nolint: gosec

	return hex.EncodeToString(sum[:])
}

func (c *FileCache) dataPath(key string) string {
	return filepath.Join(c.dir, hashKey(key)+".bin")
}

func (c *FileCache) metaPath(key string) string {
	return filepath.Join(c.dir, hashKey(key)+".json")
}

// Get returns the path of the cached file for key if it exists and has not
// expired. The boolean reports whether a usable entry was found; a missing or
// expired entry is not an error.
func (c *FileCache) Get(key string) (string, bool, error) {
	metaBytes, err := os.ReadFile(c.metaPath(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("could not read cache metadata: %w", err)
	}

	var meta entryMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		// Corrupt sidecar: treat the entry as absent rather than failing the load.
		return "", false, nil
	}

	if c.ttl > 0 && c.now().Sub(meta.StoredAt) >= c.ttl {
		return "", false, nil
	}

	path := c.dataPath(key)
	if _, err := os.Stat(path); err != nil {
		return "", false, nil
	}

	return path, true, nil
}

// Put stores data under key and returns the path of the cached file. The data
// file is written first and renamed into place so readers never observe a
// partial entry.
func (c *FileCache) Put(key string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(c.dir, "put-*")
	if err != nil {
		return "", fmt.Errorf("could not create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("could not write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("could not close temp file: %w", err)
	}

	path := c.dataPath(key)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("could not move cache entry into place: %w", err)
	}

	metaBytes, err := json.Marshal(entryMeta{Key: key, StoredAt: c.now()})
	if err != nil {
		return "", fmt.Errorf("could not marshal cache metadata: %w", err)
	}
	if err := os.WriteFile(c.metaPath(key), metaBytes, 0o644); err != nil { //nolint: gosec
		return "", fmt.Errorf("could not write cache metadata: %w", err)
	}

	return path, nil
}

// Prune removes all expired entries and returns how many were deleted.
// Orphaned data files without a readable sidecar are removed as well.
func (c *FileCache) Prune() (int, error) {
	if c.ttl <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("could not list cache dir: %w", err)
	}

	removed := 0
	for _, ent := range entries {
		name := ent.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		metaPath := filepath.Join(c.dir, name)
		dataPath := strings.TrimSuffix(metaPath, ".json") + ".bin"

		var meta entryMeta
		b, err := os.ReadFile(metaPath)
		expired := true
		if err == nil && json.Unmarshal(b, &meta) == nil {
			expired = c.now().Sub(meta.StoredAt) >= c.ttl
		}
		if !expired {
			continue
		}

		if err := os.Remove(dataPath); err == nil || os.IsNotExist(err) {
			_ = os.Remove(metaPath)
			removed++
		}
	}

	return removed, nil
}
