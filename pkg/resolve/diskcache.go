package resolve

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// diskFormatVersion gates the on-disk metadata format. Bumping it flushes
// every sidecar file on the next run.
const diskFormatVersion = "1"

const versionSentinel = ".cache_version"

// diskCache stores fetched registry metadata as one JSON sidecar file per
// package version, so repeated audits of the same tree skip the network.
// Entry freshness is judged by file modification time against the TTL.
// The cache directory is process-exclusive; no cross-process locking.
type diskCache struct {
	dir string
	ttl time.Duration
}

// newDiskCache opens (creating if needed) the sidecar directory. When the
// recorded format version differs from diskFormatVersion, all sidecar files
// are flushed before use.
func newDiskCache(dir string, ttl time.Duration) (*diskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	c := &diskCache{dir: dir, ttl: ttl}

	sentinel := filepath.Join(dir, versionSentinel)
	recorded, err := os.ReadFile(sentinel)
	if err != nil || strings.TrimSpace(string(recorded)) != diskFormatVersion {
		c.flush()
		if err := os.WriteFile(sentinel, []byte(diskFormatVersion+"\n"), 0o644); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// path derives the sidecar filename: {ecosystem}_{name}@{version}.json with
// path-hostile characters substituted.
func (c *diskCache) path(eco, name, version string) string {
	file := fmt.Sprintf("%s_%s@%s.json", eco, name, version)
	file = strings.NewReplacer("/", "_", ":", "_").Replace(file)
	return filepath.Join(c.dir, file)
}

func (c *diskCache) get(eco, name, version string, v any) bool {
	path := c.path(eco, name, version)
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if c.ttl > 0 && time.Since(info.ModTime()) > c.ttl {
		_ = os.Remove(path)
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (c *diskCache) put(eco, name, version string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = os.WriteFile(c.path(eco, name, version), data, 0o644)
}

func (c *diskCache) flush() {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
}
