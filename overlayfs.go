// Package overlayfs composes a read-only base disk and a writable diff
// disk into a single logical disk with copy-on-write semantics.
package overlayfs

import (
	"io"
	"log/slog"
	"path"
	"strings"
	"time"
)

// Overlay presents a base disk and a diff disk as one logical disk. All
// mutations land on the diff disk; the base disk is never written. Two
// metadata stores hold the out-of-band state: tombstone and tracked
// markers in one, base-origin mappings in the other.
type Overlay struct {
	name string

	base Disk
	diff Disk

	flags  *markerIndex
	origin *originIndex

	cache  *cache
	logger *slog.Logger
}

// Option is a functional option for configuring an Overlay.
type Option func(*Overlay)

// WithLogger sets the logger for operational messages. Mutations are
// logged at Debug level. If unset, logging is discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Overlay) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithResolveCache enables resolution caching with the specified TTL.
func WithResolveCache(enabled bool, ttl time.Duration) Option {
	return func(o *Overlay) {
		negativeTTL := ttl / 2 // Negative cache expires faster
		maxEntries := 1000
		o.cache = newCache(enabled, ttl, negativeTTL, maxEntries)
	}
}

// WithCacheConfig enables resolution caching with custom configuration.
func WithCacheConfig(enabled bool, resolveTTL, negativeTTL time.Duration, maxEntries int) Option {
	return func(o *Overlay) {
		o.cache = newCache(enabled, resolveTTL, negativeTTL, maxEntries)
	}
}

// New creates an overlay over base and diff. The tracked store persists
// tombstone and tracked markers; the metadata store persists base-origin
// mappings for shadowed files whose base content is still served (renames,
// appends, hard links), whether or not the base physical path differs from
// the logical one.
func New(name string, base, diff Disk, metadata, tracked MetadataStore, opts ...Option) *Overlay {
	o := &Overlay{
		name:   name,
		base:   base,
		diff:   diff,
		flags:  &markerIndex{store: tracked},
		origin: &originIndex{store: metadata},
		cache:  newCache(false, 0, 0, 0), // disabled by default
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Name returns the name of the overlay disk.
func (o *Overlay) Name() string {
	return o.name
}

// SupportParallelWrite reports whether the diff disk, which receives all
// writes, supports parallel writers.
func (o *Overlay) SupportParallelWrite() bool {
	return o.diff.SupportParallelWrite()
}

// IsRemote reports whether either underlying disk involves network
// interaction.
func (o *Overlay) IsRemote() bool {
	return o.base.IsRemote() || o.diff.IsRemote()
}

// SupportZeroCopyReplication reports false: the overlay cannot replicate
// without reading through both layers.
func (o *Overlay) SupportZeroCopyReplication() bool {
	return false
}

// BlobPath is not supported: logical content may span two disks.
func (o *Overlay) BlobPath(p string) ([]string, error) {
	return nil, ErrUnsupported
}

// WriteFileWithBlobFunc is not supported.
func (o *Overlay) WriteFileWithBlobFunc(p string, mode WriteMode, blobFunc func() error) error {
	return ErrUnsupported
}

// IsTracked reports whether the diff disk holds authoritative content for
// the logical path. Exposed for tests and introspection.
func (o *Overlay) IsTracked(p string) (bool, error) {
	return o.flags.isTracked(cleanPath(p))
}

// InvalidateCache removes a path from the resolution cache.
func (o *Overlay) InvalidateCache(p string) {
	o.cache.invalidate(cleanPath(p))
}

// InvalidateCacheTree removes all cache entries under a path prefix.
func (o *Overlay) InvalidateCacheTree(prefix string) {
	o.cache.invalidateTree(cleanPath(prefix))
}

// ClearCache removes all cache entries.
func (o *Overlay) ClearCache() {
	o.cache.clear()
}

// CacheStats returns cache statistics.
func (o *Overlay) CacheStats() CacheStats {
	return o.cache.Stats()
}

// cleanPath normalizes a logical path: slash-separated, no leading or
// trailing slash, "" for the overlay root.
func cleanPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// parentDir returns the parent of a logical path, "" for top-level paths.
func parentDir(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// ancestors returns the strict ancestors of p from the top down,
// excluding the root. For "a/b/c" it returns ["a", "a/b"].
func ancestors(p string) []string {
	if p == "" {
		return nil
	}
	var out []string
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[:i])
		}
	}
	return out
}
