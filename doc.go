/*
Package overlayfs composes two disks — a read-only base and a mutable
diff — into a single logical disk with copy-on-write semantics.

# Overview

The overlay behaves as though the base were directly modifiable: files
can be created, rewritten, appended to, renamed and removed, yet the
base disk is never written. Every mutation lands on the diff disk, and
two metadata stores record the out-of-band state that keeps the two
layers consistent:

  - Tombstones mark logical paths that have been removed. A tombstone on
    a directory hides its whole subtree.
  - Tracked markers mark paths whose authoritative content is on the
    diff disk, so listings do not surface the shadowed base copy.
  - Origin mappings remember where on the base disk a logical path's
    base contribution lives once the path is shadowed on the diff disk
    (renames, appends, hard links, timestamp updates); the mapped path
    may equal the logical path.

# Basic Usage

	package main

	import (
	    "github.com/absfs/overlayfs"
	    "github.com/spf13/afero"
	)

	func main() {
	    base := overlayfs.NewAferoDisk("base", afero.NewMemMapFs())
	    diff := overlayfs.NewAferoDisk("diff", afero.NewMemMapFs())
	    meta := overlayfs.NewDiskMetadataStore(overlayfs.NewAferoDisk("meta", afero.NewMemMapFs()))
	    tracked := overlayfs.NewDiskMetadataStore(overlayfs.NewAferoDisk("tracked", afero.NewMemMapFs()))

	    // Seed the base with one file.
	    base.CreateDirectory("etc")
	    bw, _ := base.WriteFile("etc/config.yml", overlayfs.WriteRewrite)
	    bw.Write([]byte("key: base"))
	    bw.Close()

	    over := overlayfs.New("overlay", base, diff, meta, tracked)

	    // Reads fall through to base; writes land on diff.
	    w, _ := over.WriteFile("etc/custom.yml", overlayfs.WriteRewrite)
	    w.Write([]byte("key: value"))
	    w.Close()

	    // Removing a base file tombstones it; base stays untouched.
	    over.RemoveFile("etc/config.yml")
	}

# Append Without Copy-Up

Appending to a base-only file does not copy the base content. The
overlay opens a fresh diff file holding only the appended suffix and
records the base origin; reads then present both parts as one stream:

	// base holds "hello"
	w, _ := over.WriteFile("f", overlayfs.WriteAppend)
	w.Write([]byte("_world"))
	w.Close()

	r, _ := over.ReadFile("f") // reads "hello_world"

A later WriteRewrite replaces the logical file and the base
contribution is discarded.

# Renames Without Copy-Up

Moving a base-only file records an alias: an empty marker file on the
diff makes the destination visible in listings, and the origin mapping
points reads at the original base path. No base bytes are read or
copied by the move.

# Directory Merging

Directory listings merge the diff enumeration with the base
enumeration, subtracting tombstoned and tracked entries:

	// base has folder/a.txt, overlay created folder/b.txt
	names, _ := over.ListFiles("folder") // a.txt, b.txt

# Stacking

Overlay implements the same Disk interface it consumes, so an overlay
can serve as the base or diff of another overlay. Each instance is
self-contained: all state lives in its own four collaborators.

# Collaborators

Disks and metadata stores are consumed through narrow interfaces.
AferoDisk adapts any afero.Fs; AbsDisk adapts any absfs.FileSystem.
DiskMetadataStore keeps markers as files on a disk;
SQLiteMetadataStore keeps them in a SQLite table.

# Concurrency

The overlay holds no internal locks and may be called from multiple
goroutines. It relies on the per-path atomicity of the underlying
primitives; concurrent mutations of overlapping paths resolve to one of
the serializable interleavings. The optional resolution cache is
internally synchronized.

# Limitations

  - One base and one diff per overlay; stack instances for more layers.
  - Removals are tombstones: base-derived entries stay hidden by markers
    that are never compacted; only re-creating a path clears its marker.
  - Blob paths and zero-copy replication are not supported.
  - Cross-disk ordering is best-effort, not crash-atomic.
*/
package overlayfs
