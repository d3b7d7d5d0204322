package overlayfs

import (
	"io/fs"
	"os"
	"time"
)

// resolveState classifies where a logical path's content lives.
type resolveState int

const (
	// absentTombstoned: the path does not exist logically, either because
	// it never did or because it (or an ancestor) is tombstoned.
	absentTombstoned resolveState = iota
	// baseOnly: content lives on the base disk only.
	baseOnly
	// diffOnly: content lives on the diff disk only.
	diffOnly
	// both: a base contribution and a diff file combine; reads concatenate.
	both
)

// resolution is the result of resolving a logical path. basePhys is the
// physical base path serving the base contribution, valid for baseOnly
// and both. The diff physical path always equals the logical path: diff
// structure mirrors logical structure for every materialized entry.
type resolution struct {
	state    resolveState
	basePhys string
}

func (r resolution) onDiff() bool {
	return r.state == diffOnly || r.state == both
}

func (r resolution) onBase() bool {
	return r.state == baseOnly || r.state == both
}

// resolve determines the effective location of a logical path.
//
// A tombstone on the path or any strict ancestor hides both disks. The
// origin index overrides the base lookup: when a mapping is present the
// base contribution is read from the mapped physical path, regardless of
// the tracked flag, which only suppresses the implicit identity lookup.
func (o *Overlay) resolve(p string) (resolution, error) {
	if p == "" {
		return resolution{state: both, basePhys: ""}, nil
	}

	if res, ok := o.cache.get(p); ok {
		return res, nil
	}

	dead, err := o.hasTombstonedAncestor(p)
	if err != nil {
		return resolution{}, err
	}
	if dead {
		res := resolution{state: absentTombstoned}
		o.cache.put(p, res)
		return res, nil
	}

	onDiff, err := o.diff.Exists(p)
	if err != nil {
		return resolution{}, err
	}

	basePhys, onBase, err := o.baseContribution(p)
	if err != nil {
		return resolution{}, err
	}

	var res resolution
	switch {
	case onDiff && onBase:
		res = resolution{state: both, basePhys: basePhys}
	case onDiff:
		res = resolution{state: diffOnly}
	case onBase:
		res = resolution{state: baseOnly, basePhys: basePhys}
	default:
		res = resolution{state: absentTombstoned}
	}
	o.cache.put(p, res)
	return res, nil
}

// baseContribution locates the base content for a logical path, if any.
func (o *Overlay) baseContribution(p string) (string, bool, error) {
	phys, mapped, err := o.origin.get(p)
	if err != nil {
		return "", false, err
	}
	if mapped {
		ok, err := o.base.Exists(phys)
		return phys, ok, err
	}

	tracked, err := o.flags.isTracked(p)
	if err != nil || tracked {
		return "", false, err
	}
	ok, err := o.base.Exists(p)
	return p, ok, err
}

// hasTombstonedAncestor walks p and its strict ancestors, short-circuiting
// on the first tombstone.
func (o *Overlay) hasTombstonedAncestor(p string) (bool, error) {
	for _, a := range ancestors(p) {
		dead, err := o.flags.isTombstoned(a)
		if err != nil || dead {
			return dead, err
		}
	}
	return o.flags.isTombstoned(p)
}

// Exists reports whether the logical path is present.
func (o *Overlay) Exists(p string) (bool, error) {
	res, err := o.resolve(cleanPath(p))
	if err != nil {
		return false, err
	}
	return res.state != absentTombstoned, nil
}

// IsFile reports whether the logical path is a regular file.
func (o *Overlay) IsFile(p string) (bool, error) {
	p = cleanPath(p)
	if p == "" {
		return false, nil
	}
	res, err := o.resolve(p)
	if err != nil {
		return false, err
	}
	switch {
	case res.onDiff():
		return o.diff.IsFile(p)
	case res.onBase():
		return o.base.IsFile(res.basePhys)
	}
	return false, nil
}

// IsDirectory reports whether the logical path is a directory.
func (o *Overlay) IsDirectory(p string) (bool, error) {
	p = cleanPath(p)
	if p == "" {
		return true, nil
	}
	res, err := o.resolve(p)
	if err != nil {
		return false, err
	}
	switch {
	case res.onDiff():
		return o.diff.IsDirectory(p)
	case res.onBase():
		return o.base.IsDirectory(res.basePhys)
	}
	return false, nil
}

// FileSize returns the logical size of a file: the diff size plus the
// base contribution, when both are present.
func (o *Overlay) FileSize(p string) (int64, error) {
	p = cleanPath(p)
	res, err := o.resolve(p)
	if err != nil {
		return 0, err
	}
	if res.state == absentTombstoned {
		return 0, &os.PathError{Op: "size", Path: p, Err: fs.ErrNotExist}
	}
	if dir, err := o.IsDirectory(p); err != nil {
		return 0, err
	} else if dir {
		return 0, &os.PathError{Op: "size", Path: p, Err: ErrIsDirectory}
	}

	var size int64
	if res.onDiff() {
		n, err := o.diff.FileSize(p)
		if err != nil {
			return 0, err
		}
		size += n
	}
	if res.onBase() {
		n, err := o.base.FileSize(res.basePhys)
		if err != nil {
			return 0, err
		}
		size += n
	}
	return size, nil
}

// LastModified returns the modification time, preferring the diff side.
func (o *Overlay) LastModified(p string) (time.Time, error) {
	p = cleanPath(p)
	res, err := o.resolve(p)
	if err != nil {
		return time.Time{}, err
	}
	switch {
	case res.onDiff():
		return o.diff.LastModified(p)
	case res.onBase():
		return o.base.LastModified(res.basePhys)
	}
	return time.Time{}, &os.PathError{Op: "stat", Path: p, Err: fs.ErrNotExist}
}
