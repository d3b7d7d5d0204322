package overlayfs

import (
	"io/fs"
	"os"
	"path"
	"time"
)

// CreateFile creates an empty file at a logical path that must be absent.
// Creation clears any tombstone on the path, so a removed file can be
// re-created in place.
func (o *Overlay) CreateFile(p string) error {
	p = cleanPath(p)
	present, err := o.Exists(p)
	if err != nil {
		return err
	}
	if present {
		return &os.PathError{Op: "create", Path: p, Err: fs.ErrExist}
	}
	if err := o.ensureParents(parentDir(p)); err != nil {
		return err
	}
	if err := o.diff.CreateFile(p); err != nil {
		return err
	}
	if err := o.flags.clearTombstone(p); err != nil {
		return err
	}
	if err := o.flags.setTracked(p); err != nil {
		return err
	}
	o.cache.invalidate(p)
	o.logger.Debug("create file", "disk", o.name, "path", p)
	return nil
}

// CreateDirectory creates a directory. The parent must exist logically.
func (o *Overlay) CreateDirectory(p string) error {
	p = cleanPath(p)
	if p == "" {
		return nil
	}
	present, err := o.Exists(p)
	if err != nil {
		return err
	}
	if present {
		return &os.PathError{Op: "mkdir", Path: p, Err: fs.ErrExist}
	}
	if parent := parentDir(p); parent != "" {
		ok, err := o.Exists(parent)
		if err != nil {
			return err
		}
		if !ok {
			return &os.PathError{Op: "mkdir", Path: parent, Err: fs.ErrNotExist}
		}
	}
	if err := o.ensureParents(parentDir(p)); err != nil {
		return err
	}
	return o.finishCreateDirectory(p)
}

// CreateDirectories creates a directory and any missing ancestors.
func (o *Overlay) CreateDirectories(p string) error {
	p = cleanPath(p)
	if p == "" {
		return nil
	}
	for _, a := range append(ancestors(p), p) {
		present, err := o.Exists(a)
		if err != nil {
			return err
		}
		if present {
			isDir, err := o.IsDirectory(a)
			if err != nil {
				return err
			}
			if !isDir {
				return &os.PathError{Op: "mkdir", Path: a, Err: ErrNotDirectory}
			}
			onDiff, err := o.diff.Exists(a)
			if err != nil {
				return err
			}
			if !onDiff {
				if err := o.diff.CreateDirectory(a); err != nil {
					return err
				}
				o.cache.invalidate(a)
			}
			continue
		}
		if err := o.finishCreateDirectory(a); err != nil {
			return err
		}
	}
	return nil
}

// finishCreateDirectory materializes one directory whose parent chain is
// already on diff, then flips its markers.
func (o *Overlay) finishCreateDirectory(p string) error {
	onDiff, err := o.diff.Exists(p)
	if err != nil {
		return err
	}
	if !onDiff {
		if err := o.diff.CreateDirectory(p); err != nil {
			return err
		}
	}
	if err := o.flags.clearTombstone(p); err != nil {
		return err
	}
	if err := o.flags.setTracked(p); err != nil {
		return err
	}
	o.cache.invalidate(p)
	o.logger.Debug("create directory", "disk", o.name, "path", p)
	return nil
}

// WriteFile opens a write stream on a logical path.
//
// WriteRewrite replaces the logical file: any base contribution is
// discarded by dropping the origin mapping, and the tracked flag hides
// the base copy from listings. WriteAppend on a base-only file opens a
// fresh diff file and records the base origin; reads then concatenate
// the base prefix with the appended diff suffix. No base bytes are
// copied in either mode.
func (o *Overlay) WriteFile(p string, mode WriteMode) (WriteStream, error) {
	p = cleanPath(p)
	if p == "" {
		return nil, &os.PathError{Op: "write", Path: p, Err: ErrIsDirectory}
	}
	res, err := o.resolve(p)
	if err != nil {
		return nil, err
	}
	if res.state != absentTombstoned {
		isDir, err := o.IsDirectory(p)
		if err != nil {
			return nil, err
		}
		if isDir {
			return nil, &os.PathError{Op: "write", Path: p, Err: ErrIsDirectory}
		}
	}

	if err := o.ensureParents(parentDir(p)); err != nil {
		return nil, err
	}

	switch mode {
	case WriteRewrite:
		if err := o.origin.remove(p); err != nil {
			return nil, err
		}
	case WriteAppend:
		if res.state == baseOnly {
			// First append to a base file: the new diff file holds only the
			// appended suffix; the origin mapping remembers the prefix.
			if err := o.origin.set(p, res.basePhys); err != nil {
				return nil, err
			}
		}
	}

	if err := o.flags.clearTombstone(p); err != nil {
		return nil, err
	}
	if err := o.flags.setTracked(p); err != nil {
		return nil, err
	}
	o.cache.invalidate(p)
	o.logger.Debug("write file", "disk", o.name, "path", p, "append", mode == WriteAppend)
	return o.diff.WriteFile(p, mode)
}

// RemoveFile removes a logical file. The diff copy, if any, is deleted;
// the base copy is hidden by a tombstone and never touched.
func (o *Overlay) RemoveFile(p string) error {
	p = cleanPath(p)
	res, err := o.resolve(p)
	if err != nil {
		return err
	}
	if res.state == absentTombstoned {
		return &os.PathError{Op: "remove", Path: p, Err: fs.ErrNotExist}
	}
	isDir, err := o.IsDirectory(p)
	if err != nil {
		return err
	}
	if isDir {
		return &os.PathError{Op: "remove", Path: p, Err: ErrIsDirectory}
	}

	if res.onDiff() {
		if err := o.diff.RemoveFile(p); err != nil {
			return err
		}
	}
	if err := o.origin.remove(p); err != nil {
		return err
	}
	if err := o.flags.setTombstone(p); err != nil {
		return err
	}
	o.cache.invalidate(p)
	o.logger.Debug("remove file", "disk", o.name, "path", p)
	return nil
}

// RemoveFileIfExists removes a logical file, ignoring absence.
func (o *Overlay) RemoveFileIfExists(p string) error {
	present, err := o.Exists(cleanPath(p))
	if err != nil {
		return err
	}
	if !present {
		return nil
	}
	return o.RemoveFile(p)
}

// RemoveDirectory removes a logically empty directory.
func (o *Overlay) RemoveDirectory(p string) error {
	p = cleanPath(p)
	res, err := o.resolve(p)
	if err != nil {
		return err
	}
	if res.state == absentTombstoned {
		return &os.PathError{Op: "rmdir", Path: p, Err: fs.ErrNotExist}
	}
	names, err := o.ListFiles(p)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return &os.PathError{Op: "rmdir", Path: p, Err: ErrNotEmpty}
	}

	if res.onDiff() {
		if err := o.diff.RemoveDirectory(p); err != nil {
			return err
		}
	}
	if err := o.flags.setTombstone(p); err != nil {
		return err
	}
	o.cache.invalidate(p)
	return nil
}

// RemoveRecursive removes a logical path and everything under it. Absent
// paths are a no-op. Every descendant gets its own tombstone, so a later
// re-creation of the directory does not resurrect them.
func (o *Overlay) RemoveRecursive(p string) error {
	p = cleanPath(p)
	res, err := o.resolve(p)
	if err != nil {
		return err
	}
	if res.state == absentTombstoned {
		return nil
	}
	isDir, err := o.IsDirectory(p)
	if err != nil {
		return err
	}
	if !isDir {
		return o.RemoveFile(p)
	}

	names, err := o.ListFiles(p)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := o.RemoveRecursive(path.Join(p, name)); err != nil {
			return err
		}
	}
	if res.onDiff() {
		if err := o.diff.RemoveRecursive(p); err != nil {
			return err
		}
	}
	if p != "" {
		if err := o.flags.setTombstone(p); err != nil {
			return err
		}
	}
	o.cache.invalidateTree(p)
	o.logger.Debug("remove recursive", "disk", o.name, "path", p)
	return nil
}

// ClearDirectory removes every logical child of a directory.
func (o *Overlay) ClearDirectory(p string) error {
	p = cleanPath(p)
	names, err := o.ListFiles(p)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := o.RemoveRecursive(path.Join(p, name)); err != nil {
			return err
		}
	}
	return nil
}

// MoveFile moves a logical file. A diff-resident file is moved on the
// diff disk; a base-only file is re-aliased through the origin mapping
// with an empty diff marker at the destination. The base disk is
// byte-identical before and after.
func (o *Overlay) MoveFile(from, to string) error {
	from, to = cleanPath(from), cleanPath(to)
	res, err := o.resolve(from)
	if err != nil {
		return err
	}
	if res.state == absentTombstoned {
		return &os.PathError{Op: "rename", Path: from, Err: fs.ErrNotExist}
	}
	if isDir, err := o.IsDirectory(from); err != nil {
		return err
	} else if isDir {
		return &os.PathError{Op: "rename", Path: from, Err: ErrIsDirectory}
	}
	if present, err := o.Exists(to); err != nil {
		return err
	} else if present {
		return &os.PathError{Op: "rename", Path: to, Err: fs.ErrExist}
	}

	if err := o.ensureParents(parentDir(to)); err != nil {
		return err
	}
	if res.onDiff() {
		if err := o.diff.MoveFile(from, to); err != nil {
			return err
		}
	} else {
		if err := o.ensureFile(to); err != nil {
			return err
		}
	}
	if res.onBase() {
		if err := o.origin.set(to, res.basePhys); err != nil {
			return err
		}
	}
	if err := o.origin.remove(from); err != nil {
		return err
	}
	if err := o.flags.setTombstone(from); err != nil {
		return err
	}
	if err := o.flags.clearTombstone(to); err != nil {
		return err
	}
	if err := o.flags.setTracked(to); err != nil {
		return err
	}
	o.cache.invalidate(from)
	o.cache.invalidate(to)
	o.logger.Debug("move file", "disk", o.name, "from", from, "to", to)
	return nil
}

// MoveDirectory moves a logical directory by moving each child, then
// tombstoning the source. Base-only children are re-aliased, not copied.
func (o *Overlay) MoveDirectory(from, to string) error {
	from, to = cleanPath(from), cleanPath(to)
	res, err := o.resolve(from)
	if err != nil {
		return err
	}
	if res.state == absentTombstoned {
		return &os.PathError{Op: "rename", Path: from, Err: fs.ErrNotExist}
	}
	if isDir, err := o.IsDirectory(from); err != nil {
		return err
	} else if !isDir {
		return &os.PathError{Op: "rename", Path: from, Err: ErrNotDirectory}
	}
	if present, err := o.Exists(to); err != nil {
		return err
	} else if present {
		return &os.PathError{Op: "rename", Path: to, Err: fs.ErrExist}
	}

	if err := o.ensureParents(parentDir(to)); err != nil {
		return err
	}
	if err := o.finishCreateDirectory(to); err != nil {
		return err
	}

	names, err := o.ListFiles(from)
	if err != nil {
		return err
	}
	for _, name := range names {
		src, dst := path.Join(from, name), path.Join(to, name)
		isDir, err := o.IsDirectory(src)
		if err != nil {
			return err
		}
		if isDir {
			err = o.MoveDirectory(src, dst)
		} else {
			err = o.MoveFile(src, dst)
		}
		if err != nil {
			return err
		}
	}

	if res.onDiff() {
		// Children are gone; drop the emptied diff directory.
		if err := o.diff.RemoveRecursive(from); err != nil {
			return err
		}
	}
	if err := o.flags.setTombstone(from); err != nil {
		return err
	}
	o.cache.invalidateTree(from)
	o.logger.Debug("move directory", "disk", o.name, "from", from, "to", to)
	return nil
}

// ReplaceFile moves from onto to, removing an existing destination first.
// The two steps are invariant-atomic, not crash-atomic.
func (o *Overlay) ReplaceFile(from, to string) error {
	if err := o.RemoveFileIfExists(to); err != nil {
		return err
	}
	return o.MoveFile(from, to)
}

// CreateHardLink links dst to src. A diff-resident source is linked on
// the diff disk; a base-only source is re-aliased so both logical paths
// serve the same base bytes.
func (o *Overlay) CreateHardLink(src, dst string) error {
	src, dst = cleanPath(src), cleanPath(dst)
	res, err := o.resolve(src)
	if err != nil {
		return err
	}
	if res.state == absentTombstoned {
		return &os.PathError{Op: "link", Path: src, Err: fs.ErrNotExist}
	}
	if isDir, err := o.IsDirectory(src); err != nil {
		return err
	} else if isDir {
		return &os.PathError{Op: "link", Path: src, Err: ErrIsDirectory}
	}
	if present, err := o.Exists(dst); err != nil {
		return err
	} else if present {
		return &os.PathError{Op: "link", Path: dst, Err: fs.ErrExist}
	}

	if err := o.ensureParents(parentDir(dst)); err != nil {
		return err
	}
	if res.onDiff() {
		if err := o.diff.CreateHardLink(src, dst); err != nil {
			return err
		}
	} else {
		if err := o.ensureFile(dst); err != nil {
			return err
		}
	}
	if res.onBase() {
		if err := o.origin.set(dst, res.basePhys); err != nil {
			return err
		}
	}
	if err := o.flags.clearTombstone(dst); err != nil {
		return err
	}
	if err := o.flags.setTracked(dst); err != nil {
		return err
	}
	o.cache.invalidate(dst)
	return nil
}

// SetLastModified stamps a logical path. The base disk is read-only, so
// stamping a base-only file first materializes its diff marker.
func (o *Overlay) SetLastModified(p string, t time.Time) error {
	p = cleanPath(p)
	res, err := o.resolve(p)
	if err != nil {
		return err
	}
	switch res.state {
	case absentTombstoned:
		return &os.PathError{Op: "chtimes", Path: p, Err: fs.ErrNotExist}
	case baseOnly:
		isDir, err := o.base.IsDirectory(res.basePhys)
		if err != nil {
			return err
		}
		if isDir {
			if err := o.ensureParents(p); err != nil {
				return err
			}
		} else {
			if err := o.materializeBaseFile(p, res.basePhys); err != nil {
				return err
			}
		}
	}
	o.cache.invalidate(p)
	return o.diff.SetLastModified(p, t)
}
