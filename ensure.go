package overlayfs

import (
	"io/fs"
	"os"
)

// ensureParents materializes on the diff disk every ancestor of dir, and
// dir itself, that exists logically but not yet on diff. Ancestors
// already on diff are skipped. A logically absent or tombstoned ancestor
// is an error: the caller's precondition does not hold.
func (o *Overlay) ensureParents(dir string) error {
	if dir == "" {
		return nil
	}
	for _, a := range append(ancestors(dir), dir) {
		ok, err := o.diff.Exists(a)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		present, err := o.Exists(a)
		if err != nil {
			return err
		}
		if !present {
			return &os.PathError{Op: "mkdir", Path: a, Err: fs.ErrNotExist}
		}
		if err := o.diff.CreateDirectory(a); err != nil {
			return err
		}
		o.cache.invalidate(a)
	}
	return nil
}

// ensureFile materializes an empty diff file at the logical path, creating
// parent directories as needed. The empty file makes the path visible in
// diff enumerations while its content, if any, is served through the
// origin mapping. No base bytes are copied.
func (o *Overlay) ensureFile(p string) error {
	if err := o.ensureParents(parentDir(p)); err != nil {
		return err
	}
	ok, err := o.diff.Exists(p)
	if err != nil || ok {
		return err
	}
	return o.diff.CreateFile(p)
}

// materializeBaseFile pins a base-only file onto the diff disk without
// copying content: an empty diff file plus an origin mapping to the base
// physical path. Used by timestamp updates.
func (o *Overlay) materializeBaseFile(p, basePhys string) error {
	if err := o.ensureFile(p); err != nil {
		return err
	}
	if err := o.origin.set(p, basePhys); err != nil {
		return err
	}
	return o.flags.setTracked(p)
}
