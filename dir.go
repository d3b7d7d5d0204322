package overlayfs

import (
	"io/fs"
	"os"
	"path"
	"sort"
)

// ListFiles returns the child names of a logical directory: the diff
// enumeration plus the base enumeration minus tombstoned, tracked and
// duplicate entries. Order is unspecified; callers sort when they need
// determinism.
func (o *Overlay) ListFiles(dir string) ([]string, error) {
	dir = cleanPath(dir)
	if err := o.requireDirectory(dir); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var names []string

	onDiff, err := o.diff.Exists(dir)
	if err != nil {
		return nil, err
	}
	if onDiff {
		diffNames, err := o.diff.ListFiles(dir)
		if err != nil {
			return nil, err
		}
		for _, name := range diffNames {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	baseNames, err := o.baseChildren(dir)
	if err != nil {
		return nil, err
	}
	for _, name := range baseNames {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// baseChildren enumerates the base-derived portion of a directory
// listing, filtering tombstoned and tracked children.
func (o *Overlay) baseChildren(dir string) ([]string, error) {
	ok, err := o.base.Exists(dir)
	if err != nil || !ok {
		return nil, err
	}
	raw, err := o.base.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, name := range raw {
		child := path.Join(dir, name)
		dead, err := o.flags.isTombstoned(child)
		if err != nil {
			return nil, err
		}
		if dead {
			continue
		}
		tracked, err := o.flags.isTracked(child)
		if err != nil {
			return nil, err
		}
		if tracked {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// IterateDirectory returns an iterator over the unified directory view.
// Paths are full logical paths; directory entries end with a slash. The
// iterator is a snapshot: reconstruct it to restart.
func (o *Overlay) IterateDirectory(dir string) (DirIterator, error) {
	dir = cleanPath(dir)
	names, err := o.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		child := path.Join(dir, name)
		isDir, err := o.IsDirectory(child)
		if err != nil {
			return nil, err
		}
		if isDir {
			child += "/"
		}
		paths = append(paths, child)
	}
	return &sliceIterator{paths: paths}, nil
}

// requireDirectory verifies the logical path exists and is a directory.
func (o *Overlay) requireDirectory(dir string) error {
	if dir == "" {
		return nil
	}
	res, err := o.resolve(dir)
	if err != nil {
		return err
	}
	if res.state == absentTombstoned {
		return &os.PathError{Op: "readdir", Path: dir, Err: fs.ErrNotExist}
	}
	isDir, err := o.IsDirectory(dir)
	if err != nil {
		return err
	}
	if !isDir {
		return &os.PathError{Op: "readdir", Path: dir, Err: ErrNotDirectory}
	}
	return nil
}

// sliceIterator yields a fixed sequence of paths.
type sliceIterator struct {
	paths []string
	pos   int
}

func (it *sliceIterator) Valid() bool {
	return it.pos < len(it.paths)
}

func (it *sliceIterator) Path() string {
	return it.paths[it.pos]
}

func (it *sliceIterator) Next() error {
	it.pos++
	return nil
}
