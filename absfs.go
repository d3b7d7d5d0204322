package overlayfs

import (
	"io"
	"os"
	"path"
	"sort"
	"time"

	"github.com/absfs/absfs"
)

// AbsDisk adapts any absfs.FileSystem to the Disk interface. Together
// with AferoDisk this covers both filesystem ecosystems: memfs makes a
// convenient in-memory base or diff for tests, and boltfs or osfs slot
// in the same way.
type AbsDisk struct {
	name string
	fs   absfs.FileSystem
}

var _ Disk = (*AbsDisk)(nil)

// NewAbsDisk returns a Disk over fsys.
func NewAbsDisk(name string, fsys absfs.FileSystem) *AbsDisk {
	return &AbsDisk{name: name, fs: fsys}
}

func (d *AbsDisk) abs(p string) string {
	if p == "" {
		return "/"
	}
	return "/" + p
}

func (d *AbsDisk) Name() string {
	return d.name
}

func (d *AbsDisk) Exists(p string) (bool, error) {
	_, err := d.fs.Stat(d.abs(p))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *AbsDisk) IsFile(p string) (bool, error) {
	info, err := d.fs.Stat(d.abs(p))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (d *AbsDisk) IsDirectory(p string) (bool, error) {
	info, err := d.fs.Stat(d.abs(p))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (d *AbsDisk) FileSize(p string) (int64, error) {
	info, err := d.fs.Stat(d.abs(p))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (d *AbsDisk) CreateFile(p string) error {
	f, err := d.fs.OpenFile(d.abs(p), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (d *AbsDisk) CreateDirectory(p string) error {
	return d.fs.Mkdir(d.abs(p), 0755)
}

func (d *AbsDisk) CreateDirectories(p string) error {
	return d.fs.MkdirAll(d.abs(p), 0755)
}

func (d *AbsDisk) ClearDirectory(p string) error {
	names, err := d.ListFiles(p)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := d.fs.RemoveAll(d.abs(path.Join(p, name))); err != nil {
			return err
		}
	}
	return nil
}

func (d *AbsDisk) MoveFile(from, to string) error {
	return d.fs.Rename(d.abs(from), d.abs(to))
}

func (d *AbsDisk) MoveDirectory(from, to string) error {
	return d.fs.Rename(d.abs(from), d.abs(to))
}

func (d *AbsDisk) ReplaceFile(from, to string) error {
	if err := d.fs.Remove(d.abs(to)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return d.fs.Rename(d.abs(from), d.abs(to))
}

// CreateHardLink copies contents; absfs backends don't expose hard links.
func (d *AbsDisk) CreateHardLink(src, dst string) error {
	in, err := d.fs.OpenFile(d.abs(src), os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := d.fs.OpenFile(d.abs(dst), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (d *AbsDisk) ListFiles(dir string) ([]string, error) {
	f, err := d.fs.OpenFile(d.abs(dir), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (d *AbsDisk) IterateDirectory(dir string) (DirIterator, error) {
	f, err := d.fs.OpenFile(d.abs(dir), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	infos, err := f.Readdir(-1)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(infos))
	for _, info := range infos {
		p := path.Join(dir, info.Name())
		if info.IsDir() {
			p += "/"
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return &sliceIterator{paths: paths}, nil
}

func (d *AbsDisk) ReadFile(p string) (ReadStream, error) {
	f, err := d.fs.OpenFile(d.abs(p), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return &absReadStream{File: f}, nil
}

func (d *AbsDisk) WriteFile(p string, mode WriteMode) (WriteStream, error) {
	flag := os.O_WRONLY | os.O_CREATE
	if mode == WriteAppend {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	return d.fs.OpenFile(d.abs(p), flag, 0644)
}

func (d *AbsDisk) RemoveFile(p string) error {
	return d.fs.Remove(d.abs(p))
}

func (d *AbsDisk) RemoveFileIfExists(p string) error {
	if err := d.fs.Remove(d.abs(p)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *AbsDisk) RemoveDirectory(p string) error {
	return d.fs.Remove(d.abs(p))
}

func (d *AbsDisk) RemoveRecursive(p string) error {
	return d.fs.RemoveAll(d.abs(p))
}

func (d *AbsDisk) SetLastModified(p string, t time.Time) error {
	return d.fs.Chtimes(d.abs(p), t, t)
}

func (d *AbsDisk) LastModified(p string) (time.Time, error) {
	info, err := d.fs.Stat(d.abs(p))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (d *AbsDisk) SupportParallelWrite() bool {
	return true
}

func (d *AbsDisk) IsRemote() bool {
	return false
}

// absReadStream wraps an absfs.File with the ReadStream size query.
type absReadStream struct {
	absfs.File
}

func (s *absReadStream) Size() (int64, error) {
	info, err := s.File.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
