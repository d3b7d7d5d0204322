package overlayfs

import (
	"io"
	"os"
	"path"
	"time"

	"github.com/spf13/afero"
)

// AferoDisk adapts any afero.Fs to the Disk interface, so the overlay can
// run over an OsFs, a BasePathFs-scoped directory, a MemMapFs, or any
// other afero backend.
type AferoDisk struct {
	name string
	fs   afero.Fs
}

var _ Disk = (*AferoDisk)(nil)

// NewAferoDisk returns a Disk over fsys. Logical paths map to absolute
// paths within fsys.
func NewAferoDisk(name string, fsys afero.Fs) *AferoDisk {
	return &AferoDisk{name: name, fs: fsys}
}

// abs maps a logical path to the afero namespace.
func (d *AferoDisk) abs(p string) string {
	if p == "" {
		return "/"
	}
	return "/" + p
}

func (d *AferoDisk) Name() string {
	return d.name
}

func (d *AferoDisk) Exists(p string) (bool, error) {
	return afero.Exists(d.fs, d.abs(p))
}

func (d *AferoDisk) IsFile(p string) (bool, error) {
	info, err := d.fs.Stat(d.abs(p))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (d *AferoDisk) IsDirectory(p string) (bool, error) {
	info, err := d.fs.Stat(d.abs(p))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (d *AferoDisk) FileSize(p string) (int64, error) {
	info, err := d.fs.Stat(d.abs(p))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (d *AferoDisk) CreateFile(p string) error {
	f, err := d.fs.OpenFile(d.abs(p), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (d *AferoDisk) CreateDirectory(p string) error {
	return d.fs.Mkdir(d.abs(p), 0755)
}

func (d *AferoDisk) CreateDirectories(p string) error {
	return d.fs.MkdirAll(d.abs(p), 0755)
}

func (d *AferoDisk) ClearDirectory(p string) error {
	infos, err := afero.ReadDir(d.fs, d.abs(p))
	if err != nil {
		return err
	}
	for _, info := range infos {
		if err := d.fs.RemoveAll(d.abs(path.Join(p, info.Name()))); err != nil {
			return err
		}
	}
	return nil
}

func (d *AferoDisk) MoveFile(from, to string) error {
	return d.fs.Rename(d.abs(from), d.abs(to))
}

func (d *AferoDisk) MoveDirectory(from, to string) error {
	return d.fs.Rename(d.abs(from), d.abs(to))
}

func (d *AferoDisk) ReplaceFile(from, to string) error {
	if err := d.fs.Remove(d.abs(to)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return d.fs.Rename(d.abs(from), d.abs(to))
}

// CreateHardLink copies contents: afero exposes no hard-link surface, so
// the link degrades to an independent copy.
func (d *AferoDisk) CreateHardLink(src, dst string) error {
	in, err := d.fs.Open(d.abs(src))
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

func (d *AferoDisk) ListFiles(dir string) ([]string, error) {
	infos, err := afero.ReadDir(d.fs, d.abs(dir))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

func (d *AferoDisk) IterateDirectory(dir string) (DirIterator, error) {
	infos, err := afero.ReadDir(d.fs, d.abs(dir))
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
	return &sliceIterator{paths: paths}, nil
}

func (d *AferoDisk) ReadFile(p string) (ReadStream, error) {
	f, err := d.fs.Open(d.abs(p))
	if err != nil {
		return nil, err
	}
	return &aferoReadStream{File: f, fs: d.fs, path: d.abs(p)}, nil
}

func (d *AferoDisk) WriteFile(p string, mode WriteMode) (WriteStream, error) {
	flag := os.O_WRONLY | os.O_CREATE
	if mode == WriteAppend {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	return d.fs.OpenFile(d.abs(p), flag, 0644)
}

func (d *AferoDisk) RemoveFile(p string) error {
	return d.fs.Remove(d.abs(p))
}

func (d *AferoDisk) RemoveFileIfExists(p string) error {
	if err := d.fs.Remove(d.abs(p)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *AferoDisk) RemoveDirectory(p string) error {
	return d.fs.Remove(d.abs(p))
}

func (d *AferoDisk) RemoveRecursive(p string) error {
	return d.fs.RemoveAll(d.abs(p))
}

func (d *AferoDisk) SetLastModified(p string, t time.Time) error {
	return d.fs.Chtimes(d.abs(p), t, t)
}

func (d *AferoDisk) LastModified(p string) (time.Time, error) {
	info, err := d.fs.Stat(d.abs(p))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (d *AferoDisk) SupportParallelWrite() bool {
	return true
}

func (d *AferoDisk) IsRemote() bool {
	return false
}

// aferoReadStream wraps an afero.File with the ReadStream size query.
type aferoReadStream struct {
	afero.File
	fs   afero.Fs
	path string
}

func (s *aferoReadStream) Size() (int64, error) {
	info, err := s.fs.Stat(s.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
