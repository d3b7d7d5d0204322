package overlayfs

import (
	"errors"
	"io"
	"io/fs"
	"sort"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// memDisk creates an in-memory disk for testing
func memDisk(name string) *AferoDisk {
	return NewAferoDisk(name, afero.NewMemMapFs())
}

// newTestOverlay creates an overlay over fresh in-memory disks and stores
func newTestOverlay(t *testing.T) (*Overlay, Disk, Disk) {
	t.Helper()
	base := memDisk("base")
	diff := memDisk("diff")
	meta := NewDiskMetadataStore(memDisk("meta"))
	tracked := NewDiskMetadataStore(memDisk("tracked"))
	return New("overlay", base, diff, meta, tracked), base, diff
}

// writeDisk writes content to a path on a disk, creating parents
func writeDisk(t *testing.T, d Disk, p, content string) {
	t.Helper()
	if dir := parentDir(cleanPath(p)); dir != "" {
		if err := d.CreateDirectories(dir); err != nil {
			t.Fatalf("create directories %q: %v", dir, err)
		}
	}
	w, err := d.WriteFile(cleanPath(p), WriteRewrite)
	if err != nil {
		t.Fatalf("write %q: %v", p, err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("write %q: %v", p, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close %q: %v", p, err)
	}
}

// readAll reads a whole file from anything with a ReadFile method
func readAll(t *testing.T, d interface {
	ReadFile(string) (ReadStream, error)
}, p string) string {
	t.Helper()
	r, err := d.ReadFile(p)
	if err != nil {
		t.Fatalf("open %q: %v", p, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read %q: %v", p, err)
	}
	return string(data)
}

// sortedList lists a directory and sorts the names
func sortedList(t *testing.T, o *Overlay, dir string) []string {
	t.Helper()
	names, err := o.ListFiles(dir)
	if err != nil {
		t.Fatalf("list %q: %v", dir, err)
	}
	sort.Strings(names)
	return names
}

func mustExist(t *testing.T, o *Overlay, p string, want bool) {
	t.Helper()
	got, err := o.Exists(p)
	if err != nil {
		t.Fatalf("exists %q: %v", p, err)
	}
	if got != want {
		t.Errorf("exists(%q) = %v, want %v", p, got, want)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestCreateRemoveFile cycles a base file through remove and re-create
func TestCreateRemoveFile(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	if err := base.CreateFile("file.txt"); err != nil {
		t.Fatal(err)
	}
	mustExist(t, over, "file.txt", true)

	if err := over.RemoveFile("file.txt"); err != nil {
		t.Fatal(err)
	}
	mustExist(t, over, "file.txt", false)

	if err := over.CreateFile("file.txt"); err != nil {
		t.Fatal(err)
	}
	mustExist(t, over, "file.txt", true)

	if err := over.RemoveFile("file.txt"); err != nil {
		t.Fatal(err)
	}
	mustExist(t, over, "file.txt", false)

	// Base still holds its copy.
	if ok, _ := base.Exists("file.txt"); !ok {
		t.Error("base copy was touched by overlay removal")
	}
}

// TestListFiles merges base and diff listings without duplicates
func TestListFiles(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	if err := base.CreateDirectory("folder"); err != nil {
		t.Fatal(err)
	}
	writeDisk(t, base, "folder/file1.txt", "one")

	if err := over.CreateFile("folder/file2.txt"); err != nil {
		t.Fatal(err)
	}

	want := []string{"file1.txt", "file2.txt"}
	if got := sortedList(t, over, "folder"); !equalStrings(got, want) {
		t.Errorf("listing = %v, want %v", got, want)
	}

	// Appending to the base file shadows it on diff; the listing is
	// unchanged.
	w, err := over.WriteFile("folder/file1.txt", WriteAppend)
	if err != nil {
		t.Fatal(err)
	}
	w.Close()

	if got := sortedList(t, over, "folder"); !equalStrings(got, want) {
		t.Errorf("listing after append = %v, want %v", got, want)
	}
}

// TestMoveFile moves a base-only file without copying it
func TestMoveFile(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	writeDisk(t, base, "file1.txt", "payload")
	if err := over.MoveFile("file1.txt", "file2.txt"); err != nil {
		t.Fatal(err)
	}

	if got := sortedList(t, over, ""); !equalStrings(got, []string{"file2.txt"}) {
		t.Errorf("listing = %v, want [file2.txt]", got)
	}
	if got := readAll(t, over, "file2.txt"); got != "payload" {
		t.Errorf("content = %q, want %q", got, "payload")
	}
	if got := readAll(t, base, "file1.txt"); got != "payload" {
		t.Errorf("base content changed: %q", got)
	}

	// Re-creating the source gives two independent files.
	if err := over.CreateFile("file1.txt"); err != nil {
		t.Fatal(err)
	}
	want := []string{"file1.txt", "file2.txt"}
	if got := sortedList(t, over, ""); !equalStrings(got, want) {
		t.Errorf("listing = %v, want %v", got, want)
	}
}

// TestDirectoryIterator yields full paths with a trailing slash on dirs
func TestDirectoryIterator(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	if err := base.CreateDirectory("folder"); err != nil {
		t.Fatal(err)
	}
	writeDisk(t, base, "folder/file2.txt", "two")
	if err := base.CreateDirectories("folder/folder"); err != nil {
		t.Fatal(err)
	}

	if err := over.CreateFile("folder/file1.txt"); err != nil {
		t.Fatal(err)
	}

	var paths []string
	iter, err := over.IterateDirectory("folder")
	if err != nil {
		t.Fatal(err)
	}
	for ; iter.Valid(); err = iter.Next() {
		if err != nil {
			t.Fatal(err)
		}
		paths = append(paths, iter.Path())
	}
	sort.Strings(paths)

	want := []string{"folder/file1.txt", "folder/file2.txt", "folder/folder/"}
	if !equalStrings(paths, want) {
		t.Errorf("iteration = %v, want %v", paths, want)
	}
}

// TestMoveDirectory moves a directory with mixed base and diff contents
func TestMoveDirectory(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	if err := base.CreateDirectory("folder1"); err != nil {
		t.Fatal(err)
	}
	if err := base.CreateDirectory("folder2"); err != nil {
		t.Fatal(err)
	}
	writeDisk(t, base, "folder1/file1.txt", "one")
	if err := base.CreateDirectories("folder1/inner"); err != nil {
		t.Fatal(err)
	}

	if err := over.CreateFile("folder1/file2.txt"); err != nil {
		t.Fatal(err)
	}
	if err := over.CreateFile("folder1/inner/file0.txt"); err != nil {
		t.Fatal(err)
	}

	if err := over.MoveDirectory("folder1", "folder2/folder1"); err != nil {
		t.Fatal(err)
	}

	want := []string{"file1.txt", "file2.txt", "inner"}
	if got := sortedList(t, over, "folder2/folder1"); !equalStrings(got, want) {
		t.Errorf("listing = %v, want %v", got, want)
	}
	if got := sortedList(t, over, "folder2/folder1/inner"); !equalStrings(got, []string{"file0.txt"}) {
		t.Errorf("inner listing = %v, want [file0.txt]", got)
	}

	mustExist(t, over, "folder1", false)
	mustExist(t, over, "folder1/file1.txt", false)

	// The re-aliased base file still reads through.
	if got := readAll(t, over, "folder2/folder1/file1.txt"); got != "one" {
		t.Errorf("moved base file content = %q, want %q", got, "one")
	}
}

// TestAppendRead concatenates base content with an appended diff suffix
func TestAppendRead(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	writeDisk(t, base, "f", "hello")

	w, err := over.WriteFile("f", WriteAppend)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("_world")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if got := readAll(t, over, "f"); got != "hello_world" {
		t.Errorf("content = %q, want %q", got, "hello_world")
	}
	size, err := over.FileSize("f")
	if err != nil {
		t.Fatal(err)
	}
	if size != 11 {
		t.Errorf("size = %d, want 11", size)
	}
	if got := readAll(t, base, "f"); got != "hello" {
		t.Errorf("base content changed: %q", got)
	}
}

// TestRewriteDiscardsBase verifies Rewrite after an append replaces the
// whole logical file
func TestRewriteDiscardsBase(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	writeDisk(t, base, "f", "hello")

	w, err := over.WriteFile("f", WriteAppend)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("_world"))
	w.Close()

	w, err = over.WriteFile("f", WriteRewrite)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("fresh"))
	w.Close()

	if got := readAll(t, over, "f"); got != "fresh" {
		t.Errorf("content = %q, want %q", got, "fresh")
	}
	size, err := over.FileSize("f")
	if err != nil {
		t.Fatal(err)
	}
	if size != 5 {
		t.Errorf("size = %d, want 5", size)
	}
}

// TestTrackedAfterRecreate verifies the remove/create round trip leaves
// the path tracked
func TestTrackedAfterRecreate(t *testing.T) {
	over, _, _ := newTestOverlay(t)

	if err := over.CreateFile("p"); err != nil {
		t.Fatal(err)
	}
	if err := over.RemoveFile("p"); err != nil {
		t.Fatal(err)
	}
	if err := over.CreateFile("p"); err != nil {
		t.Fatal(err)
	}

	mustExist(t, over, "p", true)
	tracked, err := over.IsTracked("p")
	if err != nil {
		t.Fatal(err)
	}
	if !tracked {
		t.Error("re-created file is not tracked")
	}
}

// TestRemoveRecursiveKeepsDescendantsHidden re-creates a removed
// directory and verifies its old children stay gone
func TestRemoveRecursiveKeepsDescendantsHidden(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	if err := base.CreateDirectory("d"); err != nil {
		t.Fatal(err)
	}
	writeDisk(t, base, "d/a", "a")
	writeDisk(t, base, "d/b", "b")

	if err := over.RemoveRecursive("d"); err != nil {
		t.Fatal(err)
	}
	mustExist(t, over, "d", false)
	mustExist(t, over, "d/a", false)

	if err := over.CreateDirectory("d"); err != nil {
		t.Fatal(err)
	}
	mustExist(t, over, "d", true)
	mustExist(t, over, "d/a", false)
	if got := sortedList(t, over, "d"); len(got) != 0 {
		t.Errorf("re-created directory lists stale children: %v", got)
	}
}

// TestClearDirectory removes every logical child but keeps the directory
func TestClearDirectory(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	if err := base.CreateDirectory("d"); err != nil {
		t.Fatal(err)
	}
	writeDisk(t, base, "d/base.txt", "b")
	if err := over.CreateFile("d/diff.txt"); err != nil {
		t.Fatal(err)
	}

	if err := over.ClearDirectory("d"); err != nil {
		t.Fatal(err)
	}
	mustExist(t, over, "d", true)
	if got := sortedList(t, over, "d"); len(got) != 0 {
		t.Errorf("cleared directory lists %v", got)
	}
}

// TestReplaceFile replaces an existing destination
func TestReplaceFile(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	writeDisk(t, base, "old", "old content")
	writeDisk(t, base, "new", "new content")

	if err := over.ReplaceFile("new", "old"); err != nil {
		t.Fatal(err)
	}
	if got := readAll(t, over, "old"); got != "new content" {
		t.Errorf("content = %q, want %q", got, "new content")
	}
	mustExist(t, over, "new", false)
}

// TestCreateHardLink links diff-resident and base-only sources
func TestCreateHardLink(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	writeDisk(t, base, "base.txt", "base bytes")
	if err := over.CreateHardLink("base.txt", "alias.txt"); err != nil {
		t.Fatal(err)
	}
	if got := readAll(t, over, "alias.txt"); got != "base bytes" {
		t.Errorf("alias content = %q, want %q", got, "base bytes")
	}
	mustExist(t, over, "base.txt", true)

	w, err := over.WriteFile("diff.txt", WriteRewrite)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("diff bytes"))
	w.Close()
	if err := over.CreateHardLink("diff.txt", "diff-alias.txt"); err != nil {
		t.Fatal(err)
	}
	if got := readAll(t, over, "diff-alias.txt"); got != "diff bytes" {
		t.Errorf("alias content = %q, want %q", got, "diff bytes")
	}
}

// TestRemoveDirectoryErrors rejects non-empty and missing directories
func TestRemoveDirectoryErrors(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	if err := base.CreateDirectory("d"); err != nil {
		t.Fatal(err)
	}
	writeDisk(t, base, "d/f", "x")

	if err := over.RemoveDirectory("d"); !errors.Is(err, ErrNotEmpty) {
		t.Errorf("remove non-empty directory: %v, want ErrNotEmpty", err)
	}
	if err := over.RemoveDirectory("missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("remove missing directory: %v, want ErrNotExist", err)
	}

	if err := over.RemoveRecursive("d"); err != nil {
		t.Fatal(err)
	}
	if err := base.CreateDirectory("empty"); err != nil {
		t.Fatal(err)
	}
	if err := over.RemoveDirectory("empty"); err != nil {
		t.Fatal(err)
	}
	mustExist(t, over, "empty", false)
}

// TestErrorTaxonomy checks the documented failure modes
func TestErrorTaxonomy(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	writeDisk(t, base, "f", "x")
	if err := over.CreateFile("f"); !errors.Is(err, fs.ErrExist) {
		t.Errorf("create existing: %v, want ErrExist", err)
	}
	if err := over.RemoveFile("missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("remove missing: %v, want ErrNotExist", err)
	}
	if err := over.RemoveFileIfExists("missing"); err != nil {
		t.Errorf("remove-if-exists missing: %v, want nil", err)
	}
	if err := over.MoveFile("missing", "x"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("move missing: %v, want ErrNotExist", err)
	}
	if err := over.MoveFile("f", "f2"); err != nil {
		t.Fatal(err)
	}
	writeDisk(t, base, "g", "y")
	if err := over.MoveFile("g", "f2"); !errors.Is(err, fs.ErrExist) {
		t.Errorf("move onto existing: %v, want ErrExist", err)
	}

	if err := base.CreateDirectory("dir"); err != nil {
		t.Fatal(err)
	}
	if _, err := over.ReadFile("dir"); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("read directory: %v, want ErrIsDirectory", err)
	}
	if _, err := over.ListFiles("g"); !errors.Is(err, ErrNotDirectory) {
		t.Errorf("list file: %v, want ErrNotDirectory", err)
	}

	if _, err := over.BlobPath("f2"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("blob path: %v, want ErrUnsupported", err)
	}
	if err := over.WriteFileWithBlobFunc("f2", WriteRewrite, nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("blob write: %v, want ErrUnsupported", err)
	}
}

// TestSetLastModified stamps base-only and diff-resident files
func TestSetLastModified(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	writeDisk(t, base, "f", "content")
	stamp := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := over.SetLastModified("f", stamp); err != nil {
		t.Fatal(err)
	}
	got, err := over.LastModified("f")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(stamp) {
		t.Errorf("mtime = %v, want %v", got, stamp)
	}

	// The stamp did not disturb the content.
	if content := readAll(t, over, "f"); content != "content" {
		t.Errorf("content after stamp = %q", content)
	}
}

// TestCreateDirectories builds a chain across base and diff
func TestCreateDirectories(t *testing.T) {
	over, base, _ := newTestOverlay(t)

	if err := base.CreateDirectory("a"); err != nil {
		t.Fatal(err)
	}
	if err := over.CreateDirectories("a/b/c"); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"a", "a/b", "a/b/c"} {
		isDir, err := over.IsDirectory(p)
		if err != nil {
			t.Fatal(err)
		}
		if !isDir {
			t.Errorf("%q is not a directory", p)
		}
	}
	if err := over.CreateFile("a/b/c/leaf"); err != nil {
		t.Fatal(err)
	}
	mustExist(t, over, "a/b/c/leaf", true)
}
