package overlayfs

import (
	"sort"
	"testing"
)

// TestResolveBaseOnly sees through to an untouched base file
func TestResolveBaseOnly(t *testing.T) {
	over, base, _ := newTestOverlay(t)
	writeDisk(t, base, "a/b/c.txt", "content")

	mustExist(t, over, "a/b/c.txt", true)
	isFile, err := over.IsFile("a/b/c.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !isFile {
		t.Error("base file not reported as file")
	}
	if got := readAll(t, over, "a/b/c.txt"); got != "content" {
		t.Errorf("content = %q", got)
	}
	size, err := over.FileSize("a/b/c.txt")
	if err != nil {
		t.Fatal(err)
	}
	if size != int64(len("content")) {
		t.Errorf("size = %d", size)
	}
}

// TestResolveTombstoneHidesSubtree verifies an ancestor tombstone hides
// every descendant
func TestResolveTombstoneHidesSubtree(t *testing.T) {
	over, base, _ := newTestOverlay(t)
	writeDisk(t, base, "dir/sub/deep.txt", "x")

	if err := over.RemoveRecursive("dir"); err != nil {
		t.Fatal(err)
	}
	mustExist(t, over, "dir", false)
	mustExist(t, over, "dir/sub", false)
	mustExist(t, over, "dir/sub/deep.txt", false)

	// Hidden paths report neither file nor directory.
	if isFile, _ := over.IsFile("dir/sub/deep.txt"); isFile {
		t.Error("tombstoned file reported as file")
	}
	if isDir, _ := over.IsDirectory("dir/sub"); isDir {
		t.Error("tombstoned directory reported as directory")
	}
}

// TestResolveAliasIntoBase reads a renamed base file via the origin
// mapping
func TestResolveAliasIntoBase(t *testing.T) {
	over, base, _ := newTestOverlay(t)
	writeDisk(t, base, "orig.txt", "aliased bytes")

	if err := over.MoveFile("orig.txt", "moved.txt"); err != nil {
		t.Fatal(err)
	}

	tracked, err := over.IsTracked("moved.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !tracked {
		t.Error("moved file is not tracked")
	}
	mustExist(t, over, "orig.txt", false)
	mustExist(t, over, "moved.txt", true)

	if got := readAll(t, over, "moved.txt"); got != "aliased bytes" {
		t.Errorf("content = %q", got)
	}
	size, err := over.FileSize("moved.txt")
	if err != nil {
		t.Fatal(err)
	}
	if size != int64(len("aliased bytes")) {
		t.Errorf("size = %d", size)
	}
}

// TestResolveAliasChain moves a moved file again
func TestResolveAliasChain(t *testing.T) {
	over, base, _ := newTestOverlay(t)
	writeDisk(t, base, "one.txt", "payload")

	if err := over.MoveFile("one.txt", "two.txt"); err != nil {
		t.Fatal(err)
	}
	if err := over.MoveFile("two.txt", "three.txt"); err != nil {
		t.Fatal(err)
	}

	mustExist(t, over, "one.txt", false)
	mustExist(t, over, "two.txt", false)
	mustExist(t, over, "three.txt", true)
	if got := readAll(t, over, "three.txt"); got != "payload" {
		t.Errorf("content = %q", got)
	}
	if got := sortedList(t, over, ""); !equalStrings(got, []string{"three.txt"}) {
		t.Errorf("listing = %v", got)
	}
}

// TestResolveTrackedSuppressesBase lists a shadowed base file once
func TestResolveTrackedSuppressesBase(t *testing.T) {
	over, base, _ := newTestOverlay(t)
	writeDisk(t, base, "f.txt", "base version")

	w, err := over.WriteFile("f.txt", WriteRewrite)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("diff version"))
	w.Close()

	if got := readAll(t, over, "f.txt"); got != "diff version" {
		t.Errorf("content = %q", got)
	}
	names, err := over.ListFiles("")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(names)
	if !equalStrings(names, []string{"f.txt"}) {
		t.Errorf("listing = %v, want single entry", names)
	}
}

// TestPathNormalization accepts leading slashes and dot segments
func TestPathNormalization(t *testing.T) {
	over, base, _ := newTestOverlay(t)
	writeDisk(t, base, "dir/f.txt", "x")

	for _, p := range []string{"/dir/f.txt", "dir/f.txt", "./dir/f.txt", "dir//f.txt", "dir/./f.txt"} {
		ok, err := over.Exists(p)
		if err != nil {
			t.Fatalf("exists(%q): %v", p, err)
		}
		if !ok {
			t.Errorf("exists(%q) = false", p)
		}
	}

	if isDir, _ := over.IsDirectory("/"); !isDir {
		t.Error("root is not a directory")
	}
	if ok, _ := over.Exists(""); !ok {
		t.Error("root does not exist")
	}
}
