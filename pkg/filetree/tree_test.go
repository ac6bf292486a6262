package filetree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/liqing/syncrypto/pkg/filetree/rule"
)

func TestTreeSetGetRemove(t *testing.T) {
	tree := New()
	entry := &Entry{Pathname: "a/b.txt", FSPathname: "a/b.txt"}
	tree.Set(entry)

	if got := tree.Get("a/b.txt"); got != entry {
		t.Fatalf("Get did not return the set entry")
	}
	if !tree.Has("a/b.txt") {
		t.Fatalf("Has returned false for a set entry")
	}
	if !tree.HasFSPathname("a/b.txt") {
		t.Fatalf("HasFSPathname returned false for a set entry's fs pathname")
	}

	tree.Remove("a/b.txt")
	if tree.Has("a/b.txt") {
		t.Fatalf("Has returned true after Remove")
	}
	if tree.HasFSPathname("a/b.txt") {
		t.Fatalf("HasFSPathname returned true after Remove")
	}
}

func TestTreeFilesAndFolders(t *testing.T) {
	tree := New()
	tree.Set(&Entry{Pathname: "dir", FSPathname: "dir", IsDir: true})
	tree.Set(&Entry{Pathname: "dir/file.txt", FSPathname: "dir/file.txt"})
	tree.Set(&Entry{Pathname: "other.txt", FSPathname: "other.txt"})

	files := tree.Files()
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	folders := tree.Folders()
	if len(folders) != 1 || folders[0].Pathname != "dir" {
		t.Fatalf("expected one folder \"dir\", got %v", folders)
	}
}

func TestFromFSSkipsMetadataDirectories(t *testing.T) {
	root := t.TempDir()

	if err := os.WriteFile(filepath.Join(root, "keep.txt"), []byte("hello"), 0644); err != nil {
		t.Fatalf("unable to write fixture file: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".syncrypto"), 0755); err != nil {
		t.Fatalf("unable to create fixture directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, ".syncrypto", "filetree"), []byte("x"), 0644); err != nil {
		t.Fatalf("unable to write fixture file: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatalf("unable to create fixture directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "nested.txt"), []byte("world"), 0644); err != nil {
		t.Fatalf("unable to write fixture file: %v", err)
	}

	tree, err := FromFS(root, nil)
	if err != nil {
		t.Fatalf("FromFS returned an error: %v", err)
	}

	if tree.Has(".syncrypto") || tree.Has(".syncrypto/filetree") {
		t.Fatalf("scan included the metadata directory")
	}
	if !tree.Has("keep.txt") {
		t.Fatalf("scan omitted a top-level file")
	}
	if !tree.Has("sub") || !tree.Has("sub/nested.txt") {
		t.Fatalf("scan omitted a nested directory or file")
	}
}

func TestFromFSAppliesRules(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "keep.txt"), []byte("a"), 0644); err != nil {
		t.Fatalf("unable to write fixture file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "skip.tmp"), []byte("b"), 0644); err != nil {
		t.Fatalf("unable to write fixture file: %v", err)
	}

	r, err := rule.Parse("ignore: name match *.tmp")
	if err != nil {
		t.Fatalf("unable to parse rule: %v", err)
	}
	rules := rule.NewSet([]*rule.Rule{r})

	tree, err := FromFS(root, rules)
	if err != nil {
		t.Fatalf("FromFS returned an error: %v", err)
	}
	if !tree.Has("keep.txt") {
		t.Fatalf("scan omitted a file that should have been included")
	}
	if tree.Has("skip.tmp") {
		t.Fatalf("scan included a file that should have been ignored")
	}
}
