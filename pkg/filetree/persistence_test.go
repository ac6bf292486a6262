package filetree

import (
	"path/filepath"
	"testing"
)

func TestEncryptedTreeRoundTrip(t *testing.T) {
	root := t.TempDir()
	password := "correct horse battery staple"

	tree := New()
	tree.Set(&Entry{Pathname: "a.txt", FSPathname: "aa"})
	tree.Set(&Entry{Pathname: "dir", FSPathname: "bb", IsDir: true})

	if err := SaveEncryptedTree(root, password, tree, "deadbeef"); err != nil {
		t.Fatalf("unable to save encrypted tree: %v", err)
	}

	loaded, snapshotName, err := LoadEncryptedTree(root, password)
	if err != nil {
		t.Fatalf("unable to load encrypted tree: %v", err)
	}
	if snapshotName != "deadbeef" {
		t.Fatalf("expected snapshot name %q, got %q", "deadbeef", snapshotName)
	}
	if !loaded.Has("a.txt") || !loaded.Has("dir") {
		t.Fatalf("loaded tree is missing entries: %v", loaded.Pathnames())
	}
	if loaded.Get("a.txt").FSPathname != "aa" {
		t.Fatalf("loaded entry has wrong fs pathname: %q", loaded.Get("a.txt").FSPathname)
	}
}

func TestLoadEncryptedTreeMissingIsEmpty(t *testing.T) {
	root := t.TempDir()
	tree, snapshotName, err := LoadEncryptedTree(root, "password")
	if err != nil {
		t.Fatalf("unexpected error loading missing tree: %v", err)
	}
	if tree.Len() != 0 {
		t.Fatalf("expected empty tree, got %d entries", tree.Len())
	}
	if snapshotName != "" {
		t.Fatalf("expected empty snapshot name, got %q", snapshotName)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	root := t.TempDir()

	tree := New()
	tree.Set(&Entry{Pathname: "a.txt", FSPathname: "a.txt", Size: 5})

	if err := SaveSnapshot(root, "snap1", tree, "2026-01-01T00_00_00"); err != nil {
		t.Fatalf("unable to save snapshot: %v", err)
	}

	loaded, trashName, err := LoadSnapshot(root, "snap1")
	if err != nil {
		t.Fatalf("unable to load snapshot: %v", err)
	}
	if trashName != "2026-01-01T00_00_00" {
		t.Fatalf("unexpected trash name: %q", trashName)
	}
	if !loaded.Has("a.txt") {
		t.Fatalf("loaded snapshot is missing its entry")
	}

	if _, err := filepath.Abs(snapshotFilePath(root, "snap1")); err != nil {
		t.Fatalf("unable to resolve snapshot path: %v", err)
	}
}

func TestLoadSnapshotEmptyNameIsEmptyTree(t *testing.T) {
	root := t.TempDir()
	tree, trashName, err := LoadSnapshot(root, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Len() != 0 || trashName != "" {
		t.Fatalf("expected empty tree and trash name")
	}
}
