package sync

import (
	"testing"

	"github.com/liqing/syncrypto/pkg/filetree"
)

func TestConflictPathnameWithExtension(t *testing.T) {
	tree := filetree.New()
	got := conflictPathname(tree, "docs/notes.txt")
	if got != "docs/notes.conflict.txt" {
		t.Fatalf("got %q", got)
	}
}

func TestConflictPathnameWithoutExtension(t *testing.T) {
	tree := filetree.New()
	got := conflictPathname(tree, "README")
	if got != "README.conflict" {
		t.Fatalf("got %q", got)
	}
}

func TestConflictPathnameDisambiguatesOnCollision(t *testing.T) {
	tree := filetree.New()
	tree.Set(&filetree.Entry{Pathname: "notes.conflict.txt", FSPathname: "notes.conflict.txt"})
	got := conflictPathname(tree, "notes.txt")
	if got != "notes.conflict.1.txt" {
		t.Fatalf("got %q", got)
	}
	tree.Set(&filetree.Entry{Pathname: "notes.conflict.1.txt", FSPathname: "notes.conflict.1.txt"})
	got = conflictPathname(tree, "notes.txt")
	if got != "notes.conflict.2.txt" {
		t.Fatalf("got %q", got)
	}
}

func TestConflictPathnameAtTopLevelHasNoLeadingSlash(t *testing.T) {
	tree := filetree.New()
	got := conflictPathname(tree, "a.b.txt")
	if got != "a.b.conflict.txt" {
		t.Fatalf("got %q", got)
	}
}
