package filetree

import "testing"

func TestAssignEncryptedPathShortestUnusedPrefix(t *testing.T) {
	tree := New()

	a := &Entry{Pathname: "alpha.txt"}
	if err := AssignEncryptedPath(tree, a); err != nil {
		t.Fatalf("unable to assign encrypted path: %v", err)
	}
	if len(a.FSPathname) != 2 {
		t.Fatalf("expected a 2-character prefix for the first entry, got %q", a.FSPathname)
	}

	// Occupy that same prefix with an unrelated sibling, forcing the next
	// entry with the same basename digest to fall back to a longer prefix.
	collisionFS := a.FSPathname
	tree.Set(&Entry{Pathname: "occupant", FSPathname: collisionFS})

	c := &Entry{Pathname: "alpha.txt"}
	if err := AssignEncryptedPath(tree, c); err != nil {
		t.Fatalf("unable to assign encrypted path: %v", err)
	}
	if len(c.FSPathname) <= len(collisionFS) {
		t.Fatalf("expected a strictly longer prefix, got %q vs %q", c.FSPathname, collisionFS)
	}
}

func TestAssignEncryptedPathNestedUnderParent(t *testing.T) {
	tree := New()
	parent := &Entry{Pathname: "dir", IsDir: true}
	if err := AssignEncryptedPath(tree, parent); err != nil {
		t.Fatalf("unable to assign encrypted path for parent: %v", err)
	}
	tree.Set(parent)

	child := &Entry{Pathname: "dir/file.txt"}
	if err := AssignEncryptedPath(tree, child); err != nil {
		t.Fatalf("unable to assign encrypted path for child: %v", err)
	}
	if got, want := child.FSPathname[:len(parent.FSPathname)+1], parent.FSPathname+"/"; got != want {
		t.Fatalf("expected child fs pathname to be rooted under parent, got %q", child.FSPathname)
	}
}

func TestAssignEncryptedPathMetadataPrefix(t *testing.T) {
	tree := New()
	entry := &Entry{Pathname: ".syncrypto/filetree"}
	if err := AssignEncryptedPath(tree, entry); err != nil {
		t.Fatalf("unable to assign encrypted path: %v", err)
	}
	if entry.FSPathname != "_syncrypto/filetree" {
		t.Fatalf("expected _syncrypto/filetree, got %q", entry.FSPathname)
	}
}

func TestAssignEncryptedPathExhaustion(t *testing.T) {
	tree := New()
	base := "collide.txt"
	entry := &Entry{Pathname: base}
	if err := AssignEncryptedPath(tree, entry); err != nil {
		t.Fatalf("unable to assign encrypted path: %v", err)
	}
	full := entry.FSPathname
	// Occupy every prefix from length 2 up to the full digest so that a
	// same-named sibling cannot be allocated a path at all.
	for i := 2; i <= len(full); i++ {
		tree.Set(&Entry{Pathname: "occupant-" + full[:i], FSPathname: full[:i]})
	}

	other := &Entry{Pathname: base}
	if err := AssignEncryptedPath(tree, other); err != ErrPathExhausted {
		t.Fatalf("expected ErrPathExhausted, got %v", err)
	}
}
