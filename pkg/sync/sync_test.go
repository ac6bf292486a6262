package sync

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/liqing/syncrypto/pkg/crypto"
	"github.com/liqing/syncrypto/pkg/filetree"
	"github.com/liqing/syncrypto/pkg/filetree/rule"
)

func newTestEngine(t *testing.T, plainRoot, encryptedRoot, password string) *Engine {
	t.Helper()
	engine, err := NewEngine(Options{
		Password:      password,
		EncryptedRoot: encryptedRoot,
		PlainRoot:     plainRoot,
		RuleSet:       rule.NewSet(nil),
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// decryptContainer opens and decrypts the encrypted container file at path,
// returning its recovered plaintext content and metadata.
func decryptContainer(t *testing.T, path, password string) (string, *crypto.Metadata) {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	var buf bytes.Buffer
	meta, err := crypto.DecryptFD(&buf, file, password)
	if err != nil {
		t.Fatalf("unable to decrypt container: %v", err)
	}
	return buf.String(), meta
}

func TestSyncBasicEncryptsNewPlainFile(t *testing.T) {
	plainRoot := t.TempDir()
	encryptedRoot := t.TempDir()
	writeFile(t, filepath.Join(plainRoot, "hello.txt"), "hello world")

	engine := newTestEngine(t, plainRoot, encryptedRoot, "s3cret")
	if err := engine.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	entry := engine.encryptedTree.Get("hello.txt")
	if entry == nil {
		t.Fatal("expected hello.txt in encrypted tree")
	}

	containerPath := filepath.Join(encryptedRoot, filepath.FromSlash(entry.FSPathname))
	content, _ := decryptContainer(t, containerPath, "s3cret")
	if content != "hello world" {
		t.Fatalf("got content %q", content)
	}
}

func TestSyncModifyPropagatesToEncryptedSide(t *testing.T) {
	plainRoot := t.TempDir()
	encryptedRoot := t.TempDir()
	path := filepath.Join(plainRoot, "note.txt")
	writeFile(t, path, "version one")

	engine := newTestEngine(t, plainRoot, encryptedRoot, "s3cret")
	if err := engine.Sync(); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	writeFile(t, path, "version two, now longer")

	engine2 := newTestEngine(t, plainRoot, encryptedRoot, "s3cret")
	if err := engine2.Sync(); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	entry := engine2.encryptedTree.Get("note.txt")
	if entry == nil {
		t.Fatal("expected note.txt in encrypted tree")
	}
	containerPath := filepath.Join(encryptedRoot, filepath.FromSlash(entry.FSPathname))
	content, _ := decryptContainer(t, containerPath, "s3cret")
	if content != "version two, now longer" {
		t.Fatalf("got content %q", content)
	}
}

func TestSyncDeletionPropagatesRemoval(t *testing.T) {
	plainRoot := t.TempDir()
	encryptedRoot := t.TempDir()
	path := filepath.Join(plainRoot, "temp.txt")
	writeFile(t, path, "ephemeral")

	engine := newTestEngine(t, plainRoot, encryptedRoot, "s3cret")
	if err := engine.Sync(); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	if engine.encryptedTree.Get("temp.txt") == nil {
		t.Fatal("expected temp.txt encrypted after first sync")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	engine2 := newTestEngine(t, plainRoot, encryptedRoot, "s3cret")
	if err := engine2.Sync(); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if engine2.encryptedTree.Get("temp.txt") != nil {
		t.Fatal("expected temp.txt removed from encrypted tree")
	}
}

func TestSyncConflictPreservesBothVersions(t *testing.T) {
	plainRoot := t.TempDir()
	encryptedRoot := t.TempDir()
	path := filepath.Join(plainRoot, "shared.txt")
	writeFile(t, path, "original")

	engine := newTestEngine(t, plainRoot, encryptedRoot, "s3cret")
	if err := engine.Sync(); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	entry := engine.encryptedTree.Get("shared.txt")
	containerPath := filepath.Join(encryptedRoot, filepath.FromSlash(entry.FSPathname))
	_, meta := decryptContainer(t, containerPath, "s3cret")

	// Diverge both sides from the common snapshot: the plaintext file is
	// edited directly on disk, and the encrypted container is replaced with
	// a different edit, without going through another Sync call. The engine
	// reads the encrypted side from the persisted encrypted tree, so that
	// tree's record of the container is updated to match as well.
	writeFile(t, path, "plaintext edit")

	f, err := os.Create(containerPath)
	if err != nil {
		t.Fatal(err)
	}
	newMeta := &crypto.Metadata{Pathname: "shared.txt", ModTime: meta.ModTime + 10}
	if err := crypto.EncryptFD(f, strings.NewReader("encrypted-side edit"), "s3cret", newMeta, true); err != nil {
		t.Fatal(err)
	}
	f.Close()

	tree, snapName, err := filetree.LoadEncryptedTree(encryptedRoot, "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	recorded := tree.Get("shared.txt")
	recorded.Digest = newMeta.Digest
	recorded.Size = newMeta.Size
	recorded.ModTime = int64(newMeta.ModTime)
	recorded.Salt = newMeta.Salt
	if err := filetree.SaveEncryptedTree(encryptedRoot, "s3cret", tree, snapName); err != nil {
		t.Fatal(err)
	}

	engine2 := newTestEngine(t, plainRoot, encryptedRoot, "s3cret")
	if err := engine2.Sync(); err != nil {
		t.Fatalf("conflict sync failed: %v", err)
	}

	conflictContent, err := os.ReadFile(filepath.Join(plainRoot, "shared.conflict.txt"))
	if err != nil {
		t.Fatalf("expected a conflict file to be created: %v", err)
	}
	if string(conflictContent) != "plaintext edit" {
		t.Fatalf("expected conflict file to preserve the plaintext edit, got %q", conflictContent)
	}

	winningContent, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(winningContent) != "encrypted-side edit" {
		t.Fatalf("expected original pathname to hold the encrypted-side content, got %q", winningContent)
	}
}

func TestSyncRuleExclusionSkipsMatchingFiles(t *testing.T) {
	plainRoot := t.TempDir()
	encryptedRoot := t.TempDir()
	writeFile(t, filepath.Join(plainRoot, "keep.txt"), "keep me")
	writeFile(t, filepath.Join(plainRoot, "skip.tmp"), "drop me")

	ruleSet, err := rule.NewSet(nil).AppendStrings([]string{"exclude: name match *.tmp"})
	if err != nil {
		t.Fatal(err)
	}

	engine, err := NewEngine(Options{
		Password:      "s3cret",
		EncryptedRoot: encryptedRoot,
		PlainRoot:     plainRoot,
		RuleSet:       ruleSet,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.Sync(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if engine.encryptedTree.Get("keep.txt") == nil {
		t.Fatal("expected keep.txt to be synced")
	}
	if engine.encryptedTree.Get("skip.tmp") != nil {
		t.Fatal("expected skip.tmp to be excluded from the encrypted tree")
	}
}

func TestSyncWrongPasswordFailsWithoutMutation(t *testing.T) {
	plainRoot := t.TempDir()
	encryptedRoot := t.TempDir()
	writeFile(t, filepath.Join(plainRoot, "secret.txt"), "top secret")

	engine := newTestEngine(t, plainRoot, encryptedRoot, "correct-password")
	if err := engine.Sync(); err != nil {
		t.Fatalf("initial sync failed: %v", err)
	}

	before, err := os.ReadFile(filepath.Join(plainRoot, "secret.txt"))
	if err != nil {
		t.Fatal(err)
	}

	engine2 := newTestEngine(t, plainRoot, encryptedRoot, "wrong-password")
	err = engine2.Sync()
	if err == nil {
		t.Fatal("expected sync with the wrong password to fail")
	}
	var decryptErr *crypto.DecryptError
	if !errors.As(err, &decryptErr) {
		t.Fatalf("expected a *crypto.DecryptError, got %T: %v", err, err)
	}

	after, err := os.ReadFile(filepath.Join(plainRoot, "secret.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("expected the plaintext file to be untouched after a failed sync")
	}
}
