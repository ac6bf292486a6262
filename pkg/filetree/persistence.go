package filetree

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	syncryptoCrypto "github.com/liqing/syncrypto/pkg/crypto"
	"github.com/liqing/syncrypto/pkg/filesystem"
	"github.com/liqing/syncrypto/pkg/treecompress"
)

// metadataPathname is the logical pathname, relative to the encrypted
// root, at which the encrypted tree's container is stored.
const metadataPathname = ".syncrypto/filetree"

// metadataFSPathname is the on-disk path the metadata container actually
// lives at within the encrypted folder, using the "_syncrypto" stand-in
// directory so it can't collide with a real allocated entry.
const metadataFSPathname = "_syncrypto/filetree"

// persistedEncryptedTree is the JSON shape stored inside the encrypted
// folder's metadata container.
type persistedEncryptedTree struct {
	Table            map[string]*Entry `json:"table"`
	SnapshotTreeName string            `json:"snapshot_tree_name"`
}

// persistedSnapshot is the JSON shape stored, unencrypted, inside the
// plaintext folder's per-snapshot file.
type persistedSnapshot struct {
	Table     map[string]*Entry `json:"table"`
	TrashName string            `json:"trash_name,omitempty"`
}

// LoadEncryptedTree reads and decrypts the encrypted folder's metadata
// container at <encryptedRoot>/_syncrypto/filetree, returning the
// reconstructed tree and the recorded snapshot tree name. A missing
// container is not an error: it signals a brand new encrypted folder, and
// an empty tree with an empty snapshot name is returned.
func LoadEncryptedTree(encryptedRoot, password string) (*Tree, string, error) {
	path := filepath.Join(encryptedRoot, filepath.FromSlash(metadataFSPathname))
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return New(), "", nil
	} else if err != nil {
		return nil, "", errors.Wrap(err, "unable to open encrypted tree metadata")
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := syncryptoCrypto.DecryptFD(&buf, file, password); err != nil {
		return nil, "", errors.Wrap(err, "unable to decrypt tree metadata")
	}

	var persisted persistedEncryptedTree
	if err := json.Unmarshal(buf.Bytes(), &persisted); err != nil {
		return nil, "", errors.Wrap(err, "unable to parse tree metadata")
	}

	tree := New()
	for pathname, entry := range persisted.Table {
		entry.Pathname = pathname
		tree.Set(entry)
	}
	return tree, persisted.SnapshotTreeName, nil
}

// SaveEncryptedTree encrypts and writes the encrypted folder's metadata
// container, recording the given snapshot tree name alongside the tree
// contents. It writes atomically via a temporary file and rename.
func SaveEncryptedTree(encryptedRoot, password string, tree *Tree, snapshotTreeName string) error {
	persisted := persistedEncryptedTree{
		Table:            tree.entries,
		SnapshotTreeName: snapshotTreeName,
	}
	plaintext, err := json.Marshal(persisted)
	if err != nil {
		return errors.Wrap(err, "unable to encode tree metadata")
	}

	var buf bytes.Buffer
	meta := &syncryptoCrypto.Metadata{Pathname: metadataPathname}
	if err := syncryptoCrypto.EncryptFD(&buf, bytes.NewReader(plaintext), password, meta, true); err != nil {
		return errors.Wrap(err, "unable to encrypt tree metadata")
	}

	dir := filepath.Join(encryptedRoot, "_syncrypto")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "unable to create metadata directory")
	}

	path := filepath.Join(encryptedRoot, filepath.FromSlash(metadataFSPathname))
	return filesystem.WriteFileAtomic(path, buf.Bytes(), 0644, nil)
}

// snapshotFilePath returns the path, within the plaintext root's
// ".syncrypto" directory, of the snapshot file with the given name.
func snapshotFilePath(plainRoot, snapshotTreeName string) string {
	return filepath.Join(plainRoot, ".syncrypto", snapshotTreeName+".filetree")
}

// LoadSnapshot reads and decompresses the named snapshot file from the
// plaintext folder's ".syncrypto" directory. A missing file is not an
// error: it signals that no snapshot exists yet under this name, and an
// empty tree with an empty trash name is returned.
func LoadSnapshot(plainRoot, snapshotTreeName string) (*Tree, string, error) {
	if snapshotTreeName == "" {
		return New(), "", nil
	}
	path := snapshotFilePath(plainRoot, snapshotTreeName)
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return New(), "", nil
	} else if err != nil {
		return nil, "", errors.Wrap(err, "unable to open snapshot")
	}
	defer file.Close()

	var buf bytes.Buffer
	if err := treecompress.Decompress(&buf, file); err != nil {
		return nil, "", errors.Wrap(err, "unable to decompress snapshot")
	}

	var persisted persistedSnapshot
	if err := json.Unmarshal(buf.Bytes(), &persisted); err != nil {
		return nil, "", errors.Wrap(err, "unable to parse snapshot")
	}

	tree := New()
	for pathname, entry := range persisted.Table {
		entry.Pathname = pathname
		tree.Set(entry)
	}
	return tree, persisted.TrashName, nil
}

// SaveSnapshot compresses and writes the named snapshot file into the
// plaintext folder's ".syncrypto" directory, atomically.
func SaveSnapshot(plainRoot, snapshotTreeName string, tree *Tree, trashName string) error {
	persisted := persistedSnapshot{
		Table:     tree.entries,
		TrashName: trashName,
	}
	plaintext, err := json.Marshal(persisted)
	if err != nil {
		return errors.Wrap(err, "unable to encode snapshot")
	}

	var buf bytes.Buffer
	if err := treecompress.Compress(&buf, bytes.NewReader(plaintext)); err != nil {
		return errors.Wrap(err, "unable to compress snapshot")
	}

	dir := filepath.Join(plainRoot, ".syncrypto")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "unable to create metadata directory")
	}

	return filesystem.WriteFileAtomic(snapshotFilePath(plainRoot, snapshotTreeName), buf.Bytes(), 0644, nil)
}

// NextSnapshotName chooses the snapshot tree name to use for a folder
// pairing. The default name is derived deterministically from the
// encrypted root's path, so that re-running sync against the same pair of
// folders finds its own snapshot again. If the encrypted folder is newly
// initialized (encryptedIsNew) but a snapshot already exists under that
// default name — implying the name collides with an unrelated prior
// pairing rather than describing this one — a fresh name is salted with
// the current time to avoid adopting a stranger's snapshot.
func NextSnapshotName(encryptedRoot string, encryptedIsNew bool, existingSnapshotExists func(name string) bool, now int64) string {
	defaultName := hashHex(encryptedRoot)
	if !encryptedIsNew || !existingSnapshotExists(defaultName) {
		return defaultName
	}
	return hashHex(encryptedRoot + strconv.FormatInt(now, 10))
}

func hashHex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
