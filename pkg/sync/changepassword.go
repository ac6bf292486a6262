package sync

import (
	"bytes"
	"os"

	"github.com/pkg/errors"

	"github.com/liqing/syncrypto/pkg/crypto"
	"github.com/liqing/syncrypto/pkg/filetree"
)

// ChangePassword re-encrypts every file in the encrypted folder under a new
// password: each file is decrypted into memory with the engine's current
// password and re-encrypted back to the same on-disk location with a fresh
// salt, preserving its pathname and metadata. It acquires the encrypted
// folder's lock for the duration.
func (e *Engine) ChangePassword(newPassword string) error {
	if newPassword == e.password {
		return &ChangeTheSamePasswordError{}
	}

	release, err := e.acquireLocks()
	if err != nil {
		return err
	}
	defer release()

	if err := e.load(); err != nil {
		return err
	}

	for _, entry := range e.encryptedTree.Files() {
		if err := e.reencryptFile(entry, newPassword); err != nil {
			return errors.Wrapf(err, "unable to re-encrypt %q", entry.Pathname)
		}
	}

	e.password = newPassword

	if err := filetree.SaveEncryptedTree(e.encryptedRoot, e.password, e.encryptedTree, e.snapshotTreeName); err != nil {
		return errors.Wrap(err, "unable to save encrypted tree")
	}
	return nil
}

// reencryptFile decrypts entry's container with the engine's current
// password and re-encrypts the recovered content, under newPassword, back
// to the same path, assigning a new random salt.
func (e *Engine) reencryptFile(entry *filetree.Entry, newPassword string) error {
	path := fsPath(e.encryptedRoot, entry)

	source, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "unable to open encrypted file")
	}

	var plaintext bytes.Buffer
	meta, err := crypto.DecryptFD(&plaintext, source, e.password)
	source.Close()
	if err != nil {
		return err
	}

	destination, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "unable to recreate encrypted file")
	}
	defer destination.Close()

	newMeta := &crypto.Metadata{
		Pathname: meta.Pathname,
		ModTime:  meta.ModTime,
		Mode:     meta.Mode,
	}
	if err := crypto.EncryptFD(destination, bytes.NewReader(plaintext.Bytes()), newPassword, newMeta, e.compress); err != nil {
		return errors.Wrap(err, "unable to re-encrypt file content")
	}

	entry.Digest = newMeta.Digest
	entry.Salt = newMeta.Salt
	return nil
}
