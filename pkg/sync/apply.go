package sync

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/liqing/syncrypto/pkg/crypto"
	"github.com/liqing/syncrypto/pkg/filetree"
)

// fsPath resolves an entry's on-disk location under root.
func fsPath(root string, entry *filetree.Entry) string {
	return filepath.Join(root, filepath.FromSlash(entry.FSPathname))
}

// applyMode restores a file or directory's modification time and permission
// bits (0644 when the entry records no mode), always granting the owner
// read/write/execute on directories so future writes under them succeed regardless of the
// source mode.
func applyMode(path string, entry *filetree.Entry, isDir bool) error {
	mtime := time.Unix(entry.ModTime, 0)

	var mode os.FileMode
	if entry.Mode != nil {
		mode = os.FileMode(*entry.Mode)
	} else {
		mode = 0644
	}
	if isDir {
		mode |= 0700
	}
	if err := os.Chmod(path, mode); err != nil {
		return errors.Wrap(err, "unable to set permissions")
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return errors.Wrap(err, "unable to set modification time")
	}
	return nil
}

// encryptFile encrypts the plaintext entry at pathname to the encrypted
// side, assigning its fs pathname on first sight, and returns the
// resulting encrypted entry.
func (e *Engine) encryptFile(pathname string) (*filetree.Entry, error) {
	plainEntry := e.plainTree.Get(pathname)
	encryptedEntry := e.encryptedTree.Get(pathname)
	if encryptedEntry == nil {
		encryptedEntry = &filetree.Entry{Pathname: pathname}
		if err := filetree.AssignEncryptedPath(e.encryptedTree, encryptedEntry); err != nil {
			return nil, &GenerateEncryptedFilePathError{Pathname: pathname, Cause: err}
		}
	}

	destination := fsPath(e.encryptedRoot, encryptedEntry)

	if plainEntry.IsDir {
		if err := os.MkdirAll(destination, 0755); err != nil {
			return nil, errors.Wrap(err, "unable to create encrypted directory")
		}
		encryptedEntry.CopyAttrFrom(plainEntry)
		if err := applyMode(destination, encryptedEntry, true); err != nil {
			return nil, err
		}
		return encryptedEntry, nil
	}

	if info, err := os.Stat(destination); err == nil && info.IsDir() {
		if err := os.RemoveAll(destination); err != nil {
			return nil, errors.Wrap(err, "unable to remove stale encrypted directory")
		}
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return nil, errors.Wrap(err, "unable to create encrypted folder structure")
	}

	source := fsPath(e.plainRoot, plainEntry)
	src, err := os.Open(source)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open plaintext file")
	}
	defer src.Close()

	dst, err := os.Create(destination)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create encrypted file")
	}
	defer dst.Close()

	meta := &crypto.Metadata{
		Pathname: plainEntry.Pathname,
		ModTime:  uint32(plainEntry.ModTime),
	}
	if plainEntry.Mode != nil {
		meta.Mode = int32(*plainEntry.Mode)
	}
	if err := crypto.EncryptFD(dst, src, e.password, meta, e.compress); err != nil {
		return nil, errors.Wrap(err, "unable to encrypt file")
	}

	encryptedEntry.CopyAttrFrom(plainEntry)
	encryptedEntry.Digest = meta.Digest
	encryptedEntry.Salt = meta.Salt

	if err := applyMode(destination, plainEntry, false); err != nil {
		return nil, err
	}
	return encryptedEntry, nil
}

// decryptFile decrypts the encrypted entry at pathname to the plaintext
// side, creating its plaintext entry if one does not already exist.
func (e *Engine) decryptFile(pathname string) (*filetree.Entry, error) {
	encryptedEntry := e.encryptedTree.Get(pathname)
	plainEntry := e.plainTree.Get(pathname)
	if plainEntry == nil {
		plainEntry = &filetree.Entry{Pathname: pathname, FSPathname: pathname}
	}

	destination := fsPath(e.plainRoot, plainEntry)

	if encryptedEntry.IsDir {
		if err := os.MkdirAll(destination, 0755); err != nil {
			return nil, errors.Wrap(err, "unable to create plaintext directory")
		}
		plainEntry.CopyAttrFrom(encryptedEntry)
		if err := applyMode(destination, plainEntry, true); err != nil {
			return nil, err
		}
		return plainEntry, nil
	}

	if info, err := os.Stat(destination); err == nil && info.IsDir() {
		if err := os.RemoveAll(destination); err != nil {
			return nil, errors.Wrap(err, "unable to remove stale plaintext directory")
		}
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return nil, errors.Wrap(err, "unable to create plaintext folder structure")
	}

	source := fsPath(e.encryptedRoot, encryptedEntry)
	src, err := os.Open(source)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open encrypted file")
	}
	defer src.Close()

	dst, err := os.Create(destination)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create plaintext file")
	}
	defer dst.Close()

	meta, err := crypto.DecryptFD(dst, src, e.password)
	if err != nil {
		return nil, err
	}

	plainEntry.CopyAttrFrom(encryptedEntry)
	plainEntry.Pathname = pathname
	if plainEntry.FSPathname == "" {
		plainEntry.FSPathname = pathname
	}
	plainEntry.Size = meta.Size

	if err := applyMode(destination, plainEntry, false); err != nil {
		return nil, err
	}
	return plainEntry, nil
}

// trashPathname returns the destination path for a removed entry, rooted
// under the side's marker directory's trash subdirectory for this sync's
// timestamp.
func trashPathname(root, marker, timestamp string, entry *filetree.Entry) string {
	return filepath.Join(root, marker, "trash", timestamp, filepath.FromSlash(entry.FSPathname))
}

// removeToTrash moves the on-disk object for entry into the trash
// directory for this sync pass, rather than deleting it outright.
func removeToTrash(root, marker, timestamp string, entry *filetree.Entry) error {
	source := fsPath(root, entry)
	if _, err := os.Stat(source); os.IsNotExist(err) {
		return nil
	}
	destination := trashPathname(root, marker, timestamp, entry)
	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return errors.Wrap(err, "unable to create trash directory")
	}
	if err := os.Rename(source, destination); err != nil {
		return errors.Wrap(err, "unable to move file to trash")
	}
	return nil
}

// syncTimestamp formats a time as the ISO-8601-like trash subdirectory
// name used throughout one sync pass, with colons replaced since they are
// awkward in filesystem paths on some platforms.
func syncTimestamp(t time.Time) string {
	return strings.ReplaceAll(t.Format("2006-01-02T15:04:05.000000"), ":", "_")
}

// conflictPathname computes the renamed pathname used to preserve a losing
// version during a conflict: a dotted extension is preserved
// ("name.ext" -> "name.conflict.ext"), while an extension-less name simply
// gets ".conflict" appended, with a numeric suffix inserted if that name
// is already taken.
func conflictPathname(tree *filetree.Tree, pathname string) string {
	dir, base := splitSyncPathname(pathname)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	candidate := func(suffix string) string {
		name := stem + ".conflict" + suffix + ext
		if dir == "" {
			return name
		}
		return dir + "/" + name
	}

	result := candidate("")
	if !tree.Has(result) {
		return result
	}
	for n := 1; ; n++ {
		result = candidate("." + strconv.Itoa(n))
		if !tree.Has(result) {
			return result
		}
	}
}

// splitSyncPathname splits a logical pathname into its parent directory
// pathname (empty for top-level entries) and basename.
func splitSyncPathname(pathname string) (dir, base string) {
	if idx := strings.LastIndexByte(pathname, '/'); idx >= 0 {
		return pathname[:idx], pathname[idx+1:]
	}
	return "", pathname
}
