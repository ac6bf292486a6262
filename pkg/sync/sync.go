package sync

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/liqing/syncrypto/pkg/filesystem/locking"
	"github.com/liqing/syncrypto/pkg/filetree"
	"github.com/liqing/syncrypto/pkg/filetree/rule"
)

// acquireLocks takes the advisory cross-process locks for both folders,
// encrypted folder first and then plaintext folder, matching the fixed
// ordering required to avoid deadlocking against a concurrent sync running
// the other direction. The returned function releases whichever locks were
// actually acquired.
func (e *Engine) acquireLocks() (func(), error) {
	encryptedLockDir := filepath.Join(e.encryptedRoot, encryptedMarkerDir)
	if err := os.MkdirAll(encryptedLockDir, 0755); err != nil {
		return nil, errors.Wrap(err, "unable to create encrypted metadata directory")
	}
	encryptedLocker, err := locking.NewLocker(filepath.Join(encryptedLockDir, lockFileName), 0644)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open encrypted folder lock")
	}
	if err := encryptedLocker.Lock(true); err != nil {
		encryptedLocker.Close()
		return nil, errors.Wrap(err, "unable to acquire encrypted folder lock")
	}

	var plainLocker *locking.Locker
	if e.plainRoot != "" {
		plainLockDir := filepath.Join(e.plainRoot, plainMarkerDir)
		if err := os.MkdirAll(plainLockDir, 0755); err != nil {
			encryptedLocker.Unlock()
			encryptedLocker.Close()
			return nil, errors.Wrap(err, "unable to create plaintext metadata directory")
		}
		plainLocker, err = locking.NewLocker(filepath.Join(plainLockDir, lockFileName), 0644)
		if err != nil {
			encryptedLocker.Unlock()
			encryptedLocker.Close()
			return nil, errors.Wrap(err, "unable to open plaintext folder lock")
		}
		if err := plainLocker.Lock(true); err != nil {
			plainLocker.Close()
			encryptedLocker.Unlock()
			encryptedLocker.Close()
			return nil, errors.Wrap(err, "unable to acquire plaintext folder lock")
		}
	}

	return func() {
		if plainLocker != nil {
			plainLocker.Unlock()
			plainLocker.Close()
		}
		encryptedLocker.Unlock()
		encryptedLocker.Close()
	}, nil
}

// Sync performs one three-way synchronization pass: it loads both trees and
// the snapshot, decides an action for every pathname present on either
// side, applies those actions, rewrites the trees' recorded directory
// modification times onto disk, and persists the updated trees. Both
// folder locks are held for the duration of the pass.
func (e *Engine) Sync() error {
	release, err := e.acquireLocks()
	if err != nil {
		return err
	}
	defer release()

	if err := e.load(); err != nil {
		return err
	}
	if e.plainRoot == "" {
		return errors.New("sync requires a plaintext folder")
	}

	timestamp := syncTimestamp(time.Now())

	var skipPrefixes []string
	var removals []func() error
	var counts actionCounts

	for _, pathname := range unionPathnames(e.plainTree, e.encryptedTree) {
		if withinSkipped(pathname, skipPrefixes) {
			continue
		}

		p := e.plainTree.Get(pathname)
		en := e.encryptedTree.Get(pathname)
		s := e.snapshotTree.Get(pathname)

		ignored := e.isIgnored(p, en, s)
		action := decide(p, en, s, ignored, e.encryptedIsNew)
		counts.record(action)

		switch action {
		case ActionIgnore, ActionSame:
			// Nothing to transfer.

		case ActionEncrypt:
			if p.IsDir && en != nil && !en.IsDir {
				if err := removeStaleObject(fsPath(e.encryptedRoot, en)); err != nil {
					return err
				}
			}
			result, err := e.encryptFile(pathname)
			if err != nil {
				var genErr *GenerateEncryptedFilePathError
				if errors.As(err, &genErr) {
					e.logger.Warn(genErr)
					continue
				}
				return err
			}
			e.encryptedTree.Set(result)

		case ActionDecrypt:
			if en.IsDir && p != nil && !p.IsDir {
				if err := removeStaleObject(fsPath(e.plainRoot, p)); err != nil {
					return err
				}
			}
			result, err := e.decryptFile(pathname)
			if err != nil {
				return err
			}
			e.plainTree.Set(result)

		case ActionRemovePlain:
			entry, name := p, pathname
			removals = append(removals, func() error {
				if err := removeToTrash(e.plainRoot, plainMarkerDir, timestamp, entry); err != nil {
					return err
				}
				e.plainTree.Remove(name)
				return nil
			})

		case ActionRemoveEncrypted:
			entry, name := en, pathname
			removals = append(removals, func() error {
				if err := removeToTrash(e.encryptedRoot, encryptedMarkerDir, timestamp, entry); err != nil {
					return err
				}
				e.encryptedTree.Remove(name)
				return nil
			})

		case ActionConflict:
			if p.IsDir != en.IsDir {
				skipPrefixes = append(skipPrefixes, pathname)
				if p.IsDir {
					if err := removeStaleObject(fsPath(e.encryptedRoot, en)); err != nil {
						return err
					}
					result, err := e.encryptFile(pathname)
					if err != nil {
						return err
					}
					e.encryptedTree.Set(result)
				} else {
					if err := removeStaleObject(fsPath(e.plainRoot, p)); err != nil {
						return err
					}
					result, err := e.decryptFile(pathname)
					if err != nil {
						return err
					}
					e.plainTree.Set(result)
				}
				continue
			}
			if err := e.resolveConflict(pathname, p); err != nil {
				return err
			}
		}
	}

	for _, removal := range removals {
		if err := removal(); err != nil {
			return err
		}
	}

	if err := e.reviseDirectoryTimes(); err != nil {
		return err
	}

	e.snapshotTree = e.encryptedTree
	e.trashName = timestamp

	if err := filetree.SaveEncryptedTree(e.encryptedRoot, e.password, e.encryptedTree, e.snapshotTreeName); err != nil {
		return errors.Wrap(err, "unable to save encrypted tree")
	}
	if err := filetree.SaveSnapshot(e.plainRoot, e.snapshotTreeName, e.snapshotTree, e.trashName); err != nil {
		return errors.Wrap(err, "unable to save snapshot")
	}

	e.logger.Printf(
		"sync complete: %d encrypted, %d decrypted, %d conflicted, %d removed",
		counts.encrypted, counts.decrypted, counts.conflicted, counts.removedPlain+counts.removedEncrypted,
	)

	return nil
}

// actionCounts tallies how many pathnames received each action during a
// sync pass, used only to print a one-line summary once the pass
// completes.
type actionCounts struct {
	encrypted, decrypted, conflicted, removedPlain, removedEncrypted int
}

func (c *actionCounts) record(action Action) {
	switch action {
	case ActionEncrypt:
		c.encrypted++
	case ActionDecrypt:
		c.decrypted++
	case ActionConflict:
		c.conflicted++
	case ActionRemovePlain:
		c.removedPlain++
	case ActionRemoveEncrypted:
		c.removedEncrypted++
	}
}

// resolveConflict preserves the losing plaintext file under a renamed
// conflict pathname and then decrypts the encrypted side into the original
// pathname.
func (e *Engine) resolveConflict(pathname string, p *filetree.Entry) error {
	conflictName := conflictPathname(e.plainTree, pathname)

	conflictEntry := &filetree.Entry{Pathname: conflictName, FSPathname: conflictName}
	conflictEntry.CopyAttrFrom(p)

	src := fsPath(e.plainRoot, p)
	dst := fsPath(e.plainRoot, conflictEntry)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrap(err, "unable to create folder structure for conflicting file")
	}
	if err := os.Rename(src, dst); err != nil {
		return errors.Wrap(err, "unable to preserve conflicting plaintext file")
	}
	e.plainTree.Set(conflictEntry)
	e.plainTree.Remove(pathname)

	result, err := e.decryptFile(pathname)
	if err != nil {
		return err
	}
	e.plainTree.Set(result)
	return nil
}

// reviseDirectoryTimes rewrites every directory's on-disk modification time
// to its recorded value. File transfers and intermediate MkdirAll calls
// bump a parent directory's mtime as a side effect, which would otherwise
// make every folder look changed on the next sync pass.
func (e *Engine) reviseDirectoryTimes() error {
	for _, entry := range e.plainTree.Folders() {
		path := fsPath(e.plainRoot, entry)
		t := time.Unix(entry.ModTime, 0)
		if err := os.Chtimes(path, t, t); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "unable to restore plaintext directory modification time")
		}
	}
	for _, entry := range e.encryptedTree.Folders() {
		path := fsPath(e.encryptedRoot, entry)
		t := time.Unix(entry.ModTime, 0)
		if err := os.Chtimes(path, t, t); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "unable to restore encrypted directory modification time")
		}
	}
	return nil
}

// isIgnored reports whether pathname should be treated as excluded by the
// active rule set. Both sides are tested independently and either being
// excluded is enough (the redesigned "or" semantics, rather than requiring
// both sides to agree): a side no longer present is stood in for by the
// snapshot entry, so a rule change is still detected for a pathname that
// has since been deleted from that side.
func (e *Engine) isIgnored(p, en, s *filetree.Entry) bool {
	if e.ruleSet == nil {
		return false
	}
	if subject, ok := subjectFor(p, s); ok && e.ruleSet.Test(subject) != rule.ActionInclude {
		return true
	}
	if subject, ok := subjectFor(en, s); ok && e.ruleSet.Test(subject) != rule.ActionInclude {
		return true
	}
	return false
}

func subjectFor(primary, fallback *filetree.Entry) (rule.Subject, bool) {
	if primary != nil {
		return primary.RuleSubject(), true
	}
	if fallback != nil {
		return fallback.RuleSubject(), true
	}
	return rule.Subject{}, false
}

// removeStaleObject deletes whatever is at path, used when a
// directory-versus-file conflict requires clearing the losing side before
// the winner can be materialized in its place.
func removeStaleObject(path string) error {
	if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "unable to remove stale object")
	}
	return nil
}

// unionPathnames returns the sorted set of pathnames present in either
// tree. Sorting ascending also guarantees a parent pathname is visited
// before any of its children, which the directory-versus-file conflict
// handling in Sync relies on.
func unionPathnames(a, b *filetree.Tree) []string {
	set := make(map[string]bool)
	for _, name := range a.Pathnames() {
		set[name] = true
	}
	for _, name := range b.Pathnames() {
		set[name] = true
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// withinSkipped reports whether pathname is pathname itself or a
// descendant of one of the given prefixes.
func withinSkipped(pathname string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if pathname == prefix || strings.HasPrefix(pathname, prefix+"/") {
			return true
		}
	}
	return false
}
