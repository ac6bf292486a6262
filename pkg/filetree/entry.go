// Package filetree implements the flat pathname-to-entry model shared by
// the plaintext, encrypted, and snapshot trees: a single in-memory map,
// scanned from the filesystem or deserialized from persisted metadata, with
// no nested directory nodes — directory structure is implicit in
// pathnames.
package filetree

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/liqing/syncrypto/pkg/filetree/rule"
)

// contentDigestSizeLimit is the maximum plaintext file size, in bytes, for
// which a content digest is precomputed during a filesystem scan. Larger
// files rely on size+mtime for the equality relation used by the sync
// engine, a deliberate performance/correctness trade-off documented in
// DESIGN.md.
const contentDigestSizeLimit = 10240

// Entry is the canonical description of one file or directory. A
// zero-value Entry is never valid on its own; entries are always
// constructed via FromFile, cloned from a counterpart tree, or
// deserialized.
type Entry struct {
	// Pathname is the logical, forward-slash-separated path, relative to
	// the root of whichever tree the entry belongs to.
	Pathname string
	// FSPathname is the entry's actual on-disk relative path within its
	// folder. For plaintext entries it equals Pathname; for encrypted
	// entries it is an opaque path assigned by AssignEncryptedPath.
	FSPathname string
	// IsDir indicates whether the entry is a directory.
	IsDir bool
	// Size is the byte count of the plaintext content (0 for directories).
	Size uint64
	// ModTime is the modification time, in seconds since the Unix epoch.
	ModTime int64
	// ChangeTime is the creation/change time, in seconds since the Unix
	// epoch. It is stored but never used for diffing.
	ChangeTime int64
	// Mode holds POSIX permission bits, or nil on platforms without them.
	Mode *uint32
	// Digest is the content digest of the plaintext, when computed; nil for
	// directories and for files whose content was never digested.
	Digest []byte
	// Salt is the per-file random value embedded in the encrypted
	// container, nil until the entry has been encrypted at least once.
	Salt []byte
}

// FromFile stats the filesystem object at path and constructs an Entry for
// it under the given logical pathname. It computes a content digest only
// for regular files no larger than contentDigestSizeLimit.
func FromFile(path, pathname string) (*Entry, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to stat file")
	}

	entry := &Entry{
		Pathname:   pathname,
		FSPathname: pathname,
		IsDir:      info.IsDir(),
		ModTime:    info.ModTime().Unix(),
		ChangeTime: changeTime(info),
	}

	if !entry.IsDir {
		entry.Size = uint64(info.Size())
		mode := uint32(info.Mode().Perm())
		entry.Mode = &mode
		if entry.Size <= contentDigestSizeLimit {
			digest, err := digestFile(path)
			if err != nil {
				return nil, errors.Wrap(err, "unable to compute content digest")
			}
			entry.Digest = digest
		}
	}

	return entry, nil
}

// digestFile computes the MD5 digest of a regular file's content.
func digestFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return nil, err
	}
	return hasher.Sum(nil), nil
}

// CopyAttrFrom copies the attributes produced by a successful transfer
// (size, digest, salt, modification and change time, mode) from another
// entry, leaving Pathname and FSPathname untouched.
func (e *Entry) CopyAttrFrom(other *Entry) {
	e.IsDir = other.IsDir
	e.Size = other.Size
	e.ModTime = other.ModTime
	e.ChangeTime = other.ChangeTime
	if other.Mode != nil {
		mode := *other.Mode
		e.Mode = &mode
	} else {
		e.Mode = nil
	}
	e.Digest = append([]byte(nil), other.Digest...)
	e.Salt = append([]byte(nil), other.Salt...)
}

// Name returns the basename of the entry's logical pathname.
func (e *Entry) Name() string {
	if idx := strings.LastIndexByte(e.Pathname, '/'); idx >= 0 {
		return e.Pathname[idx+1:]
	}
	return e.Pathname
}

// RuleSubject projects the entry into the minimal view the rule package
// evaluates rules against.
func (e *Entry) RuleSubject() rule.Subject {
	return rule.Subject{
		Pathname:   e.Pathname,
		Name:       e.Name(),
		IsDir:      e.IsDir,
		Size:       e.Size,
		ModTime:    e.ModTime,
		ChangeTime: e.ChangeTime,
	}
}

// jsonEntry is the JSON-serializable projection of an Entry: pathname is
// implied by the enclosing map key, and Digest/Salt are hex-encoded.
type jsonEntry struct {
	FSPathname string  `json:"fs_pathname"`
	IsDir      bool    `json:"isdir"`
	Size       uint64  `json:"size"`
	ModTime    int64   `json:"mtime"`
	ChangeTime int64   `json:"ctime"`
	Mode       *uint32 `json:"mode,omitempty"`
	Digest     string  `json:"digest,omitempty"`
	Salt       string  `json:"salt,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Entry) MarshalJSON() ([]byte, error) {
	proj := jsonEntry{
		FSPathname: e.FSPathname,
		IsDir:      e.IsDir,
		Size:       e.Size,
		ModTime:    e.ModTime,
		ChangeTime: e.ChangeTime,
		Mode:       e.Mode,
	}
	if len(e.Digest) > 0 {
		proj.Digest = hex.EncodeToString(e.Digest)
	}
	if len(e.Salt) > 0 {
		proj.Salt = hex.EncodeToString(e.Salt)
	}
	return json.Marshal(proj)
}

// UnmarshalJSON implements json.Unmarshaler. The Pathname field is not
// populated here; callers fill it in from the enclosing map key.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var proj jsonEntry
	if err := json.Unmarshal(data, &proj); err != nil {
		return err
	}
	e.FSPathname = proj.FSPathname
	e.IsDir = proj.IsDir
	e.Size = proj.Size
	e.ModTime = proj.ModTime
	e.ChangeTime = proj.ChangeTime
	e.Mode = proj.Mode
	if proj.Digest != "" {
		digest, err := hex.DecodeString(proj.Digest)
		if err != nil {
			return errors.Wrap(err, "invalid digest encoding")
		}
		e.Digest = digest
	}
	if proj.Salt != "" {
		salt, err := hex.DecodeString(proj.Salt)
		if err != nil {
			return errors.Wrap(err, "invalid salt encoding")
		}
		e.Salt = salt
	}
	return nil
}

// toSlashPathname converts an OS-native relative path to a forward-slash
// logical pathname.
func toSlashPathname(path string) string {
	return filepath.ToSlash(path)
}
