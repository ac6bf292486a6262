package filetree

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/liqing/syncrypto/pkg/filesystem"
	"github.com/liqing/syncrypto/pkg/filetree/rule"
)

// metadataDirNames are the directory names skipped unconditionally during a
// filesystem scan: both the plaintext-side and encrypted-side marker
// directory names are recognized on either side.
var metadataDirNames = map[string]bool{
	".syncrypto": true,
	"_syncrypto": true,
}

// Tree is a flat mapping from logical pathname to Entry. Directory
// structure is implicit in pathnames; there are no nested nodes. A Tree has
// no internal locking and is intended for single-goroutine use within one
// sync run.
type Tree struct {
	entries map[string]*Entry
	// fsPathnames mirrors entries keyed by FSPathname, maintained alongside
	// Set/Remove so HasFSPathname doesn't need a linear scan on large
	// trees.
	fsPathnames map[string]bool
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{
		entries:     make(map[string]*Entry),
		fsPathnames: make(map[string]bool),
	}
}

// Get returns the entry at pathname, or nil if absent.
func (t *Tree) Get(pathname string) *Entry {
	return t.entries[pathname]
}

// Set inserts or replaces the entry at its own Pathname.
func (t *Tree) Set(entry *Entry) {
	if existing := t.entries[entry.Pathname]; existing != nil {
		delete(t.fsPathnames, existing.FSPathname)
	}
	t.entries[entry.Pathname] = entry
	if entry.FSPathname != "" {
		t.fsPathnames[entry.FSPathname] = true
	}
}

// Remove deletes the entry at pathname, if present.
func (t *Tree) Remove(pathname string) {
	if existing := t.entries[pathname]; existing != nil {
		delete(t.fsPathnames, existing.FSPathname)
		delete(t.entries, pathname)
	}
}

// Has reports whether pathname is present in the tree.
func (t *Tree) Has(pathname string) bool {
	_, ok := t.entries[pathname]
	return ok
}

// HasFSPathname reports whether any entry in the tree has the given
// FSPathname.
func (t *Tree) HasFSPathname(fsPathname string) bool {
	return t.fsPathnames[fsPathname]
}

// Pathnames returns all logical pathnames in the tree, sorted.
func (t *Tree) Pathnames() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Files returns all non-directory entries, sorted by pathname.
func (t *Tree) Files() []*Entry {
	var result []*Entry
	for _, name := range t.Pathnames() {
		if e := t.entries[name]; !e.IsDir {
			result = append(result, e)
		}
	}
	return result
}

// Folders returns all directory entries, sorted by pathname.
func (t *Tree) Folders() []*Entry {
	var result []*Entry
	for _, name := range t.Pathnames() {
		if e := t.entries[name]; e.IsDir {
			result = append(result, e)
		}
	}
	return result
}

// Len returns the number of entries in the tree.
func (t *Tree) Len() int {
	return len(t.entries)
}

// FromFS performs a recursive scan of root, constructing a Tree of every
// entry whose rule-set action is include. The names ".syncrypto" and
// "_syncrypto" are skipped unconditionally, at any depth, matching both
// marker-directory spellings.
func FromFS(root string, rules *rule.Set) (*Tree, error) {
	tree := New()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "unable to resolve root path")
	}

	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, errors.Wrap(err, "unable to create root directory")
	}

	walkErr := filesystem.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if path == absRoot {
			return nil
		}
		if err != nil {
			return nil
		}

		relative, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		if metadataDirNames[filepath.Base(relative)] {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		pathname := toSlashPathname(relative)
		entry, entryErr := FromFile(path, pathname)
		if entryErr != nil {
			return nil
		}

		if rules != nil && rules.Test(entry.RuleSubject()) != rule.ActionInclude {
			if entry.IsDir {
				return filepath.SkipDir
			}
			return nil
		}

		tree.Set(entry)
		return nil
	})
	if walkErr != nil {
		return nil, errors.Wrap(walkErr, "unable to scan directory")
	}

	return tree, nil
}
