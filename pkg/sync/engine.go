// Package sync implements the three-way diff/merge engine that keeps a
// plaintext directory tree and a password-encrypted directory tree
// synchronized, using a snapshot tree to disambiguate which side changed
// since the last run.
package sync

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/liqing/syncrypto/pkg/crypto"
	"github.com/liqing/syncrypto/pkg/filetree"
	"github.com/liqing/syncrypto/pkg/filetree/rule"
	"github.com/liqing/syncrypto/pkg/logging"
)

const (
	encryptedMarkerDir = "_syncrypto"
	plainMarkerDir     = ".syncrypto"
	lockFileName       = "lock"
)

// Engine drives a single synchronization pairing between an encrypted
// folder and a plaintext folder.
type Engine struct {
	password string
	compress bool

	encryptedRoot string
	plainRoot     string

	ruleSet *rule.Set

	encryptedTree    *filetree.Tree
	plainTree        *filetree.Tree
	snapshotTree     *filetree.Tree
	snapshotTreeName string
	trashName        string

	encryptedIsNew bool

	logger *logging.Logger
}

// Options configures the construction of an Engine.
type Options struct {
	Password      string
	EncryptedRoot string
	PlainRoot     string
	RuleSet       *rule.Set
	RuleFilePath  string
	Logger        *logging.Logger
}

// NewEngine validates the encrypted and plaintext folders, creating either
// if missing, and constructs an Engine ready to Sync. PlainRoot may be
// empty for operations that only need the encrypted side (such as
// printing the encrypted tree or changing the password).
func NewEngine(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.RootLogger.Sublogger("sync")
	}

	if err := ensureFolder(opts.EncryptedRoot, plainMarkerDir); err != nil {
		return nil, err
	}

	engine := &Engine{
		password:      opts.Password,
		compress:      true,
		encryptedRoot: opts.EncryptedRoot,
		logger:        logger,
	}

	if opts.PlainRoot != "" {
		if err := ensureFolder(opts.PlainRoot, encryptedMarkerDir); err != nil {
			return nil, err
		}
		engine.plainRoot = opts.PlainRoot

		ruleSet := opts.RuleSet
		if ruleSet == nil {
			ruleSet = rule.NewSet(nil)
		}
		ruleFilePath := opts.RuleFilePath
		if ruleFilePath == "" {
			ruleFilePath = filepath.Join(opts.PlainRoot, plainMarkerDir, "rules")
		}
		loadedFromRules, err := loadRuleFile(ruleFilePath, ruleSet)
		if err != nil {
			return nil, err
		}
		if loadedFromRules != nil {
			ruleSet = loadedFromRules
		} else if !fileExists(ruleFilePath) {
			if err := writeDefaultRuleFile(ruleFilePath); err != nil {
				logger.Warn(errors.Wrap(err, "unable to write default rule file"))
			}
		}
		engine.ruleSet = ruleSet
	}

	return engine, nil
}

// ensureFolder creates root if it doesn't exist, rejects it if it exists
// but isn't a directory, and rejects it if it already contains the other
// side's marker directory (a sign the paths were swapped by mistake).
func ensureFolder(root, forbiddenMarker string) error {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(root, 0755); mkErr != nil {
			return &InvalidFolderError{Path: root, Reason: "unable to create directory: " + mkErr.Error()}
		}
		return nil
	} else if err != nil {
		return &InvalidFolderError{Path: root, Reason: err.Error()}
	}
	if !info.IsDir() {
		return &InvalidFolderError{Path: root, Reason: "path exists and is not a directory"}
	}
	if dirExists(filepath.Join(root, forbiddenMarker)) {
		return &InvalidFolderError{Path: root, Reason: "contains " + forbiddenMarker + ", which suggests the folders are reversed"}
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func loadRuleFile(path string, base *rule.Set) (*rule.Set, error) {
	if !fileExists(path) {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open rule file")
	}
	defer file.Close()
	loaded, err := rule.ParseSet(file)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse rule file")
	}
	merged, err := base.AppendStrings(sourceLines(loaded))
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func sourceLines(set *rule.Set) []string {
	lines := make([]string, 0, len(set.Rules()))
	for _, r := range set.Rules() {
		lines = append(lines, r.Source())
	}
	return lines
}

func writeDefaultRuleFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(rule.DefaultRuleFileContents()), 0644)
}

// load populates plainTree, encryptedTree, and snapshotTree for a sync
// pass. It must be called with both folder locks held.
func (e *Engine) load() error {
	encryptedTree, snapshotName, err := filetree.LoadEncryptedTree(e.encryptedRoot, e.password)
	if err != nil {
		if isDecryptError(err) {
			return err
		}
		return errors.Wrap(err, "unable to load encrypted tree")
	}
	e.encryptedIsNew = encryptedTree.Len() == 0 && snapshotName == ""
	e.encryptedTree = encryptedTree

	if e.plainRoot == "" {
		return nil
	}

	plainTree, err := filetree.FromFS(e.plainRoot, e.ruleSet)
	if err != nil {
		return errors.Wrap(err, "unable to scan plaintext folder")
	}
	e.plainTree = plainTree

	name := snapshotName
	if name == "" {
		name = defaultSnapshotName(e.encryptedRoot)
	}
	if e.encryptedIsNew {
		name = filetree.NextSnapshotName(e.encryptedRoot, true, func(candidate string) bool {
			_, _, err := filetree.LoadSnapshot(e.plainRoot, candidate)
			return err == nil && snapshotExists(e.plainRoot, candidate)
		}, time.Now().Unix())
	}
	e.snapshotTreeName = name

	snapshotTree, trashName, err := filetree.LoadSnapshot(e.plainRoot, name)
	if err != nil {
		return errors.Wrap(err, "unable to load snapshot tree")
	}
	e.snapshotTree = snapshotTree
	e.trashName = trashName

	return nil
}

// LoadEncryptedTreeForInspection loads and returns the encrypted folder's
// file tree without requiring a plaintext folder or performing a sync. It
// does not acquire any locks, so it should not be used concurrently with a
// Sync or ChangePassword call against the same folder.
func (e *Engine) LoadEncryptedTreeForInspection() (*filetree.Tree, error) {
	tree, _, err := filetree.LoadEncryptedTree(e.encryptedRoot, e.password)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load encrypted tree")
	}
	return tree, nil
}

func snapshotExists(plainRoot, name string) bool {
	return fileExists(filepath.Join(plainRoot, plainMarkerDir, name+".filetree"))
}

func defaultSnapshotName(encryptedRoot string) string {
	return filetree.NextSnapshotName(encryptedRoot, false, func(string) bool { return false }, 0)
}

func isDecryptError(err error) bool {
	var decryptErr *crypto.DecryptError
	return errors.As(err, &decryptErr)
}
