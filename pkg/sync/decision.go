package sync

import (
	"bytes"

	"github.com/liqing/syncrypto/pkg/filetree"
)

// equal implements the equality relation used throughout the decision
// table: two directory entries are always equal; otherwise two file
// entries are equal if their content digests match (when both are known)
// or, failing that, if their sizes match and their modification times
// agree to the second.
func equal(a, b *filetree.Entry) bool {
	if a == nil || b == nil {
		return false
	}
	if a.IsDir && b.IsDir {
		return true
	}
	if a.IsDir != b.IsDir {
		return false
	}
	if len(a.Digest) > 0 && len(b.Digest) > 0 {
		return bytes.Equal(a.Digest, b.Digest)
	}
	return a.Size == b.Size && a.ModTime == b.ModTime
}

// decide computes the action for a single pathname given its plaintext
// entry P, encrypted entry E, and snapshot entry S (any of which may be
// nil), and whether the rule set classifies either side as ignored.
func decide(p, e, s *filetree.Entry, ignored, encryptedIsNew bool) Action {
	if ignored {
		// Ignoring wins: an entry newly excluded by the active rule set is
		// removed from the encrypted side if it was previously synchronized
		// there, but an entry that was never encrypted is simply left alone.
		if e != nil {
			return ActionRemoveEncrypted
		}
		return ActionIgnore
	}
	if encryptedIsNew {
		if p != nil {
			return ActionEncrypt
		}
		return ActionIgnore
	}

	switch {
	case p != nil && e != nil:
		if equal(p, e) {
			return ActionSame
		}
		pChanged := !equal(p, s)
		eChanged := !equal(e, s)
		switch {
		case pChanged && !eChanged:
			return ActionEncrypt
		case eChanged && !pChanged:
			return ActionDecrypt
		case !pChanged && !eChanged:
			return ActionSame
		default:
			return ActionConflict
		}
	case p != nil:
		if !equal(p, s) {
			return ActionEncrypt
		}
		return ActionRemovePlain
	case e != nil:
		if !equal(e, s) {
			return ActionDecrypt
		}
		return ActionRemoveEncrypted
	default:
		return ActionIgnore
	}
}
