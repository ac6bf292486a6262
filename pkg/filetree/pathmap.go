package filetree

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// ErrPathExhausted is returned by AssignEncryptedPath when every prefix of
// a basename's MD5 digest, up through the full 32 hex characters, is
// already in use by a sibling entry.
var ErrPathExhausted = errors.New("unable to allocate encrypted pathname: digest prefixes exhausted")

// metadataFSPrefix is the on-disk stand-in for the ".syncrypto" logical
// prefix, which can't be used directly as an encrypted filesystem name
// since it would collide with the real metadata directory in the
// encrypted folder.
const metadataFSPrefix = "_syncrypto"

// AssignEncryptedPath chooses an opaque on-disk pathname for a plaintext
// entry's logical pathname, recording it as entry.FSPathname. It allocates
// the shortest unused hex prefix (starting at two characters) of the
// MD5 digest of the entry's basename, consulting tree to detect
// collisions with already-assigned siblings. Nested paths are rooted under
// their parent's own FSPathname. Logical paths under ".syncrypto/" map
// directly to "_syncrypto/"-prefixed on-disk names, since such paths only
// ever arise from snapshot bookkeeping rather than real user content.
func AssignEncryptedPath(tree *Tree, entry *Entry) error {
	if entry.Pathname == ".syncrypto" || strings.HasPrefix(entry.Pathname, ".syncrypto/") {
		entry.FSPathname = metadataFSPrefix + strings.TrimPrefix(entry.Pathname, ".syncrypto")
		return nil
	}

	parentDir, base := splitPathname(entry.Pathname)
	var parentFSPathname string
	if parentDir != "" {
		parent := tree.Get(parentDir)
		if parent == nil {
			return errors.Errorf("parent entry %q not found while assigning encrypted pathname", parentDir)
		}
		parentFSPathname = parent.FSPathname
	}

	digest := md5.Sum([]byte(base))
	full := hex.EncodeToString(digest[:])

	for i := 2; i <= len(full); i++ {
		candidate := full[:i]
		fsPathname := candidate
		if parentFSPathname != "" {
			fsPathname = parentFSPathname + "/" + candidate
		}
		if !tree.HasFSPathname(fsPathname) {
			entry.FSPathname = fsPathname
			return nil
		}
	}

	return ErrPathExhausted
}

// splitPathname splits a logical pathname into its parent directory
// pathname (empty for top-level entries) and basename.
func splitPathname(pathname string) (dir, base string) {
	if idx := strings.LastIndexByte(pathname, '/'); idx >= 0 {
		return pathname[:idx], pathname[idx+1:]
	}
	return "", pathname
}
