package crypto

import (
	"crypto/md5"
	"crypto/sha256"
	"hash"
)

// digestAlgorithm describes the hash function backing a container format
// version's two integrity digests. Version 1 uses MD5 for wire
// compatibility with existing containers; version 2 uses SHA-256.
type digestAlgorithm struct {
	name string
	size int
	new  func() hash.Hash
}

var (
	digestMD5 = &digestAlgorithm{name: "md5", size: md5.Size, new: md5.New}
	digestSHA256 = &digestAlgorithm{name: "sha256", size: sha256.Size, new: sha256.New}
)

// digestFor returns the digest algorithm associated with a container format
// version.
func digestFor(version FormatVersion) (*digestAlgorithm, error) {
	switch version {
	case FormatVersion1:
		return digestMD5, nil
	case FormatVersion2:
		return digestSHA256, nil
	default:
		return nil, &VersionNotCompatibleError{Version: byte(version)}
	}
}
