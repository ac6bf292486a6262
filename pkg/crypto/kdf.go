package crypto

import (
	"crypto/md5"
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize   = 32 // AES-256
	ivSize    = 16 // AES block size
	saltSize  = 12
	pbkdf2Iterations = 10000
)

// deriveKeyIV derives an AES-256 key and initialization vector from a
// password and salt. Format version 1 uses the classic OpenSSL
// EVP_BytesToKey construction: repeated MD5 of the previous iteration's
// output concatenated with the password and salt, until enough bytes have
// been produced. Format version 2 uses PBKDF2-HMAC-SHA256, which does not
// suffer from MD5's lack of a work factor.
func deriveKeyIV(version FormatVersion, password string, salt []byte) (key, iv []byte, err error) {
	switch version {
	case FormatVersion1:
		material := deriveKeyIVLegacy(password, salt, keySize+ivSize)
		return material[:keySize], material[keySize:], nil
	case FormatVersion2:
		material := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize+ivSize, sha256.New)
		return material[:keySize], material[keySize:], nil
	default:
		return nil, nil, &VersionNotCompatibleError{Version: byte(version)}
	}
}

// deriveKeyIVLegacy implements the iterated-MD5 key derivation function used
// by format version 1 containers: D_1 = MD5(password||salt), D_n =
// MD5(D_(n-1)||password||salt), with the output being the concatenation of
// the D_i truncated to the requested number of bytes.
func deriveKeyIVLegacy(password string, salt []byte, size int) []byte {
	var output []byte
	var previous []byte
	for len(output) < size {
		h := md5.New()
		h.Write(previous)
		h.Write([]byte(password))
		h.Write(salt)
		previous = h.Sum(nil)
		output = append(output, previous...)
	}
	return output[:size]
}
