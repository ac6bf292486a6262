// Package crypto implements the encrypted container format used to store a
// single file (its pathname, content, and metadata) as a self-describing,
// password-encrypted blob on disk.
//
// A container begins with a 16-byte plaintext header:
//
//	offset 0:  version byte
//	offset 1:  flags byte (bit 0: content is zlib-compressed)
//	offset 2:  pathname length, big-endian uint16
//	offset 4:  12-byte random salt
//
// Everything from offset 16 onward is a single continuous AES-CBC
// ciphertext stream, keyed by a password-and-salt-derived key/IV, containing
// in order: the zero-padded pathname, the (optionally compressed)
// PKCS#7-padded file content, a content digest computed over the
// uncompressed plaintext, a 16-byte metadata footer (size, modification
// time, and file mode), and finally a digest computed over the content and
// footer together.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"

	"github.com/liqing/syncrypto/pkg/random"
	"github.com/liqing/syncrypto/pkg/stream"
)

// FormatVersion identifies the on-disk container layout and the
// cryptographic primitives used to protect it.
type FormatVersion byte

const (
	// FormatVersion1 is the original container format: iterated-MD5 key
	// derivation and MD5 digests.
	FormatVersion1 FormatVersion = 1
	// FormatVersion2 adds PBKDF2-HMAC-SHA256 key derivation and SHA-256
	// digests, at the cost of being unreadable by implementations that only
	// understand FormatVersion1.
	FormatVersion2 FormatVersion = 2

	// flagCompressed marks that the content section is zlib-compressed
	// before encryption.
	flagCompressed = 1 << 0

	headerSize = 1 + 1 + 2 + saltSize
)

// Metadata carries the per-file information that travels inside a
// container: the logical pathname, the plaintext content digest, and the
// filesystem attributes captured in the footer.
type Metadata struct {
	// Pathname is the forward-slash-separated logical path of the file,
	// relative to the root of the tree being synchronized.
	Pathname string
	// Size is the length, in bytes, of the uncompressed plaintext content.
	Size uint64
	// ModTime is the modification time of the source file, as a Unix
	// timestamp truncated to seconds.
	ModTime uint32
	// Mode is the POSIX file mode of the source file, or 0 if not
	// applicable (e.g. on platforms without POSIX permissions).
	Mode int32
	// Digest is the content digest, computed over the uncompressed
	// plaintext. Its length depends on the container's format version.
	Digest []byte
	// Salt is the 12-byte salt used to derive the container's key and IV.
	Salt []byte
	// Version is the container format version.
	Version FormatVersion
}

// blockEncrypter accumulates written bytes into 16-byte AES blocks,
// encrypting and forwarding each full block immediately. Its PKCS#7 tail is
// used for the content section; the pathname section is zero-padded to a
// block boundary by its caller instead.
type blockEncrypter struct {
	mode cipher.BlockMode
	dst  io.Writer
	buf  []byte
}

func newBlockEncrypter(mode cipher.BlockMode, dst io.Writer) *blockEncrypter {
	return &blockEncrypter{mode: mode, dst: dst}
}

// Write implements io.Writer. It never blocks on padding: bytes that don't
// complete a full block are buffered until more data arrives or finish is
// called.
func (w *blockEncrypter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	n := len(w.buf) - len(w.buf)%aes.BlockSize
	if n > 0 {
		ciphertext := make([]byte, n)
		w.mode.CryptBlocks(ciphertext, w.buf[:n])
		if _, err := w.dst.Write(ciphertext); err != nil {
			return len(p), err
		}
		remaining := len(w.buf) - n
		copy(w.buf, w.buf[n:])
		w.buf = w.buf[:remaining]
	}
	return len(p), nil
}

// finishPKCS7 pads the remaining buffered bytes with PKCS#7 padding,
// encrypts the final block(s), and writes them out.
func (w *blockEncrypter) finishPKCS7() error {
	padLen := aes.BlockSize - len(w.buf)%aes.BlockSize
	padded := append(w.buf, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	ciphertext := make([]byte, len(padded))
	w.mode.CryptBlocks(ciphertext, padded)
	w.buf = nil
	_, err := w.dst.Write(ciphertext)
	return err
}

// writeRaw encrypts and writes a buffer that is already block-aligned and
// requires no padding (used for the zero-padded pathname and the digest and
// footer sections, all of which are exact multiples of the block size).
func (w *blockEncrypter) writeRaw(block []byte) error {
	if len(block)%aes.BlockSize != 0 {
		return errors.New("internal error: raw block is not block-aligned")
	}
	ciphertext := make([]byte, len(block))
	w.mode.CryptBlocks(ciphertext, block)
	_, err := w.dst.Write(ciphertext)
	return err
}

// EncryptFD reads the content of src and writes an encrypted container to
// dst. The caller supplies the logical pathname, modification time, and
// mode in meta; Size and Digest are computed from the content as it streams
// and are filled into meta on return. If meta.Salt is empty, a fresh random
// salt is generated. compress controls whether the content section is
// zlib-compressed before encryption.
func EncryptFD(dst io.Writer, src io.Reader, password string, meta *Metadata, compress bool) error {
	if meta.Version == 0 {
		meta.Version = FormatVersion1
	}
	digestAlgo, err := digestFor(meta.Version)
	if err != nil {
		return err
	}

	if len(meta.Salt) == 0 {
		salt, err := random.New(saltSize)
		if err != nil {
			return errors.Wrap(err, "unable to generate salt")
		}
		meta.Salt = salt
	} else if len(meta.Salt) != saltSize {
		return errors.New("invalid salt length")
	}

	key, iv, err := deriveKeyIV(meta.Version, password, meta.Salt)
	if err != nil {
		return err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return errors.Wrap(err, "unable to construct cipher")
	}

	pathnameBytes := []byte(meta.Pathname)
	if len(pathnameBytes) > 0xFFFF {
		return errors.New("pathname too long")
	}

	header := make([]byte, headerSize)
	header[0] = byte(meta.Version)
	if compress {
		header[1] = flagCompressed
	}
	binary.BigEndian.PutUint16(header[2:4], uint16(len(pathnameBytes)))
	copy(header[4:4+saltSize], meta.Salt)
	if _, err := dst.Write(header); err != nil {
		return errors.Wrap(err, "unable to write header")
	}

	encrypter := newBlockEncrypter(cipher.NewCBCEncrypter(block, iv), dst)

	pathnamePadded := make([]byte, ceilToBlock(len(pathnameBytes)))
	copy(pathnamePadded, pathnameBytes)
	if err := encrypter.writeRaw(pathnamePadded); err != nil {
		return errors.Wrap(err, "unable to write pathname")
	}

	contentHasher := digestAlgo.new()
	var size uint64
	countingHasher := stream.NewHashedWriter(discardCounter{&size}, contentHasher)

	var payloadSink io.Writer = encrypter
	var compressor stream.WriteFlushCloser
	if compress {
		zw := zlib.NewWriter(encrypter)
		compressor = zw
		payloadSink = zw
	}

	teed := io.MultiWriter(payloadSink, countingHasher)
	if _, err := io.CopyBuffer(teed, src, make([]byte, 16*1024)); err != nil {
		return errors.Wrap(err, "unable to read content")
	}
	if compressor != nil {
		if err := compressor.Close(); err != nil {
			return errors.Wrap(err, "unable to flush compressor")
		}
	}
	if err := encrypter.finishPKCS7(); err != nil {
		return errors.Wrap(err, "unable to write content")
	}

	// contentHasher has hashed exactly the uncompressed plaintext payload
	// written through teed; Sum here yields the payload digest without
	// resetting the hasher's state, so it can keep accumulating below.
	contentDigest := contentHasher.Sum(nil)
	if err := encrypter.writeRaw(contentDigest); err != nil {
		return errors.Wrap(err, "unable to write content digest")
	}

	footer := make([]byte, 16)
	binary.BigEndian.PutUint64(footer[0:8], size)
	binary.BigEndian.PutUint32(footer[8:12], meta.ModTime)
	binary.BigEndian.PutUint32(footer[12:16], uint32(meta.Mode))
	if err := encrypter.writeRaw(footer); err != nil {
		return errors.Wrap(err, "unable to write footer")
	}

	// The entire digest covers the uncompressed plaintext payload and the
	// footer, continuing the same hash used for contentDigest rather than
	// hashing contentDigest itself.
	contentHasher.Write(footer)
	entireDigest := contentHasher.Sum(nil)
	if err := encrypter.writeRaw(entireDigest); err != nil {
		return errors.Wrap(err, "unable to write entire digest")
	}

	meta.Size = size
	meta.Digest = contentDigest
	return nil
}

// discardCounter is an io.Writer that discards its input but counts the
// total number of bytes written to it. It is paired with a hashing writer so
// that a single io.Copy pass both hashes and sizes the source content.
type discardCounter struct {
	total *uint64
}

func (c discardCounter) Write(p []byte) (int, error) {
	*c.total += uint64(len(p))
	return len(p), nil
}

func ceilToBlock(n int) int {
	if n%aes.BlockSize == 0 {
		return n
	}
	return n + (aes.BlockSize - n%aes.BlockSize)
}

// DecryptFD reads an encrypted container from src, verifies its integrity,
// and writes the decrypted content to dst. It returns the container's
// metadata on success. A wrong password and a corrupted container are
// indistinguishable and both surface as a *DecryptError.
func DecryptFD(dst io.Writer, src io.Reader, password string) (*Metadata, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(src, header); err != nil {
		return nil, newDecryptError("unable to read header: " + err.Error())
	}

	version := FormatVersion(header[0])
	digestAlgo, err := digestFor(version)
	if err != nil {
		return nil, newDecryptError(err.Error())
	}
	flags := header[1]
	pathnameLen := int(binary.BigEndian.Uint16(header[2:4]))
	salt := append([]byte(nil), header[4:4+saltSize]...)

	key, iv, err := deriveKeyIV(version, password, salt)
	if err != nil {
		return nil, newDecryptError(err.Error())
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, newDecryptError("unable to construct cipher: " + err.Error())
	}

	rest, err := io.ReadAll(src)
	if err != nil {
		return nil, newDecryptError("unable to read body: " + err.Error())
	}
	if len(rest)%aes.BlockSize != 0 {
		return nil, newDecryptError("body length is not a multiple of the block size")
	}

	pathnamePadded := ceilToBlock(pathnameLen)
	trailerSize := 2*digestAlgo.size + 16
	if len(rest) < pathnamePadded+trailerSize {
		return nil, newDecryptError("body is shorter than the minimum container size")
	}

	plain := make([]byte, len(rest))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plain, rest)

	if pathnameLen > pathnamePadded || pathnameLen > len(plain) {
		return nil, newDecryptError("invalid pathname length")
	}
	pathnameBytes := plain[:pathnameLen]
	if !utf8.Valid(pathnameBytes) {
		return nil, newDecryptError("pathname is not valid UTF-8")
	}

	payloadCiphertextLen := len(plain) - pathnamePadded - trailerSize
	if payloadCiphertextLen < 0 || payloadCiphertextLen%aes.BlockSize != 0 {
		return nil, newDecryptError("invalid content section length")
	}

	offset := pathnamePadded
	paddedContent := plain[offset : offset+payloadCiphertextLen]
	offset += payloadCiphertextLen
	contentDigestField := plain[offset : offset+digestAlgo.size]
	offset += digestAlgo.size
	footer := plain[offset : offset+16]
	offset += 16
	entireDigestField := plain[offset : offset+digestAlgo.size]

	content, err := unpadPKCS7(paddedContent)
	if err != nil {
		return nil, newDecryptError(err.Error())
	}

	var plaintext []byte
	if flags&flagCompressed != 0 {
		zr, err := zlib.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, newDecryptError("unable to decompress content: " + err.Error())
		}
		plaintext, err = io.ReadAll(zr)
		if err != nil {
			return nil, newDecryptError("unable to decompress content: " + err.Error())
		}
		if err := zr.Close(); err != nil {
			return nil, newDecryptError("unable to close decompressor: " + err.Error())
		}
	} else {
		plaintext = content
	}

	// contentHasher accumulates the hash of the uncompressed plaintext
	// payload, then the footer, mirroring the encrypt-side construction so
	// the same running hash yields both the content digest and the entire
	// digest.
	contentHasher := digestAlgo.new()
	contentHasher.Write(plaintext)
	if subtle.ConstantTimeCompare(contentHasher.Sum(nil), contentDigestField) != 1 {
		return nil, newDecryptError("content digest does not match")
	}
	contentHasher.Write(footer)
	if subtle.ConstantTimeCompare(contentHasher.Sum(nil), entireDigestField) != 1 {
		return nil, newDecryptError("entire digest does not match")
	}

	if _, err := dst.Write(plaintext); err != nil {
		return nil, errors.Wrap(err, "unable to write decrypted content")
	}

	size := binary.BigEndian.Uint64(footer[0:8])
	mtime := binary.BigEndian.Uint32(footer[8:12])
	mode32 := int32(binary.BigEndian.Uint32(footer[12:16]))

	return &Metadata{
		Pathname: string(pathnameBytes),
		Size:     size,
		ModTime:  mtime,
		Mode:     mode32,
		Digest:   append([]byte(nil), contentDigestField...),
		Salt:     salt,
		Version:  version,
	}, nil
}

// unpadPKCS7 validates and strips PKCS#7 padding.
func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, errors.New("invalid padded content length")
	}
	padLen := int(data[len(data)-1])
	if padLen < 1 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, errors.New("invalid PKCS#7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid PKCS#7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}
