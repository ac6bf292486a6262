// Package treecompress provides plain (unencrypted) zlib compression for
// tree persistence files, such as the snapshot tree that mirrors the
// encrypted tree's structure.
package treecompress

import (
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// Compress writes a zlib-compressed copy of src to dst.
func Compress(dst io.Writer, src io.Reader) error {
	w := zlib.NewWriter(dst)
	if _, err := io.Copy(w, src); err != nil {
		return errors.Wrap(err, "unable to compress content")
	}
	return errors.Wrap(w.Close(), "unable to flush compressor")
}

// Decompress writes the decompressed content of a zlib stream read from src
// to dst.
func Decompress(dst io.Writer, src io.Reader) error {
	r, err := zlib.NewReader(src)
	if err != nil {
		return errors.Wrap(err, "unable to read compressed content")
	}
	if _, err := io.Copy(dst, r); err != nil {
		return errors.Wrap(err, "unable to decompress content")
	}
	return errors.Wrap(r.Close(), "unable to close decompressor")
}
