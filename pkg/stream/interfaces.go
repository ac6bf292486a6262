package stream

import (
	"io"
)

// WriteFlushCloser is a composition of io.Writer, Flusher, and io.Closer. It
// is the interface satisfied by compressors and other buffering stream
// stages that need to be flushed before the underlying writer is finalized.
type WriteFlushCloser interface {
	io.Writer
	Flusher
	io.Closer
}
