package filesystem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/liqing/syncrypto/pkg/logging"
)

const (
	// temporaryNamePrefix is the file name prefix used for intermediate
	// temporary files created during this package's operations.
	temporaryNamePrefix = ".syncrypto-tmp-"
	// atomicWriteTemporaryNamePrefix is the file name prefix to use for
	// intermediate temporary files used in atomic writes.
	atomicWriteTemporaryNamePrefix = temporaryNamePrefix + "atomic-write"
)

// closeAndLog closes c, logging (rather than returning) any error, since it
// is called from failure paths where an earlier error already takes
// precedence.
func closeAndLog(c interface{ Close() error }, logger *logging.Logger) {
	if err := c.Close(); err != nil && logger != nil {
		logger.Debug("unable to close file:", err)
	}
}

// removeAndLog removes the file at path, logging (rather than returning)
// any error, for the same reason as closeAndLog.
func removeAndLog(path string, logger *logging.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) && logger != nil {
		logger.Debug("unable to remove temporary file:", err)
	}
}

// WriteFileAtomic writes a file to disk in an atomic fashion by using an
// intermediate temporary file that is swapped in place using a rename
// operation.
func WriteFileAtomic(path string, data []byte, permissions os.FileMode, logger *logging.Logger) error {
	// Create a temporary file. The os package already uses secure permissions
	// for creating temporary files, so we don't need to change them.
	temporary, err := os.CreateTemp(filepath.Dir(path), atomicWriteTemporaryNamePrefix)
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}

	// Write data.
	if _, err = temporary.Write(data); err != nil {
		closeAndLog(temporary, logger)
		removeAndLog(temporary.Name(), logger)
		return fmt.Errorf("unable to write data to temporary file: %w", err)
	}

	// Close out the file.
	if err = temporary.Close(); err != nil {
		removeAndLog(temporary.Name(), logger)
		return fmt.Errorf("unable to close temporary file: %w", err)
	}

	// Set the file's permissions.
	if err = os.Chmod(temporary.Name(), permissions); err != nil {
		removeAndLog(temporary.Name(), logger)
		return fmt.Errorf("unable to change file permissions: %w", err)
	}

	// Rename the file into place. On POSIX systems this is atomic; if the
	// temporary file and the destination live on different devices (which
	// shouldn't happen since we create the temporary file alongside the
	// destination), surface a clear error instead of silently falling back
	// to a non-atomic copy.
	if err = os.Rename(temporary.Name(), path); err != nil {
		removeAndLog(temporary.Name(), logger)
		if isCrossDeviceError(err) {
			return fmt.Errorf("unable to rename file: source and destination are on different devices: %w", err)
		}
		return fmt.Errorf("unable to rename file: %w", err)
	}

	// Success.
	return nil
}
