package crypto

import "fmt"

// DecryptError indicates that a container failed to decrypt, either because
// the header was malformed, the version is unsupported, or one of the
// integrity digests did not match. A wrong password manifests as a
// DecryptError because there is no way to distinguish it from corruption
// without a successful digest comparison.
type DecryptError struct {
	reason string
}

// newDecryptError constructs a DecryptError with the given reason.
func newDecryptError(reason string) *DecryptError {
	return &DecryptError{reason: reason}
}

// Error implements the error interface.
func (e *DecryptError) Error() string {
	return fmt.Sprintf("decrypt failed: %s", e.reason)
}

// VersionNotCompatibleError indicates that a container's version byte is
// newer than any version this implementation understands. DecryptFD reports
// it as a *DecryptError whose message includes this error's text; errors.As
// on that result finds the *DecryptError, not a *VersionNotCompatibleError.
type VersionNotCompatibleError struct {
	Version byte
}

// Error implements the error interface.
func (e *VersionNotCompatibleError) Error() string {
	return fmt.Sprintf("container format version %d is not supported", e.Version)
}
