package buildinfo

import (
	"fmt"
	"testing"
)

// TestVersionString tests that Version is formatted as a standard
// major.minor.patch semantic version string.
func TestVersionString(t *testing.T) {
	expected := fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
	if Version != expected {
		t.Errorf("version string (%s) does not match expected (%s)", Version, expected)
	}
}
