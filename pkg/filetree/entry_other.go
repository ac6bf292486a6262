// +build !windows,!linux,!darwin

package filetree

import "os"

// changeTime falls back to modification time on platforms where this
// package does not know how to extract a native change time.
func changeTime(info os.FileInfo) int64 {
	return info.ModTime().Unix()
}
