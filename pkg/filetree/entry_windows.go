// +build windows

package filetree

import "os"

// changeTime falls back to modification time on Windows, which does not
// expose a POSIX-style change time through os.FileInfo.
func changeTime(info os.FileInfo) int64 {
	return info.ModTime().Unix()
}
