// +build linux

package filetree

import (
	"os"
	"syscall"
)

// changeTime extracts the change time from file info on Linux, where it is
// available via the underlying syscall.Stat_t.
func changeTime(info os.FileInfo) int64 {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime().Unix()
	}
	return int64(stat.Ctim.Sec)
}
