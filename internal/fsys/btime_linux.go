//go:build linux

package fsys

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// birthTime returns the creation time of name when the file system records
// one, falling back to the modification time.
func birthTime(name string, fi fs.FileInfo) time.Time {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, name, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stx)
	if err != nil || stx.Mask&unix.STATX_BTIME == 0 {
		return fi.ModTime().UTC()
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)).UTC()
}
