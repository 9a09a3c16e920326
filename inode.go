// inode.go - inode extraction from fs.FileInfo
//
// (c) 2024- Sudhi Herle <sudhi@herle.net>
// Portions (c) 2026 the duet authors
//
// Licensing Terms: GPLv2
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim is made to its
// suitability for any purpose.
//
// Adapted from go-fio's info_darbsd.go/info_darwin.go idea of pulling
// platform stat fields out of fs.FileInfo.Sys(), trimmed to the single
// field (Ino) duet's Entry still needs now that uid/gid/dev/rdev/nlink
// are gone.
package duet

import (
	"io/fs"
	"syscall"
)

func sysIno(fi fs.FileInfo) (uint64, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(st.Ino), true
}
