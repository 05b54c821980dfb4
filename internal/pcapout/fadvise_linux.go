//go:build linux
// +build linux

package pcapout

import "golang.org/x/sys/unix"

// hintWillNeedRandom advises the kernel that fd will be accessed with a
// random-access pattern and should be paged in ahead of need — the lazy
// load path's per-flow seek hint (§4.J).
func hintWillNeedRandom(fd uintptr) {
	_ = unix.Fadvise(int(fd), 0, 0, unix.FADV_RANDOM)
	_ = unix.Fadvise(int(fd), 0, 0, unix.FADV_WILLNEED)
}

// hintDontNeed advises the kernel that the byte range [offset, offset+length)
// of fd will not be touched again, so its pages may be dropped — issued
// once a flow cursor is fully drained.
func hintDontNeed(fd uintptr, offset, length uint64) {
	_ = unix.Fadvise(int(fd), int64(offset), int64(length), unix.FADV_DONTNEED)
}
