//go:build !linux
// +build !linux

package pcapout

// hintWillNeedRandom is a no-op on platforms without fadvise(2).
func hintWillNeedRandom(fd uintptr) {}

// hintDontNeed is a no-op on platforms without fadvise(2).
func hintDontNeed(fd uintptr, offset, length uint64) {}
