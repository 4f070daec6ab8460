//go:build linux

package platform

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// nameMapping labels an anonymous mapping via PR_SET_VMA_ANON_NAME.
//
// Supported since Linux 5.17 (the kernel copies the string). Naming is
// best-effort diagnostics only, so errors are ignored: older kernels
// return EINVAL and the pool works identically without the label.
func nameMapping(mem []byte, name string) {
	if len(mem) == 0 {
		return
	}
	cname, err := unix.BytePtrFromString(name)
	if err != nil {
		return
	}
	_ = unix.Prctl(unix.PR_SET_VMA, unix.PR_SET_VMA_ANON_NAME,
		uintptr(unsafe.Pointer(&mem[0])), uintptr(len(mem)),
		uintptr(unsafe.Pointer(cname)))
}
