//go:build !plan9 && !windows && !js

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Map creates an anonymous private mapping of size bytes, initially
// inaccessible (PROT_NONE). The mapping is labelled with name where the
// platform supports it. size must be a multiple of the page size.
//
// Map never returns on failure; it terminates the process.
func Map(size uintptr, name string) []byte {
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		die(fmt.Sprintf("mmap %d bytes for %q", size, name), err)
	}
	nameMapping(mem, name)
	return mem
}

// Unmap releases a mapping previously returned by Map. It must be passed
// the same slice (not a derived slice).
func Unmap(mem []byte, name string) {
	if err := unix.Munmap(mem); err != nil {
		die(fmt.Sprintf("munmap %q", name), err)
	}
}

// MarkReadWrite makes the given page-aligned region readable and writable.
// Used when a slot transitions to Live.
func MarkReadWrite(mem []byte, name string) {
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		die(fmt.Sprintf("mprotect(rw) %q", name), err)
	}
	nameMapping(mem, name)
}

// MarkInaccessible makes the given page-aligned region inaccessible.
// Used for guard pages and for slots leaving the Live state; any access
// afterwards raises a synchronous fault.
func MarkInaccessible(mem []byte, name string) {
	if err := unix.Mprotect(mem, unix.PROT_NONE); err != nil {
		die(fmt.Sprintf("mprotect(none) %q", name), err)
	}
	nameMapping(mem, name)
}
