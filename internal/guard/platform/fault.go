package platform

import "unsafe"

// RaiseFault performs a one-byte store through addr, generating a
// synchronous fault at that exact address.
//
// The pool uses this to turn internally detected errors (double free,
// invalid free) into the same kind of trap a guard-page access produces,
// so the crash handler sees a consistent faulting address. The allocator
// state is always populated before calling this.
//
//go:nosplit
//go:nocheckptr
func RaiseFault(addr uintptr) {
	*(*uint8)(unsafe.Pointer(addr)) = 0
}
