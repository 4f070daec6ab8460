// Package platform wraps the virtual-memory and process primitives the
// guarded pool allocator is built on: anonymous page mapping, protection
// changes, mapping naming, page-size queries, PRNG seeding, synchronous
// fault generation and at-fork hooks.
//
// All mapping helpers operate on page-aligned regions. Mapping failures are
// unrecoverable: the pool cannot run with a partially constructed region,
// so the exported helpers terminate the process instead of returning an
// error (callers therefore never see a nil mapping).
//
// Memory is initially mapped inaccessible (PROT_NONE). To obtain a
// read-write region, call Map followed by MarkReadWrite on the returned
// slice. Mappings are named on platforms that support it (Linux 5.17+),
// which makes the pool identifiable in /proc/<pid>/maps and in crash dumps.
package platform

import (
	"fmt"
	"os"
	"sync"
)

// Mapping region names. These show up next to the pool in /proc/<pid>/maps
// on platforms that support anonymous VMA naming.
const (
	GuardPageName = "GWP-ASan Guard Page"
	AliveSlotName = "GWP-ASan Alive Slot"
	MetadataName  = "GWP-ASan Metadata"
	FreeSlotsName = "GWP-ASan Free Slots"
)

var (
	pageSizeOnce sync.Once
	pageSize     uintptr
)

// PageSize returns the platform page size.
//
// The value is queried once and cached; all subsequent calls are a plain
// read. Guard pages and slots are exactly one page wide, so this value
// fixes the entire pool geometry.
func PageSize() uintptr {
	pageSizeOnce.Do(func() {
		pageSize = uintptr(os.Getpagesize())
	})
	return pageSize
}

// die reports an unrecoverable platform failure and terminates the process.
//
// Mapping failures leave the allocator in a state it cannot recover from
// (half-built pool, lost guard pages), and the surrounding malloc cannot
// meaningfully handle them either.
func die(op string, err error) {
	fmt.Fprintf(os.Stderr, "gwpasan: fatal: %s: %v\n", op, err)
	os.Exit(2)
}
