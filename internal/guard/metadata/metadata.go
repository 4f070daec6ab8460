// Package metadata implements the per-slot allocation metadata table.
//
// One Record exists per slot, holding everything a crash report needs
// about the slot's current allocation: address, requested size, the
// goroutine IDs and compressed backtraces of the allocation and (if any)
// deallocation, and the slot lifecycle flags.
//
// The table is allocated once at pool init and never relocated or
// resized. Records are plain data — fixed-size arrays and integers, no
// maps, no interfaces — so a crash handler can read them without locks or
// allocation. Mutation happens only under the pool mutex.
package metadata

import "github.com/kolkov/gwpasan/internal/guard/compressor"

const (
	// MaxTraceFrames is the maximum number of return addresses collected
	// per backtrace.
	MaxTraceFrames = 32

	// TraceBytes is the size of the compressed trace buffer. Deltas
	// between return addresses compress to a few bytes each, so 128
	// bytes holds a full 32-frame trace in practice; longer traces are
	// truncated by the compressor.
	TraceBytes = 128
)

// Trace is a compressed backtrace with the goroutine that produced it.
type Trace struct {
	// Compressed holds the zig-zag varint delta encoding of the frames.
	Compressed [TraceBytes]byte

	// Len is the number of bytes of Compressed in use.
	Len int

	// GoroutineID identifies the goroutine that performed the operation.
	GoroutineID int64
}

// Set compresses frames into the trace buffer.
func (t *Trace) Set(frames []uintptr, gid int64) {
	t.Len = compressor.Pack(frames, t.Compressed[:])
	t.GoroutineID = gid
}

// Frames decompresses the trace into out and returns the frame count.
func (t *Trace) Frames(out []uintptr) int {
	return compressor.Unpack(t.Compressed[:t.Len], out)
}

// Record is the metadata for one slot.
type Record struct {
	// Addr is the base address of the slot's current (or most recent)
	// allocation. Zero if the slot was never used.
	Addr uintptr

	// RequestedSize is the byte size the caller asked for.
	RequestedSize uintptr

	// AllocationTrace is the backtrace of the allocation.
	AllocationTrace Trace

	// DeallocationTrace is the backtrace of the deallocation. Valid only
	// when EverDeallocated is set.
	DeallocationTrace Trace

	// IsLive is true while the slot holds a live allocation. The slot
	// page is accessible while IsLive is true, and also after a
	// recoverable use-after-free report restores a freed slot's page to
	// read/write.
	IsLive bool

	// EverDeallocated is true once the slot has seen at least one
	// deallocation in its current occupancy.
	EverDeallocated bool

	// HasErrorReported is set after the first error report involving
	// this slot. It persists across re-allocation of the slot, which
	// caps diagnostics at one report per slot for the process lifetime.
	HasErrorReported bool
}

// RecordAllocation fills the record for a fresh allocation.
//
// HasErrorReported deliberately survives: a slot that has already
// produced a diagnostic stays quiet even after it is recycled.
func (r *Record) RecordAllocation(addr, size uintptr, frames []uintptr, gid int64) {
	r.Addr = addr
	r.RequestedSize = size
	r.AllocationTrace.Set(frames, gid)
	r.DeallocationTrace = Trace{}
	r.IsLive = true
	r.EverDeallocated = false
}

// RecordDeallocation marks the record's allocation as freed and stores
// the deallocation backtrace.
func (r *Record) RecordDeallocation(frames []uintptr, gid int64) {
	r.DeallocationTrace.Set(frames, gid)
	r.IsLive = false
	r.EverDeallocated = true
}
