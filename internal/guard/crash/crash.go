// Package crash classifies memory faults against the guarded pool and
// formats the resulting reports.
//
// Classification (Diagnose) is a pure function over the published
// AllocatorState and metadata table: no locks, no allocation, no calls
// into unknown code. This is the part a signal handler or an
// out-of-process printer runs. Report formatting is the opposite — it may
// allocate and write freely — and only ever runs on the recoverable
// reporting path, after classification has completed.
package crash

import (
	"github.com/kolkov/gwpasan/internal/guard/metadata"
	"github.com/kolkov/gwpasan/internal/guard/state"
)

// Diagnose classifies a hardware fault at addr against the pool.
//
// Returns the error kind and the originating slot. ErrorUnknown with
// InvalidSlot means the fault is not attributable to the pool (out of
// pool, or a touch inside a live allocation's own page that cannot have
// trapped) and should be re-raised untouched.
//
// The classification table:
//   - internally recorded errors (double/invalid free) take precedence:
//     the deallocation path already published kind and address;
//   - an address inside a Freed slot page is a use-after-free;
//   - an address on a guard page is attributed to the nearest slot:
//     use-after-free if that slot is freed, otherwise buffer
//     overflow/underflow depending on which side of the allocation the
//     address lies.
func Diagnose(st *state.AllocatorState, meta []metadata.Record, addr uintptr) (state.ErrorKind, int) {
	// Internally detected errors carry their own classification.
	if st.InternallyDetected && st.FaultAddress == addr {
		return st.LastError, st.NearestSlot(addr)
	}

	if !st.PointerIsMine(addr) {
		return state.ErrorUnknown, state.InvalidSlot
	}

	slot := st.NearestSlot(addr)
	if slot < 0 || slot >= len(meta) {
		return state.ErrorUnknown, state.InvalidSlot
	}
	m := &meta[slot]

	if !st.IsGuardPage(addr) {
		// Slot page. A live slot's page is mapped read/write, so a fault
		// here can only mean the slot has been freed since.
		if m.IsLive {
			return state.ErrorUnknown, state.InvalidSlot
		}
		if m.EverDeallocated {
			return state.ErrorUseAfterFree, slot
		}
		return state.ErrorUnknown, state.InvalidSlot
	}

	// Guard page. The originating slot is the nearest one; a freed
	// originator makes this a use-after-free that ran off the page.
	if !m.IsLive && m.EverDeallocated {
		return state.ErrorUseAfterFree, slot
	}
	if m.Addr == 0 {
		return state.ErrorUnknown, state.InvalidSlot
	}
	if addr < m.Addr {
		return state.ErrorBufferUnderflow, slot
	}
	return state.ErrorBufferOverflow, slot
}
