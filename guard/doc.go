// Package guard provides a Pure-Go GWP-ASan: a sampling guarded-page
// allocator that catches heap memory errors on production workloads.
//
// A small, random fraction of a program's allocations is diverted into a
// pool of page-isolated slots flanked by inaccessible guard pages. Memory
// bugs that land on a sampled allocation — use-after-free, double free,
// invalid free, buffer overflow and underflow — trap deterministically
// and produce a precise report with allocation and deallocation
// backtraces, at negligible average cost.
//
// # Quick Start
//
// The pool sits beside a host allocator, which consults it on every
// allocation:
//
//	package main
//
//	import "github.com/kolkov/gwpasan/guard"
//
//	func main() {
//		opts := guard.DefaultOptions()
//		opts.SampleRate = 1000
//		opts.Recoverable = true
//		if err := guard.Init(opts); err != nil {
//			panic(err)
//		}
//
//		if guard.ShouldSample() {
//			if p := guard.Allocate(64); p != 0 {
//				// hand p out instead of the host allocation
//			}
//		}
//	}
//
// On free, the host routes pool-owned pointers back:
//
//	if guard.PointerIsMine(p) {
//		guard.Deallocate(p)
//	}
//
// # API Overview
//
// The package provides functions for:
//   - Initialization and shutdown: [Init], [Stop]
//   - The hot-path gate: [ShouldSample], [PointerIsMine]
//   - Sampled allocation: [Allocate], [Deallocate], [GetSize]
//   - Privileged sections: [Disable], [Enable], [Iterate]
//   - Recoverable fault handling: [CheckFault]
//   - Crash-handler access: [State], [MetadataRegion]
//
// # How It Works
//
// The pool maps 2N+1 pages for N slots: every second page is a
// permanently inaccessible guard page, and each slot page is only
// readable/writable while it holds a live allocation. Allocations abut a
// guard page on the right (or, with probability 1/2, on the left), so an
// out-of-bounds access faults on the adjacent guard page and a
// use-after-free faults on the re-protected slot page. The faulting
// address alone identifies the slot, and the slot's metadata — recorded
// at allocation and deallocation time with compressed backtraces — turns
// the fault into an attributable report.
//
// Sampling uses a per-goroutine decrementing counter drawn uniformly
// from [1, SampleRate], so on average one allocation in
// (SampleRate+1)/2 is sampled. The hot path is a lookup of the calling
// goroutine's state and a counter decrement, with no pool lock.
//
// # Pre-Init Safety
//
// A zero-initialized pool is safe to query: ShouldSample returns false
// (for roughly the first 2^31 calls per goroutine) and PointerIsMine returns
// false, without touching any mapping. Hosts may therefore wire the gate
// in before deciding whether to call Init.
//
// # Compatibility
//
// Platform support:
//   - Operating systems: Linux (full, incl. mapping naming), other Unix
//   - Go version: 1.21 or later
//   - CGO requirement: None
//
// # Links
//
// Project repository:
// https://github.com/kolkov/gwpasan
//
// Reference design (LLVM GWP-ASan):
// https://llvm.org/docs/GwpAsan.html
package guard
