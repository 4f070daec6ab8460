// Package pool implements the guarded pool allocator engine.
//
// A GuardedPool owns one contiguous mapping of 2N+1 pages (N slots, each
// flanked by guard pages), a metadata table with one record per slot, a
// bounded free-slot set, and the sampling gate that decides which host
// allocations get diverted into the pool.
//
// Lifecycle: zero-initialized → Init → (optionally) Stop. The zero value
// is fully usable in its "never sample, own nothing" sense, because the
// host allocator may consult ShouldSample and PointerIsMine before Init
// runs: the sampling gate's zero state underflows to an effectively
// infinite sample interval, and a zero pool size makes PointerIsMine
// false. Stop is terminal; existing mappings are intentionally leaked, as
// unmapping them could turn a dangling sampled pointer into a wild access
// of reused address space.
//
// Concurrency: the sampling gate takes no pool lock (per-goroutine state,
// kept in a sync.Map keyed by goroutine ID).
// Every mutating operation takes the single pool mutex. Metadata and
// allocator state are read by crash classification without locks, which
// is safe because they are plain data mutated only under the mutex.
package pool

import (
	"errors"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/kolkov/gwpasan/internal/guard/config"
	"github.com/kolkov/gwpasan/internal/guard/crash"
	"github.com/kolkov/gwpasan/internal/guard/goroutine"
	"github.com/kolkov/gwpasan/internal/guard/metadata"
	"github.com/kolkov/gwpasan/internal/guard/platform"
	"github.com/kolkov/gwpasan/internal/guard/state"
)

// maxAlignment caps the natural alignment applied to right-aligned
// allocations. Matches the strictest alignment malloc guarantees.
const maxAlignment = 16

// GuardedPool is the allocator engine. The zero value never samples and
// owns no pointers; Init brings it to life. Treat it as a singleton in
// production (Singleton); tests construct their own instances.
type GuardedPool struct {
	// mu protects every slot transition, the metadata table and the
	// allocator state's error fields. Disable holds it across privileged
	// sections; the fork prepare hook holds it across fork.
	mu sync.Mutex

	// state is the plain-data record published to crash handlers.
	state state.AllocatorState

	// mapping is the pool's backing mapping, kept to retain the slice
	// for mprotect calls. Page i is mapping[i*pageSize : (i+1)*pageSize].
	mapping []byte

	// meta has one record per slot, allocated once at Init.
	meta []metadata.Record

	// Slot manager (slots.go). Guarded by mu.
	freeSlots             []int
	numSampledAllocations int

	// adjustedSampleRatePlusOne is SampleRate+1, or zero before Init.
	// The +1 encoding keeps the zero value a valid "almost never sample"
	// configuration without an init branch on the hot path: the sampling
	// formula computes modulo (value-1), which underflows to MaxUint32.
	adjustedSampleRatePlusOne atomic.Uint32

	// stopped is the one-way kill switch. Atomic so Stop is safe from
	// any context, including a signal handler.
	stopped atomic.Bool

	initialized         bool
	perfectlyRightAlign bool
	recoverable         bool
	backtrace           config.BacktraceFunc
	reporter            *crash.Reporter
}

var singleton GuardedPool

// Singleton returns the process-wide pool instance.
func Singleton() *GuardedPool {
	return &singleton
}

// defaultBacktrace captures the caller's stack with runtime.Callers,
// skipping the allocator's own frames.
func defaultBacktrace(buf []uintptr) int {
	return runtime.Callers(4, buf)
}

// Init maps the pool and metadata regions and arms the sampling gate.
//
// Idempotence is an error: the pool geometry is published to crash
// handlers and must never change once visible.
func (p *GuardedPool) Init(opts config.Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if !opts.Enabled {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return errors.New("pool: already initialized")
	}

	pageSize := platform.PageSize()
	n := opts.MaxSimultaneousAllocations
	poolBytes := uintptr(2*n+1) * pageSize

	// The whole pool starts inaccessible; slot pages become read/write
	// only while Live. Guard pages never change protection again.
	p.mapping = platform.Map(poolBytes, platform.GuardPageName)

	p.state = state.AllocatorState{
		Pool:                       uintptr(unsafe.Pointer(&p.mapping[0])),
		PoolSize:                   poolBytes,
		MaxSimultaneousAllocations: n,
		PageSize:                   pageSize,
		GuardPageSize:              pageSize,
	}

	p.meta = make([]metadata.Record, n)
	p.freeSlots = make([]int, 0, n)
	p.numSampledAllocations = 0

	p.perfectlyRightAlign = opts.PerfectlyRightAlign
	p.recoverable = opts.Recoverable
	p.backtrace = opts.Backtrace
	if p.backtrace == nil {
		p.backtrace = defaultBacktrace
	}

	var w io.Writer = os.Stderr
	if opts.ReportWriter != nil {
		w = opts.ReportWriter
	}
	p.reporter = crash.NewReporter(w)

	goroutine.SetSeed(platform.Seed())

	if opts.InstallForkHandlers {
		platform.InstallForkHandlers(p.PrepareFork, p.AfterForkParent, p.AfterForkChild)
	}

	// Publishing the sample rate is the last step: it is what makes
	// ShouldSample start returning true.
	p.adjustedSampleRatePlusOne.Store(uint32(opts.SampleRate) + 1)
	p.initialized = true
	return nil
}

// UninitTestOnly tears the pool down and returns it to the zero state.
// Production code never calls this (the pool intentionally leaks at
// exit); tests use it to run many pools in one process.
func (p *GuardedPool) UninitTestOnly() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mapping != nil {
		platform.Unmap(p.mapping, platform.GuardPageName)
	}
	p.mapping = nil
	p.meta = nil
	p.freeSlots = nil
	p.numSampledAllocations = 0
	p.state = state.AllocatorState{}
	p.adjustedSampleRatePlusOne.Store(0)
	p.stopped.Store(false)
	p.initialized = false
	p.reporter = nil
	p.backtrace = nil
}

// PointerIsMine reports whether ptr is inside the pool. False on a
// zero-value pool.
func (p *GuardedPool) PointerIsMine(ptr uintptr) bool {
	return p.state.PointerIsMine(ptr)
}

// State returns the published allocator state for crash formatting.
func (p *GuardedPool) State() *state.AllocatorState {
	return &p.state
}

// MetadataRegion returns the per-slot metadata table. Nil before Init.
func (p *GuardedPool) MetadataRegion() []metadata.Record {
	return p.meta
}

// slotPage returns the byte slice of slot i's page.
func (p *GuardedPool) slotPage(i int) []byte {
	off := uintptr(2*i+1) * p.state.PageSize
	return p.mapping[off : off+p.state.PageSize]
}

// alignmentFor returns the natural alignment for an allocation of size
// bytes: the next power of two, capped at maxAlignment.
func alignmentFor(size uintptr) uintptr {
	align := uintptr(1)
	for align < size && align < maxAlignment {
		align <<= 1
	}
	return align
}

// Allocate services a sampled allocation of size bytes, returning the
// user pointer or 0 when the request is refused (zero or oversized
// request, stopped pool, exhausted slots, or recursion into the
// allocator). A 0 return tells the host to fall back to its normal path.
func (p *GuardedPool) Allocate(size uintptr) uintptr {
	if size == 0 || size > p.state.PageSize {
		return 0
	}
	if p.stopped.Load() {
		return 0
	}

	g, gid := goroutine.CurrentWithID()
	if g.RecursiveGuard {
		return 0
	}
	g.RecursiveGuard = true
	defer func() { g.RecursiveGuard = false }()

	// Backtrace capture stays outside the mutex: capturers can be slow
	// and may themselves allocate (the recursion guard above makes such
	// re-entry fall back to the host allocator instead of deadlocking).
	var frames [metadata.MaxTraceFrames]uintptr
	n := p.backtrace(frames[:])

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped.Load() {
		return 0
	}

	idx := p.reserveSlot(g)
	if idx == state.InvalidSlot {
		return 0
	}

	pageAddr := p.state.SlotPageAddr(idx)
	ptr := p.placeAllocation(g, pageAddr, size)

	platform.MarkReadWrite(p.slotPage(idx), platform.AliveSlotName)
	p.meta[idx].RecordAllocation(ptr, size, frames[:n], gid)
	return ptr
}

// placeAllocation picks the user pointer within the slot page.
//
// Right alignment is the default: the allocation abuts the trailing guard
// page (snapped down to natural alignment unless PerfectlyRightAlign),
// so right-side overflows trap immediately. With probability 1/2 the
// allocation is left-aligned instead, so underflows trap. The choice is
// independent per allocation.
func (p *GuardedPool) placeAllocation(g *goroutine.State, pageAddr, size uintptr) uintptr {
	if g.Rand32()&1 == 1 {
		return pageAddr
	}
	ptr := pageAddr + p.state.PageSize - size
	if !p.perfectlyRightAlign {
		ptr &^= alignmentFor(size) - 1
	}
	return ptr
}

// Deallocate returns a sampled allocation to the pool. ptr must satisfy
// PointerIsMine. Misuse is classified here: a pointer that does not match
// the recorded allocation base is an invalid free, a repeat free of the
// same base is a double free; both are published and trapped via
// trapOnAddress.
func (p *GuardedPool) Deallocate(ptr uintptr) {
	g, gid := goroutine.CurrentWithID()
	if g.RecursiveGuard {
		// Re-entered from a backtrace capturer. The contract is that
		// only pointers from Allocate arrive here, so there is nothing
		// to forward to; drop the call.
		return
	}
	g.RecursiveGuard = true
	defer func() { g.RecursiveGuard = false }()

	if !p.state.PointerIsMine(ptr) {
		return
	}

	var frames [metadata.MaxTraceFrames]uintptr
	n := p.backtrace(frames[:])

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.state.NearestSlot(ptr)
	m := &p.meta[idx]

	if m.Addr != ptr {
		p.trapOnAddress(ptr, state.ErrorInvalidFree, idx)
		return
	}
	if !m.IsLive {
		p.trapOnAddress(ptr, state.ErrorDoubleFree, idx)
		return
	}

	m.RecordDeallocation(frames[:n], gid)
	platform.MarkInaccessible(p.slotPage(idx), platform.GuardPageName)
	p.freeSlot(idx)
}

// GetSize returns the requested size of the live allocation at ptr.
// ok is false if ptr is not the base of a live sampled allocation.
func (p *GuardedPool) GetSize(ptr uintptr) (size uintptr, ok bool) {
	if !p.state.PointerIsMine(ptr) {
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	m := &p.meta[p.state.NearestSlot(ptr)]
	if !m.IsLive || m.Addr != ptr {
		return 0, false
	}
	return m.RequestedSize, true
}

// trapOnAddress publishes an internally detected error (double free,
// invalid free) and raises the trap. Called with mu held.
//
// In recoverable mode the trap becomes a report: printed at most once per
// slot (HasErrorReported), silent afterwards. In non-recoverable mode the
// state is published and a real synchronous fault is raised at the
// offending address so the process crash handler takes over.
func (p *GuardedPool) trapOnAddress(addr uintptr, kind state.ErrorKind, slot int) {
	m := &p.meta[slot]

	if p.recoverable && m.HasErrorReported {
		return
	}

	p.state.FaultAddress = addr
	p.state.LastError = kind
	p.state.InternallyDetected = true

	if p.recoverable {
		m.HasErrorReported = true
		// Skip Report, trapOnAddress and Deallocate so the trace starts
		// at the caller that misused the pointer.
		p.reporter.Report(&p.state, p.meta, slot, kind, addr, 2)
		return
	}
	platform.RaiseFault(addr)
}
