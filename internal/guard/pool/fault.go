package pool

import (
	"runtime/debug"

	"github.com/kolkov/gwpasan/internal/guard/crash"
	"github.com/kolkov/gwpasan/internal/guard/platform"
	"github.com/kolkov/gwpasan/internal/guard/state"
)

// faultError is the shape of the runtime's memory-fault panic value when
// debug.SetPanicOnFault is armed: a runtime.Error that additionally
// carries the faulting address (documented on SetPanicOnFault).
type faultError interface {
	error
	Addr() uintptr
}

// CheckFault runs fn with hardware memory faults armed to panic instead
// of killing the process, and converts a fault on the pool into a
// classified crash report.
//
// This is the Go-native recoverable crash handler: where the reference
// implementation installs a SEGV handler that reports and resumes, Go
// only offers debug.SetPanicOnFault plus recover. fn is aborted at the
// faulting access (not resumed), the fault is classified against the
// pool, and — in recoverable mode — at most one report per slot is
// printed before CheckFault returns with caught=true.
//
// Faults that do not belong to the pool, and every non-fault panic, are
// re-raised unchanged. In non-recoverable mode the pool state is
// published for the crash printer and the fault is re-raised as well.
func (p *GuardedPool) CheckFault(fn func()) (caught bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		fe, ok := r.(faultError)
		if !ok {
			panic(r)
		}
		addr := fe.Addr()
		if !p.state.PointerIsMine(addr) {
			panic(r)
		}
		p.handleFault(addr)
		caught = true
		if !p.recoverable {
			panic(r)
		}
	}()

	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)

	fn()
	return false
}

// handleFault classifies and publishes a hardware fault at addr, which
// must lie inside the pool.
//
// In recoverable mode the report is deduplicated through the slot's
// HasErrorReported flag, and a use-after-free site has its slot page
// restored to read/write so the program can keep running over it without
// re-faulting; guard pages stay inaccessible. Unattributable faults
// (e.g. a touch that raced with a slot going live) publish nothing.
func (p *GuardedPool) handleFault(addr uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kind, slot := crash.Diagnose(&p.state, p.meta, addr)
	if kind == state.ErrorUnknown || slot == state.InvalidSlot {
		return
	}

	m := &p.meta[slot]
	alreadyReported := m.HasErrorReported

	if !alreadyReported {
		p.state.FaultAddress = addr
		p.state.LastError = kind
		p.state.InternallyDetected = false
	}

	if !p.recoverable {
		return
	}

	if kind == state.ErrorUseAfterFree && !p.state.IsGuardPage(addr) {
		platform.MarkReadWrite(p.slotPage(slot), platform.AliveSlotName)
	}

	if alreadyReported {
		return
	}
	m.HasErrorReported = true
	// Skip Report, handleFault, the CheckFault deferred closure and the
	// runtime panic frames so the trace starts near the faulting access.
	p.reporter.Report(&p.state, p.meta, slot, kind, addr, 3)
}
