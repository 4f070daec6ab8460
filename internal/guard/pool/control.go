package pool

// Disable acquires the pool mutex and holds it, pausing every slot
// transition until Enable. Used around privileged sections (memory
// scanners, fork by embedding runtimes). Must not be re-entered by the
// same goroutine: a second Disable deadlocks, exactly like a recursive
// mutex lock would.
func (p *GuardedPool) Disable() {
	p.mu.Lock()
}

// Enable releases the mutex taken by Disable.
func (p *GuardedPool) Enable() {
	p.mu.Unlock()
}

// IterateCallback receives one live sampled allocation during Iterate.
// It must not allocate: the pool mutex is held by the disabled section
// and an allocating callback could recurse into the pool.
type IterateCallback func(base, size uintptr)

// Iterate invokes cb for every live sampled allocation whose range
// intersects [base, base+size). May only be called while the pool is
// disabled; it reads the metadata table without further locking on that
// basis.
func (p *GuardedPool) Iterate(base, size uintptr, cb IterateCallback) {
	end := base + size
	for i := range p.meta {
		m := &p.meta[i]
		if !m.IsLive {
			continue
		}
		if m.Addr < end && m.Addr+m.RequestedSize > base {
			cb(m.Addr, m.RequestedSize)
		}
	}
}

// Stop permanently shuts the allocator down: ShouldSample answers false
// forever and Allocate refuses every request. One-way, idempotent, and
// async-signal-safe (a single atomic store); crash handlers call it so a
// process that has already detected corruption stops handing out guarded
// memory. Existing mappings and live allocations are left untouched.
func (p *GuardedPool) Stop() {
	p.stopped.Store(true)
}

// Fork hook triple. Registered with the platform registry during Init
// when Options.InstallForkHandlers is set; also callable directly by an
// embedding runtime that bypasses the registry.
//
// The prepare hook parks the pool in a consistent state by taking the
// mutex, so a child produced mid-mutation cannot inherit a torn free
// list or a locked mutex.

// PrepareFork locks the pool ahead of a fork.
func (p *GuardedPool) PrepareFork() { p.mu.Lock() }

// AfterForkParent releases the pool in the parent after a fork.
func (p *GuardedPool) AfterForkParent() { p.mu.Unlock() }

// AfterForkChild releases the pool in the child after a fork.
func (p *GuardedPool) AfterForkChild() { p.mu.Unlock() }
