package pool

import "github.com/kolkov/gwpasan/internal/guard/goroutine"

// ShouldSample decides whether the host allocator should divert the
// current allocation into the guarded pool.
//
// This is the CRITICAL HOT PATH: the host calls it on every allocation.
// It takes no pool lock and calls no unknown code. Shared accesses are an
// atomic load of the stop flag, an atomic load of the sample rate on each
// redraw, and the sync.Map lookup of the calling goroutine's state record
// (keyed by a goroutine ID parsed from runtime.Stack). A goroutine's first
// call allocates its record, and lookups of recently added records can
// take the sync.Map's internal lock.
//
// Algorithm: a per-goroutine counter drawn uniformly from
// [1, SampleRate] counts allocations down; the allocation that takes it
// to zero is sampled and the next call redraws. The inter-sample distance
// is therefore uniform on [1, SampleRate], with mean (SampleRate+1)/2.
//
// Zero-state behavior: before Init, adjustedSampleRatePlusOne is zero, so
// the modulus (value-1) underflows to MaxUint32 and the drawn counter is
// enormous — on the order of 2^31 after the 31-bit truncation. A
// zero-initialized pool therefore answers false for billions of calls
// without any "am I initialized" branch on this path.
func (p *GuardedPool) ShouldSample() bool {
	if p.stopped.Load() {
		return false
	}

	g := goroutine.Current()
	if g.NextSampleCounter == 0 {
		adjusted := p.adjustedSampleRatePlusOne.Load()
		g.NextSampleCounter = (g.Rand32()%(adjusted-1) + 1) & goroutine.CounterMask
	}
	// 31-bit decrement: a counter truncated to zero by the mask above
	// wraps within the field instead of sampling immediately.
	g.NextSampleCounter = (g.NextSampleCounter - 1) & goroutine.CounterMask
	return g.NextSampleCounter == 0
}
