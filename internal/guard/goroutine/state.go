// Package goroutine holds the per-goroutine sampler state.
//
// The reference implementation keeps its hottest variables (PRNG state,
// the decrementing sample counter and the recursion guard) packed into a
// single thread-local word. Go has no thread-local storage, so the same
// record lives in a sync.Map keyed by goroutine ID: creation is rare
// (first call per goroutine), reads dominate, which is exactly
// the access pattern sync.Map is built for.
//
// Records are never removed. Each is three words; even a program churning
// through a million goroutines pays ~24 MB at worst, and the reference
// semantics (thread-locals live as long as the thread) do not require
// reclamation either.
package goroutine

import (
	"sync"
	"sync/atomic"

	"github.com/kolkov/gwpasan/internal/guard/rng"
)

// sampleCounterBits limits NextSampleCounter to 31 bits, matching the
// packed thread-local layout of the reference implementation.
const sampleCounterBits = 31

// CounterMask masks a freshly drawn sample counter to 31 bits.
const CounterMask = uint32(1)<<sampleCounterBits - 1

// State is the per-goroutine packed sampler record.
//
// Only the owning goroutine touches a State, so the fields need no
// synchronization. The zero value is valid: a zero RandomState is
// replaced with rng.InitialState on first use, and a zero
// NextSampleCounter triggers a counter redraw.
type State struct {
	// RandomState is the xorshift32 PRNG state for this goroutine.
	RandomState uint32

	// NextSampleCounter counts down to the next sampled allocation.
	// Zero means "redraw from the sampling distribution".
	NextSampleCounter uint32

	// RecursiveGuard is set for the duration of an allocator call.
	// Backtrace capture can re-enter the allocator (a capturer may
	// itself allocate); the guard makes the inner call fall back to the
	// host allocator instead of deadlocking on the pool mutex.
	RecursiveGuard bool
}

var (
	// states maps goroutine ID → *State.
	states sync.Map

	// baseSeed perturbs per-goroutine PRNG streams. Set once at pool init
	// from the platform entropy source; zero before init, which leaves
	// every goroutine on the rng.InitialState stream.
	baseSeed atomic.Uint32
)

// SetSeed installs the process-wide seed mixed into each goroutine's
// PRNG stream. Called once during pool init.
func SetSeed(seed uint32) {
	baseSeed.Store(seed)
}

// Current returns the State for the calling goroutine, creating it on
// first use.
func Current() *State {
	st, _ := CurrentWithID()
	return st
}

// CurrentWithID returns the calling goroutine's State together with its
// ID, paying the goid extraction once for callers that need both.
func CurrentWithID() (*State, int64) {
	gid := ID()
	if v, ok := states.Load(gid); ok {
		return v.(*State), gid
	}
	st := &State{RandomState: initialRandomState(gid)}
	actual, _ := states.LoadOrStore(gid, st)
	return actual.(*State), gid
}

// initialRandomState picks the PRNG start state for a new goroutine.
//
// Before the pool is initialized (no seed installed), every goroutine
// starts from rng.InitialState: its first output is within a few hundred
// of 2^32, so an uninitialized sampling gate stays silent for ~2^31
// calls. After init, the platform seed is mixed with the goroutine ID to
// decorrelate the per-goroutine streams.
func initialRandomState(gid int64) uint32 {
	seed := baseSeed.Load()
	if seed == 0 {
		return rng.InitialState
	}
	if s := seed ^ uint32(gid); s != 0 {
		return s
	}
	return rng.InitialState
}

// Rand32 steps this goroutine's PRNG and returns the next value.
func (s *State) Rand32() uint32 {
	if s.RandomState == 0 {
		s.RandomState = rng.InitialState
	}
	s.RandomState = rng.Next(s.RandomState)
	return s.RandomState
}

// ResetForTesting clears all per-goroutine state. Test helper only; not
// safe for concurrent use.
func ResetForTesting() {
	states = sync.Map{}
	baseSeed.Store(0)
}
