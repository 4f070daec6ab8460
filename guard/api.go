// Package guard provides the public API for the Pure-Go GWP-ASan pool.
//
// See doc.go for detailed documentation and examples.
package guard

import (
	"github.com/kolkov/gwpasan/internal/guard/config"
	"github.com/kolkov/gwpasan/internal/guard/metadata"
	"github.com/kolkov/gwpasan/internal/guard/pool"
	"github.com/kolkov/gwpasan/internal/guard/state"
)

// Options configures the pool at Init time. See the field documentation
// in the config package; start from DefaultOptions.
type Options = config.Options

// BacktraceFunc captures up to len(buf) return addresses into buf and
// returns the number captured.
type BacktraceFunc = config.BacktraceFunc

// AllocatorState is the plain-data pool state published for crash
// handlers and out-of-process report printers.
type AllocatorState = state.AllocatorState

// AllocationMetadata is the per-slot metadata record.
type AllocationMetadata = metadata.Record

// ErrorKind is the closed set of detectable memory-error classes.
type ErrorKind = state.ErrorKind

// Error kinds, re-exported for crash-handler use.
const (
	ErrorUnknown         = state.ErrorUnknown
	ErrorUseAfterFree    = state.ErrorUseAfterFree
	ErrorDoubleFree      = state.ErrorDoubleFree
	ErrorInvalidFree     = state.ErrorInvalidFree
	ErrorBufferOverflow  = state.ErrorBufferOverflow
	ErrorBufferUnderflow = state.ErrorBufferUnderflow
)

// DefaultOptions returns the stock configuration: enabled, SampleRate
// 5000 (about one sample per 2500 allocations), 16 slots.
func DefaultOptions() Options {
	return config.Default()
}

// LoadOptionsFile reads Options from a YAML file, applied on top of
// DefaultOptions.
func LoadOptionsFile(path string) (Options, error) {
	return config.LoadFile(path)
}

// OptionsFromEnv overlays GWP_ASAN_* environment variables onto opts.
func OptionsFromEnv(opts Options) (Options, error) {
	return config.FromEnv(opts)
}

// Init maps the guarded pool and arms the sampling gate.
//
// Call once at program startup, before the host allocator starts
// consulting ShouldSample in earnest (the gate is safe, merely inert,
// before Init). A second Init returns an error.
func Init(opts Options) error {
	return pool.Singleton().Init(opts)
}

// ShouldSample reports whether the current allocation should be diverted
// into the guarded pool.
//
// Hot path: called by the host on every allocation. Takes no pool lock.
// A goroutine's first call allocates its per-goroutine sampler record,
// and the sync.Map holding those records can take its internal lock for
// recently added entries. Always false on a stopped pool, and false for
// roughly the first 2^31 calls per goroutine on an uninitialized pool.
func ShouldSample() bool {
	return pool.Singleton().ShouldSample()
}

// PointerIsMine reports whether p lies inside the pool's address range.
// It is a range check only: it does not check that p was returned by
// Allocate or that the allocation is still live.
func PointerIsMine(p uintptr) bool {
	return pool.Singleton().PointerIsMine(p)
}

// Allocate services a sampled allocation of size bytes. Returns 0 when
// the request is refused (zero or page-exceeding size, no free slot,
// stopped pool, recursion); the host then falls back to its normal path.
func Allocate(size uintptr) uintptr {
	return pool.Singleton().Allocate(size)
}

// Deallocate returns a pool-owned pointer. p must satisfy PointerIsMine.
// Double and invalid frees are detected here and trapped (or reported,
// in recoverable mode).
func Deallocate(p uintptr) {
	pool.Singleton().Deallocate(p)
}

// GetSize returns the requested size of the live allocation at p.
func GetSize(p uintptr) (uintptr, bool) {
	return pool.Singleton().GetSize(p)
}

// Disable pauses the allocator by acquiring the pool lock; no slot
// transitions occur until Enable. Not re-entrant.
func Disable() {
	pool.Singleton().Disable()
}

// Enable releases the lock taken by Disable.
func Enable() {
	pool.Singleton().Enable()
}

// Iterate invokes cb for every live sampled allocation intersecting
// [base, base+size). The pool must be disabled; cb must not allocate.
func Iterate(base, size uintptr, cb func(base, size uintptr)) {
	pool.Singleton().Iterate(base, size, cb)
}

// Stop shuts the allocator down permanently. Safe from any context,
// including crash handlers.
func Stop() {
	pool.Singleton().Stop()
}

// CheckFault runs fn with memory faults armed to panic, converting a
// fault on the pool into a classified crash report. See the pool
// documentation for the recoverable-mode semantics.
func CheckFault(fn func()) (caught bool) {
	return pool.Singleton().CheckFault(fn)
}

// State returns the published allocator state for crash formatting.
func State() *AllocatorState {
	return pool.Singleton().State()
}

// MetadataRegion returns the per-slot metadata table (nil before Init).
func MetadataRegion() []AllocationMetadata {
	return pool.Singleton().MetadataRegion()
}
