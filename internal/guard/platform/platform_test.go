//go:build !plan9 && !windows && !js

package platform

import (
	"runtime/debug"
	"testing"
)

// TestPageSize verifies the cached page-size query.
func TestPageSize(t *testing.T) {
	ps := PageSize()
	if ps == 0 || ps&(ps-1) != 0 {
		t.Fatalf("PageSize() = %d, want a power of two", ps)
	}
	if PageSize() != ps {
		t.Fatal("PageSize() not stable across calls")
	}
}

// TestMapLifecycle verifies the map → read/write → inaccessible →
// unmap sequence. A fresh mapping starts inaccessible; MarkReadWrite
// must make it writable.
func TestMapLifecycle(t *testing.T) {
	size := 3 * PageSize()
	mem := Map(size, MetadataName)
	if uintptr(len(mem)) != size {
		t.Fatalf("Map returned %d bytes, want %d", len(mem), size)
	}
	defer Unmap(mem, MetadataName)

	// Initially inaccessible: a write must fault.
	if !faults(func() { mem[0] = 1 }) {
		t.Fatal("write to fresh mapping did not fault")
	}

	MarkReadWrite(mem[:PageSize()], AliveSlotName)
	mem[0] = 42
	if mem[0] != 42 {
		t.Fatal("write to read/write page did not stick")
	}

	// The pages beyond the first stay inaccessible.
	if !faults(func() { mem[PageSize()] = 1 }) {
		t.Fatal("write past the read/write page did not fault")
	}

	MarkInaccessible(mem[:PageSize()], GuardPageName)
	if !faults(func() { mem[0] = 1 }) {
		t.Fatal("write to re-protected page did not fault")
	}
}

// faults reports whether fn raises a recoverable memory fault.
func faults(fn func()) (faulted bool) {
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)
	defer func() {
		if recover() != nil {
			faulted = true
		}
	}()
	fn()
	return false
}

// TestSeed verifies the seed source responds. The value itself is
// unconstrained; the sampling design only needs it to vary across
// processes, which a unit test cannot assert.
func TestSeed(t *testing.T) {
	_ = Seed()
}

// TestForkHookOrdering verifies registration order and the
// prepare/parent/child dispatch.
func TestForkHookOrdering(t *testing.T) {
	// The registry is package-global; this test appends to it and
	// relies on its hooks being self-contained.
	var trace []string
	InstallForkHandlers(
		func() { trace = append(trace, "prepare") },
		func() { trace = append(trace, "parent") },
		func() { trace = append(trace, "child") },
	)

	BeforeFork()
	AfterForkInParent()
	AfterForkInChild()

	want := []string{"prepare", "parent", "child"}
	if len(trace) < len(want) {
		t.Fatalf("hook trace %v, want suffix %v", trace, want)
	}
	got := trace[len(trace)-3:]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("hook trace %v, want %v", got, want)
		}
	}
}
