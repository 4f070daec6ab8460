package metadata

import "testing"

// TestRecordAllocationLifecycle verifies the flag transitions across an
// allocation/deallocation cycle.
func TestRecordAllocationLifecycle(t *testing.T) {
	var r Record
	frames := []uintptr{0x400000, 0x400123, 0x400456}

	r.RecordAllocation(0x7f0000001000, 32, frames, 5)
	if !r.IsLive || r.EverDeallocated {
		t.Fatalf("after allocation: IsLive=%v EverDeallocated=%v", r.IsLive, r.EverDeallocated)
	}
	if r.Addr != 0x7f0000001000 || r.RequestedSize != 32 {
		t.Fatalf("record = {0x%x, %d}, want {0x7f0000001000, 32}", r.Addr, r.RequestedSize)
	}
	if r.AllocationTrace.GoroutineID != 5 {
		t.Errorf("allocation goroutine = %d, want 5", r.AllocationTrace.GoroutineID)
	}

	r.RecordDeallocation(frames, 9)
	if r.IsLive || !r.EverDeallocated {
		t.Fatalf("after deallocation: IsLive=%v EverDeallocated=%v", r.IsLive, r.EverDeallocated)
	}
	if r.DeallocationTrace.GoroutineID != 9 {
		t.Errorf("deallocation goroutine = %d, want 9", r.DeallocationTrace.GoroutineID)
	}
}

// TestTraceRoundTrip verifies compressed trace storage and recovery.
func TestTraceRoundTrip(t *testing.T) {
	frames := []uintptr{0x455000, 0x455080, 0x454f10, 0x7fff00001234}

	var tr Trace
	tr.Set(frames, 3)

	var out [MaxTraceFrames]uintptr
	n := tr.Frames(out[:])
	if n != len(frames) {
		t.Fatalf("recovered %d frames, want %d", n, len(frames))
	}
	for i, pc := range frames {
		if out[i] != pc {
			t.Errorf("frame %d: got 0x%x, want 0x%x", i, out[i], pc)
		}
	}
}

// TestErrorReportedPersistsAcrossReallocation pins the one-report-per-slot
// policy: recycling a slot must not rearm its diagnostic.
func TestErrorReportedPersistsAcrossReallocation(t *testing.T) {
	var r Record
	r.RecordAllocation(0x7f0000001000, 8, nil, 1)
	r.RecordDeallocation(nil, 1)
	r.HasErrorReported = true

	r.RecordAllocation(0x7f0000003000, 16, nil, 2)
	if !r.HasErrorReported {
		t.Fatal("HasErrorReported cleared by reallocation")
	}
	if r.EverDeallocated {
		t.Fatal("EverDeallocated not reset by reallocation")
	}
	if r.DeallocationTrace.Len != 0 {
		t.Fatal("stale deallocation trace survived reallocation")
	}
}
