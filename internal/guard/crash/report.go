package crash

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/kolkov/gwpasan/internal/guard/metadata"
	"github.com/kolkov/gwpasan/internal/guard/state"
)

// Banner is the first line of every report. Tooling greps for it, so the
// exact wording is load-bearing.
const Banner = "*** GWP-ASan detected a memory error ***"

const (
	ansiRedBold = "\x1b[1;31m"
	ansiReset   = "\x1b[0m"
)

// Reporter formats and prints crash reports.
//
// A Reporter holds no deduplication state: the pool suppresses repeat
// reports through the per-slot HasErrorReported flag before calling
// Report. The internal mutex only serializes output so that concurrent
// reports from different slots do not interleave.
type Reporter struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// NewReporter returns a Reporter printing to w (os.Stderr if nil). The
// banner is colored when w is a terminal.
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = os.Stderr
	}
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Reporter{w: w, color: color}
}

// Report prints a full crash report for an error of the given kind at
// addr, attributed to slot (which may be state.InvalidSlot for faults
// with no attributable slot).
//
// skip is the number of stack frames to drop from the "error here" trace
// above Report's caller: skip 0 starts the trace at the caller of Report.
// It lets callers hide the allocator's own frames.
func (r *Reporter) Report(st *state.AllocatorState, meta []metadata.Record, slot int, kind state.ErrorKind, addr uintptr, skip int) {
	// Capture the triggering stack before taking the output lock.
	var pcs [metadata.MaxTraceFrames]uintptr
	n := runtime.Callers(skip+2, pcs[:])

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.color {
		fmt.Fprintf(r.w, "%s%s%s\n", ansiRedBold, Banner, ansiReset)
	} else {
		fmt.Fprintf(r.w, "%s\n", Banner)
	}

	var m *metadata.Record
	if slot >= 0 && slot < len(meta) {
		m = &meta[slot]
	}

	if m != nil && m.Addr != 0 {
		fmt.Fprintf(r.w, "%s at 0x%016x (%s a %d-byte allocation at 0x%016x) here:\n",
			kind, addr, describeOffset(addr, m), m.RequestedSize, m.Addr)
	} else {
		fmt.Fprintf(r.w, "%s at 0x%016x here:\n", kind, addr)
	}
	fmt.Fprint(r.w, formatFrames(pcs[:n]))

	if m != nil && m.Addr != 0 {
		var frames [metadata.MaxTraceFrames]uintptr

		fmt.Fprintf(r.w, "\n0x%016x was allocated by goroutine %d here:\n",
			m.Addr, m.AllocationTrace.GoroutineID)
		fmt.Fprint(r.w, formatFrames(frames[:m.AllocationTrace.Frames(frames[:])]))

		if m.EverDeallocated || !m.IsLive {
			fmt.Fprintf(r.w, "\n0x%016x was deallocated by goroutine %d here:\n",
				m.Addr, m.DeallocationTrace.GoroutineID)
			fmt.Fprint(r.w, formatFrames(frames[:m.DeallocationTrace.Frames(frames[:])]))
		}
	}

	fmt.Fprintf(r.w, "*** End GWP-ASan report ***\n")
}

// describeOffset renders the position of addr relative to the allocation
// in the vocabulary of the reference reports: "N bytes to the right of",
// "N bytes to the left of", or "N bytes into".
func describeOffset(addr uintptr, m *metadata.Record) string {
	switch {
	case addr < m.Addr:
		return fmt.Sprintf("%d bytes to the left of", m.Addr-addr)
	case addr >= m.Addr+m.RequestedSize:
		return fmt.Sprintf("%d bytes to the right of", addr-(m.Addr+m.RequestedSize))
	case addr == m.Addr:
		return "at the beginning of"
	default:
		return fmt.Sprintf("%d bytes into", addr-m.Addr)
	}
}

// formatFrames renders program counters as function name plus indented
// file:line, one frame per pair of lines. Runtime-internal frames are
// filtered; an empty result is marked rather than left blank.
func formatFrames(pcs []uintptr) string {
	if len(pcs) == 0 {
		return "  (no stack trace available)\n"
	}

	frames := runtime.CallersFrames(pcs)
	var buf strings.Builder
	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}
		if strings.HasPrefix(frame.Function, "runtime.") {
			if !more {
				break
			}
			continue
		}
		fmt.Fprintf(&buf, "  %s()\n", frame.Function)
		fmt.Fprintf(&buf, "      %s:%d\n", frame.File, frame.Line)
		if !more {
			break
		}
	}

	if buf.Len() == 0 {
		return "  (all frames runtime internal)\n"
	}
	return buf.String()
}
