package goroutine

import "runtime"

// ID returns the current goroutine ID.
//
// Extracted by parsing the first line of runtime.Stack output
// ("goroutine 123 [running]:"). This costs on the order of a microsecond
// and runs on every Current() call, including every ShouldSample call, so
// it outweighs the sync.Map lookup it keys.
//
// Offset-based extraction from the runtime g struct would be ~1000x
// faster but couples the build to a specific runtime layout; it is not
// implemented here.
func ID() int64 {
	// Only the first line is needed. Format: "goroutine 123 [running]:\n..."
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

// parseGID extracts the numeric goroutine ID from stack trace bytes.
//
// Expected format: "goroutine 123 [running]:...". Returns 0 if the buffer
// does not match. Direct byte parsing, no allocation.
func parseGID(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}
	var id int64
	for _, c := range buf[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
