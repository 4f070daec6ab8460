// Package compressor packs backtraces into fixed-size per-slot buffers.
//
// Return addresses in a backtrace are close together, so consecutive
// frames are stored as zig-zag-encoded varints of their deltas. A typical
// frame costs 2-4 bytes instead of 8, which lets a 128-byte metadata
// buffer hold a full trace. Compression is lossy only in that a trace
// longer than the buffer is truncated at the last frame that fits;
// Unpack reverses Pack exactly up to that truncation.
//
// Pack and Unpack touch no global state and perform no allocation, so
// they are safe to call from a crash-reporting context.
package compressor

import "encoding/binary"

// zigzag maps a signed delta onto an unsigned value with small absolute
// deltas becoming small numbers: 0→0, -1→1, 1→2, -2→3, ...
func zigzag(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

// unzigzag is the inverse of zigzag.
func unzigzag(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// Pack compresses frames into out and returns the number of bytes
// written. Frames that do not fit are dropped (truncation); a zero return
// with non-empty frames means not even the first frame fit.
func Pack(frames []uintptr, out []byte) int {
	var scratch [binary.MaxVarintLen64]byte
	pos := 0
	prev := uintptr(0)
	for _, pc := range frames {
		delta := int64(pc) - int64(prev)
		n := binary.PutUvarint(scratch[:], zigzag(delta))
		if pos+n > len(out) {
			break
		}
		copy(out[pos:], scratch[:n])
		pos += n
		prev = pc
	}
	return pos
}

// Unpack decodes a buffer produced by Pack into out and returns the
// number of frames recovered. Decoding stops at the first malformed
// varint or when out is full.
func Unpack(in []byte, out []uintptr) int {
	count := 0
	prev := int64(0)
	for len(in) > 0 && count < len(out) {
		v, n := binary.Uvarint(in)
		if n <= 0 {
			break
		}
		in = in[n:]
		prev += unzigzag(v)
		out[count] = uintptr(prev)
		count++
	}
	return count
}
