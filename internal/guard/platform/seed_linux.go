//go:build linux

package platform

import (
	"encoding/binary"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Seed returns a 32-bit PRNG seed from the kernel entropy pool.
//
// Falls back to mixing the wall clock with the pid if getrandom(2) is
// unavailable. The seed only randomizes sampling intervals and slot
// choice; it has no cryptographic requirement.
func Seed() uint32 {
	var buf [4]byte
	if n, err := unix.Getrandom(buf[:], 0); err == nil && n == len(buf) {
		return binary.LittleEndian.Uint32(buf[:])
	}
	return uint32(time.Now().UnixNano()) ^ uint32(os.Getpid())
}
