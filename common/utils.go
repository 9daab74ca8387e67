package common

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Align8 rounds n up to the nearest multiple of 8.
func Align8(n int) int {
	return (n + 7) &^ 7
}

// AlignedTo8 reports whether n is already a multiple of 8, which the
// Bitmap view over a page buffer requires for safe uint64 casts.
func AlignedTo8(n int) bool {
	return n%8 == 0
}

// Assert checks a condition and panics if it is false.
//
// WHY USE THIS INSTEAD OF RETURNING ERROR?
// In idiomatic Go, you are encouraged to return error values for conditions that might reasonably happen
// (e.g., "file not found" or "network timeout"). However, complex system engineering often relies on invariants:
//
//	truths about the system state that must always be valid. Assertions are useful for the following cases:
//	1. Fail Fast: In a database, if internal logic is broken (e.g., a pin count is negative),
//	   continuing execution is dangerous. It is better to crash and restart than to persist corrupted data.
//	2. Documentation: An Assert tells other developers: "I guarantee this condition is true here."
//	3. Debugging: The panic provides a stack trace immediately pointing to the logic error.
//
// WHEN TO USE:
// - Checking for "impossible" conditions (e.g., switch default cases that shouldn't be reached).
// - Verifying internal data structure integrity (e.g., page_table and free_list are disjoint).
//
// WHEN NOT TO USE:
// - Validating user input (return an error instead).
// - Handling I/O failures like "disk full" (return an error instead).
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// HashKey computes a 32-bit hash of an int64 index key for the extendible
// hash table's directory indexing (spec §4.4.1: "hash(key) -> u32").
// Delegates to xxhash rather than a hand-rolled function: xxhash is a real,
// independently-usable dependency retrieved for this spec (it backs
// ShubhamNegi4-DaemonDB's cache), and its 64-bit digest is downcast the same
// way BusTub downcasts its own 64-bit hash.
func HashKey(key int64) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return uint32(xxhash.Sum64(buf[:]))
}
