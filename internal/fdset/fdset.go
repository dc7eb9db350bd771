// Package fdset provides bit-twiddling helpers over unix.FdSet. The x/sys
// package exposes FdSet as a bare array of words with no Set/Clear/IsSet
// methods of its own, so every caller that folds descriptors into a
// select() set (the push server, the event loop) shares this instead of
// repeating the bit math.
package fdset

import "golang.org/x/sys/unix"

const wordBits = 64

// Zero clears every bit in set.
func Zero(set *unix.FdSet) {
	*set = unix.FdSet{}
}

// Set marks fd as a member of set.
func Set(set *unix.FdSet, fd int) {
	set.Bits[fd/wordBits] |= 1 << (uint(fd) % wordBits)
}

// Clear removes fd from set.
func Clear(set *unix.FdSet, fd int) {
	set.Bits[fd/wordBits] &^= 1 << (uint(fd) % wordBits)
}

// IsSet reports whether fd is a member of set.
func IsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/wordBits]&(1<<(uint(fd)%wordBits)) != 0
}
