// Package squirrel implements a deterministic, position addressable random
// number generator built on the Squirrel3 integer noise function.
//
// A generator is nothing more than a (position, seed) pair. The value at any
// position can be computed directly with Mix, so a stream can be seeked,
// skipped or split across goroutines without replaying earlier draws:
//
//	r := squirrel.WithSeed[uint64](42)
//	a := r.Next()                 // position 0
//	b := r.WithPosition(0).Next() // same value as a
//
// Two widths are supported through the Word constraint. Both expose the same
// Uint32, Uint64 and Fill draws, but they consume positions differently: a
// 32-bit generator spends two positions on a Uint64, a 64-bit generator
// spends one position on a Uint32 and drops the high half.
//
// Nothing in this package is suitable for cryptography.
package squirrel
