package squirrel

import "math/bits"

// Word is the set of unsigned widths a generator can run at.
type Word interface {
	uint32 | uint64
}

type noise[W Word] struct {
	bit1, bit2, bit3 W
}

var (
	noise32 = noise[uint32]{0x68E31DA4, 0xB5297A4D, 0x1B56C4E9}
	noise64 = noise[uint64]{0xb333333333333027, 0x6666666666666800, 0x19999999999999eb}
)

// bitsOf returns 32 or 64.
func bitsOf[W Word]() int {
	return bits.Len64(uint64(^W(0)))
}

func noiseOf[W Word]() noise[W] {
	if bitsOf[W]() == 32 {
		return noise[W]{W(noise32.bit1), W(noise32.bit2), W(noise32.bit3)}
	}
	return noise[W]{W(noise64.bit1), W(noise64.bit2), W(noise64.bit3)}
}

// Mix is the Squirrel3 noise function. The result depends only on position
// and seed. All arithmetic wraps.
func Mix[W Word](position, seed W) W {
	n := noiseOf[W]()
	mangled := position
	mangled *= n.bit1
	mangled += seed
	mangled ^= mangled >> 8
	mangled += n.bit2
	mangled ^= mangled << 8
	mangled *= n.bit3
	mangled ^= mangled >> 8
	return mangled
}

// Mix32 is Mix with 32-bit words.
func Mix32(position, seed uint32) uint32 {
	return Mix(position, seed)
}

// Mix64 is Mix with 64-bit words.
func Mix64(position, seed uint64) uint64 {
	return Mix(position, seed)
}
