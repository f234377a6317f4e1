package squirrel

import (
	"encoding/binary"
	"math/rand"
)

// Source is anything that hands out 32 and 64 bit draws. Generators,
// *math/rand.Rand and the entropy sources in this package all qualify.
type Source interface {
	Uint32() uint32
	Uint64() uint64
}

// Uint64Via32 builds a 64-bit value from two 32-bit draws. The first draw
// is the low word.
func Uint64Via32(next func() uint32) uint64 {
	x := uint64(next())
	y := uint64(next())
	return y<<32 | x
}

// FillVia fills p from src in little-endian order. Whole 8 byte chunks take
// one Uint64 each. A tail of 5 to 7 bytes takes one more Uint64 and a tail
// of 1 to 4 bytes takes one Uint32; the unused high bytes are dropped.
func FillVia(src Source, p []byte) {
	for len(p) >= 8 {
		binary.LittleEndian.PutUint64(p, src.Uint64())
		p = p[8:]
	}
	var chunk [8]byte
	switch n := len(p); {
	case n > 4:
		binary.LittleEndian.PutUint64(chunk[:], src.Uint64())
		copy(p, chunk[:n])
	case n > 0:
		binary.LittleEndian.PutUint32(chunk[:4], src.Uint32())
		copy(p, chunk[:n])
	}
}

// mathSource lets an Rng back a *math/rand.Rand.
type mathSource[W Word] struct {
	r *Rng[W]
}

var _ rand.Source64 = mathSource[uint32]{}

// Source64 returns a math/rand view of r. Draws through the view move r.
func (r *Rng[W]) Source64() rand.Source64 {
	return mathSource[W]{r}
}

func (s mathSource[W]) Int63() int64 {
	return int64(s.r.Uint64() >> 1)
}

func (s mathSource[W]) Uint64() uint64 {
	return s.r.Uint64()
}

// Seed reseeds the generator, truncating to W, and rewinds to position 0.
func (s mathSource[W]) Seed(seed int64) {
	*s.r = WithSeed(W(seed))
}
