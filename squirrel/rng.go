package squirrel

import "fmt"

// Rng is a counter-based generator. Every draw mixes the current position
// with the seed and then moves the position forward by one, wrapping at the
// top of W. Rng is a plain value: copies are independent streams and a
// single value must not be shared between goroutines without locking.
type Rng[W Word] struct {
	position W
	seed     W
}

type (
	Rng32 = Rng[uint32]
	Rng64 = Rng[uint64]
)

var (
	_ Source = (*Rng32)(nil)
	_ Source = (*Rng64)(nil)
)

// New returns a generator at position 0 seeded from the OS entropy source.
func New[W Word]() Rng[W] {
	return SeedFrom[W](OS)
}

// WithSeed returns a generator at position 0.
func WithSeed[W Word](seed W) Rng[W] {
	return Rng[W]{seed: seed}
}

// SeedFrom takes one native width draw from src and uses it as the seed.
func SeedFrom[W Word](src Source) Rng[W] {
	if bitsOf[W]() == 32 {
		return Rng[W]{seed: W(src.Uint32())}
	}
	return Rng[W]{seed: W(src.Uint64())}
}

// WithPosition returns a copy of r that will draw from position next. The
// receiver is not modified.
func (r Rng[W]) WithPosition(position W) Rng[W] {
	r.position = position
	return r
}

func (r Rng[W]) Position() W { return r.position }
func (r Rng[W]) Seed() W     { return r.seed }
func (r Rng[W]) Bits() int   { return bitsOf[W]() }

// At returns the value that a draw from position would produce, without
// moving the generator.
func (r Rng[W]) At(position W) W {
	return Mix(position, r.seed)
}

// Next is the native width draw.
func (r *Rng[W]) Next() W {
	v := Mix(r.position, r.seed)
	r.position++
	return v
}

// Skip moves the position forward by n slots.
func (r *Rng[W]) Skip(n W) {
	r.position += n
}

// Uint32 is the native draw on 32-bit generators. On 64-bit generators it
// takes one native draw and keeps the low half.
func (r *Rng[W]) Uint32() uint32 {
	return uint32(r.Next())
}

// Uint64 is the native draw on 64-bit generators. On 32-bit generators it
// joins two native draws, low word first, and consumes two positions.
func (r *Rng[W]) Uint64() uint64 {
	if bitsOf[W]() == 32 {
		return Uint64Via32(r.Uint32)
	}
	return uint64(r.Next())
}

// Fill fills p with little-endian draws. See FillVia for the exact policy.
func (r *Rng[W]) Fill(p []byte) {
	FillVia(r, p)
}

// TryFill never fails. It exists for callers that expect a fallible fill.
func (r *Rng[W]) TryFill(p []byte) error {
	r.Fill(p)
	return nil
}

// Read implements io.Reader. It always fills all of p.
func (r *Rng[W]) Read(p []byte) (n int, err error) {
	r.Fill(p)
	return len(p), nil
}

// Partition splits the position space that follows r into parts disjoint,
// equally sized ranges and returns one generator per range, all sharing
// r's seed. The generators can be handed to separate goroutines.
// Partition panics if parts is not smaller than 2^W.
func (r Rng[W]) Partition(parts int) []Rng[W] {
	if parts < 1 {
		return nil
	}
	if uint64(parts) > uint64(^W(0)) {
		panic(fmt.Sprintf("squirrel: cannot partition a %d-bit stream into %d parts",
			bitsOf[W](), parts))
	}
	stride := ^W(0) / W(parts)
	out := make([]Rng[W], parts)
	for i := range out {
		out[i] = r.WithPosition(r.position + W(i)*stride)
	}
	return out
}
