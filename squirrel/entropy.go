package squirrel

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
)

// ErrSeedLength is returned when raw seed bytes are not exactly W/8 long.
var ErrSeedLength = errors.New("squirrel: invalid seed length")

// OS is a Source backed by crypto/rand. It panics if the operating system
// cannot supply entropy.
var OS Source = osEntropy{}

type osEntropy struct{}

func (osEntropy) read(b []byte) {
	if _, err := crand.Read(b); err != nil {
		panic(fmt.Errorf("squirrel: entropy: %w", err))
	}
}

func (e osEntropy) Uint32() uint32 {
	var b [4]byte
	e.read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func (e osEntropy) Uint64() uint64 {
	var b [8]byte
	e.read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

// NewLocal returns a math/rand generator seeded once from OS. It is meant to
// be owned by a single goroutine.
func NewLocal() *rand.Rand {
	return rand.New(rand.NewSource(int64(OS.Uint64())))
}

// FromSeed32 decodes a little-endian seed. The position is 0.
func FromSeed32(seed [4]byte) Rng32 {
	return WithSeed(binary.LittleEndian.Uint32(seed[:]))
}

// FromSeed64 decodes a little-endian seed. The position is 0.
func FromSeed64(seed [8]byte) Rng64 {
	return WithSeed(binary.LittleEndian.Uint64(seed[:]))
}

// FromSeedBytes decodes a little-endian seed of exactly W/8 bytes.
func FromSeedBytes[W Word](seed []byte) (Rng[W], error) {
	n := bitsOf[W]() / 8
	if len(seed) != n {
		return Rng[W]{}, fmt.Errorf("%w: got %d bytes, want %d",
			ErrSeedLength, len(seed), n)
	}
	if n == 4 {
		return WithSeed(W(binary.LittleEndian.Uint32(seed))), nil
	}
	return WithSeed(W(binary.LittleEndian.Uint64(seed))), nil
}
