package app

import (
	"sync/atomic"

	"github.com/moontrade/squirrel/squirrel"
)

// Rand is the random number interface handed to commands by the machine.
type Rand interface {
	Int() int
	Uint64() uint64
	Uint32() uint32
	Float64() float64
	Read([]byte) (n int, err error)
}

var _ squirrel.Source = Rand(nil)

// machineRand draws from a squirrel generator owned by the machine.
type machineRand struct {
	r *squirrel.Rng64
}

// Rand returns the machine generator. It is reseeded by every tick so the
// values drawn by write commands are identical on all servers. While a read
// command is running the draws come from a copy and the replicated position
// stays put.
func (m *machine) Rand() Rand {
	if atomic.LoadInt32(&m.readers) == 0 {
		return machineRand{&m.rng}
	}
	r := m.rng
	return machineRand{&r}
}

func (r machineRand) Uint32() uint32 { return r.r.Uint32() }
func (r machineRand) Uint64() uint64 { return r.r.Uint64() }

func (r machineRand) Int() int {
	return int(uint(r.r.Uint64()) << 1 >> 1)
}

// Float64 returns a value in [0.0,1.0) built from the top 53 bits of a draw.
func (r machineRand) Float64() float64 {
	return float64(r.r.Uint64()>>11) / (1 << 53)
}

func (r machineRand) Read(p []byte) (n int, err error) {
	return r.r.Read(p)
}
