package app

import (
	"math"
	"strings"

	"github.com/moontrade/squirrel/squirrel"
	"github.com/tidwall/match"
	"github.com/tidwall/tinybtree"
)

// Stream is a named squirrel generator. The width, seed and position are
// its entire state, so replicating them replicates every future draw.
type Stream struct {
	Name     string
	Bits     int
	Seed     uint64
	Position uint64
}

func checkWidth(bits int) error {
	if bits != 32 && bits != 64 {
		return ErrWidth
	}
	return nil
}

// fits reports whether v is representable by the stream width.
func (s *Stream) fits(v uint64) bool {
	return s.Bits == 64 || v <= math.MaxUint32
}

// advance runs fn against a generator loaded from s and stores the new
// position back into s.
func advance[W squirrel.Word](s *Stream, fn func(r *squirrel.Rng[W])) {
	r := squirrel.WithSeed(W(s.Seed)).WithPosition(W(s.Position))
	fn(&r)
	s.Position = uint64(r.Position())
}

// draw hands fn the stream as a width agnostic source.
func (s *Stream) draw(fn func(src squirrel.Source)) {
	if s.Bits == 32 {
		advance[uint32](s, func(r *squirrel.Rng32) { fn(r) })
	} else {
		advance[uint64](s, func(r *squirrel.Rng64) { fn(r) })
	}
}

// Next returns n native width draws. 32-bit values are widened.
func (s *Stream) Next(n int) []uint64 {
	out := make([]uint64, n)
	if s.Bits == 32 {
		advance[uint32](s, func(r *squirrel.Rng32) {
			for i := range out {
				out[i] = uint64(r.Next())
			}
		})
	} else {
		advance[uint64](s, func(r *squirrel.Rng64) {
			for i := range out {
				out[i] = r.Next()
			}
		})
	}
	return out
}

// Uint64s returns n 64-bit draws. A 32-bit stream spends two positions on
// each value.
func (s *Stream) Uint64s(n int) []uint64 {
	out := make([]uint64, n)
	s.draw(func(src squirrel.Source) {
		for i := range out {
			out[i] = src.Uint64()
		}
	})
	return out
}

// Uint32s returns n 32-bit draws. A 64-bit stream keeps the low half.
func (s *Stream) Uint32s(n int) []uint32 {
	out := make([]uint32, n)
	s.draw(func(src squirrel.Source) {
		for i := range out {
			out[i] = src.Uint32()
		}
	})
	return out
}

// Bytes returns n bytes using the generator fill policy.
func (s *Stream) Bytes(n int) []byte {
	out := make([]byte, n)
	s.draw(func(src squirrel.Source) {
		squirrel.FillVia(src, out)
	})
	return out
}

// Peek returns count native values starting offset slots past the current
// position. The stream does not move.
func (s *Stream) Peek(offset uint64, count int) []uint64 {
	out := make([]uint64, count)
	start := s.Position + offset
	if s.Bits == 32 {
		r := squirrel.WithSeed(uint32(s.Seed))
		for i := range out {
			out[i] = uint64(r.At(uint32(start + uint64(i))))
		}
	} else {
		r := squirrel.WithSeed(s.Seed)
		for i := range out {
			out[i] = r.At(start + uint64(i))
		}
	}
	return out
}

// Seek moves the stream to an absolute position.
func (s *Stream) Seek(position uint64) error {
	if !s.fits(position) {
		return errOutOfRange
	}
	s.Position = position
	return nil
}

// Skip moves the stream forward by n slots, wrapping at the top of the
// stream width.
func (s *Stream) Skip(n uint64) {
	if s.Bits == 32 {
		advance[uint32](s, func(r *squirrel.Rng32) { r.Skip(uint32(n)) })
	} else {
		advance[uint64](s, func(r *squirrel.Rng64) { r.Skip(n) })
	}
}

// registry holds the streams of a machine ordered by name.
type registry struct {
	tr tinybtree.BTree
}

// Create adds a new stream.
func (g *registry) Create(name string, bits int, seed, position uint64,
) (*Stream, error) {
	if err := checkWidth(bits); err != nil {
		return nil, err
	}
	s := &Stream{Name: name, Bits: bits, Seed: seed, Position: position}
	if !s.fits(seed) || !s.fits(position) {
		return nil, errOutOfRange
	}
	if _, ok := g.tr.Get(name); ok {
		return nil, ErrStreamExists
	}
	g.tr.Set(name, s)
	return s, nil
}

func (g *registry) Get(name string) (*Stream, error) {
	v, ok := g.tr.Get(name)
	if !ok {
		return nil, ErrStreamNotFound
	}
	return v.(*Stream), nil
}

func (g *registry) Delete(name string) bool {
	_, deleted := g.tr.Delete(name)
	return deleted
}

func (g *registry) Len() int {
	return g.tr.Len()
}

// Scan iterates over the streams whose names match pattern, in name order.
func (g *registry) Scan(pattern string, iter func(s *Stream) bool) {
	prefix := pattern
	if i := strings.IndexAny(pattern, "*?\\"); i != -1 {
		prefix = pattern[:i]
	}
	g.tr.Ascend(prefix, func(key string, v interface{}) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		if match.Match(key, pattern) {
			return iter(v.(*Stream))
		}
		return true
	})
}

// copy returns the streams by value, for snapshots.
func (g *registry) copy() []Stream {
	out := make([]Stream, 0, g.tr.Len())
	g.tr.Scan(func(key string, v interface{}) bool {
		out = append(out, *v.(*Stream))
		return true
	})
	return out
}

func (g *registry) reset() {
	g.tr = tinybtree.BTree{}
}
