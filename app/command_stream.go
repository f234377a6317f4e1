package app

import (
	"strconv"
	"strings"

	"github.com/moontrade/squirrel/logger"
	"github.com/moontrade/squirrel/squirrel"
	"github.com/tidwall/redcon"
)

const maxBytes = 1 << 20

// STREAM.CREATE name [BITS 32|64] [SEED seed] [POSITION position]
// help: creates a stream. Without SEED the seed is drawn from the machine
//       generator, which is identical on every server.
func cmdSTREAMCREATE(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) < 2 || len(args)%2 != 0 {
		return nil, ErrWrongNumArgs
	}
	name := args[1]
	bits := m.width
	var seed, position uint64
	var seeded bool
	for i := 2; i < len(args); i += 2 {
		var err error
		switch strings.ToLower(args[i]) {
		case "bits":
			if bits, err = strconv.Atoi(args[i+1]); err != nil {
				return nil, ErrWidth
			}
		case "seed":
			seeded = true
			seed, err = parseUint(args[i+1])
		case "position":
			position, err = parseUint(args[i+1])
		default:
			return nil, ErrSyntax
		}
		if err != nil {
			return nil, err
		}
	}
	if err := checkWidth(bits); err != nil {
		return nil, err
	}
	if !seeded {
		if bits == 32 {
			seed = uint64(squirrel.SeedFrom[uint32](m.Rand()).Seed())
		} else {
			seed = squirrel.SeedFrom[uint64](m.Rand()).Seed()
		}
	}
	s, err := m.streams.Create(name, bits, seed, position)
	if err != nil {
		return nil, err
	}
	logger.Debug(logger.Stream(s.Name, s.Bits, s.Seed, s.Position),
		"stream created")
	return redcon.SimpleString("OK"), nil
}

// streamCount resolves the "name [count]" form shared by the draw commands.
func streamCount(m *machine, args []string) (*Stream, int, error) {
	count := 1
	switch len(args) {
	case 2:
	case 3:
		var err error
		if count, err = parseCount(args[2], m.maxDraws); err != nil {
			return nil, 0, err
		}
	default:
		return nil, 0, ErrWrongNumArgs
	}
	s, err := m.streams.Get(args[1])
	if err != nil {
		return nil, 0, err
	}
	return s, count, nil
}

// STREAM.NEXT name [count]
// help: draws count native width values; []string
func cmdSTREAMNEXT(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	s, count, err := streamCount(m, args)
	if err != nil {
		return nil, err
	}
	return formatUints(s.Next(count)), nil
}

// STREAM.NEXT64 name [count]
// help: draws count 64-bit values. A 32-bit stream joins two draws per
//       value; []string
func cmdSTREAMNEXT64(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	s, count, err := streamCount(m, args)
	if err != nil {
		return nil, err
	}
	return formatUints(s.Uint64s(count)), nil
}

// STREAM.NEXT32 name [count]
// help: draws count 32-bit values. A 64-bit stream keeps the low half of
//       each draw; []string
func cmdSTREAMNEXT32(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	s, count, err := streamCount(m, args)
	if err != nil {
		return nil, err
	}
	vals := s.Uint32s(count)
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = strconv.FormatUint(uint64(v), 10)
	}
	return out, nil
}

// STREAM.BYTES name n
// help: returns n random bytes; []byte
func cmdSTREAMBYTES(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 3 {
		return nil, ErrWrongNumArgs
	}
	n, err := parseUint(args[2])
	if err != nil {
		return nil, err
	}
	if n > maxBytes {
		return nil, errTooMany
	}
	s, err := m.streams.Get(args[1])
	if err != nil {
		return nil, err
	}
	return s.Bytes(int(n)), nil
}

// STREAM.SEEK name position
// help: moves the stream to position; string
func cmdSTREAMSEEK(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 3 {
		return nil, ErrWrongNumArgs
	}
	position, err := parseUint(args[2])
	if err != nil {
		return nil, err
	}
	s, err := m.streams.Get(args[1])
	if err != nil {
		return nil, err
	}
	if err := s.Seek(position); err != nil {
		return nil, err
	}
	return strconv.FormatUint(s.Position, 10), nil
}

// STREAM.SKIP name n
// help: moves the stream forward by n slots and returns the new position;
//       string
func cmdSTREAMSKIP(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 3 {
		return nil, ErrWrongNumArgs
	}
	n, err := parseUint(args[2])
	if err != nil {
		return nil, err
	}
	s, err := m.streams.Get(args[1])
	if err != nil {
		return nil, err
	}
	s.Skip(n)
	return strconv.FormatUint(s.Position, 10), nil
}

// STREAM.DEL name
// help: deletes a stream; int
func cmdSTREAMDEL(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 2 {
		return nil, ErrWrongNumArgs
	}
	if m.streams.Delete(args[1]) {
		return redcon.SimpleInt(1), nil
	}
	return redcon.SimpleInt(0), nil
}

// STREAM.PEEK name [offset [count]]
// help: returns values ahead of the stream position without moving it;
//       []string
func cmdSTREAMPEEK(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	var offset uint64
	count := 1
	var err error
	switch len(args) {
	case 4:
		if count, err = parseCount(args[3], m.maxDraws); err != nil {
			return nil, err
		}
		fallthrough
	case 3:
		if offset, err = parseUint(args[2]); err != nil {
			return nil, err
		}
	case 2:
	default:
		return nil, ErrWrongNumArgs
	}
	s, err := m.streams.Get(args[1])
	if err != nil {
		return nil, err
	}
	return formatUints(s.Peek(offset, count)), nil
}

// STREAM.INFO name
// help: returns the stream state; map[string]string
func cmdSTREAMINFO(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 2 {
		return nil, ErrWrongNumArgs
	}
	s, err := m.streams.Get(args[1])
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"name":     s.Name,
		"bits":     strconv.Itoa(s.Bits),
		"seed":     strconv.FormatUint(s.Seed, 10),
		"position": strconv.FormatUint(s.Position, 10),
	}, nil
}

// STREAM.LIST [pattern]
// help: returns the names of the streams matching pattern; []string
func cmdSTREAMLIST(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	pattern := "*"
	switch len(args) {
	case 1:
	case 2:
		pattern = args[1]
	default:
		return nil, ErrWrongNumArgs
	}
	names := []string{}
	m.streams.Scan(pattern, func(s *Stream) bool {
		names = append(names, s.Name)
		return true
	})
	return names, nil
}
