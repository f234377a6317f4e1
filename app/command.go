package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/moontrade/squirrel/squirrel"
	"github.com/tidwall/redcon"
)

type command struct {
	kind byte // 's' system, 'r' read, 'w' write
	fn   func(m *machine, ra *raftWrap, args []string) (interface{}, error)
}

func commandTable(conf Config) map[string]command {
	commands := map[string]command{
		"tick":    {'w', cmdTICK},
		"barrier": {'w', cmdBARRIER},
		"raft":    {'s', cmdRAFT},
		"cluster": {'s', cmdCLUSTER},
		"machine": {'r', cmdMACHINE},
		"version": {'s', cmdVERSION},
		"mix":     {'s', cmdMIX},
		"random":  {'r', cmdRANDOM},

		"stream.create": {'w', cmdSTREAMCREATE},
		"stream.next":   {'w', cmdSTREAMNEXT},
		"stream.next64": {'w', cmdSTREAMNEXT64},
		"stream.next32": {'w', cmdSTREAMNEXT32},
		"stream.bytes":  {'w', cmdSTREAMBYTES},
		"stream.seek":   {'w', cmdSTREAMSEEK},
		"stream.skip":   {'w', cmdSTREAMSKIP},
		"stream.del":    {'w', cmdSTREAMDEL},
		"stream.peek":   {'r', cmdSTREAMPEEK},
		"stream.info":   {'r', cmdSTREAMINFO},
		"stream.list":   {'r', cmdSTREAMLIST},
	}
	if conf.TryErrors {
		delete(commands, "cluster")
	}
	return commands
}

func parseUint(arg string) (uint64, error) {
	n, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, errNotInteger
	}
	return n, nil
}

// parseCount parses a draw count in the range [1, max].
func parseCount(arg string, max int) (int, error) {
	n, err := parseUint(arg)
	if err != nil || n == 0 {
		return 0, errNotInteger
	}
	if n > uint64(max) {
		return 0, errTooMany
	}
	return int(n), nil
}

func formatUints(vals []uint64) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = strconv.FormatUint(v, 10)
	}
	return out
}

// BARRIER
// help: barrier is a noop that saves to the raft log. It can be used to
//       ensure that the current server is the leader and that the cluster
//       is working.
func cmdBARRIER(m *machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongNumArgs
	}
	return redcon.SimpleString("OK"), nil
}

// TICK timestamp-int64 seed-uint64
// help: updates the machine timestamp and reseeds the machine generator.
//       It's not possible to directly call this from a client service. It
//       can only be called by its own internal server instance.
func cmdTICK(m *machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 3 {
		return nil, ErrWrongNumArgs
	}
	ts, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return nil, err
	}
	if ts < 0 || ts <= m.ts {
		return nil, errors.New("timestamp is not monotonic")
	}
	seed, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return nil, err
	}
	if seed == m.rng.Seed() {
		return nil, errors.New("random number has not changed")
	}
	m.rng = squirrel.WithSeed(seed)
	m.ts = ts
	if m.start == 0 {
		m.start = m.ts
	}
	// Do not returns anything of value because it will be overwritten by the
	// Apply() function.
	return nil, nil
}

// VERSION
func cmdVERSION(m *machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongNumArgs
	}
	return m.vers, nil
}

// MACHINE [HUMAN]
// help: returns the machine clock and generator state; map[string]string
func cmdMACHINE(m *machine, ra *raftWrap, args []string) (interface{}, error) {
	var human bool
	switch len(args) {
	case 1:
	case 2:
		arg := strings.ToLower(args[1])
		if arg == "human" || arg == "h" {
			human = true
		} else {
			return false, ErrSyntax
		}
	default:
		return false, ErrWrongNumArgs
	}
	status := make(map[string]string)
	now := m.Now().UnixNano()
	uptime := now - m.start
	boottime := m.start
	if human {
		status["now"] = time.Unix(0, now).UTC().Format(time.RFC3339Nano)
		status["uptime"] = time.Duration(uptime).String()
		status["boottime"] = time.Unix(0, boottime).UTC().Format(
			time.RFC3339Nano)
	} else {
		status["now"] = fmt.Sprint(now)
		status["uptime"] = fmt.Sprint(uptime)
		status["boottime"] = fmt.Sprint(boottime)
	}
	status["seed"] = fmt.Sprint(m.rng.Seed())
	status["position"] = fmt.Sprint(m.rng.Position())
	status["streams"] = fmt.Sprint(m.streams.Len())
	return status, nil
}

// MIX 32|64 position seed
// help: returns the raw noise value for position and seed; string
func cmdMIX(m *machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 4 {
		return nil, ErrWrongNumArgs
	}
	bits, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, ErrWidth
	}
	if err := checkWidth(bits); err != nil {
		return nil, err
	}
	position, err := parseUint(args[2])
	if err != nil {
		return nil, err
	}
	seed, err := parseUint(args[3])
	if err != nil {
		return nil, err
	}
	if bits == 32 {
		if position > 1<<32-1 || seed > 1<<32-1 {
			return nil, errOutOfRange
		}
		return strconv.FormatUint(
			uint64(squirrel.Mix32(uint32(position), uint32(seed))), 10), nil
	}
	return strconv.FormatUint(squirrel.Mix64(position, seed), 10), nil
}

// RANDOM [count]
// help: draws from a copy of the machine generator. The machine itself does
//       not move, so the values stay the same until the next write; []string
func cmdRANDOM(m *machine, ra *raftWrap, args []string) (interface{}, error) {
	count := 1
	switch len(args) {
	case 1:
	case 2:
		var err error
		if count, err = parseCount(args[1], m.maxDraws); err != nil {
			return nil, err
		}
	default:
		return nil, ErrWrongNumArgs
	}
	rnd := m.Rand()
	vals := make([]uint64, count)
	for i := range vals {
		vals[i] = rnd.Uint64()
	}
	return formatUints(vals), nil
}
