package app

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/tidwall/redcon"
)

func testConfig() Config {
	conf := Config{MaxDraws: 1024, SnapshotCodec: "snappy"}
	conf.def()
	return conf
}

type testApplier struct {
	t     *testing.T
	m     *machine
	index uint64
}

func newTestApplier(t *testing.T) *testApplier {
	return &testApplier{t: t, m: newMachine(testConfig(), t.TempDir())}
}

// apply runs a batch of write commands through Apply like a raft entry.
func (a *testApplier) apply(batch ...[]string) []applyResp {
	a.t.Helper()
	a.index++
	res := a.m.Apply(&raft.Log{
		Index: a.index,
		Term:  1,
		Type:  raft.LogCommand,
		Data:  encodeWriteBatch(batch),
	})
	return res.([]applyResp)
}

// do applies a single command and fails the test on error.
func (a *testApplier) do(args ...string) interface{} {
	a.t.Helper()
	r := a.apply(args)[0]
	if r.err != nil {
		a.t.Fatalf("%v: %v", args, r.err)
	}
	return r.resp
}

func (a *testApplier) tick(ts int64, seed uint64) {
	a.t.Helper()
	a.do("tick", itoa(ts), utoa(seed))
}

func itoa(v int64) string  { return formatUints([]uint64{uint64(v)})[0] }
func utoa(v uint64) string { return formatUints([]uint64{v})[0] }

func expectString(t *testing.T, v interface{}, want string) {
	t.Helper()
	if got, ok := v.(string); !ok || got != want {
		t.Fatalf("expected %q, got %#v", want, v)
	}
}

func expectStrings(t *testing.T, v interface{}, want ...string) {
	t.Helper()
	got, ok := v.([]string)
	if !ok {
		t.Fatalf("expected []string, got %T", v)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestApplyBeforeTick(t *testing.T) {
	a := newTestApplier(t)
	r := a.apply([]string{"stream.create", "x"})
	if r[0].err != raft.ErrNotLeader {
		t.Fatalf("expected %v, got %v", raft.ErrNotLeader, r[0].err)
	}
	r = a.apply([]string{"tick", "100", "3"}, []string{"barrier"})
	if r[0].err != nil || r[1].err != nil {
		t.Fatalf("unexpected errors %v %v", r[0].err, r[1].err)
	}
	if l, ok := r[0].resp.(raft.Log); !ok || l.Index != 2 || l.Term != 1 {
		t.Fatalf("unexpected tick response %#v", r[0].resp)
	}
	if r[1].resp != redcon.SimpleString("OK") {
		t.Fatalf("unexpected barrier response %v", r[1].resp)
	}
	if a.m.appliedIndex != 2 || a.m.firstIndex != 1 {
		t.Fatalf("unexpected indexes %d %d", a.m.appliedIndex, a.m.firstIndex)
	}
}

func TestTick(t *testing.T) {
	a := newTestApplier(t)
	a.tick(100, 3)
	if a.m.start != 100 || a.m.ts != 100 || a.m.rng.Seed() != 3 {
		t.Fatalf("unexpected machine state")
	}
	for _, args := range [][]string{
		{"tick", "100", "4"},
		{"tick", "101", "3"},
		{"tick", "x", "4"},
		{"tick", "102"},
	} {
		if r := a.apply(args); r[0].err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
	a.m.rng.Next()
	a.tick(200, 4)
	if a.m.start != 100 || a.m.ts != 200 {
		t.Fatalf("unexpected timestamps %d %d", a.m.start, a.m.ts)
	}
	if a.m.rng.Seed() != 4 || a.m.rng.Position() != 0 {
		t.Fatal("tick did not reset the machine generator")
	}
}

func TestApplyPanicsOnReadCommand(t *testing.T) {
	a := newTestApplier(t)
	a.tick(1, 1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	a.apply([]string{"random"})
}

func TestStreamCommands(t *testing.T) {
	a := newTestApplier(t)
	a.tick(1, 1)
	if v := a.do("stream.create", "dice", "bits", "32", "seed", "3"); v != redcon.SimpleString("OK") {
		t.Fatalf("unexpected response %v", v)
	}
	r := a.apply([]string{"stream.create", "dice"})
	if !errors.Is(r[0].err, ErrStreamExists) {
		t.Fatalf("expected %v, got %v", ErrStreamExists, r[0].err)
	}
	expectStrings(t, a.do("stream.next", "dice", "2"), "2590782482", "1169417807")
	expectStrings(t, a.do("stream.next", "dice"), "1323020095")
	expectString(t, a.do("stream.seek", "dice", "0"), "0")
	expectStrings(t, a.do("stream.next64", "dice"), "5022611239015822354")
	expectString(t, a.do("stream.skip", "dice", "2"), "4")
	expectStrings(t, a.do("stream.next32", "dice"), "682856342")

	a.do("stream.create", "wide", "SEED", "3", "POSITION", "1")
	expectStrings(t, a.do("stream.next", "wide"), "4435623420567102850")
	expectStrings(t, a.do("stream.next32", "wide", "1"), "115963473")
	b, ok := a.do("stream.bytes", "wide", "3").([]byte)
	if !ok || len(b) != 3 {
		t.Fatalf("unexpected bytes %v", b)
	}
	expectString(t, a.do("stream.seek", "wide", "0"), "0")
	if v := a.do("stream.del", "wide"); v != redcon.SimpleInt(1) {
		t.Fatalf("unexpected response %v", v)
	}
	if v := a.do("stream.del", "wide"); v != redcon.SimpleInt(0) {
		t.Fatalf("unexpected response %v", v)
	}

	for _, args := range [][]string{
		{"stream.create", "a", "bits", "16"},
		{"stream.create", "a", "seed"},
		{"stream.create", "a", "color", "red"},
		{"stream.create", "a", "bits", "32", "seed", "4294967296"},
		{"stream.next", "nope"},
		{"stream.next", "dice", "0"},
		{"stream.next", "dice", "1025"},
		{"stream.next", "dice", "-1"},
		{"stream.seek", "dice", "4294967296"},
		{"stream.bytes", "dice", "1048577"},
		{"stream.skip", "dice"},
	} {
		if r := a.apply(args); r[0].err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
}

func TestStreamCreateDrawsSeed(t *testing.T) {
	// Every server applies the same log, so drawn seeds agree.
	var seeds [2]interface{}
	for i := range seeds {
		a := newTestApplier(t)
		a.tick(1, 3)
		a.do("stream.create", "a")
		a.do("stream.create", "b", "bits", "32")
		info, err := cmdSTREAMINFO(a.m, nil, []string{"stream.info", "a"})
		if err != nil {
			t.Fatal(err)
		}
		if info.(map[string]string)["seed"] != "16609275425953610439" {
			t.Fatalf("unexpected seed %v", info)
		}
		info, _ = cmdSTREAMINFO(a.m, nil, []string{"stream.info", "b"})
		if info.(map[string]string)["seed"] != "72230274" {
			t.Fatalf("unexpected seed %v", info)
		}
		if a.m.rng.Position() != 2 {
			t.Fatalf("expected machine position 2, got %d", a.m.rng.Position())
		}
		seeds[i] = info.(map[string]string)["seed"]
	}
	if seeds[0] != seeds[1] {
		t.Fatal("servers disagree")
	}
}

func TestReadCommands(t *testing.T) {
	a := newTestApplier(t)
	a.tick(1, 1)
	a.do("stream.create", "user:1", "seed", "3")
	a.do("stream.create", "user:2", "bits", "32", "seed", "3")
	a.do("stream.create", "game", "seed", "3")
	m := a.m

	read := func(fn func(m *machine, ra *raftWrap, args []string) (interface{}, error),
		args ...string,
	) interface{} {
		t.Helper()
		v, err := m.read(func() (interface{}, error) { return fn(m, nil, args) })
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return v
	}
	expectStrings(t, read(cmdSTREAMLIST, "stream.list"), "game", "user:1", "user:2")
	expectStrings(t, read(cmdSTREAMLIST, "stream.list", "user:*"), "user:1", "user:2")
	expectStrings(t, read(cmdSTREAMLIST, "stream.list", "x*"))
	expectStrings(t, read(cmdSTREAMPEEK, "stream.peek", "user:2", "1", "2"),
		"1169417807", "1323020095")
	expectStrings(t, read(cmdSTREAMPEEK, "stream.peek", "user:2"), "2590782482")
	s, _ := m.streams.Get("user:2")
	if s.Position != 0 {
		t.Fatal("peek moved the stream")
	}
	info := read(cmdSTREAMINFO, "stream.info", "user:2").(map[string]string)
	if info["name"] != "user:2" || info["bits"] != "32" || info["seed"] != "3" ||
		info["position"] != "0" {
		t.Fatalf("unexpected info %v", info)
	}

	pos := m.rng.Position()
	first := read(cmdRANDOM, "random", "3")
	second := read(cmdRANDOM, "random", "3")
	expectStrings(t, second, first.([]string)...)
	if m.rng.Position() != pos {
		t.Fatal("read moved the machine generator")
	}
	ts := m.ts
	st := read(cmdMACHINE, "machine").(map[string]string)
	if m.ts != ts {
		t.Fatal("read moved the machine clock")
	}
	if st["streams"] != "3" || st["seed"] != "1" {
		t.Fatalf("unexpected status %v", st)
	}
	st = read(cmdMACHINE, "machine", "human").(map[string]string)
	if _, err := time.Parse(time.RFC3339Nano, st["now"]); err != nil {
		t.Fatal(err)
	}
	if _, err := cmdMACHINE(m, nil, []string{"machine", "robot"}); err != ErrSyntax {
		t.Fatalf("expected %v, got %v", ErrSyntax, err)
	}
}

func TestMachineNow(t *testing.T) {
	m := newMachine(testConfig(), t.TempDir())
	m.ts = 1000
	if m.Now().UnixNano() != 1000 || m.Now().UnixNano() != 1001 {
		t.Fatal("write time must advance")
	}
	m.read(func() (interface{}, error) {
		if m.Now().UnixNano() != 1002 || m.Now().UnixNano() != 1002 {
			t.Fatal("read time must not advance")
		}
		return nil, nil
	})
}

func TestMix(t *testing.T) {
	for _, c := range []struct {
		args []string
		want string
	}{
		{[]string{"mix", "32", "0", "0"}, "2957163356"},
		{[]string{"mix", "32", "5", "9"}, "2571480724"},
		{[]string{"mix", "64", "5", "9"}, "16814892896423141112"},
		{[]string{"mix", "64", "0", "3"}, "16609275425953610439"},
	} {
		v, err := cmdMIX(nil, nil, c.args)
		if err != nil {
			t.Fatal(err)
		}
		if v != c.want {
			t.Fatalf("%v: expected %s, got %v", c.args, c.want, v)
		}
	}
	if _, err := cmdMIX(nil, nil, []string{"mix", "32", "4294967296", "0"}); err != errOutOfRange {
		t.Fatalf("expected %v, got %v", errOutOfRange, err)
	}
	if _, err := cmdMIX(nil, nil, []string{"mix", "16", "1", "0"}); err != ErrWidth {
		t.Fatalf("expected %v, got %v", ErrWidth, err)
	}
	if _, err := cmdMIX(nil, nil, []string{"mix", "64", "1"}); err != ErrWrongNumArgs {
		t.Fatalf("expected %v, got %v", ErrWrongNumArgs, err)
	}
}

type seqSource struct{ vals []uint64 }

func (s *seqSource) Uint64() uint64 {
	v := s.vals[0]
	s.vals = s.vals[1:]
	return v
}

func (s *seqSource) Uint32() uint32 { return uint32(s.Uint64()) }

func TestTickArgs(t *testing.T) {
	m := newMachine(testConfig(), t.TempDir())
	m.ts = 500
	m.rng = snapHead{seed: 7}.rng()
	args := tickArgs(m, 400, &seqSource{[]uint64{7, 7, 8}})
	expectStrings(t, args, "tick", "501", "8")
	args = tickArgs(m, 900, &seqSource{[]uint64{math.MaxUint64}})
	expectStrings(t, args, "tick", "900", "18446744073709551615")
}

func TestParseCount(t *testing.T) {
	if n, err := parseCount("10", 10); err != nil || n != 10 {
		t.Fatalf("unexpected %d %v", n, err)
	}
	if _, err := parseCount("11", 10); err != errTooMany {
		t.Fatalf("expected %v, got %v", errTooMany, err)
	}
	for _, arg := range []string{"0", "-1", "1.5", ""} {
		if _, err := parseCount(arg, 10); err != errNotInteger {
			t.Fatalf("%q: expected %v, got %v", arg, errNotInteger, err)
		}
	}
}

func TestCommandTable(t *testing.T) {
	conf := testConfig()
	if _, ok := commandTable(conf)["cluster"]; !ok {
		t.Fatal("expected cluster command")
	}
	conf.TryErrors = true
	if _, ok := commandTable(conf)["cluster"]; ok {
		t.Fatal("unexpected cluster command")
	}
	for name, cmd := range commandTable(conf) {
		switch cmd.kind {
		case 'w', 'r', 's':
		default:
			t.Fatalf("%s: invalid kind %c", name, cmd.kind)
		}
	}
}

func BenchmarkApply(b *testing.B) {
	m := newMachine(testConfig(), b.TempDir())
	m.Apply(&raft.Log{Index: 1, Data: encodeWriteBatch([][]string{{"tick", "1", "1"}})})
	m.Apply(&raft.Log{Index: 2, Data: encodeWriteBatch([][]string{{"stream.create", "a"}})})
	data := encodeWriteBatch([][]string{{"stream.next", "a", "16"}})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m.Apply(&raft.Log{Index: uint64(i + 3), Data: data})
	}
}
