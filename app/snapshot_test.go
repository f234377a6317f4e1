package app

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tidwall/gjson"
)

func testStreams() []Stream {
	return []Stream{
		{Name: "dice", Bits: 32, Seed: 7, Position: 3},
		{Name: "deck \"b\"", Bits: 64, Seed: 18446744073709551615, Position: 1 << 40},
	}
}

func TestSnapshotBodyJSON(t *testing.T) {
	body := &snapshotBody{Streams: testStreams()}
	data, err := body.marshal(nil)
	if err != nil {
		t.Fatal(err)
	}
	if n := gjson.GetBytes(data, "streams.#").Int(); n != 2 {
		t.Fatalf("expected 2 streams, got %d in %s", n, data)
	}
	if v := gjson.GetBytes(data, "streams.1.seed").Uint(); v != 18446744073709551615 {
		t.Fatalf("unexpected seed %d in %s", v, data)
	}
	if v := gjson.GetBytes(data, "streams.1.name").String(); v != "deck \"b\"" {
		t.Fatalf("unexpected name %q", v)
	}
	var out snapshotBody
	if err := out.unmarshal(data); err != nil {
		t.Fatal(err)
	}
	for i, s := range testStreams() {
		if out.Streams[i] != s {
			t.Fatalf("expected %+v, got %+v", s, out.Streams[i])
		}
	}
	// unknown fields are skipped
	err = out.unmarshal([]byte(`{"version":2,"streams":[{"name":"x",` +
		`"bits":32,"extra":{"a":[1,2]},"seed":1,"position":null}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Streams) != 1 || out.Streams[0] != (Stream{Name: "x", Bits: 32, Seed: 1}) {
		t.Fatalf("unexpected streams %+v", out.Streams)
	}
	if err := out.unmarshal([]byte(`{"streams":[{"name":}`)); err == nil {
		t.Fatal("expected error")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	head := snapHead{start: 100, ts: 200, seed: 42, position: 9}
	for _, c := range []codec{codecGzip, codecSnappy, codecLZ4, codecZstd} {
		data, err := encodeSnapshot(head, c, testStreams())
		if err != nil {
			t.Fatal(err)
		}
		if string(data[:8]) != snapSignature || codec(data[snapHeadSize]) != c {
			t.Fatalf("%s: bad framing", c)
		}
		h, streams, err := readSnapshot(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("%s: %v", c, err)
		}
		if h != head {
			t.Fatalf("%s: expected %+v, got %+v", c, head, h)
		}
		if len(streams) != 2 || streams[1] != testStreams()[1] {
			t.Fatalf("%s: unexpected streams %+v", c, streams)
		}
		r := h.rng()
		if r.Seed() != 42 || r.Position() != 9 {
			t.Fatalf("%s: unexpected generator", c)
		}
	}
}

func TestSnapshotCorrupt(t *testing.T) {
	data, err := encodeSnapshot(snapHead{seed: 1}, codecSnappy, testStreams())
	if err != nil {
		t.Fatal(err)
	}
	bad := append([]byte("NOTSQRL!"), data[8:]...)
	if _, _, err := readSnapshot(bytes.NewReader(bad)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected %v, got %v", ErrCorrupt, err)
	}
	if _, _, err := readSnapshot(bytes.NewReader(data[:20])); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected %v, got %v", ErrCorrupt, err)
	}
	bad = append([]byte(nil), data...)
	bad[snapHeadSize] = 'q'
	if _, _, err := readSnapshot(bytes.NewReader(bad)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected %v, got %v", ErrCorrupt, err)
	}
	// an lz4 body claiming an impossible size
	bad = snapHead{}.append(nil)
	bad = append(bad, byte(codecLZ4))
	bad = binary.AppendUvarint(bad, 1<<62)
	bad = append(bad, lz4Block, 0, 0, 0)
	if _, _, err := readSnapshot(bytes.NewReader(bad)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected %v, got %v", ErrCorrupt, err)
	}
	// a gzip body that is not gzip
	bad = snapHead{}.append(nil)
	bad = append(bad, byte(codecGzip))
	bad = append(bad, "not gzip"...)
	if _, _, err := readSnapshot(bytes.NewReader(bad)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected %v, got %v", ErrCorrupt, err)
	}
}

func TestReadSnapInfo(t *testing.T) {
	data, err := encodeSnapshot(snapHead{ts: 12345}, codecZstd, testStreams())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "state.bin")
	if err := os.WriteFile(path, data, 0666); err != nil {
		t.Fatal(err)
	}
	info, err := readSnapInfo("1-2-3", path)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"id":        "1-2-3",
		"timestamp": "12345",
		"codec":     "zstd",
		"streams":   "2",
	}
	for k, v := range want {
		if info[k] != v {
			t.Fatalf("%s: expected %q, got %q", k, v, info[k])
		}
	}
	if info["size"] == "" || info["size"] == "0" {
		t.Fatalf("unexpected size %q", info["size"])
	}
	if _, err := readSnapInfo("x", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error")
	}
}

func TestMachineSnapshotRestore(t *testing.T) {
	m := newMachine(testConfig(), t.TempDir())
	m.start, m.ts = 10, 20
	m.rng = snapHead{seed: 5, position: 6}.rng()
	m.streams.Create("a", 64, 1, 2)
	fsnap, err := m.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	// writes after the snapshot are not part of it
	s, _ := m.streams.Get("a")
	s.Next(5)
	m.streams.Create("b", 32, 1, 0)

	snap := fsnap.(*fsmSnap)
	data, err := encodeSnapshot(snap.head, snap.codec, snap.streams)
	if err != nil {
		t.Fatal(err)
	}
	m2 := newMachine(testConfig(), t.TempDir())
	if err := m2.Restore(nopCloser{bytes.NewReader(data)}); err != nil {
		t.Fatal(err)
	}
	if m2.start != 10 || m2.ts != 20 || m2.rng.Seed() != 5 || m2.rng.Position() != 6 {
		t.Fatalf("unexpected machine state")
	}
	if m2.streams.Len() != 1 {
		t.Fatalf("expected 1 stream, got %d", m2.streams.Len())
	}
	a, err := m2.streams.Get("a")
	if err != nil || a.Position != 2 {
		t.Fatalf("unexpected stream %+v %v", a, err)
	}
}

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }
