package app

import (
	"bytes"
	"testing"
	"time"

	"github.com/hashicorp/raft"
)

func TestLogEncoding(t *testing.T) {
	in := &raft.Log{
		Index:      42,
		Term:       7,
		Type:       raft.LogConfiguration,
		Data:       []byte("data"),
		Extensions: []byte("ext"),
		AppendedAt: time.Unix(1700000000, 123),
	}
	b := make([]byte, encodedLogSize(in))
	encodeLog(b, in)
	out := &raft.Log{Data: []byte("stale stale stale")}
	if err := decodeLog(b, out); err != nil {
		t.Fatal(err)
	}
	if out.Index != 42 || out.Term != 7 || out.Type != raft.LogConfiguration ||
		!bytes.Equal(out.Data, in.Data) || !bytes.Equal(out.Extensions, in.Extensions) ||
		!out.AppendedAt.Equal(in.AppendedAt) {
		t.Fatalf("unexpected log %+v", out)
	}
	if err := decodeLog(b[:10], out); err == nil {
		t.Fatal("expected error")
	}
	if err := decodeLog(b[:len(b)-1], out); err == nil {
		t.Fatal("expected error")
	}
}

func TestRaftStore(t *testing.T) {
	dir := t.TempDir()
	s, err := openRaftStore(dir, false, 0755)
	if err != nil {
		t.Fatal(err)
	}
	if first, _ := s.FirstIndex(); first != 0 {
		t.Fatalf("expected empty log, got first %d", first)
	}
	var logs []*raft.Log
	for i := uint64(1); i <= 10; i++ {
		logs = append(logs, &raft.Log{Index: i, Term: 1, Data: []byte{byte(i)}})
	}
	if err := s.StoreLogs(logs[:9]); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreLog(logs[9]); err != nil {
		t.Fatal(err)
	}
	var l raft.Log
	if err := s.GetLog(5, &l); err != nil {
		t.Fatal(err)
	}
	if l.Index != 5 || !bytes.Equal(l.Data, []byte{5}) {
		t.Fatalf("unexpected log %+v", l)
	}
	if err := s.GetLog(11, &l); err != raft.ErrLogNotFound {
		t.Fatalf("expected %v, got %v", raft.ErrLogNotFound, err)
	}

	// compaction from the front, then a conflict truncation at the back
	if err := s.DeleteRange(1, 4); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteRange(9, 10); err != nil {
		t.Fatal(err)
	}
	first, _ := s.FirstIndex()
	last, _ := s.LastIndex()
	if first != 5 || last != 8 {
		t.Fatalf("expected 5..8, got %d..%d", first, last)
	}
	if err := s.GetLog(3, &l); err != raft.ErrLogNotFound {
		t.Fatalf("expected %v, got %v", raft.ErrLogNotFound, err)
	}

	if err := s.SetUint64([]byte("CurrentTerm"), 9); err != nil {
		t.Fatal(err)
	}
	if err := s.Set([]byte("LastVoteCand"), []byte("node-2")); err != nil {
		t.Fatal(err)
	}
	if v, err := s.Get([]byte("missing")); err != nil || v != nil {
		t.Fatalf("expected nil, got %q %v", v, err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = openRaftStore(dir, true, 0755)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	first, _ = s.FirstIndex()
	last, _ = s.LastIndex()
	if first != 5 || last != 8 {
		t.Fatalf("expected 5..8 after reopen, got %d..%d", first, last)
	}
	if v, err := s.GetUint64([]byte("CurrentTerm")); err != nil || v != 9 {
		t.Fatalf("expected 9, got %d %v", v, err)
	}
	if v, err := s.Get([]byte("LastVoteCand")); err != nil || string(v) != "node-2" {
		t.Fatalf("expected node-2, got %q %v", v, err)
	}
}
