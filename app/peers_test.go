package app

import (
	"errors"
	"testing"
	"time"
)

func TestPeerTable(t *testing.T) {
	var pt peerTable
	now := time.Unix(1000, 0)
	if _, _, ok := pt.find("10.0.0.1:7481"); ok {
		t.Fatal("expected empty table")
	}
	if pt.record("10.0.0.1:7481", "10.0.0.1:7481", nil, now) {
		t.Fatal("a successful call cannot lose the member")
	}
	pt.record("node2:7481", "10.0.0.2:7481", nil, now)

	addr, p, ok := pt.find("10.0.0.2:7481")
	if !ok || addr != "node2:7481" || !p.reachable() || !p.seen.Equal(now) {
		t.Fatalf("unexpected %q %+v %v", addr, p, ok)
	}
	addr, _, ok = pt.find("node2:7481")
	if !ok || addr != "node2:7481" {
		t.Fatalf("unexpected %q %v", addr, ok)
	}

	down := errors.New("connection refused")
	if !pt.record("node2:7481", "", down, now.Add(time.Second)) {
		t.Fatal("expected the first failure to lose the member")
	}
	if pt.record("node2:7481", "", down, now.Add(2*time.Second)) {
		t.Fatal("expected only the first failure to be reported")
	}
	_, p, _ = pt.find("node2:7481")
	if p.reachable() || p.failures != 2 || p.remote != "10.0.0.2:7481" {
		t.Fatalf("unexpected %+v", p)
	}
	pt.record("node2:7481", "10.0.0.2:7481", nil, now.Add(3*time.Second))
	if _, p, _ = pt.find("node2:7481"); !p.reachable() {
		t.Fatalf("expected reachable, got %+v", p)
	}

	// never answered
	pt.record("node3:7481", "", down, now)
	if _, p, _ = pt.find("node3:7481"); p.reachable() {
		t.Fatal("expected unreachable")
	}
}

func TestServerEntry(t *testing.T) {
	e := serverEntry{id: "1", address: "127.0.0.1:7481"}
	host, port := e.hostPort()
	if host != "127.0.0.1" || port != 7481 {
		t.Fatalf("unexpected %s %d", host, port)
	}
	if host, port = (serverEntry{address: "nohost"}).hostPort(); host != "" || port != 0 {
		t.Fatalf("unexpected %s %d", host, port)
	}
	id := e.clusterID()
	if len(id) != 40 || id != (serverEntry{id: "1"}).clusterID() {
		t.Fatalf("unexpected id %q", id)
	}
	if id == (serverEntry{id: "2"}).clusterID() {
		t.Fatal("expected distinct ids")
	}
}
