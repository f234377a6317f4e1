package app

import (
	"testing"
	"time"
)

func TestRemoteTime(t *testing.T) {
	rt := &remoteTime{now: func() time.Time { return time.Time{} }}
	if rt.sync() {
		t.Fatal("zero reading must be ignored")
	}
	if d := time.Since(rt.Now()); d < 0 || d > time.Second {
		t.Fatalf("expected local time, off by %s", d)
	}

	future := time.Now().Add(time.Hour)
	rt.now = func() time.Time { return future }
	if !rt.sync() {
		t.Fatal("expected sync")
	}
	now := rt.Now()
	if now.Before(future) || now.Sub(future) > time.Second {
		t.Fatalf("expected remote time near %s, got %s", future, now)
	}

	// a failed resync keeps following the last remote reading
	rt.now = func() time.Time { return time.Time{} }
	rt.sync()
	if rt.Now().Before(future) {
		t.Fatal("lost the remote reading")
	}
}
