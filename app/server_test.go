package app

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
)

func TestMuxRoutes(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	mx := newMux(ln)
	raftLn := mx.handle(transportClaim("pw"))
	respLn := mx.handle(func(*bufio.Reader) (int, bool) { return 0, true })
	go mx.serve()
	defer ln.Close()

	send := func(s string) net.Conn {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			t.Fatal(err)
		}
		if _, err := c.Write([]byte(s)); err != nil {
			t.Fatal(err)
		}
		return c
	}
	recv := func(l net.Listener, n int) string {
		c, err := l.Accept()
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
		b := make([]byte, n)
		if _, err := io.ReadFull(c, b); err != nil {
			t.Fatal(err)
		}
		return string(b)
	}

	c := send(transportMarker + "pw" + "hello")
	defer c.Close()
	if s := recv(raftLn, 5); s != "hello" {
		t.Fatalf("expected %q, got %q", "hello", s)
	}

	ping := "*1\r\n$4\r\nPING\r\n"
	c = send(ping)
	defer c.Close()
	if s := recv(respLn, len(ping)); s != ping {
		t.Fatalf("expected %q, got %q", ping, s)
	}

	// the wrong password is not a raft connection
	wrong := transportMarker + "xx" + "hello"
	c = send(wrong)
	defer c.Close()
	if s := recv(respLn, len(wrong)); s != wrong {
		t.Fatalf("expected %q, got %q", wrong, s)
	}

	if raftLn.Addr().String() != ln.Addr().String() {
		t.Fatalf("unexpected route address %s", raftLn.Addr())
	}
	raftLn.Close()
	raftLn.Close()
	if _, err := raftLn.Accept(); !errors.Is(err, net.ErrClosed) {
		t.Fatalf("expected %v, got %v", net.ErrClosed, err)
	}
}

func TestMuxServeClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	mx := newMux(ln)
	errc := make(chan error, 1)
	go func() { errc <- mx.serve() }()
	ln.Close()
	if err := <-errc; !errors.Is(err, net.ErrClosed) {
		t.Fatalf("expected %v, got %v", net.ErrClosed, err)
	}
}

func TestPeekPrefix(t *testing.T) {
	for _, tc := range []struct {
		input, prefix string
		ok            bool
	}{
		{"abcdef", "abc", true},
		{"abc", "abc", true},
		{"abc", "", true},
		{"abd", "abc", false},
		{"ab", "abc", false},
		{"", "abc", false},
		{"xbc", "abc", false},
	} {
		br := bufio.NewReader(strings.NewReader(tc.input))
		if ok := peekPrefix(br, tc.prefix); ok != tc.ok {
			t.Fatalf("%q %q: expected %v", tc.input, tc.prefix, tc.ok)
		}
		// nothing is consumed
		rest, _ := io.ReadAll(br)
		if string(rest) != tc.input {
			t.Fatalf("%q: consumed input, %q left", tc.input, rest)
		}
	}
}
