package app

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
)

const dialTimeout = 5 * time.Second

// RedisDial connects to another squirreld node over the Redis protocol and
// authenticates with auth when it is set.
func RedisDial(addr, auth string, tlscfg *tls.Config) (redis.Conn, error) {
	opts := []redis.DialOption{redis.DialConnectTimeout(dialTimeout)}
	if tlscfg != nil {
		opts = append(opts, redis.DialUseTLS(true), redis.DialTLSConfig(tlscfg))
	}
	conn, err := redis.Dial("tcp", addr, opts...)
	if err != nil {
		return nil, err
	}
	if auth != "" {
		res, err := redis.String(conn.Do("auth", auth))
		if err != nil {
			conn.Close()
			return nil, err
		}
		if res != "OK" {
			conn.Close()
			return nil, fmt.Errorf("expected 'OK', got '%s'", res)
		}
	}
	return conn, nil
}

// transportMarker prefixes every raft connection so the mux can
// tell it apart from Redis clients.
const transportMarker = "9f1c0b7d5e2a48a3b6d4c8e17a0f3d52"

type transportStream struct {
	net.Listener
	auth   string
	tlscfg *tls.Config
}

func (s *transportStream) Dial(addr raft.ServerAddress, timeout time.Duration) (conn net.Conn, err error) {
	if timeout <= 0 {
		if s.tlscfg != nil {
			conn, err = tls.Dial("tcp", string(addr), s.tlscfg)
		} else {
			conn, err = net.Dial("tcp", string(addr))
		}
	} else {
		if s.tlscfg != nil {
			conn, err = tls.DialWithDialer(&net.Dialer{Timeout: timeout},
				"tcp", string(addr), s.tlscfg)
		} else {
			conn, err = net.DialTimeout("tcp", string(addr), timeout)
		}
	}
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write([]byte(transportMarker)); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Write([]byte(s.auth)); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// transportInit must run before respInit so the transport route is tried
// first.
func transportInit(conf Config, tlscfg *tls.Config, mx *mux, hclogger hclog.Logger) raft.Transport {
	ln := mx.handle(transportClaim(conf.Auth))
	stream := &transportStream{Listener: ln, auth: conf.Auth, tlscfg: tlscfg}
	return raft.NewNetworkTransportWithConfig(&raft.NetworkTransportConfig{
		Stream:  stream,
		MaxPool: conf.MaxPool,
		Timeout: 10 * time.Second,
		Logger:  hclogger,
	})
}

// transportClaim takes connections that start with the transport marker
// followed by the cluster auth.
func transportClaim(auth string) claimFunc {
	prefix := transportMarker + auth
	return func(br *bufio.Reader) (int, bool) {
		if !peekPrefix(br, prefix) {
			return 0, false
		}
		return len(prefix), true
	}
}

// peekPrefix compares the first bytes of br with prefix without consuming
// them. It stops at the first mismatch, so a client that sends fewer bytes
// than the prefix is never waited on.
func peekPrefix(br *bufio.Reader, prefix string) bool {
	for i := 0; i < len(prefix); i++ {
		b, err := br.Peek(i + 1)
		if err != nil || b[i] != prefix[i] {
			return false
		}
	}
	return true
}
