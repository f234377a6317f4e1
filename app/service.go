package app

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/raft"
)

// reply is the eventual result of a command.
type reply interface {
	wait() (interface{}, error)
}

// done is a reply that is known right away.
type done struct {
	v   interface{}
	err error
}

func (d done) wait() (interface{}, error) { return d.v, d.err }

// writeRequest is a write command waiting for its raft entry. The applier
// fills in the result and releases the waiters.
type writeRequest struct {
	args []string
	resp interface{}
	err  error
	wg   sync.WaitGroup
}

func (w *writeRequest) wait() (interface{}, error) {
	w.wg.Wait()
	return w.resp, w.err
}

// submit queues a write command for runWriteApplier.
func (m *machine) submit(args []string) *writeRequest {
	w := &writeRequest{args: args}
	w.wg.Add(1)
	m.wrC <- w
	return w
}

type readMode int8

const (
	readDefault readMode = iota // follow --openreads
	readOpen                    // READONLY: followers may answer
	readLeader                  // READWRITE: leader only
)

// session is what the service keeps per client connection.
type session struct {
	authorized bool
	reads      readMode
	// lastWrite is the newest write of this session. Reads and system
	// commands wait for it so a client always observes its own draws.
	lastWrite *writeRequest
}

func (sess *session) settle() {
	if sess.lastWrite != nil {
		sess.lastWrite.wait()
		sess.lastWrite = nil
	}
}

// backend runs commands on behalf of client sessions.
type backend interface {
	authorize(password string) error
	exec(sess *session, args []string) reply
}

type service struct {
	m    *machine
	ra   *raftWrap
	auth string
}

func newService(m *machine, ra *raftWrap, auth string) *service {
	return &service{m: m, ra: ra, auth: auth}
}

func (s *service) authorize(password string) error {
	if password != s.auth {
		return ErrUnauthorized
	}
	return nil
}

// exec runs one command for sess.
//   - Write commands are queued for the raft log and answered once applied.
//     They are the only commands that move stream positions or the machine
//     generator.
//   - Read commands run locally against the applied state once readable
//     allows it. They draw from copies and never move a position.
//   - System commands run locally and touch no replicated state.
func (s *service) exec(sess *session, args []string) reply {
	if len(args) == 0 {
		return done{}
	}
	name := strings.ToLower(args[0])
	cmd, ok := s.m.commands[name]
	if !ok || name == "tick" {
		// ticks only come from runTicker
		return done{err: ErrUnknownCommand}
	}
	if cmd.kind == 'w' {
		w := s.m.submit(args)
		sess.lastWrite = w
		return w
	}
	sess.settle()
	var v interface{}
	var err error
	if cmd.kind == 'r' {
		v, err = s.m.read(func() (interface{}, error) {
			if err := s.readable(sess.reads); err != nil {
				return nil, err
			}
			return cmd.fn(s.m, s.ra, args)
		})
	} else {
		v, err = cmd.fn(s.m, s.ra, args)
	}
	return done{v, errRaftConvert(s.ra, err)}
}

// readable reports whether this server may answer reads. An open read needs
// the log to be loaded. Otherwise the server must be the leader and have
// applied one of its own ticks, which orders the read after every write
// acknowledged so far.
func (s *service) readable(mode readMode) error {
	open := mode == readOpen || (mode == readDefault && s.m.openReads)
	if open {
		if atomic.LoadInt32(&s.m.logLoaded) == 0 {
			return ErrNotLeader
		}
		return nil
	}
	if s.ra.State() != raft.Leader || s.m.tickedIndex == 0 {
		return ErrNotLeader
	}
	return nil
}

// read runs fn with the machine locked for reading. Rand hands out a copy
// of the machine generator while any reader is active.
func (m *machine) read(fn func() (interface{}, error)) (interface{}, error) {
	m.mu.RLock()
	atomic.AddInt32(&m.readers, 1)
	defer func() {
		atomic.AddInt32(&m.readers, -1)
		m.mu.RUnlock()
	}()
	return fn()
}
