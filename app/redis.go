package app

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/moontrade/squirrel/logger"
	"github.com/tidwall/redcon"
)

// respInit serves RESP clients on every connection the raft transport did
// not claim.
func respInit(conf Config, mx *mux, m *machine, ra *raftWrap) {
	ln := mx.handle(func(*bufio.Reader) (int, bool) { return 0, true })
	go serveRESP(newService(m, ra, conf.Auth), ln)
	if conf.InitRunQuit {
		logger.Notice("init run quit")
		os.Exit(0)
	}
}

// connCommand is answered by the connection itself. Commands marked
// beforeAuth are accepted from clients that have not authenticated.
type connCommand struct {
	beforeAuth bool
	fn         func(be backend, sess *session, args []string) (interface{}, error)
}

var connCommands = map[string]connCommand{
	"auth":      {true, cmdAUTH},
	"quit":      {true, cmdQUIT},
	"ping":      {false, cmdPING},
	"echo":      {false, cmdECHO},
	"readonly":  {false, cmdREADONLY},
	"readwrite": {false, cmdREADWRITE},
	"shutdown":  {false, cmdSHUTDOWN},
}

// quitReply closes the connection once it has been written.
type quitReply struct{}

func cmdAUTH(be backend, sess *session, args []string) (interface{}, error) {
	if len(args) != 2 {
		return nil, ErrWrongNumArgs
	}
	if err := be.authorize(args[1]); err != nil {
		sess.authorized = false
		return nil, err
	}
	sess.authorized = true
	return redcon.SimpleString("OK"), nil
}

func cmdQUIT(be backend, sess *session, args []string) (interface{}, error) {
	return quitReply{}, nil
}

func cmdPING(be backend, sess *session, args []string) (interface{}, error) {
	switch len(args) {
	case 1:
		return redcon.SimpleString("PONG"), nil
	case 2:
		return args[1], nil
	}
	return nil, ErrWrongNumArgs
}

func cmdECHO(be backend, sess *session, args []string) (interface{}, error) {
	if len(args) != 2 {
		return nil, ErrWrongNumArgs
	}
	return args[1], nil
}

// READONLY lets followers answer this connection's reads.
func cmdREADONLY(be backend, sess *session, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongNumArgs
	}
	sess.reads = readOpen
	return redcon.SimpleString("OK"), nil
}

// READWRITE sends this connection's reads to the leader only.
func cmdREADWRITE(be backend, sess *session, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongNumArgs
	}
	sess.reads = readLeader
	return redcon.SimpleString("OK"), nil
}

func cmdSHUTDOWN(be backend, sess *session, args []string) (interface{}, error) {
	logger.Notice("shutdown requested by client")
	os.Exit(0)
	return nil, nil
}

// dispatch routes one command to the connection or to the backend.
func dispatch(be backend, sess *session, args []string) reply {
	cc, local := connCommands[args[0]]
	if !sess.authorized && !(local && cc.beforeAuth) {
		if err := be.authorize(""); err != nil {
			return done{err: err}
		}
		sess.authorized = true
	}
	if local {
		v, err := cc.fn(be, sess, args)
		return done{v, err}
	}
	return be.exec(sess, args)
}

func commandArgs(cmd redcon.Command) []string {
	args := make([]string, len(cmd.Args))
	for i, arg := range cmd.Args {
		args[i] = string(arg)
	}
	args[0] = strings.ToLower(args[0])
	return args
}

// serveRESP runs the RESP server on ln. A pipeline is dispatched as a
// whole before any reply is awaited, so its writes share raft entries.
func serveRESP(be backend, ln net.Listener) {
	logger.Fatal(redcon.Serve(ln,
		func(conn redcon.Conn, cmd redcon.Command) {
			sess := conn.Context().(*session)
			cmds := append([]redcon.Command{cmd}, conn.ReadPipeline()...)
			names := make([]string, 0, len(cmds))
			replies := make([]reply, 0, len(cmds))
			for _, cmd := range cmds {
				args := commandArgs(cmd)
				names = append(names, args[0])
				replies = append(replies, dispatch(be, sess, args))
				if args[0] == "quit" {
					break
				}
			}
			for i, r := range replies {
				v, err := r.wait()
				switch {
				case err == ErrUnknownCommand:
					conn.WriteAny(fmt.Errorf("%s '%s'", err, names[i]))
				case err != nil:
					conn.WriteAny(err)
				default:
					if _, ok := v.(quitReply); ok {
						conn.WriteString("OK")
						conn.Close()
						return
					}
					conn.WriteAny(v)
				}
			}
		},
		func(conn redcon.Conn) bool {
			conn.SetContext(new(session))
			return true
		},
		func(conn redcon.Conn, err error) {
			if err != nil {
				logger.Trace("addr", conn.RemoteAddr(), "err", err,
					"connection closed")
			}
		}),
	)
}
