package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/raft"
)

// ErrSyntax is returned where there was a syntax error
var ErrSyntax = errors.New("syntax error")

// ErrNotLeader is returned when the raft leader is unknown
var ErrNotLeader = raft.ErrNotLeader

// ErrWrongNumArgs is returned when the arg count is wrong
var ErrWrongNumArgs = errors.New("wrong number of arguments")

// ErrUnauthorized is returned when a client connection has not been authorized
var ErrUnauthorized = errors.New("unauthorized")

// ErrUnknownCommand is returned when a command is not known
var ErrUnknownCommand = errors.New("unknown command")

// ErrInvalid is returned when an operation has invalid arguments or options
var ErrInvalid = errors.New("invalid")

// ErrCorrupt is returned when a data is invalid or corrupt
var ErrCorrupt = errors.New("corrupt")

// ErrStreamExists is returned when creating a stream under a taken name
var ErrStreamExists = errors.New("stream already exists")

// ErrStreamNotFound is returned when a named stream does not exist
var ErrStreamNotFound = errors.New("no such stream")

// ErrWidth is returned for a stream width other than 32 or 64
var ErrWidth = errors.New("stream width must be 32 or 64")

var errOutOfRange = errors.New("value out of range for stream width")

var errNotInteger = errors.New("value is not an integer or out of range")

var errTooMany = errors.New("count exceeds the per command limit")

var errWrongNumArgsRaft = errors.New("wrong number of arguments, try RAFT HELP")

var errWrongNumArgsCluster = errors.New("wrong number of arguments, " +
	"try CLUSTER HELP")

func errUnknownRaftCommand(args []string) error {
	return fmt.Errorf("unknown raft command '%s', try RAFT HELP",
		strings.Join(args, " "))
}

func errUnknownClusterCommand(args []string) error {
	return fmt.Errorf("unknown subcommand or wrong number of arguments for "+
		"'%s', try CLUSTER HELP", strings.Join(args, " "))
}
