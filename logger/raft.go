package logger

import (
	"strings"

	"github.com/rs/zerolog"
)

type raftWriter struct{}

// RaftWriter is the io.Writer handed to hclog and the raft network
// transport. Each line is re-parsed into a zerolog event.
var RaftWriter = &raftWriter{}

// Write writes to the log
func (w *raftWriter) Write(p []byte) (int, error) {
	level, msg, args := parseRaftLine(string(p))
	if len(args) > 0 {
		DoCaller(level, 6, append(args, msg)...)
	} else {
		DoCaller(level, 6, msg)
	}
	return len(p), nil
}

// parseRaftLine splits an hclog line of the form
//
//	2021-08-01T10:00:00.000Z [WARN]  raft: heartbeat timeout reached: last-leader=127.0.0.1:11001 term=3
//
// into a level, a message and key/value pairs.
func parseRaftLine(line string) (zerolog.Level, string, []interface{}) {
	msg := strings.TrimSpace(line)
	level := zerolog.DebugLevel
	if i := strings.IndexByte(msg, ' '); i != -1 && !strings.HasPrefix(msg, "[") {
		msg = strings.TrimSpace(msg[i+1:])
	}
	if len(msg) > 1 && msg[0] == '[' {
		if i := strings.IndexByte(msg, ']'); i != -1 {
			switch msg[1] {
			case 'W':
				level = zerolog.WarnLevel
			case 'E':
				level = zerolog.ErrorLevel
			case 'I':
				level = zerolog.InfoLevel
			case 'T', 'V':
				level = zerolog.TraceLevel
			}
			msg = strings.TrimSpace(msg[i+1:])
		}
	}

	// "raft: message: k=v k2="quoted value""
	eq := strings.IndexByte(msg, '=')
	if eq == -1 {
		return level, msg, nil
	}
	i := strings.LastIndex(msg[:eq], ": ")
	if i == -1 {
		return level, msg, nil
	}
	fields := strings.TrimSpace(msg[i+2:])
	msg = strings.TrimSpace(msg[:i])

	var args []interface{}
	for len(fields) > 0 && len(args) < 14 {
		eq := strings.IndexByte(fields, '=')
		if eq == -1 {
			args = append(args, fields, "")
			break
		}
		name := strings.TrimSpace(fields[:eq])
		fields = strings.TrimSpace(fields[eq+1:])
		var value string
		if strings.HasPrefix(fields, `"`) {
			end := strings.IndexByte(fields[1:], '"')
			if end == -1 {
				value, fields = fields[1:], ""
			} else {
				value, fields = fields[1:end+1], fields[end+2:]
			}
		} else if sp := strings.IndexByte(fields, ' '); sp != -1 {
			value, fields = fields[:sp], fields[sp+1:]
		} else {
			value, fields = fields, ""
		}
		args = append(args, name, value)
		fields = strings.TrimSpace(fields)
	}
	return level, msg, args
}
