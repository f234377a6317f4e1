package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/rs/zerolog"
)

var (
	log zerolog.Logger

	DurationAsString  = true
	RawFieldName      = "raw"
	DataFieldName     = "data"
	DurationFieldName = "dur"
	ErrorsFieldName   = "errors"

	EmptyMessage = ""
)

// Builder adds arbitrary fields to an event. It can be passed anywhere in
// the args of the log functions.
type Builder func(event *zerolog.Event)

// JSON tags a byte slice as being a JSON document.
type JSON []byte

func Log() *zerolog.Logger {
	return &log
}

func init() {
	setCallerFormatter()

	// GCP cloud logging severity names
	zerolog.LevelFieldName = "severity"
	zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
		switch l {
		case zerolog.DebugLevel:
			return "DEBUG"
		case zerolog.InfoLevel:
			return "INFO"
		case zerolog.NoLevel:
			return "NOTICE"
		case zerolog.WarnLevel:
			return "WARN"
		case zerolog.ErrorLevel:
			return "ERROR"
		case zerolog.PanicLevel:
			return "CRITICAL"
		case zerolog.FatalLevel:
			return "EMERGENCY"
		default:
			return "DEFAULT"
		}
	}

	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	SetConsoleWriter()
}

func setCallerFormatter() {
	_, file, _, _ := runtime.Caller(0)
	prefix := path.Dir(path.Dir(file))
	if len(prefix) > 0 && prefix[len(prefix)-1] != os.PathSeparator {
		prefix += "/"
	}
	zerolog.CallerMarshalFunc = func(file string, line int) string {
		if i := strings.Index(file, prefix); prefix != "" && i > -1 {
			file = file[i+len(prefix):]
		}
		return fmt.Sprintf("%s:%d", file, line)
	}
}

func SetWriter(w io.Writer) {
	log = zerolog.New(w)
}

func SetLogger(logger zerolog.Logger) {
	log = logger
}

// ParseLevel maps the -l flag onto the zerolog global level and the matching
// hclog level used for raft.
func ParseLevel(s string) (zerolog.Level, hclog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel, hclog.Debug, nil
	case "verbose", "verb":
		return zerolog.TraceLevel, hclog.Trace, nil
	case "notice", "info":
		return zerolog.InfoLevel, hclog.Info, nil
	case "warning", "warn":
		return zerolog.WarnLevel, hclog.Warn, nil
	case "quiet", "silent":
		return zerolog.Disabled, hclog.Off, nil
	}
	return zerolog.NoLevel, hclog.NoLevel, fmt.Errorf("invalid log level: %s", s)
}

// SetLevel sets the global level from a -l flag value.
func SetLevel(s string) error {
	level, _, err := ParseLevel(s)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// Stream attaches the state of a random stream to an event.
func Stream(name string, bits int, seed, position uint64) Builder {
	return func(event *zerolog.Event) {
		event.Str("stream", name).
			Int("bits", bits).
			Uint64("seed", seed).
			Uint64("position", position)
	}
}

func appendValue(event *zerolog.Event, key string, value interface{}) {
	switch v := value.(type) {
	case string:
		event.Str(key, v)
	case []byte:
		event.Bytes(key, v)
	case bool:
		event.Bool(key, v)
	case int:
		event.Int(key, v)
	case int32:
		event.Int32(key, v)
	case int64:
		event.Int64(key, v)
	case uint:
		event.Uint(key, v)
	case uint32:
		event.Uint32(key, v)
	case uint64:
		event.Uint64(key, v)
	case float64:
		event.Float64(key, v)
	case time.Time:
		event.Time(key, v)
	case time.Duration:
		if DurationAsString {
			event.Str(key, v.String())
		} else {
			event.Dur(key, v)
		}
	case error:
		event.AnErr(key, v)
	case JSON:
		event.RawJSON(key, v)
	case json.Marshaler:
		b, err := v.MarshalJSON()
		if err != nil {
			event.AnErr(key, err)
		} else {
			event.RawJSON(key, b)
		}
	case Builder:
		v(event)
	default:
		event.Interface(key, v)
	}
}

// appendBare handles an arg that is not in key position of a pair.
func appendBare(event *zerolog.Event, arg interface{}) {
	switch v := arg.(type) {
	case error:
		event.Err(v)
	case []error:
		event.Errs(ErrorsFieldName, v)
	case time.Duration:
		appendValue(event, DurationFieldName, v)
	case []byte:
		event.Bytes(RawFieldName, v)
	case JSON:
		event.RawJSON(DataFieldName, v)
	case Builder:
		v(event)
	case json.Marshaler:
		appendValue(event, DataFieldName, v)
	}
}

// doLog turns loosely typed args into an event. A string containing '%' is
// a format template that consumes the rest of the args, a trailing string
// is the message, and other strings are keys for the value that follows.
func doLog(skip int, event *zerolog.Event, args []interface{}) {
	if event == nil {
		return
	}
	event.Timestamp().Caller(skip)
	for i := 0; i < len(args); i++ {
		key, ok := args[i].(string)
		if !ok {
			appendBare(event, args[i])
			continue
		}
		if strings.Contains(key, "%") {
			event.Msgf(key, args[i+1:]...)
			return
		}
		if i+1 == len(args) {
			event.Msg(key)
			return
		}
		i++
		appendValue(event, key, args[i])
	}
	event.Msg(EmptyMessage)
}

func CustomLevel(level string) *zerolog.Event {
	l := log.Level(zerolog.NoLevel)
	return l.Log().Str(zerolog.LevelFieldName, level)
}

func Do(level zerolog.Level, args ...interface{}) {
	doLog(2, log.WithLevel(level), args)
}

func DoCaller(level zerolog.Level, skip int, args ...interface{}) {
	doLog(skip, log.WithLevel(level), args)
}

// Trace logs a message at level Trace on the standard logger.
func Trace(args ...interface{}) {
	doLog(2, log.Trace(), args)
}

// Debug logs a message at level Debug on the standard logger.
func Debug(args ...interface{}) {
	doLog(2, log.Debug(), args)
}

func DebugEvent() *zerolog.Event {
	return log.Debug()
}

// Info logs a message at level Info on the standard logger.
func Info(args ...interface{}) {
	doLog(2, log.Info(), args)
}

// Print is Info.
func Print(args ...interface{}) {
	doLog(2, log.Info(), args)
}

// Notice logs a message at level Notice on the standard logger.
func Notice(args ...interface{}) {
	doLog(2, CustomLevel("NOTICE"), args)
}

// Warn logs a message at level Warn on the standard logger.
func Warn(args ...interface{}) {
	doLog(2, log.Warn(), args)
}

// WarnErr logs a message with an error at level Warn.
func WarnErr(err error, args ...interface{}) {
	doLog(2, log.Warn().Err(err), args)
}

// Error logs a message at level Error on the standard logger.
func Error(err error, args ...interface{}) {
	doLog(2, log.Error().Err(err), args)
}

// Panic logs a message at level Panic and then panics.
func Panic(err error, args ...interface{}) {
	doLog(2, log.Panic().Err(err), args)
}

// Fatal logs a message at level Fatal then the process will exit with
// status set to 1.
func Fatal(err error, args ...interface{}) {
	doLog(2, log.Fatal().Err(err), args)
}
