package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorMagenta = 35

	colorBold = 1
)

var levelTags = map[string]struct {
	tag   string
	color int
	bold  bool
}{
	"trace":     {"TRC", colorMagenta, false},
	"debug":     {"DBG", colorYellow, false},
	"notice":    {"NOT", colorYellow, false},
	"info":      {"INF", colorGreen, false},
	"warn":      {"WRN", colorRed, false},
	"error":     {"ERR", colorRed, true},
	"fatal":     {"FTL", colorRed, true},
	"emergency": {"FTL", colorRed, true},
	"panic":     {"PNC", colorRed, true},
	"critical":  {"PNC", colorRed, true},
}

func SetConsoleWriter() {
	SetConsoleOutput(os.Stderr, false)
}

// SetConsoleOutput writes human readable lines to w.
func SetConsoleOutput(w io.Writer, noColor bool) {
	log = zerolog.New(zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
		cw.Out = w
		cw.NoColor = noColor
		cw.FormatLevel = consoleFormatLevel(noColor)
		cw.TimeFormat = "15:04:05.000"
	}))
}

func SetJsonWriter() {
	log = zerolog.New(os.Stderr)
}

// colorize returns the string s wrapped in ANSI code c, unless disabled is true.
func colorize(s interface{}, c int, disabled bool) string {
	if disabled {
		return fmt.Sprintf("%s", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

func consoleFormatLevel(noColor bool) zerolog.Formatter {
	return func(i interface{}) string {
		s, ok := i.(string)
		if !ok {
			if i == nil {
				return colorize("???", colorBold, noColor)
			}
			s = fmt.Sprintf("%s", i)
		}
		t, ok := levelTags[strings.ToLower(s)]
		if !ok {
			if len(s) >= 3 {
				return strings.ToUpper(s[:3])
			}
			return colorize("???", colorBold, noColor)
		}
		out := colorize(t.tag, t.color, noColor)
		if t.bold {
			out = colorize(out, colorBold, noColor)
		}
		return out
	}
}
