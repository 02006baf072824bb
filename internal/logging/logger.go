package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the process logger. Dev environments default to the console
// writer unless format is set explicitly.
func New(env, level, format, service string) zerolog.Logger {
	return newWithWriter(os.Stdout, env, level, format, service)
}

func newWithWriter(w io.Writer, env, level, format, service string) zerolog.Logger {
	if format == "" {
		format = "json"
		if env == "dev" {
			format = "console"
		}
	}

	out := w
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: w}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
