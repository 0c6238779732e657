// Package logger provides a singleton structured logger backed by zerolog,
// plus helpers to carry a request-scoped child logger in a context.
//
// Initialise once at startup with Init, then retrieve anywhere with Get.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger behaviour at initialisation time.
type Options struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Defaults to "info" when empty or unrecognised.
	Level string
	// Pretty switches to zerolog's console writer. Production emits JSON.
	Pretty bool
	// Output defaults to os.Stdout.
	Output io.Writer

	// Service, Env and Version are attached to every event when set.
	Service string
	Env     string
	Version string
}

var (
	mu       sync.Mutex
	once     sync.Once
	instance *zerolog.Logger
)

// Init builds the process logger on the first call and returns it. Later
// calls return the existing logger unchanged.
func Init(opts Options) zerolog.Logger {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		zerolog.DurationFieldUnit = time.Millisecond

		out := opts.Output
		if out == nil {
			out = os.Stdout
		}
		if opts.Pretty {
			out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		}

		lvl := parseLevel(opts.Level)
		zerolog.SetGlobalLevel(lvl)

		fields := zerolog.New(out).Level(lvl).With().Timestamp().Caller()
		for _, f := range [][2]string{{"service", opts.Service}, {"env", opts.Env}, {"version", opts.Version}} {
			if f[1] != "" {
				fields = fields.Str(f[0], f[1])
			}
		}
		l := fields.Logger()

		mu.Lock()
		instance = &l
		mu.Unlock()
	})
	return Get()
}

// Get returns the process logger. Panics if Init has not been called yet.
func Get() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		panic("logger: Get() called before Init()")
	}
	return *instance
}

// Reset drops the process logger so the next Init rebuilds it. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	once = sync.Once{}
	instance = nil
}

// WithRequestID returns ctx carrying a child of log tagged with the request id.
func WithRequestID(ctx context.Context, log zerolog.Logger, requestID string) context.Context {
	if requestID != "" {
		log = log.With().Str("request_id", requestID).Logger()
	}
	return log.WithContext(ctx)
}

// FromContext returns the logger stored by WithRequestID, or fallback.
func FromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l == nil || l.GetLevel() == zerolog.Disabled || l == zerolog.DefaultContextLogger {
		return fallback
	}
	return *l
}

// parseLevel accepts zerolog's level names plus "warning". Anything else,
// including "panic" and "fatal", falls back to info.
func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel || lvl > zerolog.ErrorLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
