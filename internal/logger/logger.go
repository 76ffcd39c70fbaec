// Package logger provides the process-wide structured logger.
//
// Components that own a logger receive an hclog.Logger and derive named
// children from it. Code that has no logger of its own (HTTP handlers,
// middleware, main) logs through the package-level helpers, which take a
// message followed by alternating key/value pairs.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu   sync.RWMutex
	base = newLogger(os.Stderr, "info", "text")
)

// Options controls how the global logger renders output.
type Options struct {
	Level  string
	Format string // "json" or "text"
	Output io.Writer
}

func newLogger(out io.Writer, level, format string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "videoclipper",
		Level:      hclog.LevelFromString(level),
		Output:     out,
		JSONFormat: strings.EqualFold(format, "json"),
	})
}

// Configure replaces the global logger.
func Configure(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := opts.Level
	if level == "" {
		level = "info"
	}

	mu.Lock()
	base = newLogger(out, level, opts.Format)
	mu.Unlock()
}

// SetLevel changes the level of the global logger in place.
func SetLevel(level string) {
	mu.RLock()
	defer mu.RUnlock()
	base.SetLevel(hclog.LevelFromString(level))
}

// L returns the global logger.
func L() hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Named returns a child of the global logger.
func Named(name string) hclog.Logger {
	return L().Named(name)
}

// Info logs informational messages
func Info(msg string, args ...interface{}) {
	L().Info(msg, args...)
}

// Warn logs warning messages
func Warn(msg string, args ...interface{}) {
	L().Warn(msg, args...)
}

// Error logs error messages
func Error(msg string, args ...interface{}) {
	L().Error(msg, args...)
}

// Debug logs debug messages
func Debug(msg string, args ...interface{}) {
	L().Debug(msg, args...)
}
