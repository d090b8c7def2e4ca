// Package sysutil holds process bootstrap helpers shared by the server
// binary: log setup, build version resolution and env flag parsing.
package sysutil

import (
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps a level name to a zerolog level.
// Supported values (case-insensitive): debug, info, warn, error, fatal, panic.
// Empty or unknown values map to info.
func ParseLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLogLevel configures the global zerolog level based on a string value.
func SetLogLevel(lvl string) {
	zerolog.SetGlobalLevel(ParseLevel(lvl))
}

// ConfigureLogging sets the global level and installs a logger writing to w
// (stderr when nil) as the zerolog global. Pretty selects the console writer.
// The returned logger carries the service and version fields.
func ConfigureLogging(level string, pretty bool, w io.Writer, service, version string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	SetLogLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &l
	return l
}

// readBuildInfo is a seam for tests.
var readBuildInfo = debug.ReadBuildInfo

// Version resolves the running build version. An explicit value (usually
// set via -ldflags) wins, then APP_VERSION, then the module version recorded
// by the toolchain, then "dev".
func Version(explicit string) string {
	var mod string
	if bi, ok := readBuildInfo(); ok && bi.Main.Version != "(devel)" {
		mod = bi.Main.Version
	}
	return FirstNonEmpty(explicit, os.Getenv("APP_VERSION"), mod, "dev")
}

// IsTruthy reports whether an environment variable string should be considered true.
// Accepted values (case-insensitive): "1", "true", "yes", "y", "on".
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// FirstNonEmpty returns the first non-empty string from a variadic list.
// If all values are empty, it returns "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
