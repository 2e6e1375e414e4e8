// Package logging configures the process-wide zerolog logger and exposes
// it to every other package via L(). Configuration happens once, guarded
// by sync.Once, and is driven by a Profile plus environment overrides.
package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "POLYCALL_LOG_LEVEL"
	EnvLogTimestamp = "POLYCALL_LOG_TIMESTAMP"
	EnvLogNoColor   = "POLYCALL_LOG_NOCOLOR"
	EnvLogBypass    = "POLYCALL_LOG_BYPASS"
)

// Profile selects a baseline configuration before environment overrides
// are applied.
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

type config struct {
	level     zerolog.Level
	timestamp bool
	noColor   bool
	bypass    bool
}

var (
	configureOnce sync.Once
	logger        zerolog.Logger
)

// ConfigureRuntime configures the logger for normal process operation:
// info level, human-readable console output with timestamps.
func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

// ConfigureTests configures the logger for `go test` runs: debug level,
// no timestamps, so fixtures compare cleanly.
func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure applies profile once per process; later calls, including with
// a different profile, are no-ops. Use L() afterward to obtain the
// configured logger.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)
		logger = build(cfg)
	})
}

// L returns the process-wide logger. It implicitly configures with
// ProfileRuntime if nothing has called Configure yet, so packages that
// import logging don't need to sequence their own init against main's.
func L() *zerolog.Logger {
	ConfigureRuntime()
	return &logger
}

func build(cfg config) zerolog.Logger {
	if cfg.bypass {
		return zerolog.Nop()
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: cfg.noColor}
	l := zerolog.New(writer).Level(cfg.level)
	if cfg.timestamp {
		l = l.With().Timestamp().Logger()
	}
	return l
}

func defaultConfig(profile Profile) config {
	switch profile {
	case ProfileTest:
		return config{level: zerolog.DebugLevel, timestamp: false, noColor: true}
	default:
		return config{level: zerolog.InfoLevel, timestamp: true}
	}
}

func applyEnvOverrides(cfg *config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.noColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogBypass)); ok {
		cfg.bypass = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
