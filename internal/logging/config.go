// Package logging configures the process-wide zerolog logger from the
// resolved client settings. All diagnostics go to stderr; stdout belongs
// to command output.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel   = "MONCTL_LOG_LEVEL"
	EnvLogNoColor = "MONCTL_LOG_NOCOLOR"
)

// Options captures the logging-relevant slice of the settings store.
type Options struct {
	// Verbosity counts -v flags: 0 keeps informational output, each
	// step up adds detail.
	Verbosity int
	// Quiet suppresses informational output, leaving warnings and
	// errors.
	Quiet bool
	// Rich enables timestamps and color; the plain format is a bare
	// "level: message" line.
	Rich bool
}

// Configure installs the global logger. Environment overrides beat the
// settings-derived options so a stuck process can be inspected without
// touching its configuration.
func Configure(opts Options) {
	ConfigureWriter(opts, os.Stderr)
}

// ConfigureWriter is Configure with an explicit sink, for tests.
func ConfigureWriter(opts Options, w io.Writer) {
	level := levelFor(opts)
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}
	noColor := !opts.Rich
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		noColor = v
	}

	out := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    noColor,
		TimeFormat: time.RFC3339,
	}
	if !opts.Rich {
		out.PartsOrder = []string{zerolog.LevelFieldName, zerolog.MessageFieldName}
		out.FormatLevel = func(i any) string {
			if s, ok := i.(string); ok {
				return s + ":"
			}
			return ""
		}
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

func levelFor(opts Options) zerolog.Level {
	if opts.Quiet {
		return zerolog.WarnLevel
	}
	switch {
	case opts.Verbosity <= 0:
		return zerolog.InfoLevel
	case opts.Verbosity == 1:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
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
