// Package config holds monctl's layered client settings: built-in
// defaults overlaid by the config file, the environment, and command-line
// arguments, in that order of precedence. One Settings value is built at
// process start and passed to whatever needs it; there is no package
// global.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

var (
	ErrParse      = errors.New("config: malformed configuration file")
	ErrBadSetting = errors.New("config: malformed setting")
)

const (
	EnvConfigFile     = "MONCTL_CONFIG_FILE"
	EnvConfigSettings = "MONCTL_CONFIG_SETTINGS"

	// DefaultConfigFile is consulted when neither --configfile nor
	// MONCTL_CONFIG_FILE name one. Its absence is not an error.
	DefaultConfigFile = "/etc/sentinel/monctl.toml"
)

// Flags is the slice of the parsed command line that feeds the settings
// overlay. The argument parser fills it; Settings consumes it.
type Flags struct {
	ConfigFile  string
	Controller  string
	Sets        []string
	Verbose     int
	Quiet       bool
	ShowVersion bool
}

// Settings is the layered (section, key) store. Values are kept as
// strings; typed access happens through the getters.
type Settings struct {
	sections map[string]map[string]string
}

// New returns a Settings seeded with the built-in defaults, the lowest
// precedence layer.
func New() *Settings {
	s := &Settings{sections: make(map[string]map[string]string)}
	for section, keys := range defaults {
		for key, value := range keys {
			s.Set(section, key, value)
		}
	}
	return s
}

// The concrete defaults are configuration, not contract: every one of
// them can be overridden by file, environment, or command line.
var defaults = map[string]map[string]string{
	"client": {
		"connect_timeout_secs": "10",
		"request_timeout_secs": "20",
		"verbosity":            "0",
		"quiet":                "false",
		"pretty_json":          "true",
		"rich_logging_format":  "false",
	},
	"controller": {
		"host":  "127.0.0.1",
		"port":  "2150",
		"topic": "sentinel/management/controller",
	},
	"ssl": {
		"enabled":        "false",
		"validate_certs": "true",
		"cafile":         "",
		"certfile":       "",
		"keyfile":        "",
	},
}

func (s *Settings) Set(section, key, value string) {
	sec, ok := s.sections[section]
	if !ok {
		sec = make(map[string]string)
		s.sections[section] = sec
	}
	sec[key] = value
}

// Get returns the current value for (section, key), or the empty string
// when no layer defines it.
func (s *Settings) Get(section, key string) string {
	return s.sections[section][key]
}

func (s *Settings) GetInt(section, key string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s.Get(section, key)))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Settings) GetBool(section, key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s.Get(section, key)))
	if err != nil {
		return false
	}
	return v
}

// UpdateFromEnv overlays settings from MONCTL_CONFIG_SETTINGS, a
// space-separated list of section.key=value entries with optional shell
// quoting around values. Malformed entries are skipped with a warning;
// the environment layer is best-effort.
func (s *Settings) UpdateFromEnv() {
	raw := os.Getenv(EnvConfigSettings)
	if strings.TrimSpace(raw) == "" {
		return
	}
	entries, err := splitSettings(raw)
	if err != nil {
		log.Warn().Err(err).Msgf("ignoring %s", EnvConfigSettings)
		return
	}
	for _, entry := range entries {
		if err := s.applySetting(entry); err != nil {
			log.Warn().Err(err).Msgf("ignoring %s entry %q", EnvConfigSettings, entry)
		}
	}
}

// UpdateFromFile overlays settings from a TOML file of sections with
// scalar keys. A missing or unreadable file keeps prior values; a file
// that is present but malformed reports ErrParse.
func (s *Settings) UpdateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Debug().Msgf("config file %s not read: %v", path, err)
		return nil
	}

	var raw map[string]map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w (%s): %v", ErrParse, path, err)
	}
	for section, keys := range raw {
		for key, value := range keys {
			str, err := stringify(value)
			if err != nil {
				return fmt.Errorf("%w (%s): %s.%s: %v", ErrParse, path, section, key, err)
			}
			s.Set(section, key, str)
		}
	}
	return nil
}

// UpdateFromFlags overlays the command-line layer, the highest
// precedence. Unlike the environment, a malformed --set entry is a hard
// error.
func (s *Settings) UpdateFromFlags(fl *Flags) error {
	for _, entry := range fl.Sets {
		if err := s.applySetting(entry); err != nil {
			return err
		}
	}
	if fl.Verbose > 0 {
		s.Set("client", "verbosity", strconv.Itoa(fl.Verbose))
	}
	if fl.Quiet {
		s.Set("client", "quiet", "true")
	}
	return nil
}

func (s *Settings) applySetting(entry string) error {
	spec, value, ok := strings.Cut(entry, "=")
	if !ok {
		return fmt.Errorf("%w: %q is not section.key=value", ErrBadSetting, entry)
	}
	section, key, found := strings.Cut(spec, ".")
	section = strings.TrimSpace(section)
	key = strings.TrimSpace(key)
	if !found || section == "" || key == "" {
		return fmt.Errorf("%w: %q is not section.key=value", ErrBadSetting, entry)
	}
	s.Set(section, key, value)
	return nil
}

// WriteTo renders the full store in config-file form, sections and keys
// sorted, so show-settings output can be fed back in as a config file.
func (s *Settings) WriteTo(w io.Writer) error {
	sections := make([]string, 0, len(s.sections))
	for section := range s.sections {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	for i, section := range sections {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "[%s]\n", section); err != nil {
			return err
		}
		keys := make([]string, 0, len(s.sections[section]))
		for key := range s.sections[section] {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if _, err := fmt.Fprintf(w, "%s = %s\n", key, renderValue(s.sections[section][key])); err != nil {
				return err
			}
		}
	}
	return nil
}

func renderValue(v string) string {
	if v == "true" || v == "false" {
		return v
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil && v != "" {
		return v
	}
	return strconv.Quote(v)
}

func stringify(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// splitSettings tokenizes a settings string the way a shell would split
// words, honoring single and double quotes inside values.
func splitSettings(raw string) ([]string, error) {
	var out []string
	var cur strings.Builder
	var quote rune
	inWord := false

	for _, r := range raw {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				out = append(out, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unbalanced quote", ErrBadSetting)
	}
	if inWord {
		out = append(out, cur.String())
	}
	return out, nil
}
