package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monctl.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	s := New()
	if got, ok := s.GetInt("client", "request_timeout_secs"); !ok || got != 20 {
		t.Fatalf("unexpected request timeout: %d ok=%v", got, ok)
	}
	if got, ok := s.GetInt("controller", "port"); !ok || got != 2150 {
		t.Fatalf("unexpected controller port: %d ok=%v", got, ok)
	}
	if s.GetBool("ssl", "enabled") {
		t.Fatalf("ssl enabled by default")
	}
}

func TestUpdateFromFile(t *testing.T) {
	path := writeFile(t, "[client]\nrequest_timeout_secs = 10\nverbosity = 2\n")
	s := New()
	if err := s.UpdateFromFile(path); err != nil {
		t.Fatalf("update from file: %v", err)
	}
	if got, _ := s.GetInt("client", "request_timeout_secs"); got != 10 {
		t.Fatalf("file layer not applied: %d", got)
	}
	// Keys the file does not mention keep their prior values.
	if got, _ := s.GetInt("controller", "port"); got != 2150 {
		t.Fatalf("unrelated key changed: %d", got)
	}
}

func TestUpdateFromFileAbsentKeepsValues(t *testing.T) {
	s := New()
	if err := s.UpdateFromFile(filepath.Join(t.TempDir(), "nope.toml")); err != nil {
		t.Fatalf("absent file must not fail: %v", err)
	}
	if got, _ := s.GetInt("client", "request_timeout_secs"); got != 20 {
		t.Fatalf("defaults lost: %d", got)
	}
}

func TestUpdateFromFileMalformed(t *testing.T) {
	path := writeFile(t, "[client\nrequest_timeout_secs : 10\n")
	s := New()
	if err := s.UpdateFromFile(path); !errors.Is(err, ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestUpdateFromEnv(t *testing.T) {
	t.Setenv(EnvConfigSettings, `client.request_timeout_secs=23 server.FOO="1 2 3"`)
	s := New()
	s.UpdateFromEnv()
	if got, _ := s.GetInt("client", "request_timeout_secs"); got != 23 {
		t.Fatalf("env layer not applied: %d", got)
	}
	if got := s.Get("server", "FOO"); got != "1 2 3" {
		t.Fatalf("quoted env value mangled: %q", got)
	}
}

func TestUpdateFromEnvSkipsMalformedEntries(t *testing.T) {
	t.Setenv(EnvConfigSettings, "not-a-setting client.verbosity=3")
	s := New()
	s.UpdateFromEnv()
	if got, _ := s.GetInt("client", "verbosity"); got != 3 {
		t.Fatalf("valid entry dropped with the bad one: %d", got)
	}
}

func TestUpdateFromFlags(t *testing.T) {
	s := New()
	fl := &Flags{
		Sets:    []string{"client.request_timeout_secs=42", "server.FOO=1 2 3"},
		Verbose: 2,
	}
	if err := s.UpdateFromFlags(fl); err != nil {
		t.Fatalf("update from flags: %v", err)
	}
	if got, _ := s.GetInt("client", "request_timeout_secs"); got != 42 {
		t.Fatalf("flag layer not applied: %d", got)
	}
	if got := s.Get("server", "FOO"); got != "1 2 3" {
		t.Fatalf("unexpected FOO: %q", got)
	}
	if got, _ := s.GetInt("client", "verbosity"); got != 2 {
		t.Fatalf("verbosity not applied: %d", got)
	}
}

func TestUpdateFromFlagsBadSet(t *testing.T) {
	s := New()
	if err := s.UpdateFromFlags(&Flags{Sets: []string{"no-dot=1"}}); !errors.Is(err, ErrBadSetting) {
		t.Fatalf("expected bad setting error, got %v", err)
	}
	if err := s.UpdateFromFlags(&Flags{Sets: []string{"client.key"}}); !errors.Is(err, ErrBadSetting) {
		t.Fatalf("expected bad setting error, got %v", err)
	}
}

func TestLayerPrecedence(t *testing.T) {
	// File says false, environment says true, command line is silent:
	// the environment wins because it layers later.
	path := writeFile(t, "[client]\nquiet = false\n")
	t.Setenv(EnvConfigSettings, "client.quiet=true")

	s := New()
	if err := s.UpdateFromFile(path); err != nil {
		t.Fatalf("file layer: %v", err)
	}
	s.UpdateFromEnv()
	if err := s.UpdateFromFlags(&Flags{}); err != nil {
		t.Fatalf("flag layer: %v", err)
	}
	if !s.GetBool("client", "quiet") {
		t.Fatalf("environment did not override file")
	}

	// A --set on top of everything wins again.
	if err := s.UpdateFromFlags(&Flags{Sets: []string{"client.quiet=false"}}); err != nil {
		t.Fatalf("flag layer: %v", err)
	}
	if s.GetBool("client", "quiet") {
		t.Fatalf("command line did not override environment")
	}
}

func TestWriteToRoundTrips(t *testing.T) {
	s := New()
	s.Set("server", "FOO", "1 2 3")

	var buf strings.Builder
	if err := s.WriteTo(&buf); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	rendered := buf.String()
	if !strings.Contains(rendered, "[controller]") {
		t.Fatalf("missing controller section:\n%s", rendered)
	}

	// The rendering is itself a valid config file.
	path := writeFile(t, rendered)
	reread := New()
	if err := reread.UpdateFromFile(path); err != nil {
		t.Fatalf("reread rendered settings: %v", err)
	}
	if got := reread.Get("server", "FOO"); got != "1 2 3" {
		t.Fatalf("round trip lost value: %q", got)
	}
}

func TestSplitSettings(t *testing.T) {
	got, err := splitSettings(`a.b=1   c.d='x y' e.f="z"`)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []string{"a.b=1", "c.d=x y", "e.f=z"}
	if len(got) != len(want) {
		t.Fatalf("unexpected tokens: %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: %q, want %q", i, got[i], want[i])
		}
	}
	if _, err := splitSettings(`a.b="unbalanced`); err == nil {
		t.Fatalf("expected unbalanced quote error")
	}
}
