package mgmt

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleClusterConfig = `
[instances.agent-east]

[instances.agent-west]
host = "10.0.0.6"
port = 2151

[nodes.manager-01]
instance = "agent-east"
role = "manager"

[nodes.worker-01]
instance = "agent-west"
role = "worker"
interface = "eth0"

[nodes.worker-01.env]
CAPTURE_BUFFER = "128M"
`

func TestParseConfiguration(t *testing.T) {
	cfg, err := ParseConfiguration([]byte(sampleClusterConfig))
	if err != nil {
		t.Fatalf("parse configuration: %v", err)
	}
	if len(cfg.Instances) != 2 {
		t.Fatalf("unexpected instances: %+v", cfg.Instances)
	}
	if cfg.Instances[0].Name != "agent-east" || cfg.Instances[0].Host != "" {
		t.Fatalf("dial-in instance mangled: %+v", cfg.Instances[0])
	}
	if cfg.Instances[1].Port != 2151 {
		t.Fatalf("listening instance port lost: %+v", cfg.Instances[1])
	}
	if len(cfg.Nodes) != 2 {
		t.Fatalf("unexpected nodes: %+v", cfg.Nodes)
	}
	if cfg.Nodes[0].Role != RoleManager {
		t.Fatalf("unexpected role: %q", cfg.Nodes[0].Role)
	}
	if cfg.Nodes[1].Env["CAPTURE_BUFFER"] != "128M" {
		t.Fatalf("node env lost: %+v", cfg.Nodes[1].Env)
	}
}

func TestParseConfigurationRejectsUnknownRole(t *testing.T) {
	_, err := ParseConfiguration([]byte("[nodes.x]\nrole = \"janitor\"\n"))
	if !errors.Is(err, ErrBadRecord) {
		t.Fatalf("expected record error, got %v", err)
	}
}

func TestParseConfigurationRejectsUnknownInstanceRef(t *testing.T) {
	_, err := ParseConfiguration([]byte(`
[instances.agent-east]

[nodes.worker-01]
instance = "agent-west"
role = "worker"
`))
	if !errors.Is(err, ErrBadRecord) {
		t.Fatalf("expected record error, got %v", err)
	}
}

func TestConfigurationValueRoundTrip(t *testing.T) {
	cfg, err := ParseConfiguration([]byte(sampleClusterConfig))
	if err != nil {
		t.Fatalf("parse configuration: %v", err)
	}
	got, err := ConfigurationFromValue(cfg.ToValue())
	if err != nil {
		t.Fatalf("configuration from value: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("configuration mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigurationTOMLRoundTrip(t *testing.T) {
	cfg, err := ParseConfiguration([]byte(sampleClusterConfig))
	if err != nil {
		t.Fatalf("parse configuration: %v", err)
	}
	rendered, err := cfg.RenderTOML()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	reparsed, err := ParseConfiguration(rendered)
	if err != nil {
		t.Fatalf("reparse rendered configuration: %v", err)
	}
	if diff := cmp.Diff(cfg, reparsed); diff != "" {
		t.Fatalf("TOML round trip mismatch (-want +got):\n%s", diff)
	}
}
