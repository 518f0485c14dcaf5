package mgmt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/monctl/internal/broker"
)

// Node is one cluster node in a configuration to deploy.
type Node struct {
	Name      string            `toml:"-"`
	Instance  string            `toml:"instance,omitempty"`
	Role      ClusterRole       `toml:"role"`
	Port      uint16            `toml:"port,omitempty"`
	Interface string            `toml:"interface,omitempty"`
	Env       map[string]string `toml:"env,omitempty"`
}

// Configuration is a full cluster layout: the instances that run nodes
// and the nodes themselves. The controller assigns the ID on deployment
// when ours is empty.
type Configuration struct {
	ID        string
	Instances []Instance
	Nodes     []Node
}

// tomlConfiguration is the config-file shape. Instances without a host
// are agents that connect to the controller themselves.
type tomlConfiguration struct {
	ID        string                  `toml:"id,omitempty"`
	Instances map[string]tomlInstance `toml:"instances,omitempty"`
	Nodes     map[string]Node         `toml:"nodes,omitempty"`
}

type tomlInstance struct {
	Host string `toml:"host,omitempty"`
	Port uint16 `toml:"port,omitempty"`
}

// ParseConfiguration reads a cluster configuration from TOML and
// validates it: roles must be known, node instance references must
// exist when instances are listed at all.
func ParseConfiguration(data []byte) (*Configuration, error) {
	var raw tomlConfiguration
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}

	cfg := &Configuration{ID: strings.TrimSpace(raw.ID)}

	instanceNames := make(map[string]bool, len(raw.Instances))
	for name, inst := range raw.Instances {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: instance without name", ErrBadRecord)
		}
		instanceNames[name] = true
		cfg.Instances = append(cfg.Instances, Instance{Name: name, Host: inst.Host, Port: inst.Port})
	}
	sort.Slice(cfg.Instances, func(i, j int) bool { return cfg.Instances[i].Name < cfg.Instances[j].Name })

	for name, node := range raw.Nodes {
		node.Name = strings.TrimSpace(name)
		if node.Name == "" {
			return nil, fmt.Errorf("%w: node without name", ErrBadRecord)
		}
		role, err := ParseClusterRole(string(node.Role))
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", node.Name, err)
		}
		node.Role = role
		if len(instanceNames) > 0 && node.Instance != "" && !instanceNames[node.Instance] {
			return nil, fmt.Errorf("%w: node %q references unknown instance %q",
				ErrBadRecord, node.Name, node.Instance)
		}
		cfg.Nodes = append(cfg.Nodes, node)
	}
	sort.Slice(cfg.Nodes, func(i, j int) bool { return cfg.Nodes[i].Name < cfg.Nodes[j].Name })

	return cfg, nil
}

// RenderTOML writes the configuration back out in config-file form.
func (cfg *Configuration) RenderTOML() ([]byte, error) {
	raw := tomlConfiguration{
		ID:        cfg.ID,
		Instances: make(map[string]tomlInstance, len(cfg.Instances)),
		Nodes:     make(map[string]Node, len(cfg.Nodes)),
	}
	for _, inst := range cfg.Instances {
		raw.Instances[inst.Name] = tomlInstance{Host: inst.Host, Port: inst.Port}
	}
	for _, node := range cfg.Nodes {
		raw.Nodes[node.Name] = node
	}
	out, err := toml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	return out, nil
}

// ToValue encodes the configuration for a deployment request:
// (id, vector of instances, vector of nodes).
func (cfg *Configuration) ToValue() broker.Value {
	instances := make(broker.Vector, 0, len(cfg.Instances))
	for _, inst := range cfg.Instances {
		instances = append(instances, inst.ToValue())
	}
	nodes := make(broker.Vector, 0, len(cfg.Nodes))
	for _, node := range cfg.Nodes {
		nodes = append(nodes, node.toValue())
	}
	return broker.Vector{broker.String(cfg.ID), instances, nodes}
}

func (n Node) toValue() broker.Value {
	var port broker.Value = broker.None{}
	if n.Port != 0 {
		port = broker.Port{Number: n.Port, Proto: broker.ProtoTCP}
	}
	var iface broker.Value = broker.None{}
	if n.Interface != "" {
		iface = broker.String(n.Interface)
	}
	env, _ := broker.FromNative(n.Env)
	return broker.Vector{
		broker.String(n.Name),
		broker.String(n.Instance),
		n.Role.enum(),
		port,
		iface,
		env,
	}
}

// ConfigurationFromValue decodes a deployed configuration received from
// the controller.
func ConfigurationFromValue(v broker.Value) (*Configuration, error) {
	vec, ok := v.(broker.Vector)
	if !ok || len(vec) != 3 {
		return nil, fmt.Errorf("%w: configuration wants 3 fields", ErrBadRecord)
	}
	cfg := &Configuration{ID: optString(vec[0])}

	instances, ok := vec[1].(broker.Vector)
	if !ok {
		return nil, fmt.Errorf("%w: configuration instance list", ErrBadRecord)
	}
	for _, elem := range instances {
		inst, err := InstanceFromValue(elem)
		if err != nil {
			return nil, err
		}
		cfg.Instances = append(cfg.Instances, inst)
	}

	nodes, ok := vec[2].(broker.Vector)
	if !ok {
		return nil, fmt.Errorf("%w: configuration node list", ErrBadRecord)
	}
	for _, elem := range nodes {
		node, err := nodeFromValue(elem)
		if err != nil {
			return nil, err
		}
		cfg.Nodes = append(cfg.Nodes, node)
	}
	return cfg, nil
}

func nodeFromValue(v broker.Value) (Node, error) {
	vec, ok := v.(broker.Vector)
	if !ok || len(vec) != 6 {
		return Node{}, fmt.Errorf("%w: node wants 6 fields", ErrBadRecord)
	}
	node := Node{
		Name:     optString(vec[0]),
		Instance: optString(vec[1]),
		Role:     RoleNone,
	}
	if node.Name == "" {
		return Node{}, fmt.Errorf("%w: node without name", ErrBadRecord)
	}
	if e, ok := vec[2].(broker.Enum); ok {
		node.Role = clusterRoleFromEnum(e)
	}
	if port, ok := vec[3].(broker.Port); ok {
		node.Port = port.Number
	}
	node.Interface = optString(vec[4])
	if table, ok := vec[5].(broker.Table); ok && len(table) > 0 {
		node.Env = make(map[string]string, len(table))
		for _, entry := range table {
			node.Env[optString(entry.Key)] = optString(entry.Val)
		}
	}
	return node, nil
}

// ToJSONData renders the configuration for report output.
func (cfg *Configuration) ToJSONData() map[string]any {
	instances := make(map[string]any, len(cfg.Instances))
	for _, inst := range cfg.Instances {
		instances[inst.Name] = inst.ToJSONData()
	}
	nodes := make(map[string]any, len(cfg.Nodes))
	for _, node := range cfg.Nodes {
		entry := map[string]any{"role": string(node.Role)}
		if node.Instance != "" {
			entry["instance"] = node.Instance
		}
		if node.Port != 0 {
			entry["port"] = node.Port
		}
		if node.Interface != "" {
			entry["interface"] = node.Interface
		}
		if len(node.Env) > 0 {
			entry["env"] = node.Env
		}
		nodes[node.Name] = entry
	}
	out := map[string]any{
		"instances": instances,
		"nodes":     nodes,
	}
	if cfg.ID != "" {
		out["id"] = cfg.ID
	}
	return out
}
