// Package mgmt mirrors the record types of the controller's management
// framework: results, instances, node status, and cluster configurations.
// Conversions go wire-value to Go type and back; JSON rendering feeds the
// command reports.
package mgmt

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/monctl/internal/broker"
)

var ErrBadRecord = errors.New("mgmt: malformed management record")

// ClusterRole is a node's data-path role in the monitoring cluster.
type ClusterRole string

const (
	RoleNone    ClusterRole = "NONE"
	RoleManager ClusterRole = "MANAGER"
	RoleLogger  ClusterRole = "LOGGER"
	RoleProxy   ClusterRole = "PROXY"
	RoleWorker  ClusterRole = "WORKER"
)

// ManagementRole is a node's role in the management framework itself.
type ManagementRole string

const (
	MgmtRoleNone       ManagementRole = "NONE"
	MgmtRoleAgent      ManagementRole = "AGENT"
	MgmtRoleController ManagementRole = "CONTROLLER"
)

const (
	clusterRolePrefix = "Sentinel::Role::"
	mgmtRolePrefix    = "Sentinel::ManagementRole::"
)

// ParseClusterRole accepts the lowercase config-file spelling.
func ParseClusterRole(s string) (ClusterRole, error) {
	switch ClusterRole(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleManager:
		return RoleManager, nil
	case RoleLogger:
		return RoleLogger, nil
	case RoleProxy:
		return RoleProxy, nil
	case RoleWorker:
		return RoleWorker, nil
	default:
		return RoleNone, fmt.Errorf("%w: unknown role %q", ErrBadRecord, s)
	}
}

func (r ClusterRole) enum() broker.Enum { return broker.Enum(clusterRolePrefix + string(r)) }

func (r ManagementRole) enum() broker.Enum { return broker.Enum(mgmtRolePrefix + string(r)) }

func clusterRoleFromEnum(e broker.Enum) ClusterRole {
	return ClusterRole(strings.TrimPrefix(string(e), clusterRolePrefix))
}

func mgmtRoleFromEnum(e broker.Enum) ManagementRole {
	return ManagementRole(strings.TrimPrefix(string(e), mgmtRolePrefix))
}

// Result is the controller's uniform response record. Instance and node
// are empty when the result does not concern one.
type Result struct {
	ReqID    string
	Instance string
	Node     string
	Success  bool
	Data     broker.Value
	Error    string
}

// ResultFromValue decodes a result record vector: (reqid, instance,
// success, data, error, node), with none standing in for absent fields.
func ResultFromValue(v broker.Value) (Result, error) {
	vec, ok := v.(broker.Vector)
	if !ok || len(vec) != 6 {
		return Result{}, fmt.Errorf("%w: result wants 6 fields", ErrBadRecord)
	}
	res := Result{
		ReqID:    optString(vec[0]),
		Instance: optString(vec[1]),
		Node:     optString(vec[5]),
		Error:    optString(vec[4]),
	}
	success, ok := vec[2].(broker.Boolean)
	if !ok {
		return Result{}, fmt.Errorf("%w: result success flag", ErrBadRecord)
	}
	res.Success = bool(success)
	if _, isNone := vec[3].(broker.None); !isNone {
		res.Data = vec[3]
	}
	return res, nil
}

// ResultsFromValue decodes a vector of result records.
func ResultsFromValue(v broker.Value) ([]Result, error) {
	vec, ok := v.(broker.Vector)
	if !ok {
		return nil, fmt.Errorf("%w: result list", ErrBadRecord)
	}
	out := make([]Result, 0, len(vec))
	for _, elem := range vec {
		res, err := ResultFromValue(elem)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// SortResults orders reports reproducibly: by instance, then node.
func SortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Instance != results[j].Instance {
			return results[i].Instance < results[j].Instance
		}
		return results[i].Node < results[j].Node
	})
}

// Instance is one agent connected to the controller. Port is zero for
// instances that dial in rather than listen.
type Instance struct {
	Name string
	Host string
	Port uint16
}

func (inst Instance) ToValue() broker.Value {
	var port broker.Value = broker.None{}
	if inst.Port != 0 {
		port = broker.Port{Number: inst.Port, Proto: broker.ProtoTCP}
	}
	return broker.Vector{
		broker.String(inst.Name),
		broker.String(inst.Host),
		port,
	}
}

func InstanceFromValue(v broker.Value) (Instance, error) {
	vec, ok := v.(broker.Vector)
	if !ok || len(vec) != 3 {
		return Instance{}, fmt.Errorf("%w: instance wants 3 fields", ErrBadRecord)
	}
	inst := Instance{
		Name: optString(vec[0]),
		Host: optString(vec[1]),
	}
	if inst.Name == "" {
		return Instance{}, fmt.Errorf("%w: instance without name", ErrBadRecord)
	}
	if port, ok := vec[2].(broker.Port); ok {
		inst.Port = port.Number
	}
	return inst, nil
}

// ToJSONData renders the instance for report output.
func (inst Instance) ToJSONData() map[string]any {
	out := map[string]any{"host": inst.Host}
	if inst.Port != 0 {
		out["port"] = inst.Port
	}
	return out
}

// NodeStatus describes one running node as reported by its agent.
type NodeStatus struct {
	Node        string
	State       string
	MgmtRole    ManagementRole
	ClusterRole ClusterRole
	PID         *int64
	Port        *uint16
}

func NodeStatusFromValue(v broker.Value) (NodeStatus, error) {
	vec, ok := v.(broker.Vector)
	if !ok || len(vec) != 6 {
		return NodeStatus{}, fmt.Errorf("%w: node status wants 6 fields", ErrBadRecord)
	}
	ns := NodeStatus{
		Node:        optString(vec[0]),
		MgmtRole:    MgmtRoleNone,
		ClusterRole: RoleNone,
	}
	if state, ok := vec[1].(broker.Enum); ok {
		parts := strings.Split(string(state), "::")
		ns.State = strings.ToLower(parts[len(parts)-1])
	} else {
		ns.State = optString(vec[1])
	}
	if e, ok := vec[2].(broker.Enum); ok {
		ns.MgmtRole = mgmtRoleFromEnum(e)
	}
	if e, ok := vec[3].(broker.Enum); ok {
		ns.ClusterRole = clusterRoleFromEnum(e)
	}
	if pid, ok := vec[4].(broker.Integer); ok {
		p := int64(pid)
		ns.PID = &p
	}
	if port, ok := vec[5].(broker.Port); ok {
		p := port.Number
		ns.Port = &p
	}
	return ns, nil
}

func (ns NodeStatus) ToValue() broker.Value {
	var pid broker.Value = broker.None{}
	if ns.PID != nil {
		pid = broker.Integer(*ns.PID)
	}
	var port broker.Value = broker.None{}
	if ns.Port != nil {
		port = broker.Port{Number: *ns.Port, Proto: broker.ProtoTCP}
	}
	return broker.Vector{
		broker.String(ns.Node),
		broker.Enum("Sentinel::State::" + strings.ToUpper(ns.State)),
		ns.MgmtRole.enum(),
		ns.ClusterRole.enum(),
		pid,
		port,
	}
}

// ToJSONData renders the status for report output. Roles of NONE become
// null so they stay visible but distinguishable from real values.
func (ns NodeStatus) ToJSONData() map[string]any {
	var mgmtRole, clusterRole any
	if ns.MgmtRole != MgmtRoleNone {
		mgmtRole = string(ns.MgmtRole)
	}
	if ns.ClusterRole != RoleNone {
		clusterRole = string(ns.ClusterRole)
	}
	out := map[string]any{
		"state":        ns.State,
		"mgmt_role":    mgmtRole,
		"cluster_role": clusterRole,
	}
	if ns.PID != nil {
		out["pid"] = *ns.PID
	}
	if ns.Port != nil {
		out["port"] = *ns.Port
	}
	return out
}

// NodeOutputs carries the stdio of a node that failed to launch.
type NodeOutputs struct {
	Stdout string
	Stderr string
}

func NodeOutputsFromValue(v broker.Value) (NodeOutputs, error) {
	vec, ok := v.(broker.Vector)
	if !ok || len(vec) != 2 {
		return NodeOutputs{}, fmt.Errorf("%w: node outputs want 2 fields", ErrBadRecord)
	}
	return NodeOutputs{Stdout: optString(vec[0]), Stderr: optString(vec[1])}, nil
}

func optString(v broker.Value) string {
	if s, ok := v.(broker.String); ok {
		return string(s)
	}
	return ""
}
