package mgmt

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danmuck/monctl/internal/broker"
)

func TestResultFromValue(t *testing.T) {
	v := broker.Vector{
		broker.String("req-1"),
		broker.String("agent-east"),
		broker.Boolean(true),
		broker.String(`{"answer":42}`),
		broker.String(""),
		broker.String("worker-01"),
	}
	res, err := ResultFromValue(v)
	if err != nil {
		t.Fatalf("result from value: %v", err)
	}
	want := Result{
		ReqID:    "req-1",
		Instance: "agent-east",
		Node:     "worker-01",
		Success:  true,
		Data:     broker.String(`{"answer":42}`),
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestResultFromValueAbsentFields(t *testing.T) {
	v := broker.Vector{
		broker.String("req-1"),
		broker.None{},
		broker.Boolean(false),
		broker.None{},
		broker.String("agent timed out"),
		broker.None{},
	}
	res, err := ResultFromValue(v)
	if err != nil {
		t.Fatalf("result from value: %v", err)
	}
	if res.Instance != "" || res.Node != "" || res.Data != nil {
		t.Fatalf("absent fields not empty: %+v", res)
	}
	if res.Success || res.Error != "agent timed out" {
		t.Fatalf("unexpected failure fields: %+v", res)
	}
}

func TestResultFromValueRejectsShortVector(t *testing.T) {
	if _, err := ResultFromValue(broker.Vector{broker.String("req-1")}); !errors.Is(err, ErrBadRecord) {
		t.Fatalf("expected record error, got %v", err)
	}
}

func TestSortResults(t *testing.T) {
	results := []Result{
		{Instance: "b", Node: "n2"},
		{Instance: "a", Node: "n9"},
		{Instance: "b", Node: "n1"},
	}
	SortResults(results)
	order := []string{"a/n9", "b/n1", "b/n2"}
	for i, res := range results {
		if got := res.Instance + "/" + res.Node; got != order[i] {
			t.Fatalf("position %d: %s, want %s", i, got, order[i])
		}
	}
}

func TestInstanceRoundTrip(t *testing.T) {
	inst := Instance{Name: "agent-east", Host: "10.0.0.5", Port: 2151}
	got, err := InstanceFromValue(inst.ToValue())
	if err != nil {
		t.Fatalf("instance round trip: %v", err)
	}
	if diff := cmp.Diff(inst, got); diff != "" {
		t.Fatalf("instance mismatch (-want +got):\n%s", diff)
	}

	// Dial-in instances carry no port.
	inst = Instance{Name: "agent-west", Host: "10.0.0.6"}
	got, err = InstanceFromValue(inst.ToValue())
	if err != nil {
		t.Fatalf("instance round trip: %v", err)
	}
	if got.Port != 0 {
		t.Fatalf("expected portless instance, got %d", got.Port)
	}
}

func TestNodeStatusRoundTrip(t *testing.T) {
	pid := int64(4711)
	port := uint16(4000)
	ns := NodeStatus{
		Node:        "worker-01",
		State:       "running",
		MgmtRole:    MgmtRoleNone,
		ClusterRole: RoleWorker,
		PID:         &pid,
		Port:        &port,
	}
	got, err := NodeStatusFromValue(ns.ToValue())
	if err != nil {
		t.Fatalf("node status round trip: %v", err)
	}
	if diff := cmp.Diff(ns, got); diff != "" {
		t.Fatalf("node status mismatch (-want +got):\n%s", diff)
	}
}

func TestNodeStatusToJSONDataNoneRolesAreNull(t *testing.T) {
	ns := NodeStatus{Node: "worker-01", State: "pending", MgmtRole: MgmtRoleNone, ClusterRole: RoleWorker}
	data := ns.ToJSONData()
	if data["mgmt_role"] != nil {
		t.Fatalf("NONE mgmt role should render null, got %v", data["mgmt_role"])
	}
	if data["cluster_role"] != "WORKER" {
		t.Fatalf("unexpected cluster role: %v", data["cluster_role"])
	}
	if _, ok := data["pid"]; ok {
		t.Fatalf("absent pid should be omitted")
	}
}

func TestParseClusterRole(t *testing.T) {
	role, err := ParseClusterRole("worker")
	if err != nil || role != RoleWorker {
		t.Fatalf("parse worker: %v %v", role, err)
	}
	if _, err := ParseClusterRole("janitor"); !errors.Is(err, ErrBadRecord) {
		t.Fatalf("expected record error, got %v", err)
	}
}
