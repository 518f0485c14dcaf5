// Package events defines the management API events exchanged with the
// Sentinel cluster controller and a registry for recognizing the ones we
// understand on receipt.
package events

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/danmuck/monctl/internal/broker"
)

var ErrUnknownEvent = errors.New("events: unknown event")

// Controller API event names. Requests originate here, responses at the
// controller.
const (
	GetConfigurationRequest  = "Sentinel::Controller::API::get_configuration_request"
	GetConfigurationResponse = "Sentinel::Controller::API::get_configuration_response"
	GetIDValueRequest        = "Sentinel::Controller::API::get_id_value_request"
	GetIDValueResponse       = "Sentinel::Controller::API::get_id_value_response"
	GetInstancesRequest      = "Sentinel::Controller::API::get_instances_request"
	GetInstancesResponse     = "Sentinel::Controller::API::get_instances_response"
	GetNodesRequest          = "Sentinel::Controller::API::get_nodes_request"
	GetNodesResponse         = "Sentinel::Controller::API::get_nodes_response"
	SetConfigurationRequest  = "Sentinel::Controller::API::set_configuration_request"
	SetConfigurationResponse = "Sentinel::Controller::API::set_configuration_response"
	TestTimeoutRequest       = "Sentinel::Controller::API::test_timeout_request"
	TestTimeoutResponse      = "Sentinel::Controller::API::test_timeout_response"
)

// arities lists the known events and their argument counts. Received
// events failing the registry check are skipped by the session layer.
var arities = map[string]int{
	GetConfigurationRequest:  1,
	GetConfigurationResponse: 2,
	GetIDValueRequest:        3,
	GetIDValueResponse:       2,
	GetInstancesRequest:      1,
	GetInstancesResponse:     2,
	GetNodesRequest:          1,
	GetNodesResponse:         2,
	SetConfigurationRequest:  2,
	SetConfigurationResponse: 2,
	TestTimeoutRequest:       2,
	TestTimeoutResponse:      2,
}

// MakeUUID returns a fresh request identifier.
func MakeUUID() string {
	return uuid.NewString()
}

// Recognize reinterprets received pub/sub data as a known management
// event. Unknown names and arity mismatches are reported via
// ErrUnknownEvent so the caller can skip the message.
func Recognize(v broker.Value) (*broker.Event, error) {
	ev, err := broker.EventFromValue(v)
	if err != nil {
		return nil, err
	}
	want, ok := arities[ev.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Name)
	}
	if len(ev.Args) != want {
		return nil, fmt.Errorf("%w: %q carries %d arguments, expected %d",
			ErrUnknownEvent, ev.Name, len(ev.Args), want)
	}
	return ev, nil
}

// ReqID extracts an event's request identifier, the first argument of
// every management API event.
func ReqID(ev *broker.Event) string {
	if len(ev.Args) == 0 {
		return ""
	}
	if s, ok := ev.Args[0].(broker.String); ok {
		return string(s)
	}
	return ""
}

func NewGetConfigurationRequest(reqid string) *broker.Event {
	return broker.NewEvent(GetConfigurationRequest, broker.String(reqid))
}

func NewGetIDValueRequest(reqid, id string, nodes []string) *broker.Event {
	set := make(broker.Set, 0, len(nodes))
	for _, node := range nodes {
		set = append(set, broker.String(node))
	}
	return broker.NewEvent(GetIDValueRequest, broker.String(reqid), broker.String(id), set)
}

func NewGetInstancesRequest(reqid string) *broker.Event {
	return broker.NewEvent(GetInstancesRequest, broker.String(reqid))
}

func NewGetNodesRequest(reqid string) *broker.Event {
	return broker.NewEvent(GetNodesRequest, broker.String(reqid))
}

func NewSetConfigurationRequest(reqid string, config broker.Value) *broker.Event {
	return broker.NewEvent(SetConfigurationRequest, broker.String(reqid), config)
}

func NewTestTimeoutRequest(reqid string, withState bool) *broker.Event {
	return broker.NewEvent(TestTimeoutRequest, broker.String(reqid), broker.Boolean(withState))
}
