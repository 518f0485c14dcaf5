package events

import (
	"errors"
	"testing"

	"github.com/danmuck/monctl/internal/broker"
)

func asValue(t *testing.T, ev *broker.Event) broker.Value {
	t.Helper()
	raw, err := broker.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	v, err := broker.Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return v
}

func TestRecognizeKnownEvent(t *testing.T) {
	reqid := MakeUUID()
	v := asValue(t, NewGetNodesRequest(reqid))

	ev, err := Recognize(v)
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if ev.Name != GetNodesRequest {
		t.Fatalf("unexpected name: %q", ev.Name)
	}
	if ReqID(ev) != reqid {
		t.Fatalf("unexpected reqid: %q", ReqID(ev))
	}
}

func TestRecognizeUnknownName(t *testing.T) {
	v := asValue(t, broker.NewEvent("Sentinel::Controller::API::bogus", broker.String("x")))
	if _, err := Recognize(v); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected unknown event error, got %v", err)
	}
}

func TestRecognizeArityMismatch(t *testing.T) {
	v := asValue(t, broker.NewEvent(GetNodesRequest, broker.String("x"), broker.String("y")))
	if _, err := Recognize(v); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected unknown event error, got %v", err)
	}
}

func TestGetIDValueRequestShape(t *testing.T) {
	ev := NewGetIDValueRequest("req-1", "capture_filters", []string{"worker-01"})
	if len(ev.Args) != 3 {
		t.Fatalf("unexpected arg count: %d", len(ev.Args))
	}
	set, ok := ev.Args[2].(broker.Set)
	if !ok {
		t.Fatalf("node selector is %T, expected set", ev.Args[2])
	}
	if len(set) != 1 || set[0] != broker.String("worker-01") {
		t.Fatalf("unexpected node selector: %+v", set)
	}
}
