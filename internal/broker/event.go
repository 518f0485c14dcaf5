package broker

import (
	"fmt"
	"strings"
)

// Event is the pub/sub rendition of a management event: a name plus
// positional arguments. On the wire it is a specific interpretation of
// nested vectors, prefixed by two format-version counts.
type Event struct {
	Name string
	Args []Value
}

func NewEvent(name string, args ...Value) *Event {
	return &Event{Name: name, Args: args}
}

func (e *Event) Tag() string { return "vector" }

func (e *Event) Native() any {
	args := make([]any, 0, len(e.Args))
	for _, arg := range e.Args {
		args = append(args, arg.Native())
	}
	return map[string]any{"name": e.Name, "args": args}
}

func (e *Event) wireData() any {
	return Vector{
		Count(1),
		Count(1),
		Vector{
			String(e.Name),
			Vector(e.Args),
		},
	}.wireData()
}

func (e *Event) String() string {
	args := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		args = append(args, arg.Tag())
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(args, ", "))
}

// EventFromValue reinterprets a received vector as an event. The layout
// must be [count, count, [name, [args...]]].
func EventFromValue(v Value) (*Event, error) {
	vec, ok := v.(Vector)
	if ok && len(vec) == 3 {
		inner, ok := vec[2].(Vector)
		if ok && len(inner) == 2 {
			name, nameOK := inner[0].(String)
			args, argsOK := inner[1].(Vector)
			if nameOK && argsOK {
				return &Event{Name: string(name), Args: args}, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: not an event vector", ErrBadWireData)
}
