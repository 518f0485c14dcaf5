package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadWireData = errors.New("broker: bad wire data")
	ErrBadPort     = errors.New("broker: port number out of range")
)

// Value is one datum in the controller's pub/sub data model. Every value
// carries a type tag on the wire and round-trips through tagged JSON.
type Value interface {
	// Tag returns the wire-level "@data-type" discriminator.
	Tag() string
	// Native returns the closest Go rendering of the value, suitable
	// for JSON output in command reports.
	Native() any
	// wireData returns the JSON-marshalable "data" payload.
	wireData() any
}

// wireValue is the tagged envelope every data value travels in.
type wireValue struct {
	Type string          `json:"@data-type"`
	Data json.RawMessage `json:"data"`
}

// Marshal serializes a value into its tagged wire form.
func Marshal(v Value) ([]byte, error) {
	data, err := json.Marshal(v.wireData())
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", ErrBadWireData, v.Tag(), err)
	}
	return json.Marshal(wireValue{Type: v.Tag(), Data: data})
}

// Unmarshal parses a tagged wire value into its concrete type.
func Unmarshal(raw []byte) (Value, error) {
	var env wireValue
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadWireData, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing @data-type", ErrBadWireData)
	}
	return decodeTagged(env.Type, env.Data)
}

func decodeTagged(tag string, data json.RawMessage) (Value, error) {
	decode, ok := decoders[tag]
	if !ok {
		return nil, fmt.Errorf("%w: unknown @data-type %q", ErrBadWireData, tag)
	}
	return decode(data)
}

// decoders is populated in init: the container decoders recurse through
// Unmarshal, so a composite literal would form an initialization cycle.
var decoders map[string]func(json.RawMessage) (Value, error)

func init() {
	decoders = map[string]func(json.RawMessage) (Value, error){
		"none":       decodeNone,
		"boolean":    decodeBoolean,
		"count":      decodeCount,
		"integer":    decodeInteger,
		"real":       decodeReal,
		"timespan":   decodeTimespan,
		"string":     decodeString,
		"enum-value": decodeEnum,
		"address":    decodeAddress,
		"port":       decodePort,
		"vector":     decodeVector,
		"set":        decodeSet,
		"table":      decodeTable,
	}
}

// None is the absent value.
type None struct{}

func (None) Tag() string   { return "none" }
func (None) Native() any   { return nil }
func (None) wireData() any { return struct{}{} }

func decodeNone(json.RawMessage) (Value, error) { return None{}, nil }

type Boolean bool

func (v Boolean) Tag() string   { return "boolean" }
func (v Boolean) Native() any   { return bool(v) }
func (v Boolean) wireData() any { return bool(v) }

func decodeBoolean(data json.RawMessage) (Value, error) {
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: boolean: %v", ErrBadWireData, err)
	}
	return Boolean(b), nil
}

// Count is an unsigned 64-bit quantity.
type Count uint64

func (v Count) Tag() string   { return "count" }
func (v Count) Native() any   { return uint64(v) }
func (v Count) wireData() any { return uint64(v) }

func decodeCount(data json.RawMessage) (Value, error) {
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("%w: count: %v", ErrBadWireData, err)
	}
	return Count(n), nil
}

type Integer int64

func (v Integer) Tag() string   { return "integer" }
func (v Integer) Native() any   { return int64(v) }
func (v Integer) wireData() any { return int64(v) }

func decodeInteger(data json.RawMessage) (Value, error) {
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("%w: integer: %v", ErrBadWireData, err)
	}
	return Integer(n), nil
}

type Real float64

func (v Real) Tag() string   { return "real" }
func (v Real) Native() any   { return float64(v) }
func (v Real) wireData() any { return float64(v) }

func decodeReal(data json.RawMessage) (Value, error) {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: real: %v", ErrBadWireData, err)
	}
	return Real(f), nil
}

// Timespan is a duration. The wire form is an integer count plus a unit
// suffix, e.g. "20s" or "250ms".
type Timespan time.Duration

var timespanRE = regexp.MustCompile(`^(\d+)(ns|ms|s|min|h|d)$`)

func (v Timespan) Tag() string { return "timespan" }
func (v Timespan) Native() any { return time.Duration(v).String() }

func (v Timespan) wireData() any {
	d := time.Duration(v)
	switch {
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dmin", d/time.Minute)
	case d%time.Second == 0:
		return fmt.Sprintf("%ds", d/time.Second)
	case d%time.Millisecond == 0:
		return fmt.Sprintf("%dms", d/time.Millisecond)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

func decodeTimespan(data json.RawMessage) (Value, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: timespan: %v", ErrBadWireData, err)
	}
	m := timespanRE.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: timespan %q", ErrBadWireData, s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timespan %q", ErrBadWireData, s)
	}
	var unit time.Duration
	switch m[2] {
	case "ns":
		unit = time.Nanosecond
	case "ms":
		unit = time.Millisecond
	case "s":
		unit = time.Second
	case "min":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	return Timespan(time.Duration(n) * unit), nil
}

type String string

func (v String) Tag() string   { return "string" }
func (v String) Native() any   { return string(v) }
func (v String) wireData() any { return string(v) }

func decodeString(data json.RawMessage) (Value, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: string: %v", ErrBadWireData, err)
	}
	return String(s), nil
}

// Enum is a named enumeration constant, e.g. "Sentinel::Role::WORKER".
type Enum string

func (v Enum) Tag() string   { return "enum-value" }
func (v Enum) Native() any   { return string(v) }
func (v Enum) wireData() any { return string(v) }

func decodeEnum(data json.RawMessage) (Value, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: enum-value: %v", ErrBadWireData, err)
	}
	return Enum(s), nil
}

// Address is an IPv4 or IPv6 address.
type Address netip.Addr

func NewAddress(s string) (Address, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: address %q", ErrBadWireData, s)
	}
	return Address(a), nil
}

func (v Address) Tag() string   { return "address" }
func (v Address) Native() any   { return netip.Addr(v).String() }
func (v Address) wireData() any { return netip.Addr(v).String() }

func decodeAddress(data json.RawMessage) (Value, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: address: %v", ErrBadWireData, err)
	}
	return NewAddress(s)
}

// Proto is a port's transport protocol.
type Proto string

const (
	ProtoUnknown Proto = "?"
	ProtoTCP     Proto = "tcp"
	ProtoUDP     Proto = "udp"
	ProtoICMP    Proto = "icmp"
)

// Port is a transport-layer port, rendered as "number/proto" on the wire.
type Port struct {
	Number uint16
	Proto  Proto
}

func NewPort(number int, proto Proto) (Port, error) {
	if number < 1 || number > 65535 {
		return Port{}, fmt.Errorf("%w: %d", ErrBadPort, number)
	}
	if proto == "" {
		proto = ProtoTCP
	}
	return Port{Number: uint16(number), Proto: proto}, nil
}

func (v Port) Tag() string    { return "port" }
func (v Port) Native() any    { return v.Number }
func (v Port) String() string { return fmt.Sprintf("%d/%s", v.Number, v.Proto) }
func (v Port) wireData() any  { return v.String() }

func decodePort(data json.RawMessage) (Value, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: port: %v", ErrBadWireData, err)
	}
	numStr, protoStr, ok := strings.Cut(s, "/")
	if !ok {
		return nil, fmt.Errorf("%w: port %q", ErrBadWireData, s)
	}
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return nil, fmt.Errorf("%w: port %q", ErrBadWireData, s)
	}
	switch Proto(protoStr) {
	case ProtoUnknown, ProtoTCP, ProtoUDP, ProtoICMP:
	default:
		return nil, fmt.Errorf("%w: port protocol %q", ErrBadWireData, protoStr)
	}
	return NewPort(n, Proto(protoStr))
}

type Vector []Value

func (v Vector) Tag() string { return "vector" }

func (v Vector) Native() any {
	out := make([]any, 0, len(v))
	for _, elem := range v {
		out = append(out, elem.Native())
	}
	return out
}

func (v Vector) wireData() any { return encodeElems(v) }

func decodeVector(data json.RawMessage) (Value, error) {
	elems, err := decodeElems(data, "vector")
	if err != nil {
		return nil, err
	}
	return Vector(elems), nil
}

// Set is an unordered collection. The wire form is a plain list; ordering
// on encode is whatever order the elements were added in.
type Set []Value

func (v Set) Tag() string { return "set" }

func (v Set) Native() any {
	out := make([]any, 0, len(v))
	for _, elem := range v {
		out = append(out, elem.Native())
	}
	return out
}

func (v Set) wireData() any { return encodeElems(v) }

func decodeSet(data json.RawMessage) (Value, error) {
	elems, err := decodeElems(data, "set")
	if err != nil {
		return nil, err
	}
	return Set(elems), nil
}

// TableEntry is one key/value pair of a Table.
type TableEntry struct {
	Key Value
	Val Value
}

type Table []TableEntry

func (v Table) Tag() string { return "table" }

func (v Table) Native() any {
	out := make(map[string]any, len(v))
	for _, entry := range v {
		out[fmt.Sprint(entry.Key.Native())] = entry.Val.Native()
	}
	return out
}

func (v Table) wireData() any {
	type wireEntry struct {
		Key json.RawMessage `json:"key"`
		Val json.RawMessage `json:"value"`
	}
	out := make([]wireEntry, 0, len(v))
	for _, entry := range v {
		k, _ := Marshal(entry.Key)
		val, _ := Marshal(entry.Val)
		out = append(out, wireEntry{Key: k, Val: val})
	}
	return out
}

func decodeTable(data json.RawMessage) (Value, error) {
	var entries []struct {
		Key json.RawMessage `json:"key"`
		Val json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: table: %v", ErrBadWireData, err)
	}
	out := make(Table, 0, len(entries))
	for _, entry := range entries {
		k, err := Unmarshal(entry.Key)
		if err != nil {
			return nil, err
		}
		val, err := Unmarshal(entry.Val)
		if err != nil {
			return nil, err
		}
		out = append(out, TableEntry{Key: k, Val: val})
	}
	return out, nil
}

func encodeElems(elems []Value) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(elems))
	for _, elem := range elems {
		raw, _ := Marshal(elem)
		out = append(out, raw)
	}
	return out
}

func decodeElems(data json.RawMessage, tag string) ([]Value, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadWireData, tag, err)
	}
	out := make([]Value, 0, len(raws))
	for _, raw := range raws {
		elem, err := Unmarshal(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, elem)
	}
	return out, nil
}

// FromNative builds a value from a plain Go value. Strings map to String,
// signed integers to Integer, unsigned to Count, and so on. Maps become
// Tables keyed by string, entries ordered by key so encodings are
// reproducible.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return None{}, nil
	case Value:
		return val, nil
	case bool:
		return Boolean(val), nil
	case int:
		return Integer(val), nil
	case int64:
		return Integer(val), nil
	case uint:
		return Count(val), nil
	case uint64:
		return Count(val), nil
	case float64:
		return Real(val), nil
	case string:
		return String(val), nil
	case time.Duration:
		return Timespan(val), nil
	case []string:
		out := make(Vector, 0, len(val))
		for _, s := range val {
			out = append(out, String(s))
		}
		return out, nil
	case []any:
		out := make(Vector, 0, len(val))
		for _, elem := range val {
			conv, err := FromNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, conv)
		}
		return out, nil
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Table, 0, len(val))
		for _, k := range keys {
			out = append(out, TableEntry{Key: String(k), Val: String(val[k])})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: cannot convert %T", ErrBadWireData, v)
	}
}
