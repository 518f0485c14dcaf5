package broker

import (
	"encoding/json"
	"fmt"
)

// Message is one WebSocket frame exchanged with the controller.
type Message interface {
	message()
}

// HandshakeMessage opens a session: a bare list of topics the client
// subscribes to. The controller never sends one.
type HandshakeMessage struct {
	Topics []string
}

func (HandshakeMessage) message() {}

func (m HandshakeMessage) Serialize() ([]byte, error) {
	return json.Marshal(m.Topics)
}

// HandshakeAck is the controller's reply to the handshake.
type HandshakeAck struct {
	Endpoint string
	Version  string
}

func (HandshakeAck) message() {}

// DataMessage carries one data value published to a topic. The value's
// type tag and payload are flattened into the message object.
type DataMessage struct {
	Topic string
	Value Value
}

func (DataMessage) message() {}

func (m DataMessage) Serialize() ([]byte, error) {
	data, err := json.Marshal(m.Value.wireData())
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", ErrBadWireData, m.Value.Tag(), err)
	}
	return json.Marshal(struct {
		Type  string          `json:"type"`
		Topic string          `json:"topic"`
		Tag   string          `json:"@data-type"`
		Data  json.RawMessage `json:"data"`
	}{
		Type:  "data-message",
		Topic: m.Topic,
		Tag:   m.Value.Tag(),
		Data:  data,
	})
}

// ErrorMessage reports a transport or session level problem.
type ErrorMessage struct {
	Code    string
	Context string
}

func (ErrorMessage) message() {}

func (m ErrorMessage) Error() string {
	return fmt.Sprintf("%s: %s", m.Code, m.Context)
}

// DecodeMessage parses a frame received from the controller. It dispatches
// on the "type" discriminator; frames without one are rejected.
func DecodeMessage(raw []byte) (Message, error) {
	var probe struct {
		Type     string          `json:"type"`
		Topic    string          `json:"topic"`
		Tag      string          `json:"@data-type"`
		Data     json.RawMessage `json:"data"`
		Endpoint string          `json:"endpoint"`
		Version  json.RawMessage `json:"version"`
		Code     string          `json:"code"`
		Context  json.RawMessage `json:"context"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadWireData, err)
	}

	switch probe.Type {
	case "ack":
		return HandshakeAck{
			Endpoint: probe.Endpoint,
			Version:  rawToString(probe.Version),
		}, nil
	case "data-message":
		if probe.Tag == "" || probe.Data == nil {
			return nil, fmt.Errorf("%w: data-message missing payload", ErrBadWireData)
		}
		val, err := decodeTagged(probe.Tag, probe.Data)
		if err != nil {
			return nil, err
		}
		return DataMessage{Topic: probe.Topic, Value: val}, nil
	case "error":
		return ErrorMessage{Code: probe.Code, Context: rawToString(probe.Context)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrBadWireData, probe.Type)
	}
}

// rawToString renders a JSON scalar that may arrive as either a string or
// a number (the ack version does, depending on the controller build).
func rawToString(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
