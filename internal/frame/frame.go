// Package frame implements the broker wire protocol: the Frame envelope,
// its Kind enum, the call/event payload shapes carried inside a Frame's
// Msg bytes, and the framed connection that reads and writes them safely
// over a concurrent, full-duplex byte stream.
//
// Each Frame is the JSON encoding of {id, kind, msg} followed by a single
// '\n'. Because a single transport read may return several frames that
// arrived back-to-back, Conn always hands callers every complete frame it
// can extract from the bytes on hand, using Split to recognise frame
// boundaries that fall either on the '\n' terminator or on an adjacent
// "}{"  boundary between two coalesced JSON objects.
package frame

import (
	"encoding/json"
	"fmt"

	"github.com/LorenzoLeonardo/remote-call/value"
)

// Kind identifies the role of a Frame, matching the protocol's integer
// wire codes exactly.
type Kind uint32

const (
	AddShareObjectRequest Kind = iota
	AddShareObjectResponse
	RemoteCallRequest
	RemoteCallResponse
	SendEventRequest
	SendEventResponse
	SubscribeEventRequest
	SubscribeEventResponse
	RemoveShareObjectRequest
	RemoveShareObjectResponse
	WaitForObject
)

func (k Kind) String() string {
	switch k {
	case AddShareObjectRequest:
		return "AddShareObjectRequest"
	case AddShareObjectResponse:
		return "AddShareObjectResponse"
	case RemoteCallRequest:
		return "RemoteCallRequest"
	case RemoteCallResponse:
		return "RemoteCallResponse"
	case SendEventRequest:
		return "SendEventRequest"
	case SendEventResponse:
		return "SendEventResponse"
	case SubscribeEventRequest:
		return "SubscribeEventRequest"
	case SubscribeEventResponse:
		return "SubscribeEventResponse"
	case RemoveShareObjectRequest:
		return "RemoveShareObjectRequest"
	case RemoveShareObjectResponse:
		return "RemoveShareObjectResponse"
	case WaitForObject:
		return "WaitForObject"
	default:
		return "Unknown"
	}
}

// Frame is a single broker message: a correlation id assigned exclusively
// by the broker, a kind tag, and an opaque payload (typically further JSON).
type Frame struct {
	ID   uint64 `json:"id"`
	Kind Kind   `json:"kind"`
	Msg  []byte `json:"msg"`
}

// wireFrame mirrors Frame but encodes Msg as a JSON array of byte integers
// ("msg":[109,121,...]), matching spec.md §6's wire format exactly. Go's
// encoding/json otherwise special-cases []byte as a base64 string, which
// would silently desync with the original protocol.
type wireFrame struct {
	ID   uint64 `json:"id"`
	Kind Kind   `json:"kind"`
	Msg  []int  `json:"msg"`
}

// MarshalJSON implements json.Marshaler, emitting Msg as an array of
// byte-sized integers rather than a base64 string.
func (f Frame) MarshalJSON() ([]byte, error) {
	msg := make([]int, len(f.Msg))
	for i, b := range f.Msg {
		msg[i] = int(b)
	}
	return json.Marshal(wireFrame{ID: f.ID, Kind: f.Kind, Msg: msg})
}

// UnmarshalJSON implements json.Unmarshaler, recovering Msg from its wire
// array-of-integers form. Unknown kind codes fail deserialization, per
// spec.md §6.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Kind > WaitForObject {
		return fmt.Errorf("frame: unknown kind code %d", w.Kind)
	}
	msg := make([]byte, len(w.Msg))
	for i, n := range w.Msg {
		msg[i] = byte(n)
	}
	f.ID = w.ID
	f.Kind = w.Kind
	f.Msg = msg
	return nil
}

// New builds a Frame with the given kind and raw payload bytes. The id is
// left zero; the broker dispatcher stamps it before forwarding.
func New(kind Kind, msg []byte) Frame {
	return Frame{Kind: kind, Msg: msg}
}

// WithID returns a copy of f with its id set.
func (f Frame) WithID(id uint64) Frame {
	f.ID = id
	return f
}

// Encode serializes f to its wire form: JSON followed by '\n'.
func (f Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses a single frame's JSON bytes (without trailing newline).
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// CallBody is the payload of a RemoteCallRequest frame.
type CallBody struct {
	Object string      `json:"object"`
	Method string      `json:"method"`
	Param  value.Value `json:"param"`
}

// EventBody is the payload of a SendEventRequest frame (and, unused, of a
// SubscribeEventRequest in the original design; subscribe instead carries
// the bare event name as its Msg).
type EventBody struct {
	Event string      `json:"event"`
	Param value.Value `json:"param"`
}

// Success/failure sentinels used as raw UTF-8 response bodies.
const (
	Success = "success"
	Failed  = "failed"
)

// ErrorBody is the JSON shape of a propagated error: {"error": <value>}.
type ErrorBody struct {
	Error value.Value `json:"error"`
}
