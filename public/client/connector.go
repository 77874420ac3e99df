package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/LorenzoLeonardo/remote-call/internal/frame"
	"github.com/LorenzoLeonardo/remote-call/value"
)

// Connector is a caller-role connection to the broker: it issues
// RemoteCall and SendEvent requests and is not itself a call target.
// Grounded on original_source/src/connector.rs's Connector, which makes
// exactly one write and one read per remote_call rather than pipelining,
// so a Connector must not be shared across concurrent calls without the
// caller serializing access itself.
type Connector struct {
	conn *frame.Conn
}

// Connect dials the broker at the address resolved from
// ENV_SERVER_ADDRESS (or the default).
func Connect(ctx context.Context) (*Connector, error) {
	conn, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	return &Connector{conn: conn}, nil
}

// RemoteCall invokes method on object with param, blocking for the
// broker's response. A RemoteCallResponse carrying an ErrorBody surfaces
// as a *RemoteError; any other failure surfaces as a plain error.
func (c *Connector) RemoteCall(object, method string, param value.Value) (value.Value, error) {
	body, err := json.Marshal(frame.CallBody{Object: object, Method: method, Param: param})
	if err != nil {
		return value.Value{}, fmt.Errorf("client: encode call: %w", err)
	}

	if err := c.conn.WriteFrame(frame.New(frame.RemoteCallRequest, body)); err != nil {
		return value.Value{}, err
	}

	frames, err := c.conn.ReadFrames()
	if err != nil {
		return value.Value{}, err
	}
	if len(frames) == 0 {
		return value.Value{}, fmt.Errorf("client: %s", ErrRemoteConnectionError)
	}
	resp := frames[0]
	if resp.Kind != frame.RemoteCallResponse {
		return value.Value{}, fmt.Errorf("client: %s", ErrInvalidResponseData)
	}

	var errBody frame.ErrorBody
	if err := json.Unmarshal(resp.Msg, &errBody); err == nil && !errBody.Error.IsNull() {
		return value.Value{}, &RemoteError{Payload: errBody.Error}
	}

	result, err := value.FromBytes(resp.Msg)
	if err != nil {
		return value.Value{}, fmt.Errorf("client: %s", ErrInvalidResponseData)
	}
	return result, nil
}

// SendEvent publishes param under event name to every current subscriber.
// It does not wait for a broker acknowledgement.
func (c *Connector) SendEvent(name string, param value.Value) error {
	body, err := json.Marshal(frame.EventBody{Event: name, Param: param})
	if err != nil {
		return fmt.Errorf("client: encode event: %w", err)
	}
	return c.conn.WriteFrame(frame.New(frame.SendEventRequest, body))
}

// Close releases the connector's connection to the broker.
func (c *Connector) Close() error {
	return c.conn.Close()
}
