package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/LorenzoLeonardo/remote-call/internal/frame"
	"github.com/LorenzoLeonardo/remote-call/value"
)

// Handler answers remote_call invocations made against one registered
// object. It is the Go shape of original_source/src/shared_object.rs's
// SharedObject trait.
type Handler interface {
	RemoteCall(method string, param value.Value) (value.Value, error)
}

// HandlerFunc adapts a plain function to a Handler.
type HandlerFunc func(method string, param value.Value) (value.Value, error)

func (f HandlerFunc) RemoteCall(method string, param value.Value) (value.Value, error) {
	return f(method, param)
}

// ObjectDispatcher owns one connection to the broker on behalf of a
// process that hosts one or more shared objects. Grounded on
// original_source/src/shared_object.rs's SharedObjectDispatcher: objects
// are registered locally before the broker is told about them, then one
// background loop serves every RemoteCallRequest the broker forwards to
// this connection for as long as Spawn runs.
type ObjectDispatcher struct {
	conn *frame.Conn

	mu       sync.Mutex
	handlers map[string]Handler
}

// NewObjectDispatcher dials the broker at the address resolved from
// ENV_SERVER_ADDRESS (or the default), ready to register objects.
func NewObjectDispatcher(ctx context.Context) (*ObjectDispatcher, error) {
	conn, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	return &ObjectDispatcher{conn: conn, handlers: make(map[string]Handler)}, nil
}

// RegisterObject records handler under name locally, then announces the
// object to the broker with an AddShareObjectRequest. It returns
// ErrRegistrationFailed if the broker rejects the registration.
func (d *ObjectDispatcher) RegisterObject(name string, handler Handler) error {
	d.mu.Lock()
	d.handlers[name] = handler
	d.mu.Unlock()

	if err := d.conn.WriteFrame(frame.New(frame.AddShareObjectRequest, []byte(name))); err != nil {
		return err
	}
	frames, err := d.conn.ReadFrames()
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return &frame.TransportError{Op: "register", Err: fmt.Errorf("connection closed before response")}
	}
	resp := frames[0]
	if resp.Kind != frame.AddShareObjectResponse || string(resp.Msg) != frame.Success {
		return ErrRegistrationFailed
	}
	return nil
}

// Spawn starts the dispatch loop in a background goroutine and returns a
// channel that receives its terminal error (nil on a clean shutdown via
// ctx) exactly once, mirroring the original's tokio::JoinHandle. The loop
// answers every RemoteCallRequest the broker forwards for a locally
// registered object and ignores any other frame kind.
func (d *ObjectDispatcher) Spawn(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- d.run(ctx)
	}()
	return done
}

func (d *ObjectDispatcher) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		frames, err := d.conn.ReadFrames()
		if err != nil {
			return err
		}
		if len(frames) == 0 {
			return nil
		}
		for _, f := range frames {
			if f.Kind != frame.RemoteCallRequest {
				continue
			}
			d.serve(f)
		}
	}
}

func (d *ObjectDispatcher) serve(req frame.Frame) {
	_ = d.conn.WriteFrame(d.handle(req))
}

func (d *ObjectDispatcher) handle(req frame.Frame) frame.Frame {
	var body frame.CallBody
	if err := json.Unmarshal(req.Msg, &body); err != nil {
		return errorFrame(req.ID, ErrSerdeParseError)
	}

	d.mu.Lock()
	h, ok := d.handlers[body.Object]
	d.mu.Unlock()
	if !ok {
		return errorFrame(req.ID, ErrObjectNotFound)
	}

	result, err := h.RemoteCall(body.Method, body.Param)
	if err != nil {
		return errorFrame(req.ID, err.Error())
	}

	payload, merr := result.Bytes()
	if merr != nil {
		return errorFrame(req.ID, ErrSerdeParseError)
	}
	return frame.New(frame.RemoteCallResponse, payload).WithID(req.ID)
}

func errorFrame(id uint64, message string) frame.Frame {
	body, err := json.Marshal(frame.ErrorBody{Error: value.String(message)})
	if err != nil {
		body = []byte(fmt.Sprintf(`{"error":%q}`, message))
	}
	return frame.New(frame.RemoteCallResponse, body).WithID(id)
}

// Close releases the dispatcher's connection to the broker.
func (d *ObjectDispatcher) Close() error {
	return d.conn.Close()
}
