package client

import (
	"context"
	"encoding/json"

	"github.com/LorenzoLeonardo/remote-call/internal/frame"
	"github.com/LorenzoLeonardo/remote-call/value"
)

// EventCallback receives the parameter published alongside one event.
type EventCallback func(param value.Value) error

// EventSubscriber listens for events published under one name, grounded
// on original_source/src/event.rs's EventListener: a single
// SubscribeEventRequest followed by a background loop that hands every
// subsequent SendEventRequest frame to the callback.
type EventSubscriber struct {
	conn *frame.Conn
}

// Listen dials the broker, subscribes to name, and starts a background
// goroutine invoking callback for every published event until the
// connection is closed or ctx is cancelled. It returns once the
// subscription request has been written; the broker sends no
// acknowledgement for it.
func Listen(ctx context.Context, name string, callback EventCallback) (*EventSubscriber, error) {
	conn, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteFrame(frame.New(frame.SubscribeEventRequest, []byte(name))); err != nil {
		conn.Close()
		return nil, err
	}

	s := &EventSubscriber{conn: conn}
	go s.run(ctx, callback)
	return s, nil
}

func (s *EventSubscriber) run(ctx context.Context, callback EventCallback) {
	for {
		if ctx.Err() != nil {
			return
		}
		frames, err := s.conn.ReadFrames()
		if err != nil {
			return
		}
		if len(frames) == 0 {
			return
		}
		for _, f := range frames {
			if f.Kind != frame.SendEventRequest {
				continue
			}
			var body frame.EventBody
			if err := json.Unmarshal(f.Msg, &body); err != nil {
				continue
			}
			_ = callback(body.Param)
		}
	}
}

// Close ends the subscription by closing its connection, which also
// stops the background read loop on its next iteration.
func (s *EventSubscriber) Close() error {
	return s.conn.Close()
}
