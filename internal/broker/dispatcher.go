package broker

import (
	"context"
	"errors"
	"log"

	"github.com/LorenzoLeonardo/remote-call/internal/frame"
	"github.com/LorenzoLeonardo/remote-call/internal/registry"
)

// Dispatcher drives the protocol's state machine on one accepted
// connection: it assigns correlation ids, forwards requests to the
// registry, and writes responses back, per spec.md §4.3.
type Dispatcher struct {
	conn     *frame.Conn
	registry *registry.Registry
	logger   *log.Logger
}

// run is the Connected state: read frames until EOF or a transport error,
// dispatching each one, then drive Closing. A line that fails to parse is
// logged and dropped, and the connection stays open.
func (d *Dispatcher) run(ctx context.Context) {
	defer d.close(ctx)

	for {
		frames, err := d.conn.ReadFrames()
		if err != nil {
			var te *frame.TransportError
			if !errors.Is(err, frame.ErrConnectionReset) && !errors.As(err, &te) {
				d.logger.Printf("broker: dropping malformed frame from %s: %v", d.conn.PeerID(), err)
				continue
			}
			if !errors.Is(err, frame.ErrConnectionReset) {
				d.logger.Printf("broker: read from %s: %v", d.conn.PeerID(), err)
			}
			return
		}
		if len(frames) == 0 {
			return // clean EOF
		}
		for _, f := range frames {
			d.dispatch(ctx, f)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, f frame.Frame) {
	switch f.Kind {
	case frame.AddShareObjectRequest:
		d.handleAdd(ctx, f)
	case frame.RemoteCallRequest:
		d.handleCallRequest(ctx, f)
	case frame.RemoteCallResponse:
		d.handleCallResponse(ctx, f)
	case frame.SubscribeEventRequest:
		d.handleSubscribe(ctx, f)
	case frame.SendEventRequest:
		d.handleSendEvent(ctx, f)
	case frame.WaitForObject:
		d.handleWait(ctx, f)
	case frame.RemoveShareObjectRequest:
		// Reserved: defined on the wire, decodes without error, but no
		// client in this protocol issues it and no handler drives it.
	default:
		d.logger.Printf("broker: dropping unexpected frame kind %s from %s", f.Kind, d.conn.PeerID())
	}
}

func (d *Dispatcher) handleAdd(ctx context.Context, f frame.Frame) {
	id := d.registry.NextID()
	resp, err := d.registry.Add(ctx, id, string(f.Msg), d.conn)
	if err != nil {
		return
	}
	d.write(resp)
}

func (d *Dispatcher) handleCallRequest(ctx context.Context, f frame.Frame) {
	id := d.registry.NextID()
	f = f.WithID(id)
	res, err := d.registry.CallMethod(ctx, f, d.conn)
	if err != nil {
		return
	}
	if res.Forwarded {
		// The owner's eventual RemoteCallResponse closes the loop; nothing
		// is written to the caller here.
		return
	}
	d.write(res.Response)
}

func (d *Dispatcher) handleCallResponse(ctx context.Context, f frame.Frame) {
	if _, err := d.registry.RouteResponse(ctx, f); err != nil {
		d.logger.Printf("broker: route response id=%d: %v", f.ID, err)
	}
}

func (d *Dispatcher) handleSubscribe(ctx context.Context, f frame.Frame) {
	id := d.registry.NextID()
	if _, err := d.registry.SubscribeEvent(ctx, id, string(f.Msg), d.conn); err != nil {
		d.logger.Printf("broker: subscribe from %s: %v", d.conn.PeerID(), err)
	}
	// No reply to the subscriber, per spec.md §4.3 step 5.
}

func (d *Dispatcher) handleSendEvent(ctx context.Context, f frame.Frame) {
	id := d.registry.NextID()
	if _, err := d.registry.SendEvent(ctx, f.WithID(id)); err != nil {
		d.logger.Printf("broker: send event from %s: %v", d.conn.PeerID(), err)
	}
	// No reply to the sender, per spec.md §4.3 step 6.
}

func (d *Dispatcher) handleWait(ctx context.Context, f frame.Frame) {
	id := d.registry.NextID()
	resp, err := d.registry.WaitForObject(ctx, id, string(f.Msg))
	if err != nil {
		return
	}
	d.write(resp)
}

func (d *Dispatcher) write(f frame.Frame) {
	if err := d.conn.WriteFrame(f); err != nil {
		d.logger.Printf("broker: write to %s: %v", d.conn.PeerID(), err)
	}
}

func (d *Dispatcher) close(ctx context.Context) {
	d.conn.Close()
	if err := d.registry.Remove(ctx, d.conn); err != nil && ctx.Err() == nil {
		d.logger.Printf("broker: purge %s: %v", d.conn.PeerID(), err)
	}
}
