// Package registry implements the broker's single-writer authority over
// shared objects, event subscriptions, and in-flight calls. All mutation
// happens inside one goroutine's loop; every other goroutine reaches the
// state exclusively through the request methods below, each of which
// blocks for the registry's one response.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/LorenzoLeonardo/remote-call/internal/frame"
	"github.com/LorenzoLeonardo/remote-call/value"
)

// ConnHandle is the minimal capability the registry needs from a framed
// connection: a stable identity suitable as a map key, and the ability to
// write a frame back to the peer. *frame.Conn satisfies this.
type ConnHandle interface {
	PeerID() string
	WriteFrame(frame.Frame) error
}

// CallResult is the outcome of a CallMethod request. Forwarded reports
// whether the request frame was handed off to the object's owner; when
// true, the dispatcher must NOT write Response to the caller, since the
// owner's eventual RemoteCallResponse is what closes the loop.
type CallResult struct {
	Response  frame.Frame
	Forwarded bool
}

type addReq struct {
	id    uint64
	name  string
	conn  ConnHandle
	reply chan frame.Frame
}

type removeReq struct {
	conn ConnHandle
	done chan struct{}
}

type callReq struct {
	f     frame.Frame
	conn  ConnHandle
	reply chan CallResult
}

type routeResponseReq struct {
	f     frame.Frame
	reply chan bool
}

type waitReq struct {
	id    uint64
	name  string
	reply chan frame.Frame
}

type subscribeReq struct {
	id    uint64
	name  string
	conn  ConnHandle
	reply chan frame.Frame
}

type sendEventReq struct {
	f     frame.Frame
	reply chan frame.Frame
}

type listObjectsReq struct {
	reply chan frame.Frame
}

// Registry is the broker's registry actor. The zero value is not usable;
// construct with New.
type Registry struct {
	reqCh  chan any
	nextID atomic.Uint64
	logger *log.Logger
}

// New constructs a Registry. A nil logger falls back to log.Default().
func New(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		reqCh:  make(chan any, 64),
		logger: logger,
	}
}

// NextID returns the next monotonically increasing correlation id. It is
// a lock-free atomic counter rather than a registry message: sequence
// generation carries no cross-field invariant with objects/events/inflight
// (see DESIGN.md for the Open Question resolution), so routing it through
// the actor's serialized loop would only add latency.
func (r *Registry) NextID() uint64 {
	return r.nextID.Add(1)
}

// Run drains the registry's request channel until ctx is cancelled. It
// owns objects, events, and inflight exclusively: no other goroutine ever
// reads or writes them directly.
func (r *Registry) Run(ctx context.Context) {
	objects := make(map[string]ConnHandle)
	events := make(map[string]map[ConnHandle]struct{})
	inflight := make(map[uint64]ConnHandle)

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.reqCh:
			switch m := req.(type) {
			case addReq:
				objects[m.name] = m.conn
				m.reply <- frame.New(frame.AddShareObjectResponse, []byte(frame.Success)).WithID(m.id)
			case removeReq:
				r.purge(objects, events, inflight, m.conn)
				if m.done != nil {
					close(m.done)
				}
			case callReq:
				m.reply <- r.handleCall(objects, inflight, m)
			case routeResponseReq:
				m.reply <- r.routeResponse(inflight, m.f)
			case waitReq:
				body := frame.Failed
				if _, ok := objects[m.name]; ok {
					body = frame.Success
				}
				m.reply <- frame.New(frame.WaitForObject, []byte(body)).WithID(m.id)
			case subscribeReq:
				subs, ok := events[m.name]
				if !ok {
					subs = make(map[ConnHandle]struct{})
					events[m.name] = subs
				}
				subs[m.conn] = struct{}{}
				m.reply <- frame.New(frame.SubscribeEventResponse, []byte(frame.Success)).WithID(m.id)
			case sendEventReq:
				r.broadcastEvent(events, m.f)
				m.reply <- frame.New(frame.SendEventResponse, []byte(frame.Success)).WithID(m.f.ID)
			case listObjectsReq:
				names := make([]string, 0, len(objects))
				for name := range objects {
					names = append(names, name)
				}
				body, err := json.Marshal(struct {
					Objects []string `json:"objects"`
				}{Objects: names})
				if err != nil {
					r.logger.Printf("registry: marshal object list: %v", err)
					body = []byte(`{"objects":[]}`)
				}
				m.reply <- frame.New(frame.WaitForObject, body)
			}
		}
	}
}

// purge removes every object, subscription, and caller-keyed inflight
// entry owned by conn, per spec.md §3's disconnect-cleanup invariant.
func (r *Registry) purge(objects map[string]ConnHandle, events map[string]map[ConnHandle]struct{}, inflight map[uint64]ConnHandle, conn ConnHandle) {
	for name, owner := range objects {
		if owner == conn {
			delete(objects, name)
		}
	}
	for name, subs := range events {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(events, name)
		}
	}
	for id, caller := range inflight {
		if caller == conn {
			delete(inflight, id)
		}
	}
}

func (r *Registry) handleCall(objects map[string]ConnHandle, inflight map[uint64]ConnHandle, m callReq) CallResult {
	var body frame.CallBody
	if err := json.Unmarshal(m.f.Msg, &body); err != nil {
		return CallResult{Response: errorResponse(m.f.ID, "failed")}
	}

	owner, ok := objects[body.Object]
	if !ok {
		return CallResult{Response: errorResponse(m.f.ID, "Object not found")}
	}

	inflight[m.f.ID] = m.conn
	if err := owner.WriteFrame(m.f); err != nil {
		r.logger.Printf("registry: forward to owner of %q failed: %v", body.Object, err)
		delete(objects, body.Object)
		delete(inflight, m.f.ID)
		return CallResult{Response: errorResponse(m.f.ID, "remote connection error")}
	}

	return CallResult{Response: frame.New(frame.RemoteCallResponse, []byte(frame.Success)).WithID(m.f.ID), Forwarded: true}
}

func (r *Registry) routeResponse(inflight map[uint64]ConnHandle, f frame.Frame) bool {
	caller, ok := inflight[f.ID]
	if !ok {
		return false
	}
	delete(inflight, f.ID)
	if err := caller.WriteFrame(f); err != nil {
		r.logger.Printf("registry: deliver response id=%d: %v", f.ID, err)
		return false
	}
	return true
}

func (r *Registry) broadcastEvent(events map[string]map[ConnHandle]struct{}, f frame.Frame) {
	var body frame.EventBody
	if err := json.Unmarshal(f.Msg, &body); err != nil {
		r.logger.Printf("registry: malformed event body: %v", err)
		return
	}
	for conn := range events[body.Event] {
		if err := conn.WriteFrame(f); err != nil {
			r.logger.Printf("registry: event %q delivery to %s failed: %v", body.Event, conn.PeerID(), err)
		}
	}
}

func errorResponse(id uint64, message string) frame.Frame {
	body, err := json.Marshal(frame.ErrorBody{Error: value.String(message)})
	if err != nil {
		body = []byte(fmt.Sprintf(`{"error":%q}`, message))
	}
	return frame.New(frame.RemoteCallResponse, body).WithID(id)
}

// Add inserts name -> conn into the object table (overwrite allowed) and
// returns the broker's AddShareObjectResponse frame, stamped with id.
func (r *Registry) Add(ctx context.Context, id uint64, name string, conn ConnHandle) (frame.Frame, error) {
	reply := make(chan frame.Frame, 1)
	return r.send(ctx, addReq{id: id, name: name, conn: conn, reply: reply}, reply)
}

// Remove purges every object, subscription, and caller-keyed inflight
// entry owned by conn. It blocks until the purge has completed.
func (r *Registry) Remove(ctx context.Context, conn ConnHandle) error {
	done := make(chan struct{})
	select {
	case r.reqCh <- removeReq{conn: conn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CallMethod looks up f's target object and either forwards f to the
// owner or produces an error response, per spec.md §4.2's CallMethod row.
func (r *Registry) CallMethod(ctx context.Context, f frame.Frame, caller ConnHandle) (CallResult, error) {
	reply := make(chan CallResult, 1)
	select {
	case r.reqCh <- callReq{f: f, conn: caller, reply: reply}:
	case <-ctx.Done():
		return CallResult{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return CallResult{}, ctx.Err()
	}
}

// RouteResponse delivers an inbound RemoteCallResponse frame to the
// caller recorded in inflight, if any, and reports whether it found one.
func (r *Registry) RouteResponse(ctx context.Context, f frame.Frame) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case r.reqCh <- routeResponseReq{f: f, reply: reply}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case delivered := <-reply:
		return delivered, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// WaitForObject reports whether name is currently registered, as a
// WaitForObject frame carrying the success/failed sentinel, stamped with
// id.
func (r *Registry) WaitForObject(ctx context.Context, id uint64, name string) (frame.Frame, error) {
	reply := make(chan frame.Frame, 1)
	return r.send(ctx, waitReq{id: id, name: name, reply: reply}, reply)
}

// SubscribeEvent adds conn to the set of subscribers for name. The
// (name, conn) pair is idempotent.
func (r *Registry) SubscribeEvent(ctx context.Context, id uint64, name string, conn ConnHandle) (frame.Frame, error) {
	reply := make(chan frame.Frame, 1)
	return r.send(ctx, subscribeReq{id: id, name: name, conn: conn, reply: reply}, reply)
}

// SendEvent parses f's EventBody and writes f verbatim to every current
// subscriber of that event name. Individual delivery failures are logged,
// never propagated to the sender.
func (r *Registry) SendEvent(ctx context.Context, f frame.Frame) (frame.Frame, error) {
	reply := make(chan frame.Frame, 1)
	return r.send(ctx, sendEventReq{f: f, reply: reply}, reply)
}

// ListObjects returns a frame whose body is {"objects": [names...]}.
func (r *Registry) ListObjects(ctx context.Context) (frame.Frame, error) {
	reply := make(chan frame.Frame, 1)
	return r.send(ctx, listObjectsReq{reply: reply}, reply)
}

func (r *Registry) send(ctx context.Context, req any, reply chan frame.Frame) (frame.Frame, error) {
	select {
	case r.reqCh <- req:
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	}
	select {
	case f := <-reply:
		return f, nil
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	}
}
