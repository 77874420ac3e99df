package broker

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/LorenzoLeonardo/remote-call/internal/frame"
	"github.com/LorenzoLeonardo/remote-call/internal/registry"
	"github.com/LorenzoLeonardo/remote-call/value"
)

func startServer(t *testing.T) (addr string, cancel context.CancelFunc) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	s := NewServer("127.0.0.1:0", registry.New(nil), nil)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	select {
	case <-s.Ready():
	case err := <-errCh:
		t.Fatalf("server exited before becoming ready: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not become ready")
	}
	t.Cleanup(cancelFn)
	return s.Addr(), cancelFn
}

func dial(t *testing.T, addr string) *frame.Conn {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { c.Close() })
	return frame.NewConn(c)
}

func readFrame(t *testing.T, c *frame.Conn, timeout time.Duration) frame.Frame {
	t.Helper()
	type result struct {
		frames []frame.Frame
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := c.ReadFrames()
		ch <- result{f, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("ReadFrames: %v", r.err)
		}
		if len(r.frames) == 0 {
			t.Fatalf("ReadFrames returned no frames")
		}
		return r.frames[0]
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for a frame")
		return frame.Frame{}
	}
}

func TestDispatcherAddAndWaitForObject(t *testing.T) {
	addr, _ := startServer(t)
	owner := dial(t, addr)

	if err := owner.WriteFrame(frame.New(frame.AddShareObjectRequest, []byte("mango"))); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	addResp := readFrame(t, owner, time.Second)
	if addResp.Kind != frame.AddShareObjectResponse || string(addResp.Msg) != frame.Success {
		t.Fatalf("AddShareObjectResponse = %+v", addResp)
	}

	waiter := dial(t, addr)
	if err := waiter.WriteFrame(frame.New(frame.WaitForObject, []byte("mango"))); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	waitResp := readFrame(t, waiter, time.Second)
	if string(waitResp.Msg) != frame.Success {
		t.Fatalf("WaitForObject(mango) = %+v, want success", waitResp)
	}
}

func TestDispatcherCallRoundTrip(t *testing.T) {
	addr, _ := startServer(t)
	owner := dial(t, addr)
	caller := dial(t, addr)

	if err := owner.WriteFrame(frame.New(frame.AddShareObjectRequest, []byte("mango"))); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	readFrame(t, owner, time.Second) // AddShareObjectResponse

	body := frame.CallBody{Object: "mango", Method: "login", Param: value.Map(map[string]value.Value{
		"provider": value.String("microsoft"),
	})}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal CallBody: %v", err)
	}
	if err := caller.WriteFrame(frame.New(frame.RemoteCallRequest, raw)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	req := readFrame(t, owner, time.Second)
	if req.Kind != frame.RemoteCallRequest {
		t.Fatalf("owner received kind %s, want RemoteCallRequest", req.Kind)
	}
	var gotBody frame.CallBody
	if err := json.Unmarshal(req.Msg, &gotBody); err != nil {
		t.Fatalf("unmarshal forwarded CallBody: %v", err)
	}
	if gotBody.Object != "mango" || gotBody.Method != "login" {
		t.Fatalf("forwarded CallBody = %+v", gotBody)
	}

	reply := frame.New(frame.RemoteCallResponse, []byte(`"This is my response from mango"`)).WithID(req.ID)
	if err := owner.WriteFrame(reply); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	final := readFrame(t, caller, time.Second)
	if final.ID != req.ID {
		t.Fatalf("final response id = %d, want %d", final.ID, req.ID)
	}
	var s string
	if err := json.Unmarshal(final.Msg, &s); err != nil {
		t.Fatalf("unmarshal final response: %v", err)
	}
	if s != "This is my response from mango" {
		t.Fatalf("final response = %q", s)
	}
}

func TestDispatcherCallUnknownObject(t *testing.T) {
	addr, _ := startServer(t)
	caller := dial(t, addr)

	body := frame.CallBody{Object: "no object", Method: "login", Param: value.Null()}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal CallBody: %v", err)
	}
	if err := caller.WriteFrame(frame.New(frame.RemoteCallRequest, raw)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	resp := readFrame(t, caller, time.Second)
	var errBody frame.ErrorBody
	if err := json.Unmarshal(resp.Msg, &errBody); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if s, _ := errBody.Error.AsString(); s != "Object not found" {
		t.Fatalf("error = %v, want %q", errBody.Error, "Object not found")
	}
}

func TestDispatcherEventRoundTrip(t *testing.T) {
	addr, _ := startServer(t)
	subscriber := dial(t, addr)
	publisher := dial(t, addr)

	if err := subscriber.WriteFrame(frame.New(frame.SubscribeEventRequest, []byte("event"))); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	// No response is ever written for a subscribe; give the broker a beat
	// to process it before publishing.
	time.Sleep(20 * time.Millisecond)

	body := frame.EventBody{Event: "event", Param: value.String("Sending you this event!!")}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal EventBody: %v", err)
	}
	if err := publisher.WriteFrame(frame.New(frame.SendEventRequest, raw)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got := readFrame(t, subscriber, time.Second)
	var gotBody frame.EventBody
	if err := json.Unmarshal(got.Msg, &gotBody); err != nil {
		t.Fatalf("unmarshal delivered event: %v", err)
	}
	if s, _ := gotBody.Param.AsString(); s != "Sending you this event!!" {
		t.Fatalf("event param = %v", gotBody.Param)
	}
}

func TestDispatcherDisconnectPurgesObject(t *testing.T) {
	addr, _ := startServer(t)
	owner := dial(t, addr)

	if err := owner.WriteFrame(frame.New(frame.AddShareObjectRequest, []byte("mango"))); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	readFrame(t, owner, time.Second)
	owner.Close()

	waiter := dial(t, addr)
	// Poll briefly: disconnect cleanup races with this check.
	deadline := time.Now().Add(time.Second)
	for {
		if err := waiter.WriteFrame(frame.New(frame.WaitForObject, []byte("mango"))); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
		resp := readFrame(t, waiter, time.Second)
		if string(resp.Msg) == frame.Failed {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("mango still registered after owner disconnected")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
