// Package client is the library used by processes that host shared
// objects and/or call them: ObjectDispatcher registers objects and
// serves inbound calls, Connector issues outbound calls and events,
// EventSubscriber listens for published events, and WaitForObjects
// blocks until a set of objects exist. Grounded on
// original_source/src/shared_object.rs, connector.rs, event.rs, and
// wait_for_object.rs, adapted from per-call tokio tasks to goroutines.
package client

import (
	"context"
	"net"
	"os"

	"github.com/LorenzoLeonardo/remote-call/internal/config"
	"github.com/LorenzoLeonardo/remote-call/internal/frame"
)

func resolveAddress() string {
	if addr := os.Getenv(config.EnvServerAddress); addr != "" {
		return addr
	}
	return config.DefaultAddress
}

func dial(ctx context.Context) (*frame.Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", resolveAddress())
	if err != nil {
		return nil, &frame.TransportError{Op: "dial", Err: err}
	}
	return frame.NewConn(raw), nil
}
