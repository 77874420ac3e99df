package client

import (
	"context"
	"fmt"
	"time"

	"github.com/LorenzoLeonardo/remote-call/internal/frame"
)

// pollInterval bounds how often an unresolved name is retried. The
// original polls in a tight tokio::task::yield_now() loop; a network
// round trip to the broker already yields real work each iteration, so
// this is a small courtesy delay rather than a required backoff.
const pollInterval = 5 * time.Millisecond

// WaitForObjects blocks, on one transient connection, until every name
// in names has been registered with the broker, or until ctx is done.
// Grounded on original_source/src/wait_for_object.rs's wait_for_objects,
// which opens a single connection for the whole list rather than one
// per name.
func WaitForObjects(ctx context.Context, names []string) error {
	conn, err := dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, name := range names {
		if err := waitForOne(ctx, conn, name); err != nil {
			return err
		}
	}
	return nil
}

func waitForOne(ctx context.Context, conn *frame.Conn, name string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := conn.WriteFrame(frame.New(frame.WaitForObject, []byte(name))); err != nil {
			return err
		}
		frames, err := conn.ReadFrames()
		if err != nil {
			return err
		}
		if len(frames) == 0 {
			return fmt.Errorf("client: %s", ErrRemoteConnectionError)
		}
		if string(frames[0].Msg) == frame.Success {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
