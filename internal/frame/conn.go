package frame

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
)

// ErrConnectionReset is returned by ReadFrames when the peer closed the
// connection in the middle of a frame rather than cleanly between frames.
var ErrConnectionReset = errors.New("frame: connection reset mid-frame")

// TransportError wraps a lower-level I/O failure on a Conn, distinguishing
// it from protocol-level ParseErrors per spec.md §7.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("frame: transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Conn is a full-duplex, framed connection over a reliable byte stream.
// Read and write halves are guarded by independent mutexes (grounded on
// original_source/src/socket.rs's split Arc<Mutex<..>> halves and
// coregx-stream/websocket/conn.go's bufio.Reader + dedicated write mutex
// idiom), so one reader and one writer make progress concurrently while
// multiple writers, or multiple readers, serialize against each other.
// This is the invariant that keeps frames from interleaving on the wire
// when several goroutines hold a reference to the same Conn.
type Conn struct {
	id     string
	raw    net.Conn
	reader *bufio.Reader

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewConn wraps an established net.Conn as a framed Conn, minting a stable
// peer id for the life of the connection.
func NewConn(raw net.Conn) *Conn {
	return &Conn{
		id:     uuid.New().String(),
		raw:    raw,
		reader: bufio.NewReader(raw),
	}
}

// PeerID returns a stable string identifying the remote endpoint for the
// life of the connection.
func (c *Conn) PeerID() string { return c.id }

// RemoteAddr exposes the underlying socket's peer address, mainly for
// logging.
func (c *Conn) RemoteAddr() string {
	if c.raw == nil {
		return ""
	}
	return c.raw.RemoteAddr().String()
}

// WriteFrame atomically emits one complete frame. Concurrent writers are
// serialized by writeMu so frames never interleave on the wire; the lock
// is held for the full write, including the unavoidable I/O await, but
// never across any other suspension point.
func (c *Conn) WriteFrame(f Frame) error {
	data, err := f.Encode()
	if err != nil {
		return fmt.Errorf("frame: encode: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.raw.Write(data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// ReadFrames returns the next one or more complete frames available on the
// connection, blocking until at least one frame (or EOF, or an error) is
// available. A zero-length, nil-error result signals a clean EOF.
//
// Every frame is '\n'-terminated on the wire, so bufio.Reader.ReadBytes
// stops at the first one even when several frames already sit coalesced
// in its internal buffer. To actually surface a coalesced read as a
// single batch, ReadFrames blocks for the first line and then keeps
// draining whatever is already buffered, with no further I/O, until the
// buffer runs dry or stops holding a full line.
func (c *Conn) ReadFrames() ([]Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if len(bytes.TrimSpace(line)) > 0 {
				return nil, ErrConnectionReset
			}
			return nil, nil
		}
		return nil, &TransportError{Op: "read", Err: err}
	}

	frames, decErr := c.decodeLine(line)
	if decErr != nil {
		return nil, decErr
	}

	for {
		peeked, err := c.reader.Peek(c.reader.Buffered())
		if err != nil || !bytes.Contains(peeked, []byte("\n")) {
			break
		}
		next, err := c.reader.ReadBytes('\n')
		if err != nil {
			break
		}
		more, decErr := c.decodeLine(next)
		if decErr != nil {
			return nil, decErr
		}
		frames = append(frames, more...)
	}

	return frames, nil
}

// decodeLine parses one already '\n'-terminated chunk. A line may itself
// carry several JSON objects glued with no separator if a legacy producer
// skipped the newline convention, so it is run through Split before
// decoding each object.
func (c *Conn) decodeLine(line []byte) ([]Frame, error) {
	parts, err := Split(line)
	if err != nil {
		return nil, fmt.Errorf("frame: parse error: %w", err)
	}
	frames := make([]Frame, 0, len(parts))
	for _, p := range parts {
		f, err := Decode(p)
		if err != nil {
			return nil, fmt.Errorf("frame: parse error: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}
