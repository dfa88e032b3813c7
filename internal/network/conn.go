package network

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"deskpad/internal/metrics"
	"deskpad/internal/protocol"
)

// State is the lifecycle state of a Connection.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateReady
	StateFailed
	StateCancelled
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool { return s == StateFailed || s == StateCancelled }

// Connection owns exactly one bidirectional byte stream to one peer. It is
// created in Connecting, moves to Ready when the owner calls ready(), and
// ends in Failed (local IO error) or Cancelled (peer close, local close).
// Reaching a terminal state closes the stream and releases buffered data.
type Connection struct {
	peer         Peer
	conn         net.Conn
	writeTimeout time.Duration

	mu    sync.Mutex
	state State
	err   error

	writeMu sync.Mutex

	events chan protocol.Event
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func newConnection(conn net.Conn, peer Peer, writeTimeout time.Duration) *Connection {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Connection{
		peer:         peer,
		conn:         conn,
		writeTimeout: writeTimeout,
		state:        StateConnecting,
		events:       make(chan protocol.Event, 64),
		errs:         make(chan error, 8),
		done:         make(chan struct{}),
	}
}

// ready transitions Connecting -> Ready, unblocks sends and starts the
// receive loop. The receive loop is the only reader of the inbound stream.
func (c *Connection) ready() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateReady
	c.mu.Unlock()
	metrics.ConnectionsReady.Inc()
	go c.receiveLoop()
}

// Peer returns the remote endpoint this connection is bound to.
func (c *Connection) Peer() Peer { return c.peer }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the terminal error detail, if any.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Events delivers decoded inbound frames in arrival order. The channel is
// never closed; consumers must also select on Done.
func (c *Connection) Events() <-chan protocol.Event { return c.events }

// Errors delivers asynchronous transport errors.
func (c *Connection) Errors() <-chan error { return c.errs }

// Done is closed when the connection reaches a terminal state.
func (c *Connection) Done() <-chan struct{} { return c.done }

// WriteEvent encodes e and writes the frame to the stream, returning after
// the transport write completes. Writes are serialized; the write deadline
// bounds a stalled transport. A write failure is terminal.
func (c *Connection) WriteEvent(e protocol.Event) error {
	if c.State() != StateReady {
		return ErrNotReady
	}
	data, err := protocol.Encode(e)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if _, err := c.conn.Write(data); err != nil {
		werr := fmt.Errorf("%w: %v", ErrIOFailure, err)
		c.terminate(StateFailed, werr)
		return werr
	}
	return nil
}

// Close cancels the connection. Safe to call from any goroutine and
// idempotent; a Ready connection moves to Cancelled.
func (c *Connection) Close() {
	c.terminate(StateCancelled, nil)
}

// terminate performs the single terminal transition: record state and error
// detail, close the stream, release waiters.
func (c *Connection) terminate(s State, err error) {
	c.once.Do(func() {
		c.mu.Lock()
		wasReady := c.state == StateReady
		c.state = s
		c.err = err
		c.mu.Unlock()

		c.conn.Close()
		if wasReady {
			metrics.ConnectionsReady.Dec()
		}
		close(c.done)

		if err != nil {
			select {
			case c.errs <- err:
			default:
			}
			log.Printf("Connection: %s terminated (%s): %v", c.peer.DisplayName, s, err)
		} else {
			log.Printf("Connection: %s terminated (%s)", c.peer.DisplayName, s)
		}
	})
}

// receiveLoop reads frames off the stream until it ends. A malformed frame
// is logged and dropped; it never tears down the connection. A peer close
// transitions to Cancelled, a local IO error to Failed.
func (c *Connection) receiveLoop() {
	scanner := protocol.NewFrameScanner(c.conn)
	for {
		frame, err := scanner.Next()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				c.terminate(StateCancelled, ErrPeerClosed)
			case errors.Is(err, net.ErrClosed):
				c.terminate(StateCancelled, nil)
			default:
				c.terminate(StateFailed, fmt.Errorf("%w: %v", ErrIOFailure, err))
			}
			return
		}

		ev, err := protocol.Decode(frame)
		if err != nil {
			metrics.DecodeErrors.Inc()
			log.Printf("Connection: dropping malformed frame from %s: %v", c.peer.DisplayName, err)
			continue
		}
		metrics.EventsReceived.Inc()

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}
