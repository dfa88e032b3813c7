// Package dispatch serializes application-level send calls into a strictly
// ordered, backpressured stream feeding the active connection. All sends
// pass through a single ordered queue with one in-flight permit: a second
// Send invoked before the first write completes blocks until it does, so
// wire order always matches call order, even under concurrent callers.
package dispatch

import (
	"log"
	"sync"
	"sync/atomic"

	"deskpad/internal/metrics"
	"deskpad/internal/network"
	"deskpad/internal/protocol"
)

// Dispatcher is the client-side send path. Remote-control input is live:
// when no connection is ready, events are dropped rather than buffered, so
// stale input never replays after a reconnect gap.
type Dispatcher struct {
	requests chan request
	errs     chan error
	conn     atomic.Pointer[network.Connection]

	done     chan struct{}
	stopOnce sync.Once
}

type request struct {
	ev   protocol.Event
	done chan struct{}
}

// New creates a Dispatcher and starts its single writer goroutine.
func New() *Dispatcher {
	d := &Dispatcher{
		requests: make(chan request),
		errs:     make(chan error, 16),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Attach binds the dispatcher to a ready connection. Any previous
// attachment is replaced; no ordering guarantee crosses the swap.
func (d *Dispatcher) Attach(c *network.Connection) {
	d.conn.Store(c)
}

// Detach unbinds the current connection. Subsequent sends are dropped.
func (d *Dispatcher) Detach() {
	d.conn.Store(nil)
}

// Send hands e to the transport and returns once the write has completed
// (or the event was dropped). It never returns an error to the caller;
// transport failures surface asynchronously on Errors. Safe for concurrent
// use: callers are admitted one at a time in arrival order.
func (d *Dispatcher) Send(e protocol.Event) {
	req := request{ev: e, done: make(chan struct{})}
	select {
	case d.requests <- req:
	case <-d.done:
		return
	}
	select {
	case <-req.done:
	case <-d.done:
	}
}

// Errors delivers asynchronous transport errors. An error does not
// interrupt subsequently queued sends.
func (d *Dispatcher) Errors() <-chan error { return d.errs }

// Stop shuts the dispatcher down, unblocking any parked Send. Idempotent.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
}

// run is the single in-flight permit: one transport write at a time, in
// queue order.
func (d *Dispatcher) run() {
	for {
		select {
		case req := <-d.requests:
			d.write(req.ev)
			close(req.done)
		case <-d.done:
			return
		}
	}
}

func (d *Dispatcher) write(e protocol.Event) {
	conn := d.conn.Load()
	if conn == nil || conn.State() != network.StateReady {
		metrics.EventsDropped.Inc()
		return
	}
	if err := conn.WriteEvent(e); err != nil {
		select {
		case d.errs <- err:
		default:
			log.Printf("Dispatcher: error channel full, dropping: %v", err)
		}
		return
	}
	metrics.EventsSent.Inc()
}
