// Package network provides peer discovery and the event-stream connection
// between the handheld client and the desktop host. Two discovery
// transports share one contract: LAN discovery (UDP presence beacons plus a
// well-known TCP port) and proximity discovery (an inter-device ranging
// feed). The transport is chosen once per process by a capability probe and
// never changes mid-session; there is deliberately no automatic fallback.
package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"deskpad/internal/protocol"
)

// ServiceName is the fixed application-specific service identifier.
const ServiceName = "deskpad"

// Fixed well-known ports for the network transport.
const (
	DefaultEventPort  = 35712
	DefaultBeaconPort = 35711
)

// Default timing parameters.
const (
	DefaultBeaconInterval = 1 * time.Second
	DefaultPeerTimeout    = 3 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultDeclineWindow  = 1 * time.Second
	DefaultRetryAttempts  = 3
	DefaultRetryDelay     = 2 * time.Second
)

// Transport identifies which discovery path produced a peer.
type Transport string

const (
	TransportNetwork   Transport = "network"
	TransportProximity Transport = "proximity"
)

// Peer is a discovered endpoint eligible for connection. Peers live only in
// memory: created on a discovery signal, refreshed while still advertising,
// removed on a lost/expired signal, never persisted.
type Peer struct {
	ID          string
	DisplayName string
	Transport   Transport
	Addr        string // transport-specific handle: host:port of the event stream
	LastSeen    time.Time
}

// PeerEvent is one peer-appeared or peer-lost signal from a browse stream.
type PeerEvent struct {
	Peer Peer
	Lost bool
}

// DecideFunc is the host-side accept/decline decision for an inbound
// session, given the client's identity payload and remote address.
// Returning false declines the session; the client sees the stream close.
type DecideFunc func(protocol.Handshake, string) bool

// Discovery locates candidate peers and produces Connections. Both
// transports implement this contract.
type Discovery interface {
	// Advertise publishes presence for the host role. It fails after the
	// bounded retry budget if the local port stays bound or the transport
	// cannot start; the error is terminal.
	Advertise(serviceName string) error

	// Browse starts the client-role peer stream. Only peers advertising
	// the host role are surfaced. The stream is restartable: a second
	// Browse call replaces the first.
	Browse() (<-chan PeerEvent, error)

	// Connect establishes the event stream to peer, transmitting the
	// identity payload first. It blocks until the connection is Ready or
	// fails with ErrDeclined, ErrTimeout or ErrCancelled.
	Connect(peer Peer) (*Connection, error)

	// Sessions delivers accepted inbound connections on the host side.
	Sessions() <-chan *Connection

	// Stop cancels in-flight work and releases all resources. Idempotent.
	Stop()
}

// Config carries tunables shared by both discovery transports. The zero
// value is usable; unset fields take the package defaults.
type Config struct {
	EventPort      int
	BeaconPort     int
	BroadcastAddr  string // beacon destination host, default 255.255.255.255
	BeaconInterval time.Duration
	PeerTimeout    time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	DeclineWindow  time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration

	// Identity is the client-side handshake payload sent on Connect.
	Identity protocol.Handshake

	// Decide is the host-side accept/decline hook. Nil accepts everything.
	Decide DecideFunc
}

func (c Config) withDefaults() Config {
	if c.EventPort == 0 {
		c.EventPort = DefaultEventPort
	}
	if c.BeaconPort == 0 {
		c.BeaconPort = DefaultBeaconPort
	}
	if c.BroadcastAddr == "" {
		c.BroadcastAddr = "255.255.255.255"
	}
	if c.BeaconInterval == 0 {
		c.BeaconInterval = DefaultBeaconInterval
	}
	if c.PeerTimeout == 0 {
		c.PeerTimeout = DefaultPeerTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.DeclineWindow == 0 {
		c.DeclineWindow = DefaultDeclineWindow
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// Choose runs the transport capability probe and returns the discovery
// implementation for this process. The decision is made once; a transport
// that later fails to start is terminal, the other path is not tried.
func Choose(cfg Config, ranger Ranger) Discovery {
	if ranger != nil && ranger.Available() {
		log.Printf("Discovery: proximity ranging available, using proximity transport")
		return NewProximity(cfg, ranger)
	}
	log.Printf("Discovery: using network transport")
	return NewLAN(cfg)
}

// retry runs fn up to attempts times, waiting delay between failures. It
// returns the last error, or ErrStopped if stop closes during a wait. No
// further attempt is made once the budget is spent.
func retry(attempts int, delay time.Duration, stop <-chan struct{}, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-stop:
			return ErrStopped
		}
	}
	return err
}

// connector holds the connection-establishment machinery shared by both
// transports: the host-side listener with handshake and accept/decline, the
// client-side dial path, and the one-live-connection-per-peer guard.
type connector struct {
	cfg   Config
	trans Transport

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	live     map[string]*Connection
	pending  map[string]bool
	listener net.Listener
	stopped  bool

	sessions chan *Connection
	stopOnce sync.Once
}

func newConnector(cfg Config, trans Transport) *connector {
	ctx, cancel := context.WithCancel(context.Background())
	return &connector{
		cfg:      cfg,
		trans:    trans,
		ctx:      ctx,
		cancel:   cancel,
		live:     make(map[string]*Connection),
		pending:  make(map[string]bool),
		sessions: make(chan *Connection, 4),
	}
}

func (c *connector) Sessions() <-chan *Connection { return c.sessions }

func (c *connector) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// listen binds the event-stream TCP listener, retrying per the discovery
// retry policy, and starts the accept loop.
func (c *connector) listen() error {
	var ln net.Listener
	err := retry(c.cfg.RetryAttempts, c.cfg.RetryDelay, c.ctx.Done(), func() error {
		var err error
		ln, err = net.Listen("tcp", fmt.Sprintf(":%d", c.cfg.EventPort))
		if err != nil {
			log.Printf("Discovery: listen on :%d failed, will retry: %v", c.cfg.EventPort, err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrStopped) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrAdvertise, err)
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		ln.Close()
		return ErrStopped
	}
	c.listener = ln
	c.mu.Unlock()

	log.Printf("Discovery: accepting event streams on %s", ln.Addr())
	go c.acceptLoop(ln)
	return nil
}

func (c *connector) acceptLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-c.ctx.Done():
				return
			default:
				continue
			}
		}
		go c.handleInbound(nc)
	}
}

// handleInbound reads the client's identity line and applies the
// accept/decline decision. Declining closes the session without a typed
// reply; accepting registers a Ready connection on the sessions channel.
func (c *connector) handleInbound(nc net.Conn) {
	nc.SetReadDeadline(time.Now().Add(c.cfg.ConnectTimeout))
	line, err := bufio.NewReaderSize(nc, 4096).ReadBytes(protocol.Delimiter)
	if err != nil {
		log.Printf("Discovery: inbound from %s: no handshake: %v", nc.RemoteAddr(), err)
		nc.Close()
		return
	}
	hs, err := protocol.DecodeHandshake(line)
	if err != nil {
		log.Printf("Discovery: inbound from %s: bad handshake: %v", nc.RemoteAddr(), err)
		nc.Close()
		return
	}
	nc.SetReadDeadline(time.Time{})

	remote := nc.RemoteAddr().String()
	if c.cfg.Decide != nil && !c.cfg.Decide(hs, remote) {
		log.Printf("Discovery: declined session from %q (%s)", hs.DeviceName, remote)
		nc.Close()
		return
	}

	peer := Peer{
		ID:          hs.DeviceID,
		DisplayName: hs.DeviceName,
		Transport:   c.trans,
		Addr:        remote,
		LastSeen:    time.Now(),
	}

	c.mu.Lock()
	if c.stopped || c.live[peer.ID] != nil {
		c.mu.Unlock()
		nc.Close()
		return
	}
	conn := newConnection(nc, peer, c.cfg.WriteTimeout)
	c.live[peer.ID] = conn
	c.mu.Unlock()

	conn.ready()
	go c.reap(peer.ID, conn)

	log.Printf("Discovery: accepted session from %q (%s)", hs.DeviceName, remote)
	select {
	case c.sessions <- conn:
	case <-c.ctx.Done():
		conn.Close()
	}
}

// Connect dials peer, sends the identity payload and watches the stream for
// an early close during the decline window. A second Connect to a peer with
// a live connection fails fast instead of opening a duplicate stream.
func (c *connector) Connect(peer Peer) (*Connection, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	if c.live[peer.ID] != nil || c.pending[peer.ID] {
		c.mu.Unlock()
		return nil, ErrDuplicate
	}
	c.pending[peer.ID] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, peer.ID)
		c.mu.Unlock()
	}()

	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	nc, err := dialer.DialContext(c.ctx, "tcp", peer.Addr)
	if err != nil {
		if c.ctx.Err() != nil {
			return nil, ErrCancelled
		}
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}

	frame, err := protocol.EncodeHandshake(c.cfg.Identity)
	if err != nil {
		nc.Close()
		return nil, err
	}
	nc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if _, err := nc.Write(frame); err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	nc.SetWriteDeadline(time.Time{})

	// The host answers only through the session itself: closing it means
	// declined, leaving it open means accepted. Watch for an early EOF.
	nc.SetReadDeadline(time.Now().Add(c.cfg.DeclineWindow))
	buf := make([]byte, 1)
	_, rerr := nc.Read(buf)
	switch {
	case rerr == nil:
		// Hosts never send event data; stray bytes are ignored.
	case errors.Is(rerr, io.EOF):
		nc.Close()
		return nil, ErrDeclined
	default:
		var nerr net.Error
		if !errors.As(rerr, &nerr) || !nerr.Timeout() {
			nc.Close()
			return nil, fmt.Errorf("%w: %v", ErrIOFailure, rerr)
		}
	}
	nc.SetReadDeadline(time.Time{})

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		nc.Close()
		return nil, ErrStopped
	}
	conn := newConnection(nc, peer, c.cfg.WriteTimeout)
	c.live[peer.ID] = conn
	c.mu.Unlock()

	conn.ready()
	go c.reap(peer.ID, conn)
	return conn, nil
}

// reap drops the live-connection registration once conn terminates, so the
// peer becomes connectable again.
func (c *connector) reap(id string, conn *Connection) {
	<-conn.Done()
	c.mu.Lock()
	if c.live[id] == conn {
		delete(c.live, id)
	}
	c.mu.Unlock()
}

// shutdown releases the listener and all live connections. Idempotent.
func (c *connector) shutdown() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		ln := c.listener
		conns := make([]*Connection, 0, len(c.live))
		for _, conn := range c.live {
			conns = append(conns, conn)
		}
		c.mu.Unlock()

		c.cancel()
		if ln != nil {
			ln.Close()
		}
		for _, conn := range conns {
			conn.Close()
		}
	})
}
