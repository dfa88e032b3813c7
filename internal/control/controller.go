// Package control coordinates discovery, connections and event flow for
// one process: the host role accepts sessions and replays their events
// through the injector, the client role browses for hosts and feeds the
// send dispatcher.
package control

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"deskpad/internal/config"
	"deskpad/internal/dispatch"
	"deskpad/internal/input"
	"deskpad/internal/network"
	"deskpad/internal/protocol"
)

// Snapshot is the externally visible controller state, consumed by the
// status API. It is a value: readers never share controller internals.
type Snapshot struct {
	Role              string            `json:"role"`
	Transport         network.Transport `json:"transport"`
	Connected         bool              `json:"connected"`
	ConnState         string            `json:"conn_state"`
	RemoteDevice      string            `json:"remote_device,omitempty"`
	Peers             []network.Peer    `json:"peers"`
	LastError         string            `json:"last_error,omitempty"`
	PermissionGranted bool              `json:"permission_granted"`
}

// Controller wires the per-role flows together and publishes state
// changes to watchers.
type Controller struct {
	cfgMgr   *config.Manager
	disc     network.Discovery
	disp     *dispatch.Dispatcher
	injector *input.Injector

	mu       sync.Mutex
	snap     Snapshot
	peers    map[string]network.Peer
	active   *network.Connection
	watchers []chan Snapshot
	started  bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a controller for the configured role. The injector may be
// nil for the client role; the dispatcher may be nil for the host role.
func New(cfgMgr *config.Manager, disc network.Discovery, transport network.Transport, disp *dispatch.Dispatcher, injector *input.Injector, permissionGranted bool) *Controller {
	cfg := cfgMgr.Get()
	return &Controller{
		cfgMgr:   cfgMgr,
		disc:     disc,
		disp:     disp,
		injector: injector,
		peers:    make(map[string]network.Peer),
		snap: Snapshot{
			Role:              cfg.General.Role,
			Transport:         transport,
			ConnState:         network.StateIdle.String(),
			Peers:             []network.Peer{},
			PermissionGranted: permissionGranted,
		},
		done: make(chan struct{}),
	}
}

// Start launches the role-specific flow. It returns a terminal error when
// the discovery transport cannot start.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	role := c.snap.Role
	c.mu.Unlock()

	switch role {
	case "host":
		return c.startHost()
	case "client":
		return c.startClient()
	}
	return fmt.Errorf("control: unknown role %q", role)
}

// Stop shuts the controller down: discovery, connections and watcher
// streams. Idempotent.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.disc.Stop()
		if c.disp != nil {
			c.disp.Stop()
		}
		c.wg.Wait()

		c.mu.Lock()
		for _, w := range c.watchers {
			close(w)
		}
		c.watchers = nil
		c.mu.Unlock()
	})
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Watch returns a stream of state snapshots. Slow consumers miss
// intermediate states, never block the controller.
func (c *Controller) Watch() <-chan Snapshot {
	ch := make(chan Snapshot, 8)
	c.mu.Lock()
	c.watchers = append(c.watchers, ch)
	ch <- c.snap
	c.mu.Unlock()
	return ch
}

// Send forwards one event to the connected host. Without a ready
// connection the event is dropped by the dispatcher, per the live-input
// policy.
func (c *Controller) Send(e protocol.Event) {
	if c.disp != nil {
		c.disp.Send(e)
	}
}

// update applies fn to the snapshot under the lock and fans the result out
// to watchers.
func (c *Controller) update(fn func(*Snapshot)) {
	c.mu.Lock()
	fn(&c.snap)
	snap := c.snap
	watchers := c.watchers
	c.mu.Unlock()

	for _, w := range watchers {
		select {
		case w <- snap:
		default:
		}
	}
}

func (c *Controller) startHost() error {
	if err := c.disc.Advertise(network.ServiceName); err != nil {
		c.update(func(s *Snapshot) { s.LastError = err.Error() })
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case session := <-c.disc.Sessions():
				c.wg.Add(1)
				go func() {
					defer c.wg.Done()
					c.serveSession(session)
				}()
			case <-c.done:
				return
			}
		}
	}()
	return nil
}

// serveSession replays one accepted session's events through the injector
// until the session ends. Injector state is reset on disconnect so a held
// drag never survives the session.
func (c *Controller) serveSession(session *network.Connection) {
	peer := session.Peer()
	log.Printf("Controller: session started with %q", peer.DisplayName)
	c.update(func(s *Snapshot) {
		s.Connected = true
		s.ConnState = session.State().String()
		s.RemoteDevice = peer.DisplayName
		s.LastError = ""
	})

	defer func() {
		if c.injector != nil {
			c.injector.Reset()
		}
		c.update(func(s *Snapshot) {
			s.Connected = false
			s.ConnState = session.State().String()
			s.RemoteDevice = ""
			if err := session.Err(); err != nil {
				s.LastError = err.Error()
			}
		})
		log.Printf("Controller: session with %q ended (%s)", peer.DisplayName, session.State())
	}()

	for {
		select {
		case ev := <-session.Events():
			if c.injector == nil {
				continue
			}
			if err := c.injector.Apply(ev); err != nil {
				log.Printf("Controller: inject: %v", err)
			}
		case <-session.Done():
			return
		case <-c.done:
			session.Close()
			return
		}
	}
}

func (c *Controller) startClient() error {
	events, err := c.disc.Browse()
	if err != nil {
		c.update(func(s *Snapshot) { s.LastError = err.Error() })
		return err
	}

	autoConnect := c.cfgMgr.Get().General.AutoConnect

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				c.handlePeerEvent(ev, autoConnect)
			case <-c.done:
				return
			}
		}
	}()
	return nil
}

func (c *Controller) handlePeerEvent(ev network.PeerEvent, autoConnect bool) {
	c.mu.Lock()
	if ev.Lost {
		delete(c.peers, ev.Peer.ID)
	} else {
		c.peers[ev.Peer.ID] = ev.Peer
	}
	list := make([]network.Peer, 0, len(c.peers))
	for _, p := range c.peers {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].DisplayName < list[j].DisplayName })
	connected := c.active != nil
	c.mu.Unlock()

	// Stable ordering keeps the status API output deterministic.
	c.update(func(s *Snapshot) { s.Peers = list })

	if !ev.Lost && autoConnect && !connected {
		c.connect(ev.Peer)
	}
}

// connect establishes the event stream to peer and binds the dispatcher to
// it. A failed attempt leaves the controller browsing; the next beacon can
// trigger another attempt.
func (c *Controller) connect(peer network.Peer) {
	c.update(func(s *Snapshot) { s.ConnState = network.StateConnecting.String() })

	conn, err := c.disc.Connect(peer)
	if err != nil {
		log.Printf("Controller: connect to %q: %v", peer.DisplayName, err)
		c.update(func(s *Snapshot) {
			s.ConnState = network.StateFailed.String()
			s.LastError = err.Error()
		})
		return
	}

	c.mu.Lock()
	c.active = conn
	c.mu.Unlock()
	if c.disp != nil {
		c.disp.Attach(conn)
	}
	c.update(func(s *Snapshot) {
		s.Connected = true
		s.ConnState = conn.State().String()
		s.RemoteDevice = peer.DisplayName
		s.LastError = ""
	})
	log.Printf("Controller: connected to %q", peer.DisplayName)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-conn.Done():
		case <-c.done:
			conn.Close()
			<-conn.Done()
		}
		if c.disp != nil {
			c.disp.Detach()
		}
		c.mu.Lock()
		if c.active == conn {
			c.active = nil
		}
		c.mu.Unlock()
		c.update(func(s *Snapshot) {
			s.Connected = false
			s.ConnState = conn.State().String()
			s.RemoteDevice = ""
			if err := conn.Err(); err != nil {
				s.LastError = err.Error()
			}
		})
		log.Printf("Controller: connection to %q ended (%s)", peer.DisplayName, conn.State())
	}()
}
