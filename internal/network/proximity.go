package network

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// RangeUpdate is one reading from the inter-device ranging session: a
// nearby announcing device, its event-stream address and its distance.
// Lost marks a device that left ranging distance.
type RangeUpdate struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Addr     string  `json:"addr"`
	Distance float64 `json:"distance"`
	Lost     bool    `json:"lost"`
}

// Ranger is the proximity-ranging collaborator. The ranging mechanics live
// outside this core; the interface only exposes availability, an announce
// call for the host role and a stream of range updates for the client role.
type Ranger interface {
	Available() bool
	Announce(serviceName string) error
	Updates() (<-chan RangeUpdate, error)
	Stop()
}

// ProximityDiscovery is the alternate discovery path: peers come from a
// ranging feed instead of LAN beacons. Connection establishment is shared
// with the network transport (same TCP event stream, same handshake and
// accept/decline semantics).
type ProximityDiscovery struct {
	*connector
	ranger Ranger
}

// NewProximity creates a proximity discovery service backed by ranger.
func NewProximity(cfg Config, ranger Ranger) *ProximityDiscovery {
	return &ProximityDiscovery{
		connector: newConnector(cfg.withDefaults(), TransportProximity),
		ranger:    ranger,
	}
}

// Advertise starts the host role: bind the event-stream listener, then
// announce presence through the ranging session. Announce failures follow
// the same bounded retry policy as the network transport.
func (d *ProximityDiscovery) Advertise(serviceName string) error {
	if err := d.listen(); err != nil {
		return err
	}
	err := retry(d.cfg.RetryAttempts, d.cfg.RetryDelay, d.ctx.Done(), func() error {
		return d.ranger.Announce(serviceName)
	})
	if err != nil {
		return fmt.Errorf("%w: ranging announce: %v", ErrAdvertise, err)
	}
	log.Printf("Discovery: announcing %q via proximity ranging", serviceName)
	return nil
}

// Browse surfaces ranging updates as peer signals. Every announcing device
// in the feed is a host by construction, so no role filter is needed here.
func (d *ProximityDiscovery) Browse() (<-chan PeerEvent, error) {
	if d.isStopped() {
		return nil, ErrStopped
	}
	updates, err := d.ranger.Updates()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowse, err)
	}

	out := make(chan PeerEvent, 16)
	go func() {
		defer close(out)
		for {
			select {
			case u, ok := <-updates:
				if !ok {
					return
				}
				ev := PeerEvent{
					Peer: Peer{
						ID:          u.ID,
						DisplayName: u.Name,
						Transport:   TransportProximity,
						Addr:        u.Addr,
						LastSeen:    time.Now(),
					},
					Lost: u.Lost,
				}
				select {
				case out <- ev:
				case <-d.ctx.Done():
					return
				}
			case <-d.ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Stop cancels all work, stops the ranging session and releases resources.
func (d *ProximityDiscovery) Stop() {
	d.ranger.Stop()
	d.shutdown()
}

// SocketRanger reads ranging updates from a local ranging daemon over a
// unix socket, one JSON RangeUpdate per line. It exists so the capability
// probe has something concrete to probe: the transport is available exactly
// when the daemon socket accepts a connection.
type SocketRanger struct {
	path string

	mu   sync.Mutex
	conn net.Conn
	done chan struct{}
}

// NewSocketRanger returns a ranger bound to the daemon socket at path.
func NewSocketRanger(path string) *SocketRanger {
	return &SocketRanger{path: path, done: make(chan struct{})}
}

// Available probes the daemon socket.
func (r *SocketRanger) Available() bool {
	if r.path == "" {
		return false
	}
	conn, err := net.DialTimeout("unix", r.path, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Announce asks the daemon to announce the service to nearby devices.
func (r *SocketRanger) Announce(serviceName string) error {
	conn, err := r.dial()
	if err != nil {
		return err
	}
	req, _ := json.Marshal(map[string]string{"op": "announce", "service": serviceName})
	_, err = conn.Write(append(req, '\n'))
	return err
}

// Updates asks the daemon to start ranging and streams its readings.
func (r *SocketRanger) Updates() (<-chan RangeUpdate, error) {
	conn, err := r.dial()
	if err != nil {
		return nil, err
	}
	req, _ := json.Marshal(map[string]string{"op": "range"})
	if _, err := conn.Write(append(req, '\n')); err != nil {
		return nil, err
	}

	out := make(chan RangeUpdate, 16)
	go func() {
		defer close(out)
		dec := json.NewDecoder(conn)
		for {
			var u RangeUpdate
			if err := dec.Decode(&u); err != nil {
				select {
				case <-r.done:
				default:
					log.Printf("Discovery: ranging feed ended: %v", err)
				}
				return
			}
			select {
			case out <- u:
			case <-r.done:
				return
			}
		}
	}()
	return out, nil
}

// Stop closes the daemon connection.
func (r *SocketRanger) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

func (r *SocketRanger) dial() (net.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn, nil
	}
	conn, err := net.DialTimeout("unix", r.path, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("network: ranging daemon: %w", err)
	}
	r.conn = conn
	return conn, nil
}
