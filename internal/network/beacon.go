package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// beacon is the UDP presence payload broadcast by an advertising host once
// per BeaconInterval. Clients consider a peer lost when no beacon arrives
// within PeerTimeout.
type beacon struct {
	Service string `json:"service"`
	Role    string `json:"role"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Port    int    `json:"port"`
	Version string `json:"version"`
}

// LANDiscovery is the network-transport discovery service: hosts advertise
// with UDP broadcast beacons and accept event streams on the well-known TCP
// port; clients browse by listening for beacons.
type LANDiscovery struct {
	*connector

	mu        sync.Mutex
	beaconPC  net.PacketConn
	browsePC  net.PacketConn
	browseEnd chan struct{}
	wg        sync.WaitGroup
}

// NewLAN creates a LAN discovery service. The service is inert until
// Advertise or Browse is called.
func NewLAN(cfg Config) *LANDiscovery {
	return &LANDiscovery{connector: newConnector(cfg.withDefaults(), TransportNetwork)}
}

// Advertise starts the host role: bind the event-stream listener, then
// broadcast presence beacons. Bind failures are retried 3 times with a
// fixed delay before the error is reported as terminal.
func (d *LANDiscovery) Advertise(serviceName string) error {
	if err := d.listen(); err != nil {
		return err
	}

	var pc net.PacketConn
	err := retry(d.cfg.RetryAttempts, d.cfg.RetryDelay, d.ctx.Done(), func() error {
		var err error
		pc, err = net.ListenPacket("udp4", ":0")
		return err
	})
	if err != nil {
		if errors.Is(err, ErrStopped) {
			return err
		}
		return fmt.Errorf("%w: beacon socket: %v", ErrAdvertise, err)
	}

	d.mu.Lock()
	d.beaconPC = pc
	d.mu.Unlock()

	d.wg.Add(1)
	go d.beaconLoop(pc, serviceName)
	log.Printf("Discovery: advertising %q on udp %s:%d", serviceName, d.cfg.BroadcastAddr, d.cfg.BeaconPort)
	return nil
}

func (d *LANDiscovery) beaconLoop(pc net.PacketConn, serviceName string) {
	defer d.wg.Done()

	dst := &net.UDPAddr{IP: net.ParseIP(d.cfg.BroadcastAddr), Port: d.cfg.BeaconPort}
	payload, err := json.Marshal(beacon{
		Service: serviceName,
		Role:    "host",
		ID:      d.cfg.Identity.DeviceID,
		Name:    d.cfg.Identity.DeviceName,
		Port:    d.cfg.EventPort,
		Version: "1",
	})
	if err != nil {
		log.Printf("Discovery: beacon marshal: %v", err)
		return
	}

	ticker := time.NewTicker(d.cfg.BeaconInterval)
	defer ticker.Stop()

	for {
		if _, err := pc.WriteTo(payload, dst); err != nil {
			select {
			case <-d.ctx.Done():
				return
			default:
				log.Printf("Discovery: beacon send: %v", err)
			}
		}
		select {
		case <-ticker.C:
		case <-d.ctx.Done():
			return
		}
	}
}

// Browse starts the client role: listen for host beacons and surface
// appeared/lost signals. Only host-role beacons for the matching service
// are surfaced. Calling Browse again replaces the previous stream.
func (d *LANDiscovery) Browse() (<-chan PeerEvent, error) {
	if d.isStopped() {
		return nil, ErrStopped
	}
	d.mu.Lock()
	if d.browseEnd != nil {
		close(d.browseEnd)
		d.browsePC.Close()
		d.browseEnd = nil
	}
	d.mu.Unlock()

	var pc net.PacketConn
	err := retry(d.cfg.RetryAttempts, d.cfg.RetryDelay, d.ctx.Done(), func() error {
		var err error
		pc, err = net.ListenPacket("udp4", fmt.Sprintf(":%d", d.cfg.BeaconPort))
		if err != nil {
			log.Printf("Discovery: browse bind :%d failed, will retry: %v", d.cfg.BeaconPort, err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrStopped) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrBrowse, err)
	}

	if d.isStopped() {
		pc.Close()
		return nil, ErrStopped
	}
	end := make(chan struct{})
	d.mu.Lock()
	d.browsePC = pc
	d.browseEnd = end
	d.mu.Unlock()

	out := make(chan PeerEvent, 16)
	d.wg.Add(1)
	go d.browseLoop(pc, end, out)
	log.Printf("Discovery: browsing for hosts on udp :%d", d.cfg.BeaconPort)
	return out, nil
}

func (d *LANDiscovery) browseLoop(pc net.PacketConn, end chan struct{}, out chan<- PeerEvent) {
	defer d.wg.Done()
	defer close(out)

	peers := make(map[string]Peer)
	buf := make([]byte, 1024)

	emit := func(ev PeerEvent) bool {
		select {
		case out <- ev:
			return true
		case <-end:
		case <-d.ctx.Done():
		}
		return false
	}

	for {
		// A short read deadline doubles as the expiry tick.
		pc.SetReadDeadline(time.Now().Add(d.cfg.PeerTimeout / 3))
		n, addr, err := pc.ReadFrom(buf)

		now := time.Now()
		for id, p := range peers {
			if now.Sub(p.LastSeen) > d.cfg.PeerTimeout {
				delete(peers, id)
				if !emit(PeerEvent{Peer: p, Lost: true}) {
					return
				}
				log.Printf("Discovery: lost peer %q", p.DisplayName)
			}
		}

		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			select {
			case <-end:
			case <-d.ctx.Done():
			default:
				log.Printf("Discovery: browse read: %v", err)
			}
			return
		}

		var b beacon
		if err := json.Unmarshal(buf[:n], &b); err != nil {
			continue
		}
		// Filtering policy: surface only matching-service host peers.
		if b.Service != ServiceName || b.Role != "host" || b.ID == "" {
			continue
		}

		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			continue
		}
		p := Peer{
			ID:          b.ID,
			DisplayName: b.Name,
			Transport:   TransportNetwork,
			Addr:        net.JoinHostPort(host, fmt.Sprintf("%d", b.Port)),
			LastSeen:    now,
		}

		prev, known := peers[b.ID]
		peers[b.ID] = p
		if !known {
			log.Printf("Discovery: found peer %q at %s", p.DisplayName, p.Addr)
			if !emit(PeerEvent{Peer: p}) {
				return
			}
		} else if prev.Addr != p.Addr || prev.DisplayName != p.DisplayName {
			// Still advertising but changed: update in place.
			if !emit(PeerEvent{Peer: p}) {
				return
			}
		}
	}
}

// Stop cancels advertise, browse and connect work and releases all held
// resources. Idempotent and safe from any goroutine; parked Connect calls
// return ErrCancelled.
func (d *LANDiscovery) Stop() {
	d.mu.Lock()
	if d.beaconPC != nil {
		d.beaconPC.Close()
	}
	if d.browsePC != nil {
		d.browsePC.Close()
	}
	if d.browseEnd != nil {
		close(d.browseEnd)
		d.browseEnd = nil
	}
	d.mu.Unlock()

	d.shutdown()
	d.wg.Wait()
}
