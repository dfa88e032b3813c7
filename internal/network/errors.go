package network

import "errors"

// Discovery errors. Advertise and browse start failures are retried up to
// RetryAttempts times before one of these is surfaced as terminal.
var (
	ErrAdvertise = errors.New("network: advertise failed")
	ErrBrowse    = errors.New("network: browse failed")
	ErrStopped   = errors.New("network: discovery stopped")
)

// Connection errors. All are terminal for the connection they occur on and
// are surfaced to the coordination layer, never silently swallowed.
var (
	ErrDeclined   = errors.New("network: connection declined by host")
	ErrTimeout    = errors.New("network: connection timed out")
	ErrPeerClosed = errors.New("network: peer closed connection")
	ErrIOFailure  = errors.New("network: io failure")
	ErrCancelled  = errors.New("network: cancelled")
	ErrDuplicate  = errors.New("network: connection to peer already live")
	ErrNotReady   = errors.New("network: connection not ready")
)
