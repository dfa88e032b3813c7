// Package metrics provides Prometheus instrumentation for the remote-input
// pipeline: event throughput on both roles, decode failures and the current
// connection state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsSent counts events handed to the transport by the dispatcher.
	EventsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deskpad_events_sent_total",
		Help: "Events written to the wire by the dispatcher",
	})

	// EventsDropped counts events dropped because no connection was ready.
	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deskpad_events_dropped_total",
		Help: "Events dropped by the dispatcher with no ready connection",
	})

	// EventsReceived counts frames decoded off the inbound stream.
	EventsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deskpad_events_received_total",
		Help: "Events decoded from the inbound stream",
	})

	// EventsInjected counts events replayed as OS input actions, labeled by
	// outcome: "injected", "ignored", or "refused".
	EventsInjected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deskpad_events_injected_total",
		Help: "Events handled by the injector",
	}, []string{"outcome"})

	// DecodeErrors counts malformed frames dropped without tearing down the
	// connection.
	DecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deskpad_decode_errors_total",
		Help: "Malformed frames dropped by the decoder",
	})

	// ConnectionsReady counts event-stream connections currently in the
	// ready state. Overlapping sessions each contribute one.
	ConnectionsReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "deskpad_connections_ready",
		Help: "Number of event-stream connections currently ready",
	})
)

func init() {
	prometheus.MustRegister(
		EventsSent,
		EventsDropped,
		EventsReceived,
		EventsInjected,
		DecodeErrors,
		ConnectionsReady,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
