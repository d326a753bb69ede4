// Package metrics publishes the Peer's runtime counters through
// prometheus/client_golang: a handful of named gauges/counters updated
// from the hot path. The package runs no goroutine of its own; the rpc
// Peer's background ticker republishes the live connection count
// through SetConnections.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds every metric the rpc package touches. The zero
// value is not usable; construct one with NewCollector.
type Collector struct {
	registry *prometheus.Registry

	connections      prometheus.Gauge
	messagesSent     prometheus.Counter
	messagesReceived prometheus.Counter
	pendingRequests  prometheus.Gauge
	teardowns        *prometheus.CounterVec
}

// NewCollector builds a Collector backed by its own private registry,
// so embedding a Peer in a larger process never collides with that
// process's own prometheus namespace unless Registry() is deliberately
// exposed.
func NewCollector() *Collector {
	c := &Collector{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rpcpeer",
			Name:      "connections",
			Help:      "Live connections currently registered with the Peer.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rpcpeer",
			Name:      "messages_sent_total",
			Help:      "Envelopes written to a connection's transport.",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rpcpeer",
			Name:      "messages_received_total",
			Help:      "Envelopes read off a connection's transport.",
		}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rpcpeer",
			Name:      "pending_requests",
			Help:      "In-flight requests awaiting a response, across all connections.",
		}),
		teardowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpcpeer",
			Name:      "connection_teardowns_total",
			Help:      "Connection teardowns, labeled by reason.",
		}, []string{"reason"}),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(c.connections, c.messagesSent, c.messagesReceived, c.pendingRequests, c.teardowns)
	c.registry = reg
	return c
}

// Registry returns the private registry backing this Collector, for a
// caller that wants to serve it over /metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) IncConnections() { c.connections.Inc() }
func (c *Collector) DecConnections() { c.connections.Dec() }
func (c *Collector) SetConnections(n int) { c.connections.Set(float64(n)) }

func (c *Collector) IncMessagesSent()     { c.messagesSent.Inc() }
func (c *Collector) IncMessagesReceived() { c.messagesReceived.Inc() }

func (c *Collector) IncPendingRequests() { c.pendingRequests.Inc() }
func (c *Collector) DecPendingRequests() { c.pendingRequests.Dec() }

// ObserveTeardown records one connection teardown under reason, e.g.
// "disconnect", "read-error", "write-error".
func (c *Collector) ObserveTeardown(reason string) {
	c.teardowns.WithLabelValues(reason).Inc()
}
