// Package rpc implements the connection multiplexer: a Peer owns a
// registry of live transport attachments, mints ids for them, and
// exposes request/response and fire-and-forget operations across
// whichever one a caller names. Every blocking operation drives its
// own transport through a single I/O task the Peer hands back to the
// caller to schedule; the Peer itself never spawns a goroutine for a
// connection's lifetime, only for its own background metrics loop.
package rpc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/relaywire/rpcpeer/metrics"
	"github.com/relaywire/rpcpeer/transport"
	"github.com/relaywire/rpcpeer/wire"
)

// Peer is the central multiplexer. The zero value is not usable;
// construct one with New.
type Peer struct {
	mu               deadlock.RWMutex
	connections      map[wire.ConnectionID]*connection
	nextConnectionID atomic.Uint32

	logger  log.Logger
	metrics *metrics.Collector

	quit chan struct{}
}

// Option configures a Peer at construction time.
type Option func(*Peer)

// WithLogger overrides the Peer's logger. The default logs to
// go-kit/log's NopLogger.
func WithLogger(logger log.Logger) Option {
	return func(p *Peer) { p.logger = logger }
}

// WithMetrics attaches a metrics.Collector. The default is a
// collector backed by a private, unregistered prometheus registry.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Peer) { p.metrics = c }
}

// New constructs an empty Peer with no connections.
func New(opts ...Option) *Peer {
	p := &Peer{
		connections: make(map[wire.ConnectionID]*connection),
		logger:      log.NewNopLogger(),
		quit:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.NewCollector()
	}
	go p.reportMetrics()
	return p
}

// Close stops the Peer's background metrics loop. It does not touch
// any live connection; callers are responsible for disconnecting or
// resetting before discarding a Peer.
func (p *Peer) Close() {
	select {
	case <-p.quit:
	default:
		close(p.quit)
	}
}

// reportMetrics periodically republishes the connection count,
// mirroring the ticker-driven metricsReporter background goroutine
// pattern: a fixed interval, a select against a quit channel, no
// per-event work.
func (p *Peer) reportMetrics() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.mu.RLock()
			n := len(p.connections)
			p.mu.RUnlock()
			p.metrics.SetConnections(n)
		case <-p.quit:
			return
		}
	}
}

// connection looks up the live connection for id. Callers take the
// Peer's read lock only long enough to clone the pointer; nothing
// holds the lock across a channel operation or a transport call.
func (p *Peer) connection(id wire.ConnectionID) (*connection, bool) {
	p.mu.RLock()
	c, ok := p.connections[id]
	p.mu.RUnlock()
	return c, ok
}

// AddConnection registers conn under a freshly minted ConnectionID and
// returns that id, the I/O task driving conn, and the queue of
// inbound typed envelopes the task will deliver to. The Peer does not
// schedule the task; the caller must run it, typically as
// `go ioTask(ctx)`, for as long as the connection should stay live.
// The task returns nil for an orderly teardown (Disconnect/Reset),
// ctx.Err() if ctx is canceled first, and the triggering transport
// error, wrapped with context, otherwise.
func (p *Peer) AddConnection(conn *transport.Conn) (wire.ConnectionID, func(context.Context) error, <-chan wire.AnyTypedEnvelope) {
	id := wire.ConnectionID(p.nextConnectionID.Add(1) - 1)

	logger := log.With(p.logger, "connection", id)
	c := newConnection(id, conn, logger)

	p.mu.Lock()
	p.connections[id] = c
	p.mu.Unlock()

	p.metrics.IncConnections()

	inbound := make(chan wire.AnyTypedEnvelope, inboundBuffer)
	ioTask := func(ctx context.Context) error {
		return p.ioLoop(ctx, c, inbound)
	}
	return id, ioTask, inbound
}

// Disconnect removes id's Connection entry, if any, and signals its
// I/O task to tear down. A second call, or a call naming an id this
// Peer never minted (or already removed), is a no-op.
func (p *Peer) Disconnect(id wire.ConnectionID) {
	p.mu.Lock()
	c, ok := p.connections[id]
	if ok {
		delete(p.connections, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	level.Debug(c.logger).Log("msg", "disconnect requested")
	c.signalClosed()
}

// Reset tears down every connection currently registered with this
// Peer, as if Disconnect had been called on each of them.
func (p *Peer) Reset() {
	p.mu.Lock()
	ids := make([]wire.ConnectionID, 0, len(p.connections))
	for id := range p.connections {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.Disconnect(id)
	}
}
