package rpc

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/relaywire/rpcpeer/transport"
	"github.com/relaywire/rpcpeer/wire"
)

// readResult is one outcome of a blocking transport.Recv call, pumped
// onto a channel by a dedicated feeder goroutine so that ioLoop's
// select can treat an inbound frame exactly like any other event it
// is waiting on. This is the idiomatic Go equivalent of polling a
// Stream inside a single future: Go has no way to suspend a blocking
// Recv call inside a select, so a goroutine-plus-channel pump plays
// the role the original's poll_next does.
type readResult struct {
	msg transport.Message
	err error
}

// ioLoop is the single task that owns one connection's transport for
// its entire lifetime: reading inbound frames, dispatching responses
// to whoever is awaiting them and everything else to the connection's
// inbound queue, and draining the outbound queue. When both an
// inbound frame and an outbound write are ready, it always makes
// progress on the read first, a Go select has no built-in bias, so
// this is enforced with a non-blocking check before the blocking
// dual-branch select below.
func (p *Peer) ioLoop(ctx context.Context, c *connection, inbound chan<- wire.AnyTypedEnvelope) error {
	taskID := uuid.New()
	logger := log.With(c.logger, "task", taskID.String())

	// readCtx governs only the feeder goroutine below; it is canceled
	// as soon as this task decides to tear down, so a blocked Recv on
	// a transport that honors context cancellation (the in-memory
	// harness) returns promptly. gorilla/websocket's ReadMessage does
	// not honor context cancellation, which is why teardown below also
	// closes the transport directly -- closing the underlying
	// connection is the standard way to unblock a concurrent read on
	// such transports.
	readCtx, cancelRead := context.WithCancel(ctx)

	readCh := make(chan readResult, 1)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for {
			msg, err := c.conn.Recv(readCtx)
			select {
			case readCh <- readResult{msg: msg, err: err}:
			case <-readCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	reason := "disconnect"
	var terminalErr error

loop:
	for {
		select {
		case res := <-readCh:
			if ok, err := p.handleRead(logger, c, res, inbound); !ok {
				reason, terminalErr = "read-error", err
				break loop
			}
			continue loop
		default:
		}

		select {
		case res := <-readCh:
			if ok, err := p.handleRead(logger, c, res, inbound); !ok {
				reason, terminalErr = "read-error", err
				break loop
			}
		case env := <-c.outgoing:
			if err := p.writeEnvelope(ctx, c, env); err != nil {
				terminalErr = pkgerrors.Wrap(err, "failed to write RPC message")
				level.Info(logger).Log("msg", "tearing down", "err", terminalErr)
				reason = "write-error"
				break loop
			}
		case <-c.closed:
			break loop
		case <-ctx.Done():
			reason, terminalErr = "context-canceled", ctx.Err()
			break loop
		}
	}

	cancelRead()
	closeErr := c.conn.Close()
	<-pumpDone

	p.teardownConnection(logger, c, inbound, reason, closeErr)

	return terminalErr
}

// handleRead processes one readResult. It returns false when the
// underlying transport has failed or closed, or when the frame cannot
// be decoded as an envelope, which the caller treats as a fatal,
// teardown-triggering read error; a response to an unknown request or
// an envelope whose payload cannot be built, by contrast, is logged
// and the loop continues, matching the original's distinction between
// read errors (fatal) and UnknownResponse/UnbuildableEnvelope (logged
// only).
func (p *Peer) handleRead(logger log.Logger, c *connection, res readResult, inbound chan<- wire.AnyTypedEnvelope) (bool, error) {
	if res.err != nil {
		err := pkgerrors.Wrap(res.err, "received invalid RPC message")
		level.Info(logger).Log("msg", "tearing down", "err", err)
		return false, err
	}

	p.metrics.IncMessagesReceived()

	env, err := wire.DecodeEnvelope(res.msg.Data)
	if err != nil {
		err = pkgerrors.Wrap(err, "received invalid RPC message")
		level.Info(logger).Log("msg", "tearing down", "err", err)
		return false, err
	}

	if env.IsResponse() {
		if !c.resolveResponse(env) {
			level.Warn(logger).Log("msg", "dropped response to unknown or already-resolved request", "responding_to", *env.RespondingTo)
		}
		return true, nil
	}

	typed, ok := wire.BuildTypedEnvelope(c.id, env)
	if !ok {
		level.Warn(logger).Log("msg", "dropped envelope of unregistered kind", "kind", env.Kind)
		return true, nil
	}

	select {
	case inbound <- typed:
	case <-c.closed:
	}
	return true, nil
}

func (p *Peer) writeEnvelope(ctx context.Context, c *connection, env wire.Envelope) error {
	data := wire.EncodeEnvelope(env)
	if err := c.conn.Send(ctx, transport.Message{Binary: true, Data: data}); err != nil {
		return err
	}
	p.metrics.IncMessagesSent()
	return nil
}

// teardownConnection runs exactly once per connection, regardless of
// whether the trigger was an explicit Disconnect/Reset or a transport
// failure observed by this task: it removes the connection from the
// registry, fails every in-flight request on it, and logs the result
// of the single Close call ioLoop already made (closeErr), rather than
// calling Close a second time -- Conn.Close is sync.Once-guarded, so a
// second call would always observe nil and hide a real close error.
func (p *Peer) teardownConnection(logger log.Logger, c *connection, inbound chan<- wire.AnyTypedEnvelope, reason string, closeErr error) {
	c.signalClosed()

	p.mu.Lock()
	delete(p.connections, c.id)
	p.mu.Unlock()

	c.teardown()
	close(inbound)

	if closeErr != nil {
		level.Debug(logger).Log("msg", "teardown", "err", pkgerrors.Wrap(closeErr, "closing transport"))
	}

	p.metrics.DecConnections()
	p.metrics.ObserveTeardown(reason)
	level.Info(logger).Log("msg", "connection torn down", "reason", reason)
}
