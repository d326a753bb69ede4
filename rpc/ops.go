package rpc

import (
	"context"

	"github.com/relaywire/rpcpeer/wire"
)

// Send delivers payload to receiverID without waiting for a reply.
// It fails with ErrConnectionClosed if receiverID names no live
// connection, or if the connection tears down before payload can be
// enqueued.
func (p *Peer) Send(ctx context.Context, receiverID wire.ConnectionID, payload wire.EnvelopedMessage) error {
	return p.sendEnvelope(ctx, receiverID, payload, nil)
}

// ForwardSend is Send, but tags the envelope with originalSenderID so
// the receiver can attribute it to whoever first sent it rather than
// to this Peer.
func (p *Peer) ForwardSend(ctx context.Context, originalSenderID wire.PeerID, receiverID wire.ConnectionID, payload wire.EnvelopedMessage) error {
	return p.sendEnvelope(ctx, receiverID, payload, &originalSenderID)
}

func (p *Peer) sendEnvelope(ctx context.Context, receiverID wire.ConnectionID, payload wire.EnvelopedMessage, originalSenderID *wire.PeerID) error {
	c, ok := p.connection(receiverID)
	if !ok {
		return ErrConnectionClosed
	}

	body, err := payload.Marshal()
	if err != nil {
		return err
	}

	env := wire.Envelope{
		MessageID:        c.nextID(),
		OriginalSenderID: originalSenderIDField(originalSenderID),
		Kind:             payload.Kind(),
		Body:             body,
	}
	return c.enqueue(ctx, env)
}

// Respond replies to receipt with response, addressed back to the
// connection that sent the original request. It fails with
// ErrConnectionClosed if that connection is no longer live.
func (p *Peer) Respond(ctx context.Context, receipt wire.AnyReceipt, response wire.EnvelopedMessage) error {
	c, ok := p.connection(receipt.ConnID())
	if !ok {
		return ErrConnectionClosed
	}

	body, err := response.Marshal()
	if err != nil {
		return err
	}

	respondingTo := receipt.MsgID()
	env := wire.Envelope{
		MessageID:    c.nextID(),
		RespondingTo: &respondingTo,
		Kind:         response.Kind(),
		Body:         body,
	}
	return c.enqueue(ctx, env)
}

// RespondWithError replies to receipt with an Error payload, which the
// caller's pending Request resolves as a RemoteError.
func (p *Peer) RespondWithError(ctx context.Context, receipt wire.AnyReceipt, message string) error {
	return p.Respond(ctx, receipt, wire.Error{Message: message})
}

// Request sends payload to receiverID and awaits the matching
// response. Resp must be the response type Req's DecodeResponse
// method actually decodes; Go cannot infer Resp from Req alone the way
// Rust resolves RequestMessage::Response, so callers name it
// explicitly, e.g. rpc.Request[schema.Pong](ctx, peer, id, schema.Ping{}).
func Request[Resp wire.EnvelopedMessage, Req wire.RequestMessage[Resp]](ctx context.Context, p *Peer, receiverID wire.ConnectionID, payload Req) (Resp, error) {
	return requestInternal[Resp](ctx, p, receiverID, payload, nil)
}

// ForwardRequest is Request, but tags the envelope with
// originalSenderID so the receiver can attribute it to whoever first
// sent it.
func ForwardRequest[Resp wire.EnvelopedMessage, Req wire.RequestMessage[Resp]](ctx context.Context, p *Peer, originalSenderID wire.PeerID, receiverID wire.ConnectionID, payload Req) (Resp, error) {
	return requestInternal[Resp](ctx, p, receiverID, payload, &originalSenderID)
}

func requestInternal[Resp wire.EnvelopedMessage, Req wire.RequestMessage[Resp]](ctx context.Context, p *Peer, receiverID wire.ConnectionID, payload Req, originalSenderID *wire.PeerID) (Resp, error) {
	var zero Resp

	c, ok := p.connection(receiverID)
	if !ok {
		return zero, ErrConnectionClosed
	}

	body, err := payload.Marshal()
	if err != nil {
		return zero, err
	}

	messageID := c.nextID()
	respCh := c.registerResponse(messageID)

	env := wire.Envelope{
		MessageID:        messageID,
		OriginalSenderID: originalSenderIDField(originalSenderID),
		Kind:             payload.Kind(),
		Body:             body,
	}

	if err := c.enqueue(ctx, env); err != nil {
		c.unregisterResponse(messageID)
		return zero, err
	}

	p.metrics.IncPendingRequests()
	defer p.metrics.DecPendingRequests()

	select {
	case reply, ok := <-respCh:
		if !ok {
			return zero, ErrConnectionClosed
		}
		if reply.Kind == wire.ErrorKind {
			return zero, &RemoteError{Message: wire.DecodeError(reply.Body).Message}
		}
		if reply.Kind != zero.Kind() {
			return zero, ErrWrongResponseType
		}
		resp, err := payload.DecodeResponse(reply.Body)
		if err != nil {
			return zero, ErrWrongResponseType
		}
		return resp, nil
	case <-ctx.Done():
		c.unregisterResponse(messageID)
		return zero, ctx.Err()
	}
}

func originalSenderIDField(id *wire.PeerID) *uint32 {
	if id == nil {
		return nil
	}
	v := uint32(*id)
	return &v
}
