package wire

// TypedEnvelope is the in-process, strongly-typed counterpart of an
// inbound Envelope, built once the payload's concrete type is known.
type TypedEnvelope[T EnvelopedMessage] struct {
	SenderID         ConnectionID
	OriginalSenderID *PeerID
	MessageID        uint32
	Payload          T
}

// TypedEnvelope implements AnyTypedEnvelope; the var _ below asserts
// that at compile time.
var _ AnyTypedEnvelope = TypedEnvelope[Error]{}

// Kind implements AnyTypedEnvelope.
func (e TypedEnvelope[T]) Kind() uint8 { return e.Payload.Kind() }

// Sender implements AnyTypedEnvelope.
func (e TypedEnvelope[T]) Sender() ConnectionID { return e.SenderID }

// ID implements AnyTypedEnvelope.
func (e TypedEnvelope[T]) ID() uint32 { return e.MessageID }

// Origin implements AnyTypedEnvelope.
func (e TypedEnvelope[T]) Origin() (PeerID, bool) {
	if e.OriginalSenderID == nil {
		return 0, false
	}
	return *e.OriginalSenderID, true
}

// NewReceipt returns the unforgeable token required to reply to this
// envelope. Req is constrained to RequestMessage[Resp], so this only
// compiles for a TypedEnvelope built from an actual request payload
// (one that knows how to decode its own response), matching the
// original RequestMessage-only receipt() method; a TypedEnvelope built
// from a plain response or notification payload is rejected at compile
// time. Resp is usually not inferable from e alone, so callers name it
// explicitly: wire.NewReceipt[schema.Pong](env).
func NewReceipt[Resp EnvelopedMessage, Req RequestMessage[Resp]](e TypedEnvelope[Req]) Receipt[Req] {
	return Receipt[Req]{SenderID: e.SenderID, MessageID: e.MessageID}
}

// AnyTypedEnvelope is the capability-bearing, runtime-typed view of an
// inbound envelope that the Peer hands to application handlers
// through the inbound queue. Handlers downcast it to a concrete
// TypedEnvelope[T] with Downcast.
type AnyTypedEnvelope interface {
	Kind() uint8
	Sender() ConnectionID
	ID() uint32
	Origin() (PeerID, bool)
}

// Downcast attempts to recover the concrete TypedEnvelope[T] from a
// polymorphic AnyTypedEnvelope. It is the Go analogue of downcasting a
// trait object to a concrete type.
func Downcast[T EnvelopedMessage](any AnyTypedEnvelope) (TypedEnvelope[T], bool) {
	te, ok := any.(TypedEnvelope[T])
	return te, ok
}

// Receipt is the unforgeable token required to send a well-typed
// response to a specific request. It carries no payload type
// constraint of its own beyond T so it can be passed around freely
// and copied.
type Receipt[T EnvelopedMessage] struct {
	SenderID  ConnectionID
	MessageID uint32
}

// ConnID implements AnyReceipt.
func (r Receipt[T]) ConnID() ConnectionID { return r.SenderID }

// MsgID implements AnyReceipt.
func (r Receipt[T]) MsgID() uint32 { return r.MessageID }
