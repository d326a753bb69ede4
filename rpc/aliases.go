package rpc

import "github.com/relaywire/rpcpeer/wire"

// These aliases let application code name the non-generic pieces of
// the schema through the rpc package alone. The generic ones
// (TypedEnvelope[T], Receipt[T], RequestMessage[Resp]) stay in wire:
// this module targets Go 1.23, which lacks generic type aliases (added
// in 1.24), so callers that need those import wire alongside rpc.
type (
	ConnectionID     = wire.ConnectionID
	PeerID           = wire.PeerID
	Envelope         = wire.Envelope
	EnvelopedMessage = wire.EnvelopedMessage
	AnyTypedEnvelope = wire.AnyTypedEnvelope
	AnyReceipt       = wire.AnyReceipt
)
