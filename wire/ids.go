package wire

import "fmt"

// ConnectionID identifies one transport attachment to a Peer. It is
// minted by the Peer that owns the connection and is unique for the
// lifetime of that Peer.
type ConnectionID uint32

func (id ConnectionID) String() string {
	return fmt.Sprintf("%d", uint32(id))
}

// PeerID is an out-of-band identity assigned to a logical RPC peer. It
// is never minted by this package; it only ever appears inside an
// Envelope's OriginalSenderID field to attribute forwarded traffic
// back to whoever first sent it. PeerID and ConnectionID are distinct
// namespaces and must never be compared against one another.
type PeerID uint32

func (id PeerID) String() string {
	return fmt.Sprintf("%d", uint32(id))
}
