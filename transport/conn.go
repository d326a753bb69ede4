// Package transport provides the duplex, message-framed byte
// transport the rpc package's I/O task reads from and writes to. The
// canonical implementation wraps a gorilla/websocket connection;
// InMemory provides a test-only pair plus a kill switch for
// simulating abrupt transport failure.
package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send and Recv once the connection has been
// closed locally or the kill switch (for in-memory pairs) has fired.
var ErrClosed = errors.New("transport: connection closed")

// Message is an opaque framed blob exchanged with the duplex
// transport. Binary distinguishes a binary frame from a text frame;
// the wire codec only ever produces binary frames.
type Message struct {
	Binary bool
	Data   []byte
}

// Duplex is the minimal contract Conn needs from an underlying
// transport: send one message, receive the next one.
type Duplex interface {
	Send(ctx context.Context, msg Message) error
	Recv(ctx context.Context) (Message, error)
	Close() error
}

// Conn is an owned wrapper over one transport endpoint. It is the
// thing Peer.AddConnection accepts: anything satisfying Duplex can be
// wrapped in a Conn and handed to a Peer.
type Conn struct {
	d    Duplex
	once sync.Once
}

// New wraps any Duplex as a Conn.
func New(d Duplex) *Conn {
	return &Conn{d: d}
}

// Send pushes one framed message to the transport. Tests call it
// directly to exercise the raw transport below the RPC layer; the I/O
// task calls it with frames produced by wire.EncodeEnvelope.
func (c *Conn) Send(ctx context.Context, msg Message) error {
	return c.d.Send(ctx, msg)
}

// Recv reads the next framed message from the transport.
func (c *Conn) Recv(ctx context.Context) (Message, error) {
	return c.d.Recv(ctx)
}

// Close releases the underlying transport. It is safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.d.Close()
	})
	return err
}
