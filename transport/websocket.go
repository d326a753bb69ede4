package transport

import (
	"context"

	"github.com/gorilla/websocket"
)

// wsDuplex adapts a gorilla/websocket connection to the Duplex
// contract. Only binary frames are used, per this runtime's canonical
// transport choice (spec: "a websocket carrying binary frames").
//
// gorilla/websocket does not support cancelling an in-flight
// ReadMessage/WriteMessage via context; ctx is accepted for interface
// symmetry with the in-memory transport and to let future deadlines be
// wired in without changing callers.
type wsDuplex struct {
	conn *websocket.Conn
}

// NewWebSocket wraps an established gorilla/websocket connection as a
// Conn usable by Peer.AddConnection.
func NewWebSocket(conn *websocket.Conn) *Conn {
	return New(&wsDuplex{conn: conn})
}

func (w *wsDuplex) Send(_ context.Context, msg Message) error {
	return w.conn.WriteMessage(websocket.BinaryMessage, msg.Data)
}

func (w *wsDuplex) Recv(_ context.Context) (Message, error) {
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	return Message{Binary: true, Data: data}, nil
}

func (w *wsDuplex) Close() error {
	return w.conn.Close()
}
