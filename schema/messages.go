// Package schema provides the worked-example payload types exercised
// by this repository's tests and demo server: a trivial
// request/response pair (Ping/Pong) and a small buffer-opening
// protocol (OpenBuffer/OpenBufferResponse) modeled on the original
// test fixture this runtime's wire format was distilled from. Real
// applications define their own payload types the same way: implement
// wire.EnvelopedMessage (and wire.RequestMessage[Resp] for anything
// sent through rpc.Request/rpc.ForwardRequest), then call
// wire.RegisterPayload from an init so inbound frames of that Kind can
// be decoded.
package schema

import (
	"encoding/json"

	"github.com/relaywire/rpcpeer/wire"
)

// Kind tags. ErrorKind (0xFF) is reserved by the wire package; every
// other payload in this process must use a distinct tag.
const (
	KindPing uint8 = iota + 1
	KindPong
	KindOpenBuffer
	KindOpenBufferResponse
)

func init() {
	wire.RegisterPayload(KindPing, decodeJSON[Ping])
	wire.RegisterPayload(KindPong, decodeJSON[Pong])
	wire.RegisterPayload(KindOpenBuffer, decodeJSON[OpenBuffer])
	wire.RegisterPayload(KindOpenBufferResponse, decodeJSON[OpenBufferResponse])
}

func decodeJSON[T any](body []byte) (T, error) {
	var v T
	err := json.Unmarshal(body, &v)
	return v, err
}

func marshalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Ping is the minimal request: an echo asking for a Pong carrying the
// same id back.
type Ping struct {
	ID uint64 `json:"id"`
}

func (Ping) Kind() uint8                { return KindPing }
func (p Ping) Marshal() ([]byte, error) { return marshalJSON(p) }

func (Ping) DecodeResponse(body []byte) (Pong, error) {
	return decodeJSON[Pong](body)
}

// Pong answers a Ping.
type Pong struct {
	ID uint64 `json:"id"`
}

func (Pong) Kind() uint8                { return KindPong }
func (p Pong) Marshal() ([]byte, error) { return marshalJSON(p) }

// OpenBuffer asks the receiver to open, and return the contents of,
// the file at Path within WorktreeID.
type OpenBuffer struct {
	WorktreeID uint64 `json:"worktree_id"`
	Path       string `json:"path"`
}

func (OpenBuffer) Kind() uint8                { return KindOpenBuffer }
func (o OpenBuffer) Marshal() ([]byte, error) { return marshalJSON(o) }

func (OpenBuffer) DecodeResponse(body []byte) (OpenBufferResponse, error) {
	return decodeJSON[OpenBufferResponse](body)
}

// OpenBufferResponse answers OpenBuffer. Buffer is nil when the path
// could not be opened.
type OpenBufferResponse struct {
	Buffer *Buffer `json:"buffer,omitempty"`
}

func (OpenBufferResponse) Kind() uint8                { return KindOpenBufferResponse }
func (o OpenBufferResponse) Marshal() ([]byte, error) { return marshalJSON(o) }

// Buffer is an opened file: its stable id, current text, the
// operation log that produced that text, and the selections any
// collaborator currently has in it.
type Buffer struct {
	ID         uint64      `json:"id"`
	Content    string      `json:"content"`
	History    []Operation `json:"history"`
	Selections []Selection `json:"selections"`
}

// Operation is one entry in a buffer's edit history: replace the text
// in [Start, End) with Text.
type Operation struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	Text  string `json:"text"`
}

// Selection is one collaborator's cursor or text selection within a
// buffer.
type Selection struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}
