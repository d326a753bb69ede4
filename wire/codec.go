package wire

import (
	"encoding/binary"
	"fmt"
)

// flag bits packed into the header's single flags byte.
const (
	flagHasRespondingTo     uint8 = 1 << 0
	flagHasOriginalSenderID uint8 = 1 << 1
)

// headerSize is the fixed-size portion of an encoded envelope: message
// id, flags, responding-to, original-sender-id, and the payload kind
// tag. The body follows immediately after.
const headerSize = 4 + 1 + 4 + 4 + 1

// EncodeEnvelope serializes an Envelope into a single frame suitable
// for one transport message (one websocket binary frame, or one
// in-memory queue entry). The underlying transport is trusted to
// preserve message boundaries, so no outer length prefix is needed
// beyond the fixed header described above.
func EncodeEnvelope(e Envelope) []byte {
	buf := make([]byte, headerSize+len(e.Body))
	binary.BigEndian.PutUint32(buf[0:4], e.MessageID)

	var flags uint8
	var respondingTo, originalSenderID uint32
	if e.RespondingTo != nil {
		flags |= flagHasRespondingTo
		respondingTo = *e.RespondingTo
	}
	if e.OriginalSenderID != nil {
		flags |= flagHasOriginalSenderID
		originalSenderID = *e.OriginalSenderID
	}
	buf[4] = flags
	binary.BigEndian.PutUint32(buf[5:9], respondingTo)
	binary.BigEndian.PutUint32(buf[9:13], originalSenderID)
	buf[13] = e.Kind
	copy(buf[headerSize:], e.Body)
	return buf
}

// DecodeEnvelope is the inverse of EncodeEnvelope. It returns an error
// if data is shorter than a valid header, which callers surface as a
// transport/codec read error.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if len(data) < headerSize {
		return Envelope{}, fmt.Errorf("wire: envelope frame too short: %d bytes", len(data))
	}
	e := Envelope{
		MessageID: binary.BigEndian.Uint32(data[0:4]),
		Kind:      data[13],
	}
	flags := data[4]
	if flags&flagHasRespondingTo != 0 {
		v := binary.BigEndian.Uint32(data[5:9])
		e.RespondingTo = &v
	}
	if flags&flagHasOriginalSenderID != 0 {
		v := binary.BigEndian.Uint32(data[9:13])
		e.OriginalSenderID = &v
	}
	body := make([]byte, len(data)-headerSize)
	copy(body, data[headerSize:])
	e.Body = body
	return e, nil
}
