package wire

// builder decodes a raw envelope body into a concrete TypedEnvelope
// wrapped as AnyTypedEnvelope. One builder is registered per payload
// Kind by RegisterPayload.
type builder func(sender ConnectionID, messageID uint32, origin *PeerID, body []byte) (AnyTypedEnvelope, error)

var registry = map[uint8]builder{}

// RegisterPayload associates a payload Kind tag with a decode
// function, so BuildTypedEnvelope can turn a raw inbound Envelope into
// the right concrete TypedEnvelope[T]. Schema packages call this from
// an init() for every payload type they define.
func RegisterPayload[T EnvelopedMessage](kind uint8, decode func([]byte) (T, error)) {
	registry[kind] = func(sender ConnectionID, messageID uint32, origin *PeerID, body []byte) (AnyTypedEnvelope, error) {
		payload, err := decode(body)
		if err != nil {
			return nil, err
		}
		return TypedEnvelope[T]{
			SenderID:         sender,
			OriginalSenderID: origin,
			MessageID:        messageID,
			Payload:          payload,
		}, nil
	}
}

// BuildTypedEnvelope constructs the polymorphic, downcastable envelope
// for an inbound, non-response Envelope. It returns ok=false when the
// payload Kind has no registered builder (an unknown variant), which
// callers must log and continue past rather than treat as fatal.
func BuildTypedEnvelope(connID ConnectionID, env Envelope) (AnyTypedEnvelope, bool) {
	build, ok := registry[env.Kind]
	if !ok {
		return nil, false
	}
	var origin *PeerID
	if env.OriginalSenderID != nil {
		id := PeerID(*env.OriginalSenderID)
		origin = &id
	}
	typed, err := build(connID, env.MessageID, origin, env.Body)
	if err != nil {
		return nil, false
	}
	return typed, true
}
