package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEnvelopeRoundTrip(t *testing.T) {
	respondingTo := uint32(7)
	originalSender := uint32(99)

	e := Envelope{
		MessageID:        42,
		RespondingTo:     &respondingTo,
		OriginalSenderID: &originalSender,
		Kind:             3,
		Body:             []byte(`{"hello":"world"}`),
	}

	data := EncodeEnvelope(e)
	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)

	require.Equal(t, e.MessageID, decoded.MessageID)
	require.Equal(t, e.Kind, decoded.Kind)
	require.Equal(t, e.Body, decoded.Body)
	require.NotNil(t, decoded.RespondingTo)
	require.Equal(t, *e.RespondingTo, *decoded.RespondingTo)
	require.NotNil(t, decoded.OriginalSenderID)
	require.Equal(t, *e.OriginalSenderID, *decoded.OriginalSenderID)
}

func TestEncodeDecodeEnvelopeNoOptionalFields(t *testing.T) {
	e := Envelope{MessageID: 1, Kind: 5, Body: nil}

	decoded, err := DecodeEnvelope(EncodeEnvelope(e))
	require.NoError(t, err)

	require.Nil(t, decoded.RespondingTo)
	require.Nil(t, decoded.OriginalSenderID)
	require.False(t, decoded.IsResponse())
	require.Empty(t, decoded.Body)
}

func TestDecodeEnvelopeTooShort(t *testing.T) {
	_, err := DecodeEnvelope([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestIsResponse(t *testing.T) {
	respondingTo := uint32(1)
	require.True(t, Envelope{RespondingTo: &respondingTo}.IsResponse())
	require.False(t, Envelope{}.IsResponse())
}
