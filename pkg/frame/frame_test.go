package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeHandshake(t *testing.T) {
	f := Frame{
		Type:     TypeHandshake,
		DeviceID: "dev-1",
		ToyID:    "toy-1",
		Capabilities: &Capabilities{
			Audio:      true,
			SampleRate: 16000,
		},
	}
	b, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, TypeHandshake, got.Type)
	require.Equal(t, "dev-1", got.DeviceID)
	require.Equal(t, "toy-1", got.ToyID)
	require.NotNil(t, got.Capabilities)
	require.True(t, got.Capabilities.Audio)
	require.Equal(t, 16000, got.Capabilities.SampleRate)
}

func TestDecodeRejectsNonJSON(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.EqualError(t, err, ErrCodeInvalidJSON)
}

func TestDecodeRejectsMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"foo":"bar"}`))
	require.EqualError(t, err, ErrCodeInvalidJSON)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"bogus"}`))
	require.EqualError(t, err, UnknownTypeError("bogus"))
}

func TestAudioHexRoundTrip(t *testing.T) {
	raw := []byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0x10}
	encoded := EncodeAudio(raw)
	decoded, err := DecodeAudio(encoded)
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
}

func TestTextResponseRoundTrip(t *testing.T) {
	f := Frame{
		Type: TypeTextResponse,
		TextPayload: &TextPayload{
			Text: "hello there",
		},
	}
	b, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	require.NotNil(t, got.TextPayload)
	require.Equal(t, "hello there", got.TextPayload.Text)
}

func TestAudioResponseRoundTrip(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	f := NewAudioResponse(raw, false, 16000, "aurora")
	b, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	require.NotNil(t, got.AudioPayload)
	require.Equal(t, "aurora", got.AudioPayload.Metadata.Provider)
	require.False(t, got.IsTerminal())

	decoded, err := DecodeAudio(got.AudioPayload.Data)
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
}

func TestAudioResponseTerminalMarker(t *testing.T) {
	f := NewAudioResponse(nil, true, 16000, "aurora")
	require.True(t, f.IsTerminal())
}

func TestAudioChunkTerminalMarker(t *testing.T) {
	f := NewAudioChunk(nil, true, "pcm16", 16000)
	require.True(t, f.IsTerminal())

	nonTerm := NewAudioChunk([]byte{1, 2}, false, "pcm16", 16000)
	require.False(t, nonTerm.IsTerminal())
}
