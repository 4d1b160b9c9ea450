package frame

import (
	"encoding/hex"
	"fmt"
)

// EncodeAudio hex-encodes a raw audio payload for the wire "data" field.
func EncodeAudio(raw []byte) string {
	return hex.EncodeToString(raw)
}

// DecodeAudio decodes a wire "data" field back into raw bytes. Hex-encode
// then hex-decode is identity on byte sequences (R1); DecodeAudio(EncodeAudio(b))
// always equals b for any b.
func DecodeAudio(data string) ([]byte, error) {
	b, err := hex.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("frame: decode audio payload: %w", err)
	}
	return b, nil
}

// NewAudioChunk builds an audio_chunk frame carrying raw (not yet hex-encoded)
// audio bytes, ready for Encode.
func NewAudioChunk(raw []byte, isFinal bool, format string, sampleRate int) Frame {
	return Frame{
		Type: TypeAudioChunk,
		Data: EncodeAudio(raw),
		Metadata: &AudioMetadata{
			IsFinal:    isFinal,
			Format:     format,
			SampleRate: sampleRate,
		},
	}
}

// NewAudioResponse builds an audio_response frame carrying raw (not yet
// hex-encoded) audio bytes.
func NewAudioResponse(raw []byte, isFinal bool, sampleRate int, provider string) Frame {
	return Frame{
		Type: TypeAudioResponse,
		AudioPayload: &AudioResponsePayload{
			Data: EncodeAudio(raw),
			Metadata: ResponseAudioMetadata{
				Format:     "pcm16",
				Endian:     "le",
				Channels:   1,
				Provider:   provider,
				SampleRate: sampleRate,
				IsFinal:    isFinal,
			},
		},
	}
}

// IsTerminal reports whether an audio_chunk or audio_response frame is a
// terminal marker: empty payload with isFinal set.
func (f Frame) IsTerminal() bool {
	switch f.Type {
	case TypeAudioChunk:
		return f.Data == "" && f.Metadata != nil && f.Metadata.IsFinal
	case TypeAudioResponse:
		return f.AudioPayload != nil && f.AudioPayload.Data == "" && f.AudioPayload.Metadata.IsFinal
	default:
		return false
	}
}
