package wavcontainer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapParseRoundTrip(t *testing.T) {
	// 16 ms at 16kHz, 16-bit mono = 512 bytes = 256 samples
	pcm := make([]byte, 512)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	wav := Wrap(pcm, 16000)
	info, err := Parse(wav)
	require.NoError(t, err)
	require.Equal(t, 16000, info.SampleRate)
	require.Equal(t, 1, info.Channels)
	require.Equal(t, 16, info.BitsPerSample)
	require.Equal(t, len(pcm)/2, info.SampleCount)
}

func TestParseRejectsShortFile(t *testing.T) {
	_, err := Parse([]byte("too short"))
	require.Error(t, err)
}

func TestParseRejectsNonRIFF(t *testing.T) {
	junk := make([]byte, 64)
	_, err := Parse(junk)
	require.Error(t, err)
}

func TestWrapEmptyPayload(t *testing.T) {
	wav := Wrap(nil, 16000)
	info, err := Parse(wav)
	require.NoError(t, err)
	require.Equal(t, 0, info.SampleCount)
}
