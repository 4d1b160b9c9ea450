// Package wavcontainer wraps raw single-channel 16-bit PCM in a RIFF/WAV
// envelope, so a downstream recognizer does not need out-of-band
// sample-rate knowledge (§4.3's "containerization").
package wavcontainer

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	bitsPerSample = 16
	channels      = 1
	bytesPerSample = bitsPerSample / 8
)

// Wrap containerizes raw little-endian 16-bit PCM samples into a
// single-channel WAV file at sampleRate.
func Wrap(pcm []byte, sampleRate int) []byte {
	dataSize := len(pcm)
	byteRate := sampleRate * channels * bytesPerSample
	blockAlign := channels * bytesPerSample

	var buf bytes.Buffer
	buf.Grow(44 + dataSize)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16)) // fmt chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(pcm)

	return buf.Bytes()
}

// Info describes the fields a WAV file's header carries.
type Info struct {
	SampleRate  int
	Channels    int
	BitsPerSample int
	SampleCount int // number of per-channel samples in the data chunk
}

// Parse reads a WAV file's header and reports its format and sample count,
// without validating every RIFF chunk exhaustively — only what the
// containerization round trip (P6) needs to verify.
func Parse(b []byte) (Info, error) {
	if len(b) < 44 {
		return Info{}, fmt.Errorf("wavcontainer: file too short (%d bytes)", len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return Info{}, fmt.Errorf("wavcontainer: not a RIFF/WAVE file")
	}

	var info Info
	off := 12
	var dataSize int
	for off+8 <= len(b) {
		chunkID := string(b[off : off+4])
		chunkSize := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		if body+chunkSize > len(b) {
			chunkSize = len(b) - body
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return Info{}, fmt.Errorf("wavcontainer: fmt chunk too short")
			}
			info.Channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(b[body+14 : body+16]))
		case "data":
			dataSize = chunkSize
		}
		off = body + chunkSize
		if chunkSize%2 == 1 {
			off++ // chunks are word-aligned
		}
	}

	if info.SampleRate == 0 {
		return Info{}, fmt.Errorf("wavcontainer: missing fmt chunk")
	}
	bytesPer := info.BitsPerSample / 8
	if bytesPer == 0 {
		bytesPer = bytesPerSample
	}
	if info.Channels == 0 {
		info.Channels = 1
	}
	info.SampleCount = dataSize / (bytesPer * info.Channels)
	return info, nil
}
