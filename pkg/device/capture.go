package device

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/snugbit/toygateway/pkg/frame"
)

const (
	captureFrameBytes    = 3200 // ~100ms of 16kHz mono 16-bit PCM
	captureFrameInterval = 100 * time.Millisecond
)

// FrameSender is the capability Capture needs from a connection: send one
// frame. Narrowed to an interface so tests can exercise Capture without a
// live WebSocket.
type FrameSender interface {
	Send(frame.Frame) error
}

// Capture streams audio_chunk frames to the gateway from a source reader
// (§4.6's capture pipeline). No microphone driver is in scope for this
// expansion; the simulator drives it from a WAV/raw-PCM file or from
// synthetic silence, selected by the caller's choice of io.Reader.
type Capture struct {
	conn       FrameSender
	sampleRate int
	format     string
}

func NewCapture(conn FrameSender, sampleRate int, format string) *Capture {
	return &Capture{conn: conn, sampleRate: sampleRate, format: format}
}

// Run reads fixed-size frames from src at roughly real-time pace and sends
// them as audio_chunk frames, finishing with the empty isFinal=true
// terminal marker (§4.6). It returns when src is exhausted, ctx is
// cancelled, or a send fails.
func (c *Capture) Run(ctx context.Context, src io.Reader) error {
	r := bufio.NewReaderSize(src, captureFrameBytes)
	buf := make([]byte, captureFrameBytes)
	ticker := time.NewTicker(captureFrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		n, err := r.Read(buf)
		if n > 0 {
			if sendErr := c.conn.Send(frame.NewAudioChunk(buf[:n], false, c.format, c.sampleRate)); sendErr != nil {
				return sendErr
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	return c.conn.Send(frame.NewAudioChunk(nil, true, c.format, c.sampleRate))
}

// Silence returns an io.Reader that yields n bytes of zeroed PCM16, for
// driving the capture pipeline with synthetic silence instead of a file.
func Silence(n int) io.Reader {
	return io.LimitReader(zeroReader{}, int64(n))
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
