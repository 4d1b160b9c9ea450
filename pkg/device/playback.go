package device

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/snugbit/toygateway/pkg/frame"
	"github.com/snugbit/toygateway/pkg/logging"
	"github.com/snugbit/toygateway/pkg/resample"
)

const (
	playbackMinAggBytes  = 8192
	playbackWriteBytes   = 8192
	playbackInterWrite   = 3 * time.Millisecond
	playbackNoDataWindow = 1 * time.Second
	playbackOverallCap   = 30 * time.Second
	playbackWatchdog     = 500 * time.Millisecond
)

// Playback is the device's receive→buffer→playback pipeline (§4.6): an
// aggregation loop that smooths jittery inbound chunks into writes large
// enough for Bluetooth-class sinks, feeding a write loop, bracketed by a
// playback_running flag and the text-response/watchdog trigger contract.
type Playback struct {
	conn   *Connection
	sink   io.Writer
	logger logging.Logger

	sinkSampleRate int
	underruns      atomic.Int64

	running atomic.Bool
}

func NewPlayback(conn *Connection, sink io.Writer, sinkSampleRate int, logger logging.Logger) *Playback {
	if logger == nil {
		logger = logging.Default("device: ")
	}
	if sinkSampleRate <= 0 {
		sinkSampleRate = 48000 // Bluetooth-sink default (§4.6)
	}
	return &Playback{conn: conn, sink: sink, sinkSampleRate: sinkSampleRate, logger: logger}
}

// Trigger starts playback if it is not already running (the playback_running
// gate, §4.6); a second trigger while already running is logged and
// ignored.
func (p *Playback) Trigger(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.WarnPrintf("playback trigger ignored: already running")
		return
	}
	go func() {
		defer p.running.Store(false)
		if err := p.run(ctx); err != nil && err != io.EOF {
			p.logger.WarnPrintf("playback ended with error: %v", err)
		}
	}()
}

// Running reports whether a playback task is currently active.
func (p *Playback) Running() bool {
	return p.running.Load()
}

// Underruns reports the count of write-loop retries caused by sink write
// errors, for diagnostics.
func (p *Playback) Underruns() int64 {
	return p.underruns.Load()
}

func (p *Playback) run(ctx context.Context) error {
	deadline := time.NewTimer(playbackOverallCap)
	defer deadline.Stop()

	chunks := make(chan []byte, 4)
	done := make(chan error, 1)
	go func() {
		done <- p.aggregate(ctx, chunks)
	}()

	var aggBuf []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			p.logger.WarnPrintf("playback overall cap reached, stopping")
			return nil
		case chunk, ok := <-chunks:
			if !ok {
				return <-done
			}
			if chunk == nil {
				return <-done // sentinel
			}
			aggBuf = append(aggBuf, chunk...)
			for len(aggBuf) >= playbackWriteBytes {
				block := aggBuf[:playbackWriteBytes]
				if err := p.writeBlock(block); err != nil {
					p.underruns.Add(1)
					aggBuf = nil
					break
				}
				aggBuf = aggBuf[playbackWriteBytes:]
				time.Sleep(playbackInterWrite)
			}
		}
	}
}

func (p *Playback) writeBlock(b []byte) error {
	_, err := p.sink.Write(b)
	return err
}

// aggregate consumes inbound audio_response frames, resamples pcm16
// payloads to the sink's open rate, and emits coalesced chunks on out
// until a terminal marker is seen or no data arrives for
// playbackNoDataWindow (§4.6's completion rule (b)). A nil value on out is
// the sentinel marking clean completion.
func (p *Playback) aggregate(ctx context.Context, out chan<- []byte) error {
	defer close(out)

	var holding []byte
	var providerRate int

	flush := func(final bool) {
		if len(holding) == 0 && !final {
			return
		}
		if final && len(holding) > 0 && len(holding) < playbackMinAggBytes {
			holding = append(holding, make([]byte, playbackMinAggBytes-len(holding))...)
		}
		if len(holding) > 0 {
			out <- holding
			holding = nil
		}
	}

	for {
		type readResult struct {
			fr  frame.Frame
			err error
		}
		resultCh := make(chan readResult, 1)
		go func() {
			fr, err := p.conn.ReadInboundAudio()
			resultCh <- readResult{fr, err}
		}()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(playbackNoDataWindow):
			flush(true)
			out <- nil
			return nil
		case r := <-resultCh:
			if r.err != nil {
				flush(true)
				out <- nil
				return nil
			}
			fr := r.fr
			if fr.AudioPayload == nil {
				continue
			}
			if fr.IsTerminal() {
				flush(true)
				out <- nil
				return nil
			}
			meta := fr.AudioPayload.Metadata
			switch meta.Format {
			case "pcm16", "":
				raw, err := frame.DecodeAudio(fr.AudioPayload.Data)
				if err != nil {
					p.logger.WarnPrintf("decode audio_response payload: %v", err)
					continue
				}
				if meta.SampleRate > 0 {
					providerRate = meta.SampleRate
				}
				resampled, err := p.resampleIfNeeded(raw, providerRate)
				if err != nil {
					p.logger.WarnPrintf("resample audio_response payload: %v", err)
					continue
				}
				holding = append(holding, resampled...)
				for len(holding) >= playbackMinAggBytes {
					chunk := holding[:playbackMinAggBytes]
					out <- append([]byte(nil), chunk...)
					holding = holding[playbackMinAggBytes:]
				}
			case "opus":
				p.logger.DebugPrintf("opus audio_response payload skipped (decode out of scope)")
			default:
				p.logger.DebugPrintf("unrecognized audio_response format %q skipped", meta.Format)
			}
		}
	}
}

func (p *Playback) resampleIfNeeded(raw []byte, providerRate int) ([]byte, error) {
	if providerRate <= 0 || providerRate == p.sinkSampleRate {
		return raw, nil
	}
	src := resample.Format{SampleRate: providerRate, Stereo: false}
	dst := resample.Format{SampleRate: p.sinkSampleRate, Stereo: false}
	r, err := resample.New(&byteReader{raw}, src, dst)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type byteReader struct{ b []byte }

func (b *byteReader) Read(p []byte) (int, error) {
	if len(b.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.b)
	b.b = b.b[n:]
	return n, nil
}
