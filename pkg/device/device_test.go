package device

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snugbit/toygateway/pkg/frame"
	"github.com/snugbit/toygateway/pkg/led"
	"github.com/snugbit/toygateway/pkg/logging"
)

func TestStateStringRoundTrip(t *testing.T) {
	for _, s := range []State{StateIdle, StateConnecting, StateListening, StateProcessing, StateSpeaking, StateError, StateOffline} {
		b, err := s.MarshalJSON()
		require.NoError(t, err)
		var got State
		require.NoError(t, got.UnmarshalJSON(b))
		require.Equal(t, s, got)
	}
}

func TestCanTransitionFollowsTable(t *testing.T) {
	require.True(t, canTransition(StateIdle, StateListening))
	require.True(t, canTransition(StateListening, StateProcessing))
	require.True(t, canTransition(StateProcessing, StateSpeaking))
	require.True(t, canTransition(StateSpeaking, StateIdle))
	require.False(t, canTransition(StateIdle, StateSpeaking))
	require.False(t, canTransition(StateConnecting, StateSpeaking))
}

func TestMachineRejectsInvalidTransition(t *testing.T) {
	m := NewMachine(led.Noop{}, logging.Noop())
	require.Equal(t, StateIdle, m.State())
	require.False(t, m.Enter(StateSpeaking))
	require.Equal(t, StateIdle, m.State())
}

func TestMachineErrorAlwaysAllowed(t *testing.T) {
	m := NewMachine(led.Noop{}, logging.Noop())
	require.True(t, m.Enter(StateListening))
	require.True(t, m.Enter(StateError))
	require.Equal(t, StateError, m.State())
}

func TestMachineDrivesLED(t *testing.T) {
	term := led.NewTerminal()
	m := NewMachine(term, logging.Noop())
	require.Contains(t, term.Current(), "idle")
	m.Enter(StateListening)
	require.Contains(t, term.Current(), "listening")
}

func TestBackoffDelayCapsAt60s(t *testing.T) {
	require.Equal(t, reconnectBaseDelay, backoffDelayFrom(reconnectBaseDelay, 1))
	require.Equal(t, 2*reconnectBaseDelay, backoffDelayFrom(reconnectBaseDelay, 2))
	require.Equal(t, reconnectMaxDelay, backoffDelayFrom(reconnectBaseDelay, 10))
}

func TestInteractionBoundaryDetectsGap(t *testing.T) {
	conn := NewConnection(context.Background(), "ws://example.invalid", "d1", "t1", 1, logging.Noop())
	defer conn.Close()

	require.False(t, conn.InteractionBoundary())
	conn.markOutbound()
	require.False(t, conn.InteractionBoundary())

	conn.sendMu.Lock()
	conn.lastOutboundSend = time.Now().Add(-2 * time.Second)
	conn.sendMu.Unlock()
	require.True(t, conn.InteractionBoundary())
}

func TestPlaybackAggregatesToMinimumSizeAndPadsFinal(t *testing.T) {
	conn := NewConnection(context.Background(), "ws://example.invalid", "d1", "t1", 1, logging.Noop())
	defer conn.Close()

	var sink bytes.Buffer
	pb := NewPlayback(conn, &sink, 16000, logging.Noop())

	// Small chunk below the aggregation minimum, then the terminal marker.
	go func() {
		_, _ = conn.inbound.Write([]frame.Frame{
			frame.NewAudioResponse(make([]byte, 100), false, 16000, "aurora"),
			frame.NewAudioResponse(nil, true, 16000, "aurora"),
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pb.Trigger(ctx)

	require.Eventually(t, func() bool {
		return !pb.Running()
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, playbackMinAggBytes, sink.Len())
}

func TestPlaybackIgnoresSecondTrigger(t *testing.T) {
	conn := NewConnection(context.Background(), "ws://example.invalid", "d1", "t1", 1, logging.Noop())
	defer conn.Close()
	var sink bytes.Buffer
	pb := NewPlayback(conn, &sink, 16000, logging.Noop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	pb.Trigger(ctx)
	require.True(t, pb.Running())
	pb.Trigger(ctx) // ignored: already running
}

type fakeFrameSender struct {
	sent []frame.Frame
}

func (f *fakeFrameSender) Send(fr frame.Frame) error {
	f.sent = append(f.sent, fr)
	return nil
}

func TestCaptureSendsTerminalMarker(t *testing.T) {
	fake := &fakeFrameSender{}

	cap := NewCapture(fake, 16000, "pcm16")
	err := cap.Run(context.Background(), Silence(captureFrameBytes*2))
	require.NoError(t, err)
	require.NotEmpty(t, fake.sent)
	last := fake.sent[len(fake.sent)-1]
	require.True(t, last.IsTerminal())
}
