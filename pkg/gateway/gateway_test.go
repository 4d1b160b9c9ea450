package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snugbit/toygateway/pkg/cache"
	"github.com/snugbit/toygateway/pkg/frame"
	"github.com/snugbit/toygateway/pkg/tts"
)

// fakeTransport is an in-process Transport backed by channels, letting a
// test drive both directions of a session without a real socket.
type fakeTransport struct {
	in     chan frame.Frame
	out    chan frame.Frame
	closed chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan frame.Frame, 16),
		out:    make(chan frame.Frame, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadFrame() (frame.Frame, error) {
	select {
	case fr, ok := <-f.in:
		if !ok {
			return frame.Frame{}, errors.New("transport closed")
		}
		return fr, nil
	case <-f.closed:
		return frame.Frame{}, errors.New("transport closed")
	}
}

func (f *fakeTransport) WriteFrame(fr frame.Frame) error {
	select {
	case f.out <- fr:
		return nil
	case <-f.closed:
		return errors.New("transport closed")
	}
}

func (f *fakeTransport) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func (f *fakeTransport) sendIn(fr frame.Frame) {
	f.in <- fr
}

func (f *fakeTransport) recvOut(t *testing.T, timeout time.Duration) frame.Frame {
	t.Helper()
	select {
	case fr := <-f.out:
		return fr
	case <-time.After(timeout):
		t.Fatal("timed out waiting for outbound frame")
		return frame.Frame{}
	}
}

// fakeAIBackend returns a canned response, or an error if configured to.
type fakeAIBackend struct {
	resp AIResponse
	err  error
	delay time.Duration
}

func (f *fakeAIBackend) ProcessVoiceInteraction(ctx context.Context, req AIRequest) (AIResponse, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return AIResponse{}, ctx.Err()
		}
	}
	if f.err != nil {
		return AIResponse{}, f.err
	}
	return f.resp, nil
}

func testConfig() Config {
	return Config{
		IdleTimeout:  50 * time.Millisecond,
		ReapInterval: 10 * time.Millisecond,
	}
}

func TestHandshakeAndPing(t *testing.T) {
	m := NewManager(testConfig(), &fakeAIBackend{}, tts.NewRegistry(""), nil, nil)
	defer m.Shutdown()

	tx := newFakeTransport()
	s := m.Accept("device-1", "toy-1", tx)
	go m.Run(s)

	tx.sendIn(frame.Frame{Type: frame.TypeHandshake, DeviceID: "device-1", ToyID: "toy-1"})
	ack := tx.recvOut(t, time.Second)
	require.Equal(t, frame.TypeHandshakeAck, ack.Type)
	require.Equal(t, s.ID, ack.SessionID)

	tx.sendIn(frame.Frame{Type: frame.TypePing})
	pong := tx.recvOut(t, time.Second)
	require.Equal(t, frame.TypePong, pong.Type)
}

func TestUnknownFrameTypeGetsErrorReply(t *testing.T) {
	m := NewManager(testConfig(), &fakeAIBackend{}, tts.NewRegistry(""), nil, nil)
	defer m.Shutdown()

	tx := newFakeTransport()
	s := m.Accept("device-2", "toy-1", tx)
	go m.Run(s)

	tx.sendIn(frame.Frame{Type: frame.Type("bogus_type")})
	errFrame := tx.recvOut(t, time.Second)
	require.Equal(t, frame.TypeError, errFrame.Type)
	require.Equal(t, frame.UnknownTypeError("bogus_type"), errFrame.Error)
}

func TestAudioChunkDispatchSendsStatusThenText(t *testing.T) {
	backend := &fakeAIBackend{resp: AIResponse{Success: true, Text: "hello there"}}
	m := NewManager(testConfig(), backend, tts.NewRegistry(""), nil, nil)
	defer m.Shutdown()

	tx := newFakeTransport()
	s := m.Accept("device-3", "toy-1", tx)
	go m.Run(s)

	raw := []byte{1, 2, 3, 4}
	tx.sendIn(frame.NewAudioChunk(raw, true, "pcm16", 16000))

	status := tx.recvOut(t, time.Second)
	require.Equal(t, frame.TypeStatus, status.Type)
	require.Equal(t, "processing", status.Status)

	text := tx.recvOut(t, time.Second)
	require.Equal(t, frame.TypeTextResponse, text.Type)
	require.NotNil(t, text.TextPayload)
	require.Equal(t, "hello there", text.TextPayload.Text)
}

func TestAudioChunkDispatchTimeoutProducesErrorFrame(t *testing.T) {
	backend := &fakeAIBackend{err: errors.New("convex_timeout_after_30.0s")}
	m := NewManager(testConfig(), backend, tts.NewRegistry(""), nil, nil)
	defer m.Shutdown()

	tx := newFakeTransport()
	s := m.Accept("device-4", "toy-1", tx)
	go m.Run(s)

	tx.sendIn(frame.NewAudioChunk([]byte{9, 9}, true, "pcm16", 16000))
	_ = tx.recvOut(t, time.Second) // status:processing

	errFrame := tx.recvOut(t, time.Second)
	require.Equal(t, frame.TypeError, errFrame.Type)
	require.Equal(t, "convex_timeout_after_30.0s", errFrame.Error)
}

func TestIdleSessionIsReaped(t *testing.T) {
	m := NewManager(testConfig(), &fakeAIBackend{}, tts.NewRegistry(""), nil, nil)
	defer m.Shutdown()

	tx := newFakeTransport()
	s := m.Accept("device-5", "toy-1", tx)
	go m.Run(s)

	require.Equal(t, 1, m.ActiveSessions())
	require.Eventually(t, func() bool {
		return m.ActiveSessions() == 0
	}, time.Second, 5*time.Millisecond)
	_ = s
}

func TestContainerizeWrapsPCM16(t *testing.T) {
	container, warn := containerize([]byte{1, 2, 3, 4}, "pcm16", 16000)
	require.Empty(t, warn)
	require.Equal(t, []byte("RIFF"), container[:4])
}

func TestContainerizePassesThroughWAV(t *testing.T) {
	payload := []byte("RIFF....WAVEfmt ")
	container, warn := containerize(payload, "wav", 16000)
	require.Empty(t, warn)
	require.Equal(t, payload, container)
}

func TestContainerizeWarnsOnUnknownFormat(t *testing.T) {
	_, warn := containerize([]byte{1}, "mp3", 16000)
	require.NotEmpty(t, warn)
}

func TestEnqueueTurnWritesToCache(t *testing.T) {
	backend := &fakeAIBackend{resp: AIResponse{Success: true, Text: "logged turn"}}
	queue := cache.NewMemory()
	m := NewManager(testConfig(), backend, tts.NewRegistry(""), queue, nil)
	defer m.Shutdown()

	tx := newFakeTransport()
	s := m.Accept("device-6", "toy-1", tx)
	go m.Run(s)

	tx.sendIn(frame.NewAudioChunk([]byte{1}, true, "pcm16", 16000))
	_ = tx.recvOut(t, time.Second) // status
	_ = tx.recvOut(t, time.Second) // text_response

	require.Eventually(t, func() bool {
		return queue.Len() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHTTPAIBackendDecodesResponse(t *testing.T) {
	// Exercises the wire shape decode path directly without a live HTTP
	// server: jsonrepair only kicks in on malformed bodies, so a clean
	// response must decode without it.
	body := []byte(`{"success":true,"text":"hi","threadId":"t-1"}`)
	var wire wireAIResponse
	require.NoError(t, json.Unmarshal(body, &wire))
	require.True(t, wire.Success)
	require.Equal(t, "hi", wire.Text)
	require.Equal(t, "t-1", wire.ThreadID)
}
