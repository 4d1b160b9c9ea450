package gateway

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/snugbit/toygateway/pkg/frame"
	"github.com/snugbit/toygateway/pkg/jsontime"
	"github.com/snugbit/toygateway/pkg/logging"
)

// Transport is the minimal framed-connection surface a Session needs; the
// gorilla/websocket-backed implementation lives in transport.go, kept
// separate so Session can be exercised in tests against a fake transport.
type Transport interface {
	ReadFrame() (frame.Frame, error)
	WriteFrame(frame.Frame) error
	Close() error
}

// Session is one live device↔gateway connection (gateway-side data model,
// §3): identity, transport handle, ingress audio buffer, and last-activity
// bookkeeping. Exactly one reader goroutine consumes Transport (I1); all
// writes go through send, which holds writeMu.
type Session struct {
	ID       string
	DeviceID string
	ToyID    string

	tx     Transport
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	ingress      bytes.Buffer
	ingressFmt   string
	ingressRate  int
	lastActivity jsontime.Milli
	threadID     string // opaque conversation id supplied by the AI backend
	closed       bool

	writeMu sync.Mutex
}

// newSessionID mints a gateway-assigned session id: device id plus a
// monotonic timestamp suffix plus a short random component, sufficient to
// be unique across restarts without a coordinating store (§4.2).
func newSessionID(deviceID string) string {
	return deviceID + "-" + time.Now().UTC().Format("20060102T150405.000000000") + "-" + uuid.NewString()[:8]
}

func newSession(ctx context.Context, deviceID, toyID string, tx Transport, logger logging.Logger) *Session {
	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		ID:           newSessionID(deviceID),
		DeviceID:     deviceID,
		ToyID:        toyID,
		tx:           tx,
		logger:       logger,
		ctx:          sctx,
		cancel:       cancel,
		lastActivity: jsontime.NowEpochMilli(),
	}
}

// touch records activity for idle-reap purposes (§4.2).
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = jsontime.NowEpochMilli()
	s.mu.Unlock()
}

func (s *Session) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity.Time())
}

// send serializes and writes fr through the single writer discipline
// (§5's ordering guarantees): all outbound frames on a session are
// serialised by one writer.
func (s *Session) send(fr frame.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.tx.WriteFrame(fr)
}

// appendIngress accumulates a decoded audio_chunk payload into the ingress
// buffer (§4.3's ingress buffering).
func (s *Session) appendIngress(raw []byte, format string, sampleRate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingress.Write(raw)
	s.ingressFmt = format
	if sampleRate > 0 {
		s.ingressRate = sampleRate
	}
}

// drainIngress returns and clears the ingress buffer atomically (I2: the
// buffer never persists across terminal markers).
func (s *Session) drainIngress() (data []byte, format string, sampleRate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data = append([]byte(nil), s.ingress.Bytes()...)
	format = s.ingressFmt
	sampleRate = s.ingressRate
	s.ingress.Reset()
	s.ingressFmt = ""
	return data, format, sampleRate
}

func (s *Session) ingressLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ingress.Len()
}

func (s *Session) setThreadID(id string) {
	s.mu.Lock()
	s.threadID = id
	s.mu.Unlock()
}

func (s *Session) getThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// close cancels the session's context (propagating cancellation to its
// reader, heartbeat, and any in-flight dispatch per §5), waits for owned
// goroutines to join, and closes the transport. It is safe to call more
// than once.
func (s *Session) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	leftover := s.ingress.Len()
	s.mu.Unlock()

	if leftover > 0 {
		s.logger.WarnPrintf("session %s closing with %d bytes of unflushed ingress audio (lost partial utterance)", s.ID, leftover)
	}

	s.cancel()
	s.wg.Wait()
	return s.tx.Close()
}

// spawn runs fn on a goroutine owned by the session, tracked by wg so close
// can join it (§9's "background-task ownership").
func (s *Session) spawn(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}
