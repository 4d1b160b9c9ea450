package device

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/snugbit/toygateway/pkg/buffer"
	"github.com/snugbit/toygateway/pkg/frame"
	"github.com/snugbit/toygateway/pkg/logging"
)

const (
	pingInterval       = 30 * time.Second
	pingTimeout        = 60 * time.Second
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 60 * time.Second
	inboundQueueSize   = 1000
	interactionGap     = 1500 * time.Millisecond
)

// Connection owns one WebSocket link to the gateway plus its reconnect
// loop, reader task, and inbound audio queue (§4.5). Grounded on
// pkg/chatgear/client_port.go's context-owned background-task shape, with
// the reconnect/backoff logic itself new (chatgear assumes a stable MQTT
// broker link, not a WAN WebSocket).
type Connection struct {
	gatewayURL  string
	deviceID    string
	toyID       string
	maxAttempts int
	baseDelay   time.Duration

	logger logging.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	inbound      *buffer.RingBuffer[frame.Frame]
	inboundCount atomic.Int64 // tracks queued entries so overflow can be logged (§4.5); RingBuffer itself overwrites silently

	lastOutboundSend time.Time
	sendMu           sync.Mutex

	handlers map[frame.Type]func(frame.Frame)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onStateChange func(connected bool)
}

// NewConnection builds a Connection. gatewayURL is the base ws[s]:// URL
// without the /ws/{device_id}/{toy_id} suffix, which Connect appends.
func NewConnection(ctx context.Context, gatewayURL, deviceID, toyID string, maxAttempts int, logger logging.Logger) *Connection {
	if logger == nil {
		logger = logging.Default("device: ")
	}
	// maxAttempts <= 0 means unlimited (§6's RECONNECT_MAX_ATTEMPTS default).
	cctx, cancel := context.WithCancel(ctx)
	return &Connection{
		gatewayURL:  gatewayURL,
		deviceID:    deviceID,
		toyID:       toyID,
		maxAttempts: maxAttempts,
		logger:      logger,
		inbound:     buffer.RingN[frame.Frame](inboundQueueSize),
		handlers:    make(map[frame.Type]func(frame.Frame)),
		ctx:         cctx,
		cancel:      cancel,
	}
}

// OnFrame registers a handler invoked for every decoded inbound frame,
// dispatched by type, in addition to (not instead of) the inbound audio
// queue enqueue that happens for every audio_response frame (§4.5).
func (c *Connection) OnFrame(t frame.Type, fn func(frame.Frame)) {
	c.handlers[t] = fn
}

// OnConnectionStateChange registers a callback fired with true on a
// successful handshake and false when the link drops.
func (c *Connection) OnConnectionStateChange(fn func(connected bool)) {
	c.onStateChange = fn
}

func (c *Connection) wsURL() (string, error) {
	u, err := url.Parse(c.gatewayURL)
	if err != nil {
		return "", fmt.Errorf("device: invalid gateway URL: %w", err)
	}
	u.Path = fmt.Sprintf("/ws/%s/%s", c.deviceID, c.toyID)
	return u.String(), nil
}

// Run drives the connect/reconnect loop until its context is cancelled or
// the attempt budget is exhausted (§4.5's reconnect transition table).
// It blocks; call it from its own goroutine.
func (c *Connection) Run() error {
	attempt := 0
	for {
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		default:
		}

		if err := c.connectOnce(); err != nil {
			attempt++
			c.logger.WarnPrintf("connect attempt %d failed: %v", attempt, err)
			if c.maxAttempts > 0 && attempt >= c.maxAttempts {
				return fmt.Errorf("device: giving up after %d attempts: %w", attempt, err)
			}
			base := c.baseDelay
			if base <= 0 {
				base = reconnectBaseDelay
			}
			delay := backoffDelayFrom(base, attempt)
			select {
			case <-time.After(delay):
				continue
			case <-c.ctx.Done():
				return c.ctx.Err()
			}
		}

		// connectOnce blocks until the link drops; a clean return resets the
		// attempt counter per §4.5.
		attempt = 0
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		default:
		}
	}
}

// backoffDelayFrom implements delay = base * 2^(attempt-1), capped at 60s.
func backoffDelayFrom(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= reconnectMaxDelay {
			return reconnectMaxDelay
		}
	}
	return d
}

func (c *Connection) connectOnce() error {
	wsURL, err := c.wsURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("device: dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.write(frame.Frame{Type: frame.TypeHandshake, DeviceID: c.deviceID, ToyID: c.toyID}); err != nil {
		conn.Close()
		return fmt.Errorf("device: handshake send: %w", err)
	}
	ack, err := c.readOne(conn)
	if err != nil || ack.Type != frame.TypeHandshakeAck {
		conn.Close()
		return fmt.Errorf("device: handshake ack: %w", err)
	}
	if c.onStateChange != nil {
		c.onStateChange(true)
	}

	readerCtx, readerCancel := context.WithCancel(c.ctx)
	defer readerCancel()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pingLoop(readerCtx, conn)
	}()

	err = c.readLoop(conn)
	readerCancel()
	c.wg.Wait()

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	conn.Close()

	if c.onStateChange != nil {
		c.onStateChange(false)
	}
	// The handshake succeeded, so the later drop is not a failed attempt:
	// return nil so Run resets its attempt counter.
	c.logger.WarnPrintf("connection lost: %v", err)
	return nil
}

func (c *Connection) readOne(conn *websocket.Conn) (frame.Frame, error) {
	_, b, err := conn.ReadMessage()
	if err != nil {
		return frame.Frame{}, err
	}
	return frame.Decode(b)
}

// readLoop is the single reader task (§4.5): dispatch every frame by type,
// always enqueueing audio_response frames to the inbound queue in addition
// to handler dispatch.
func (c *Connection) readLoop(conn *websocket.Conn) error {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		fr, err := frame.Decode(b)
		if err != nil {
			c.logger.WarnPrintf("decode inbound frame: %v", err)
			continue
		}

		if fr.Type == frame.TypeAudioResponse {
			if c.inboundCount.Load() >= inboundQueueSize {
				c.logger.WarnPrintf("inbound audio queue full, dropping oldest entry")
			} else {
				c.inboundCount.Add(1)
			}
			if _, err := c.inbound.Write([]frame.Frame{fr}); err != nil {
				c.logger.WarnPrintf("inbound audio queue closed, dropping frame")
			}
		}

		if h, ok := c.handlers[fr.Type]; ok {
			h(fr)
		}
	}
}

func (c *Connection) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(pingTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.WarnPrintf("ping failed: %v", err)
				return
			}
		}
	}
}

func (c *Connection) write(fr frame.Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("device: not connected")
	}
	b, err := frame.Encode(fr)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, b)
}

// Send writes fr through the single writer discipline and records
// last-activity for interaction-boundary detection (§4.5).
func (c *Connection) Send(fr frame.Frame) error {
	if fr.Type == frame.TypeAudioChunk {
		c.markOutbound()
	}
	return c.write(fr)
}

func (c *Connection) markOutbound() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.lastOutboundSend = time.Now()
}

// InteractionBoundary reports whether the gap since the last outbound
// audio_chunk exceeds interactionGap, meaning the caller should drain any
// residual inbound queue entries before starting a new utterance (§4.5).
func (c *Connection) InteractionBoundary() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.lastOutboundSend.IsZero() {
		return false
	}
	return time.Since(c.lastOutboundSend) > interactionGap
}

// HasQueuedAudio reports whether any audio_response frame is currently
// waiting in the inbound queue, used by the playback watchdog (§4.6).
func (c *Connection) HasQueuedAudio() bool {
	return c.inboundCount.Load() > 0
}

// DrainInbound discards every entry currently queued, used at an
// interaction boundary so stale chunks from a prior turn cannot bleed into
// the next playback.
func (c *Connection) DrainInbound() {
	_ = c.inbound.Discard(inboundQueueSize)
	c.inboundCount.Store(0)
}

// ReadInboundAudio blocks for the next queued audio_response frame.
func (c *Connection) ReadInboundAudio() (frame.Frame, error) {
	buf := make([]frame.Frame, 1)
	n, err := c.inbound.Read(buf)
	if n == 0 {
		return frame.Frame{}, err
	}
	if c.inboundCount.Add(-1) < 0 {
		c.inboundCount.Store(0)
	}
	return buf[0], err
}

// Close cancels the connection's context and waits for owned goroutines to
// join.
func (c *Connection) Close() error {
	c.cancel()
	c.wg.Wait()
	_ = c.inbound.Close()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
