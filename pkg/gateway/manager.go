package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/snugbit/toygateway/pkg/cache"
	"github.com/snugbit/toygateway/pkg/frame"
	"github.com/snugbit/toygateway/pkg/logging"
	"github.com/snugbit/toygateway/pkg/tts"
	"github.com/snugbit/toygateway/pkg/wavcontainer"
)

// Manager owns the live-sessions map, the idle-reap ticker, and dispatches
// accepted connections into Sessions (§4.2). Grounded on
// pkg/chatgear/listener.go's Listener: a mutex-guarded map of live
// connections plus a ticker-driven timeoutChecker, adapted from chatgear's
// MQTT topic-scoped ports to this protocol's WebSocket sessions.
type Manager struct {
	cfg    Config
	logger logging.Logger
	ai     AIBackend
	tts    *tts.Registry
	cache  cache.Queue

	metrics *Metrics

	mu       sync.RWMutex
	sessions map[string]*Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closed bool
}

// AIBackend is the opaque AI backend contract (§1, §4.3): an HTTP action
// that turns containerized audio into text plus an optional direct audio
// response and toy configuration.
type AIBackend interface {
	ProcessVoiceInteraction(ctx context.Context, req AIRequest) (AIResponse, error)
}

// NewManager constructs a Manager. ai and ttsRegistry must be non-nil;
// queue may be nil (best-effort telemetry is then simply dropped).
func NewManager(cfg Config, ai AIBackend, ttsRegistry *tts.Registry, queue cache.Queue, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default("gateway: ")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		ai:       ai,
		tts:      ttsRegistry,
		cache:    queue,
		metrics:  newMetrics(),
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	m.wg.Add(1)
	go m.reapLoop()
	if m.cache != nil {
		m.wg.Add(1)
		go m.flushLoop()
	}
	return m
}

// Accept registers a new Session for an accepted transport. It does not
// start the reader loop: callers (e.g. the HTTP handler) pass the returned
// Session to Run, which blocks until it ends.
func (m *Manager) Accept(deviceID, toyID string, tx Transport) *Session {
	s := newSession(m.ctx, deviceID, toyID, tx, m.logger)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.metrics.sessionsStarted.Add(1)
	m.metrics.activeSessions.Add(1)

	return s
}

// Run drives a Session's reader loop until the transport closes or the
// session's context is cancelled, dispatching every frame by type (§4.2).
// It blocks the caller (normally the HTTP handler goroutine for this
// connection) until the session ends, then reaps it from the live-sessions
// map exactly once (P1).
func (m *Manager) Run(s *Session) {
	defer m.reap(s)

	for {
		fr, err := s.tx.ReadFrame()
		if err != nil {
			return
		}
		s.touch()
		m.metrics.messagesByType.Add(string(fr.Type), 1)

		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if err := m.handleFrame(s, fr); err != nil {
			m.logger.WarnPrintf("session %s: handling %s frame: %v", s.ID, fr.Type, err)
		}
	}
}

func (m *Manager) handleFrame(s *Session, fr frame.Frame) error {
	switch fr.Type {
	case frame.TypeHandshake:
		return s.send(frame.Frame{Type: frame.TypeHandshakeAck, Status: "connected", SessionID: s.ID})

	case frame.TypePing:
		return s.send(frame.Frame{Type: frame.TypePong})

	case frame.TypeControl:
		return s.send(frame.Frame{Type: frame.TypeControlAck, OK: true, Command: fr.Command})

	case frame.TypeAudioChunk:
		return m.handleAudioChunk(s, fr)

	case frame.TypeError:
		m.logger.WarnPrintf("session %s: client reported error %q: %s", s.ID, fr.Error, fr.Message)
		return nil

	default:
		return s.send(frame.ErrorFrame(frame.UnknownTypeError(string(fr.Type)), ""))
	}
}

func (m *Manager) handleAudioChunk(s *Session, fr frame.Frame) error {
	if fr.Metadata == nil {
		return s.send(frame.ErrorFrame(frame.ErrCodeInvalidJSON, "audio_chunk missing metadata"))
	}
	raw, err := frame.DecodeAudio(fr.Data)
	if err != nil {
		return s.send(frame.ErrorFrame(frame.ErrCodeInvalidJSON, err.Error()))
	}
	m.metrics.audioBytesIn.Add(uint64(len(raw)))
	s.appendIngress(raw, fr.Metadata.Format, fr.Metadata.SampleRate)

	if !fr.Metadata.IsFinal {
		return nil
	}

	data, format, sampleRate := s.drainIngress()
	container, warn := containerize(data, format, sampleRate)
	if warn != "" {
		m.logger.WarnPrintf("session %s: %s", s.ID, warn)
	}

	// Off-loop dispatch (I5, §4.3): the reader never blocks on the AI call.
	if err := s.send(frame.Frame{Type: frame.TypeStatus, Status: "processing"}); err != nil {
		return err
	}
	duration := fr.Metadata.Duration
	s.spawn(func(ctx context.Context) {
		m.dispatch(ctx, s, container, format, duration)
	})
	return nil
}

// reap removes a session from the live-sessions map and closes it, exactly
// once per session (P1: active_sessions is eventually decremented exactly
// once).
func (m *Manager) reap(s *Session) {
	m.mu.Lock()
	_, present := m.sessions[s.ID]
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	if !present {
		return
	}
	if err := s.close(); err != nil {
		m.logger.WarnPrintf("session %s: close: %v", s.ID, err)
	}
	m.metrics.activeSessions.Add(-1)
}

// reapLoop is the idle-reap background task (§4.2): every
// cfg.ReapInterval, close sessions whose last-activity exceeds
// cfg.IdleTimeout. Grounded on pkg/chatgear/listener.go's
// timeoutChecker/checkTimeouts ticker pattern.
func (m *Manager) reapLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

func (m *Manager) reapIdle() {
	var stale []*Session
	m.mu.RLock()
	for _, s := range m.sessions {
		if s.idleFor() > m.cfg.IdleTimeout {
			stale = append(stale, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range stale {
		m.logger.InfoPrintf("reaping idle session %s (device %s)", s.ID, s.DeviceID)
		m.reap(s)
	}
}

// flushLoop is the write-behind cache's timer-driven flush (§4.7): every
// cfg.CacheFlushInterval, drain the queue upstream.
func (m *Manager) flushLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CacheFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.flushCache()
		}
	}
}

// flushCache drains every queued entry, delivering each upstream. A
// delivery failure stops the drain and leaves the remainder queued for the
// next tick (§4.7's "logged and retried on the next tick, not retried
// immediately").
func (m *Manager) flushCache() {
	if m.cache == nil {
		return
	}
	if err := m.cache.Drain(context.Background(), m.deliverUpstream); err != nil {
		m.logger.WarnPrintf("cache flush: %v", err)
	}
}

// deliverUpstream is the queue's delivery callback. No upstream telemetry
// service is in scope for this gateway (§1's Non-goals); delivery is a log
// sink, which still exercises the real drain/requeue-on-failure path.
func (m *Manager) deliverUpstream(e cache.Entry) error {
	m.logger.InfoPrintf("flushed %s entry for session %s (device %s)", e.Kind, e.SessionID, e.DeviceID)
	return nil
}

// Shutdown cancels the idle-reap and cache-flush loops, closes every live
// session, and performs one final cache flush so enqueued turns are not
// lost across a restart (§4.7).
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	for _, s := range sessions {
		m.reap(s)
	}
	m.flushCache()
}

// ActiveSessions reports the current live-session count, for /health.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func containerize(data []byte, format string, sampleRate int) (container []byte, warning string) {
	switch format {
	case "pcm16", "":
		rate := sampleRate
		if rate == 0 {
			rate = 16000
		}
		return wavcontainer.Wrap(data, rate), ""
	case "wav":
		return data, ""
	case "opus":
		return data, "opus audio passed through without a container; downstream STT may require one"
	default:
		return data, fmt.Sprintf("unrecognized audio format %q passed through without a container", format)
	}
}
