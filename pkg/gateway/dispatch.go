package gateway

import (
	"context"
	"time"

	"github.com/snugbit/toygateway/pkg/cache"
	"github.com/snugbit/toygateway/pkg/frame"
	"github.com/snugbit/toygateway/pkg/jsontime"
	"github.com/snugbit/toygateway/pkg/tts"
)

// statusHeartbeatInterval is how often a status:processing frame is sent
// while the AI call is outstanding, to keep the client and transport alive
// during a long call (§4.3).
const statusHeartbeatInterval = 10 * time.Second

// dispatch runs the off-loop AI dispatch task for one utterance (§4.3,
// I5): it must never run on the session's reader goroutine. It owns the
// session handle for the duration of the call and is cancelled along with
// the session (§9's background-task ownership).
func (m *Manager) dispatch(ctx context.Context, s *Session, container []byte, format string, duration float64) {
	start := time.Now()
	defer func() {
		m.metrics.dispatchLatency.Observe(time.Since(start))
	}()

	stop := m.startStatusHeartbeat(ctx, s)
	defer stop()

	skipTTS := m.cfg.TTSDisabled || m.ttsConfigured()
	resp, err := m.ai.ProcessVoiceInteraction(ctx, AIRequest{
		ToyID:     s.ToyID,
		DeviceID:  s.DeviceID,
		SessionID: s.ID,
		Audio:     container,
		Format:    format,
		Duration:  duration,
		SkipTTS:   skipTTS,
		ThreadID:  s.getThreadID(),
	})
	if ctx.Err() != nil {
		return // session closed mid-call; don't touch a dead transport
	}
	if err != nil {
		m.logger.WarnPrintf("session %s: AI dispatch failed: %v", s.ID, err)
		_ = s.send(frame.ErrorFrame(errCodeFor(err), err.Error()))
		return
	}
	if !resp.Success {
		_ = s.send(frame.ErrorFrame("ai_backend_error", resp.Message))
		return
	}
	if resp.ThreadID != "" {
		s.setThreadID(resp.ThreadID)
	}

	// Text first, always (§4.3's "why text first"): this is the client's
	// playback trigger and must precede any audio_response (P3).
	if err := s.send(frame.Frame{
		Type: frame.TypeTextResponse,
		TextPayload: &frame.TextPayload{
			Text:      resp.Text,
			Timestamp: jsontime.NowEpoch(),
		},
	}); err != nil {
		return
	}

	providerName := ""
	if resp.ToyConfig != nil {
		if v, ok := resp.ToyConfig["ttsProvider"].(string); ok {
			providerName = v
		}
	}

	switch {
	case !skipTTS && resp.AudioData != nil:
		// TTS neither disabled nor gateway-streamed: the backend generated
		// audio itself and returned it directly.
		m.forwardBackendAudio(s, *resp.AudioData, providerName)
	case skipTTS && m.ttsConfigured():
		// The gateway owns TTS for this turn; stream from a provider.
		m.streamTTS(ctx, s, resp.Text, providerName)
	}

	m.enqueueTurn(s, resp)
}

func (m *Manager) startStatusHeartbeat(ctx context.Context, s *Session) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(statusHeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.send(frame.Frame{Type: frame.TypeStatus, Status: "processing"})
			}
		}
	}()
	return func() { close(done) }
}

// ttsConfigured reports whether the gateway itself will stream TTS,
// meaning the AI backend should not return audio directly (§4.3's skipTTS
// rule #3).
func (m *Manager) ttsConfigured() bool {
	return m.tts != nil && len(m.tts.Names()) > 0
}

func (m *Manager) forwardBackendAudio(s *Session, base64Audio string, providerName string) {
	raw, err := decodeBase64Audio(base64Audio)
	if err != nil {
		m.logger.WarnPrintf("session %s: decoding backend audio: %v", s.ID, err)
		return
	}
	_ = s.send(frame.NewAudioResponse(raw, false, 16000, providerName))
	_ = s.send(frame.NewAudioResponse(nil, true, 16000, providerName))
	m.metrics.audioBytesOut.Add(uint64(len(raw)))
}

// streamTTS implements §4.4: stream with default-provider fallback, or emit
// TTS_FAILED if both fail.
func (m *Manager) streamTTS(ctx context.Context, s *Session, text string, providerName string) {
	stream, provider, err := tts.StreamWithFallback(ctx, m.tts, providerName, text, tts.VoiceConfig{})
	if err != nil {
		_ = s.send(frame.ErrorFrame("TTS_FAILED", "Text-to-speech service unavailable"))
		return
	}
	defer stream.Close()

	for {
		chunk, err := stream.Next(ctx)
		if err != nil {
			break
		}
		if sendErr := s.send(frame.NewAudioResponse(chunk.Data, false, provider.SampleRate(), provider.Name())); sendErr != nil {
			return
		}
		m.metrics.audioBytesOut.Add(uint64(len(chunk.Data)))
	}
	_ = s.send(frame.NewAudioResponse(nil, true, provider.SampleRate(), provider.Name()))
}

func (m *Manager) enqueueTurn(s *Session, resp AIResponse) {
	if m.cache == nil {
		return
	}
	entry := cache.Entry{
		Priority:  cache.PriorityConversation,
		Kind:      cache.KindConversationTurn,
		SessionID: s.ID,
		DeviceID:  s.DeviceID,
		Payload:   []byte(resp.Text),
		CreatedAt: jsontime.NowEpoch(),
	}
	if err := m.cache.Enqueue(context.Background(), entry); err != nil {
		m.logger.WarnPrintf("session %s: cache enqueue failed (best effort, dropped): %v", s.ID, err)
	}
}
