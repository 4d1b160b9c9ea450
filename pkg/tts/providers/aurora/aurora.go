// Package aurora implements an SSE-framed speech-synthesis vendor client:
// the response body is a stream of "data: {...}" lines, one JSON event per
// chunk of base64 audio, terminated by a "[DONE]" sentinel line. Grounded
// on the SSE event-reader pattern retrieved for this spec (manual line
// splitting on "data: ", a fixed native sample rate, a base64 payload per
// event) rather than any standard library SSE client, since none of the
// example repos vendor one.
package aurora

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/snugbit/toygateway/pkg/logging"
	"github.com/snugbit/toygateway/pkg/tts"
)

const nativeSampleRate = 16000

// Config holds aurora's operator-configured defaults.
type Config struct {
	APIKey        string
	BaseURL       string // e.g. https://api.aurora.example/v1/t2a
	DefaultVoiceID string
	HTTPClient    *http.Client
	Logger        logging.Logger
}

// Provider is the aurora speech-synthesis vendor adapter.
type Provider struct {
	cfg Config
}

// New builds an aurora Provider from Config, filling in defaults for a nil
// HTTPClient or Logger.
func New(cfg Config) *Provider {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default("aurora: ")
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) Name() string       { return "aurora" }
func (p *Provider) Format() string     { return "pcm16" }
func (p *Provider) SampleRate() int    { return nativeSampleRate }

type requestBody struct {
	Text         string      `json:"text"`
	Stream       bool        `json:"stream"`
	VoiceSetting voiceSetting `json:"voice_setting"`
	AudioSetting audioSetting `json:"audio_setting"`
}

type voiceSetting struct {
	VoiceID string  `json:"voice_id,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
	Volume  float64 `json:"vol,omitempty"`
	Pitch   float64 `json:"pitch,omitempty"`
	Emotion string  `json:"emotion,omitempty"`
}

type audioSetting struct {
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Channel    int    `json:"channel"`
	BitsPerSample int `json:"bits_per_sample"`
}

type streamEvent struct {
	Audio    string `json:"audio"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

// Stream issues the SSE-framed synthesis request and returns a Stream that
// reads coalesced chunks as events arrive.
func (p *Provider) Stream(ctx context.Context, text string, voice tts.VoiceConfig) (tts.Stream, error) {
	voiceID := voice.VoiceID
	if voiceID == "" {
		voiceID = p.cfg.DefaultVoiceID
	}
	body := requestBody{
		Text:   text,
		Stream: true,
		VoiceSetting: voiceSetting{
			VoiceID: voiceID,
			Speed:   voice.Speed,
			Volume:  voice.Volume,
			Pitch:   voice.Pitch,
			Emotion: voice.Emotion,
		},
		AudioSetting: audioSetting{
			Format:        "pcm",
			SampleRate:    nativeSampleRate,
			Channel:       1,
			BitsPerSample: 16,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("aurora: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("aurora: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aurora: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("aurora: unexpected status %d", resp.StatusCode)
	}

	coalescer := tts.NewCoalescer()
	go pump(resp, coalescer, p.cfg.Logger)
	return &stream{coalescer: coalescer}, nil
}

func pump(resp *http.Response, c *tts.Coalescer, log logging.Logger) {
	defer resp.Body.Close()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			log.WarnPrintf("skipping malformed event: %v", err)
			continue
		}
		if ev.BaseResp.StatusCode != 0 {
			_ = c.CloseWithError(fmt.Errorf("aurora: vendor error %d: %s", ev.BaseResp.StatusCode, ev.BaseResp.StatusMsg))
			return
		}
		if ev.Audio == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(ev.Audio)
		if err != nil {
			log.WarnPrintf("skipping undecodable audio event: %v", err)
			continue
		}
		if err := c.Push(raw); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		_ = c.CloseWithError(fmt.Errorf("aurora: reading stream: %w", err))
		return
	}
	_ = c.CloseProducer()
}

type stream struct {
	coalescer *tts.Coalescer
}

func (s *stream) Next(ctx context.Context) (tts.Chunk, error) {
	return s.coalescer.Next(ctx)
}

func (s *stream) Close() error {
	return s.coalescer.CloseWithError(nil)
}
