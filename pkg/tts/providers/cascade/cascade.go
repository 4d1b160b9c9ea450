// Package cascade implements a chunked-binary speech-synthesis vendor
// client: the HTTP response body is a raw byte stream with no inner
// framing, read in fixed-size chunks (grounded on the "iter_content"-style
// minimum-chunk producer pattern retrieved for this spec), with the output
// sample rate parsed out of a requested "pcm_<rate>" output-format string.
package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/snugbit/toygateway/pkg/logging"
	"github.com/snugbit/toygateway/pkg/tts"
)

const (
	defaultOutputFormat = "pcm_24000"
	readChunkBytes       = 4096
)

// Config holds cascade's operator-configured defaults.
type Config struct {
	APIKey       string
	BaseURL      string // e.g. https://api.cascade.example/v1/speech
	OutputFormat string // e.g. "pcm_24000"; defaults to defaultOutputFormat
	HTTPClient   *http.Client
	Logger       logging.Logger
}

// Provider is the cascade speech-synthesis vendor adapter.
type Provider struct {
	cfg        Config
	sampleRate int
}

// New builds a cascade Provider from Config.
func New(cfg Config) *Provider {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default("cascade: ")
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = defaultOutputFormat
	}
	return &Provider{cfg: cfg, sampleRate: parseSampleRate(cfg.OutputFormat)}
}

func parseSampleRate(format string) int {
	parts := strings.SplitN(format, "_", 2)
	if len(parts) != 2 {
		return 16000
	}
	rate, err := strconv.Atoi(parts[1])
	if err != nil {
		return 16000
	}
	return rate
}

func (p *Provider) Name() string    { return "cascade" }
func (p *Provider) Format() string  { return "pcm16" }
func (p *Provider) SampleRate() int { return p.sampleRate }

type requestBody struct {
	Text         string  `json:"text"`
	VoiceID      string  `json:"voice_id,omitempty"`
	ModelID      string  `json:"model_id,omitempty"`
	OutputFormat string  `json:"output_format"`
	VoiceSettings voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Speed float64 `json:"speed,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`
}

// Stream issues the chunked-binary synthesis request and returns a Stream
// that reads coalesced chunks from the raw response body.
func (p *Provider) Stream(ctx context.Context, text string, voice tts.VoiceConfig) (tts.Stream, error) {
	body := requestBody{
		Text:         text,
		VoiceID:      voice.VoiceID,
		ModelID:      voice.ModelID,
		OutputFormat: p.cfg.OutputFormat,
		VoiceSettings: voiceSettings{
			Speed: voice.Speed,
			Pitch: voice.Pitch,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("cascade: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("cascade: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", p.cfg.APIKey)

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cascade: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("cascade: unexpected status %d", resp.StatusCode)
	}

	coalescer := tts.NewCoalescer()
	go pump(resp, coalescer, p.cfg.Logger)
	return &stream{coalescer: coalescer}, nil
}

func pump(resp *http.Response, c *tts.Coalescer, log logging.Logger) {
	defer resp.Body.Close()
	buf := make([]byte, readChunkBytes)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if pushErr := c.Push(buf[:n]); pushErr != nil {
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				_ = c.CloseProducer()
				return
			}
			log.WarnPrintf("reading response body: %v", err)
			_ = c.CloseWithError(fmt.Errorf("cascade: reading stream: %w", err))
			return
		}
	}
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
