package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// AIRequest is the body posted to the AI backend's processVoiceInteraction
// action (§4.3).
type AIRequest struct {
	ToyID     string
	DeviceID  string
	SessionID string
	Audio     []byte // containerized, not yet base64-encoded
	Format    string
	Duration  float64
	SkipTTS   bool
	ThreadID  string // prior turn's conversation id, if any (§4.3); optional
}

// AIResponse is the AI backend's reply.
type AIResponse struct {
	Success   bool
	Message   string
	Text      string
	AudioData *string // base64, present only when SkipTTS was false
	ToyConfig map[string]any
	ThreadID  string
}

type wireAIRequest struct {
	ToyID     string  `json:"toyId"`
	DeviceID  string  `json:"deviceId"`
	SessionID string  `json:"sessionId"`
	Audio     string  `json:"audioData"`
	Format    string  `json:"format"`
	Duration  float64 `json:"duration"`
	SkipTTS   bool    `json:"skipTTS"`
	ThreadID  string  `json:"threadId,omitempty"`
}

type wireAIResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Text      string          `json:"text"`
	AudioData *string         `json:"audioData"`
	ToyConfig map[string]any  `json:"toyConfig"`
	ThreadID  string          `json:"threadId"`
}

// HTTPAIBackend invokes the AI backend as an opaque HTTP action (§1, §4.3).
type HTTPAIBackend struct {
	URL        string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewHTTPAIBackend builds an HTTPAIBackend with sane defaults for a nil
// HTTPClient or zero Timeout.
func NewHTTPAIBackend(url, token string, timeout time.Duration) *HTTPAIBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAIBackend{
		URL:        url,
		Token:      token,
		HTTPClient: &http.Client{},
		Timeout:    timeout,
	}
}

// timeoutErrorCode formats the wire error code for an AI call that exceeded
// its configured timeout, in the upstream's historical
// "convex_timeout_after_Ns" shape (§8, scenario 2), preserved verbatim per
// SPEC_FULL.md's open-question decision not to alter this behavior.
func timeoutErrorCode(timeout time.Duration) string {
	return fmt.Sprintf("convex_timeout_after_%.1fs", timeout.Seconds())
}

func (b *HTTPAIBackend) ProcessVoiceInteraction(ctx context.Context, req AIRequest) (AIResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	payload, err := json.Marshal(wireAIRequest{
		ToyID:     req.ToyID,
		DeviceID:  req.DeviceID,
		SessionID: req.SessionID,
		Audio:     base64.StdEncoding.EncodeToString(req.Audio),
		Format:    req.Format,
		Duration:  req.Duration,
		SkipTTS:   req.SkipTTS,
		ThreadID:  req.ThreadID,
	})
	if err != nil {
		return AIResponse{}, fmt.Errorf("gateway: encode AI request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.URL, bytes.NewReader(payload))
	if err != nil {
		return AIResponse{}, fmt.Errorf("gateway: build AI request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.Token)
	}

	resp, err := b.HTTPClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return AIResponse{}, fmt.Errorf("%s", timeoutErrorCode(b.Timeout))
		}
		return AIResponse{}, fmt.Errorf("gateway: AI backend request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return AIResponse{}, fmt.Errorf("gateway: reading AI backend response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AIResponse{}, fmt.Errorf("gateway: AI backend returned status %d", resp.StatusCode)
	}

	var wire wireAIResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(string(body))
		if rerr != nil {
			return AIResponse{}, fmt.Errorf("gateway: decode AI backend response: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &wire); err != nil {
			return AIResponse{}, fmt.Errorf("gateway: decode repaired AI backend response: %w", err)
		}
	}

	return AIResponse{
		Success:   wire.Success,
		Message:   wire.Message,
		Text:      wire.Text,
		AudioData: wire.AudioData,
		ToyConfig: wire.ToyConfig,
		ThreadID:  wire.ThreadID,
	}, nil
}

func decodeBase64Audio(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// errCodeFor maps a dispatch error to its wire error code: a timeout keeps
// its own formatted code, anything else is surfaced as a generic
// ai_dispatch_failed code with the error text as the message.
func errCodeFor(err error) string {
	msg := err.Error()
	if len(msg) > len("convex_timeout_after_") && msg[:len("convex_timeout_after_")] == "convex_timeout_after_" {
		return msg
	}
	return "ai_dispatch_failed"
}
