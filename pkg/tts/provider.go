// Package tts abstracts speech-synthesis vendors behind a single streaming
// capability set (§4.4), with chunk coalescing, a provider registry, and
// default-provider fallback.
package tts

import (
	"context"
	"fmt"
)

// VoiceConfig carries the recognized voice configuration keys. Unknown keys
// passed in by callers are ignored by providers; missing fields fall back
// to provider defaults set from operator configuration.
type VoiceConfig struct {
	VoiceID string
	ModelID string
	Speed   float64
	Volume  float64
	Pitch   float64
	Emotion string
}

// Chunk is one coalesced unit of raw PCM16 audio yielded by a provider
// stream.
type Chunk struct {
	Data []byte
}

// Stream is a provider's in-flight synthesis: Next returns successive
// coalesced chunks until it returns io.EOF.
type Stream interface {
	Next(ctx context.Context) (Chunk, error)
	Close() error
}

// Provider is a speech-synthesis vendor adapter (§4.4's capability set).
type Provider interface {
	// Name is the registry key and the wire "provider" tag.
	Name() string
	// Format is always "pcm16", the canonical wire tag.
	Format() string
	// SampleRate is the provider's native output sample rate.
	SampleRate() int
	// Stream begins synthesis of text under the given voice configuration,
	// returning a Stream of coalesced raw PCM16 chunks in the provider's
	// native sample rate.
	Stream(ctx context.Context, text string, voice VoiceConfig) (Stream, error)
}

// ErrTTSFailed is the sentinel wire error emitted when every configured
// provider has failed to yield even one chunk (§4.4's fallback policy).
var ErrTTSFailed = fmt.Errorf("TTS_FAILED")

// Registry resolves a provider name to a Provider, falling back to a
// configured default when the name is unknown or empty.
type Registry struct {
	providers map[string]Provider
	defaultName string
}

// NewRegistry builds a Registry. defaultName must be registered via
// Register before first use, or Resolve returns an error.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		defaultName: defaultName,
	}
}

// Register adds a provider under its own Name().
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Default returns the configured default provider.
func (r *Registry) Default() (Provider, error) {
	p, ok := r.providers[r.defaultName]
	if !ok {
		return nil, fmt.Errorf("tts: default provider %q is not registered", r.defaultName)
	}
	return p, nil
}

// Resolve looks up name, falling back to the default provider if name is
// empty or unknown (§4.4's "Provider selection").
func (r *Registry) Resolve(name string) (Provider, error) {
	if name != "" {
		if p, ok := r.providers[name]; ok {
			return p, nil
		}
	}
	return r.Default()
}

// Names lists every registered provider name, used by the /health endpoint's
// tts_providers field.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
