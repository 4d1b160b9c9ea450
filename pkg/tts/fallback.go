package tts

import (
	"context"
	"errors"
)

// StreamWithFallback resolves provider name from the registry and begins
// streaming. If the resolved provider fails before yielding any bytes, it
// retries once against the registry's default provider (§4.4's fallback
// policy). If that also fails, it returns ErrTTSFailed.
func StreamWithFallback(ctx context.Context, reg *Registry, name string, text string, voice VoiceConfig) (Stream, Provider, error) {
	primary, err := reg.Resolve(name)
	if err != nil {
		return nil, nil, errors.Join(ErrTTSFailed, err)
	}

	s, err := primary.Stream(ctx, text, voice)
	if err == nil {
		first, peekErr := peek(ctx, s)
		if peekErr == nil {
			return &prependStream{first: first, underlying: s}, primary, nil
		}
		s.Close()
	}

	fallback, fbErr := reg.Default()
	if fbErr != nil || fallback.Name() == primary.Name() {
		return nil, nil, ErrTTSFailed
	}
	fs, ferr := fallback.Stream(ctx, text, voice)
	if ferr != nil {
		return nil, nil, ErrTTSFailed
	}
	first, peekErr := peek(ctx, fs)
	if peekErr != nil {
		fs.Close()
		return nil, nil, ErrTTSFailed
	}
	return &prependStream{first: first, underlying: fs}, fallback, nil
}

// peek reads the first chunk eagerly, so failures that only manifest once
// streaming actually starts (auth errors, vendor 5xx mid-stream) are caught
// before a consumer believes the provider has committed to a response.
func peek(ctx context.Context, s Stream) (Chunk, error) {
	return s.Next(ctx)
}

// prependStream replays a chunk already consumed during fallback probing
// ahead of the underlying stream's remaining output.
type prependStream struct {
	first     Chunk
	consumed  bool
	underlying Stream
}

func (p *prependStream) Next(ctx context.Context) (Chunk, error) {
	if !p.consumed {
		p.consumed = true
		return p.first, nil
	}
	return p.underlying.Next(ctx)
}

func (p *prependStream) Close() error {
	return p.underlying.Close()
}
